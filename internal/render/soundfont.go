package render

import (
	"bytes"
	"fmt"
	"os"

	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

// LoadSoundFont reads and parses an SF2 file.
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: soundfont %s not found", playerrors.ErrDeviceUnavailable, path)
		}
		return nil, fmt.Errorf("read soundfont: %w", err)
	}

	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse soundfont: %w", err)
	}
	return sf, nil
}

// NewSynth creates a synthesizer for sf at sampleRate.
func NewSynth(sf *meltysynth.SoundFont, sampleRate int) (Synth, error) {
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	return synth, nil
}
