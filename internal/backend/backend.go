// Package backend holds the MIDI output devices a transport can drive.
package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	"github.com/jscyril/golang_midi_player/internal/stream"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/pion/logging"
	"gitlab.com/gomidi/midi/v2"
)

// Capability says how a backend gets its sound out.
type Capability int

const (
	// NativeStreaming backends play event buffers through their own output.
	NativeStreaming Capability = iota
	// PseudoStreaming backends render ahead and play through the host mixer.
	PseudoStreaming
)

func (c Capability) String() string {
	if c == PseudoStreaming {
		return "pseudo-streaming"
	}
	return "native-streaming"
}

const (
	NameSoftSynth = "softsynth"
	NameNative    = "native"
)

// DoneFunc is called each time a backend finishes playing a buffer.
type DoneFunc func()

// Backend is a MIDI output device.
type Backend interface {
	Name() string
	Capability() Capability
	Open(done DoneFunc) error
	Close() error
	SetTimeDiv(division uint16) error
	SetTempo(tempo uint32) error
	// StreamOut queues a buffer of events. Pseudo-streaming backends
	// discard it.
	StreamOut(events []midifile.StreamEvent) error
	Resume() error
	Pause(paused bool) error
	// Stop silences output and drops queued buffers. It does not wait for
	// the output goroutine to finish.
	Stop() error
	Preprocess(song *midifile.Song, looping bool) error
	// Source is what the stream manager plays. Native backends return a
	// source with a zero buffer size.
	Source() stream.Source
	VolumeChanged(volume float64)
	Stats() string
}

// Seeker is a backend that keeps its own play position.
type Seeker interface {
	Position() time.Duration
	Seek(position time.Duration) error
}

// SettingApplier is a backend taking setting changes. applied is false
// when the change only takes effect after the song is reopened.
type SettingApplier interface {
	ApplySetting(key string, value interface{}) (applied bool, err error)
}

// Config selects and configures a backend.
type Config struct {
	Name         string
	Port         string
	SoundFont    string
	SampleRate   int
	Tail         time.Duration
	BufferFrames int
	FixedPoint   bool
	FakeVolume   bool
}

// New creates the backend named in cfg.
func New(cfg Config, factory logging.LoggerFactory) (Backend, error) {
	switch strings.ToLower(cfg.Name) {
	case "", NameSoftSynth:
		return NewSoftSynth(cfg, factory.NewLogger("softsynth")), nil
	case NameNative:
		return NewNative(cfg.Port, cfg.FakeVolume, factory.NewLogger("native")), nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", playerrors.ErrDeviceUnavailable, cfg.Name)
}

// Devices lists the software synth followed by every MIDI output port.
func Devices() []api.DeviceInfo {
	devices := []api.DeviceInfo{{
		ID:         0,
		Name:       "Software synthesizer",
		Backend:    NameSoftSynth,
		Technology: api.TechSoftwareSynth,
	}}
	for i, out := range midi.GetOutPorts() {
		devices = append(devices, api.DeviceInfo{
			ID:         i + 1,
			Name:       out.String(),
			Backend:    NameNative,
			Technology: api.TechMIDIPort,
		})
	}
	return devices
}

func settingInt(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("setting %s: want a number, got %T", key, value)
}

func settingBool(key string, value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("setting %s: want a boolean, got %v", key, value)
}

