package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/jscyril/golang_midi_player/internal/midifile"
	"github.com/jscyril/golang_midi_player/internal/render"
	"github.com/jscyril/golang_midi_player/internal/stream"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/pion/logging"
)

// SynthFactory creates a synthesizer rendering at sampleRate.
type SynthFactory func(sampleRate int) (render.Synth, error)

// SoftSynth renders the whole song with a SoundFont synthesizer when it is
// prepared, then plays the result through the host mixer.
type SoftSynth struct {
	mu         sync.Mutex
	soundFont  string
	newSynth   SynthFactory
	opts       render.Options
	log        logging.LeveledLogger
	audio      *render.Audio
	renderTime time.Duration
	division   uint16
	tempo      uint32
	open       bool
}

// NewSoftSynth returns a software synth loading cfg.SoundFont on Open.
func NewSoftSynth(cfg Config, log logging.LeveledLogger) *SoftSynth {
	return &SoftSynth{
		soundFont: cfg.SoundFont,
		log:       log,
		opts: render.Options{
			SampleRate:   cfg.SampleRate,
			Tail:         cfg.Tail,
			Fixed:        cfg.FixedPoint,
			BufferFrames: cfg.BufferFrames,
		},
	}
}

// WithSynthFactory replaces SoundFont loading with factory.
func (s *SoftSynth) WithSynthFactory(factory SynthFactory) *SoftSynth {
	s.newSynth = factory
	return s
}

func (s *SoftSynth) Name() string           { return NameSoftSynth }
func (s *SoftSynth) Capability() Capability { return PseudoStreaming }

// Open loads the SoundFont. A missing SoundFont makes the device
// unavailable.
func (s *SoftSynth) Open(done DoneFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.newSynth == nil {
		if s.soundFont == "" {
			return fmt.Errorf("%w: no soundfont configured", playerrors.ErrDeviceUnavailable)
		}
		sf, err := render.LoadSoundFont(s.soundFont)
		if err != nil {
			return err
		}
		s.newSynth = func(sampleRate int) (render.Synth, error) {
			return render.NewSynth(sf, sampleRate)
		}
		s.log.Infof("loaded soundfont %s", s.soundFont)
	}
	s.open = true
	return nil
}

func (s *SoftSynth) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.audio = nil
	return nil
}

func (s *SoftSynth) SetTimeDiv(division uint16) error {
	s.mu.Lock()
	s.division = division
	s.mu.Unlock()
	return nil
}

func (s *SoftSynth) SetTempo(tempo uint32) error {
	s.mu.Lock()
	s.tempo = tempo
	s.mu.Unlock()
	return nil
}

// StreamOut discards events; the song was rendered in Preprocess.
func (s *SoftSynth) StreamOut(events []midifile.StreamEvent) error {
	return nil
}

// Preprocess renders song in full.
func (s *SoftSynth) Preprocess(song *midifile.Song, looping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return fmt.Errorf("%w: softsynth not open", playerrors.ErrDeviceUnavailable)
	}

	opts := s.opts
	if opts.SampleRate <= 0 {
		opts.SampleRate = render.DefaultSampleRate
	}
	synth, err := s.newSynth(opts.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: %v", playerrors.ErrDeviceUnavailable, err)
	}

	start := time.Now()
	audio, err := render.RenderOffline(song, synth, opts)
	if err != nil {
		return err
	}
	audio.SetLooping(looping)
	s.audio = audio
	s.renderTime = time.Since(start)
	s.log.Debugf("rendered %v of audio in %v", audio.Duration(), s.renderTime)
	return nil
}

func (s *SoftSynth) Resume() error    { return nil }
func (s *SoftSynth) Pause(bool) error { return nil }

// Stop rewinds the rendered audio.
func (s *SoftSynth) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil {
		s.audio.Rewind()
	}
	return nil
}

// Source returns the rendered audio, or nil before Preprocess.
func (s *SoftSynth) Source() stream.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio == nil {
		return nil
	}
	return s.audio
}

// Audio returns the last rendered song.
func (s *SoftSynth) Audio() *render.Audio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// VolumeChanged is a no-op; the mixer stream carries the volume.
func (s *SoftSynth) VolumeChanged(float64) {}

func (s *SoftSynth) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio == nil {
		return 0
	}
	return s.audio.Position()
}

func (s *SoftSynth) Seek(position time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio == nil {
		return playerrors.ErrNoData
	}
	s.audio.Seek(position)
	return nil
}

// ApplySetting stores render settings. None of them apply to audio that
// is already rendered, so the song has to be reopened.
func (s *SoftSynth) ApplySetting(key string, value interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case "sample_rate":
		rate, err := settingInt(key, value)
		if err != nil {
			return false, err
		}
		if rate < 8000 || rate > 192000 {
			return false, fmt.Errorf("setting %s: %d Hz out of range", key, rate)
		}
		s.opts.SampleRate = rate
	case "fixed_point":
		fixed, err := settingBool(key, value)
		if err != nil {
			return false, err
		}
		s.opts.Fixed = fixed
	case "soundfont":
		path, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("setting %s: want a path, got %T", key, value)
		}
		sf, err := render.LoadSoundFont(path)
		if err != nil {
			return false, err
		}
		s.soundFont = path
		s.newSynth = func(sampleRate int) (render.Synth, error) {
			return render.NewSynth(sf, sampleRate)
		}
	default:
		return false, fmt.Errorf("%w: %s", playerrors.ErrUnknownSetting, key)
	}
	return false, nil
}

func (s *SoftSynth) Stats() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio == nil {
		return fmt.Sprintf("softsynth %q: nothing rendered", s.soundFont)
	}
	return fmt.Sprintf("softsynth %q: %d Hz, %v rendered in %v, at %v",
		s.soundFont, s.audio.SampleRate(), s.audio.Duration().Round(time.Millisecond),
		s.renderTime.Round(time.Millisecond), s.audio.Position().Round(time.Second))
}
