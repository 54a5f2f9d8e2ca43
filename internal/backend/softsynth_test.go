package backend

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	"github.com/jscyril/golang_midi_player/internal/render"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/pion/logging"
)

type silentSynth struct{}

func (silentSynth) ProcessMidiMessage(channel, command, data1, data2 int32) {}
func (silentSynth) NoteOffAll(immediate bool)                               {}
func (silentSynth) Render(left, right []float32)                            {}

func newTestSoftSynth(cfg Config) (*SoftSynth, *[]int) {
	var rates []int
	s := NewSoftSynth(cfg, logging.NewDefaultLoggerFactory().NewLogger("softsynth"))
	s.WithSynthFactory(func(sampleRate int) (render.Synth, error) {
		rates = append(rates, sampleRate)
		return silentSynth{}, nil
	})
	return s, &rates
}

func testSong() *midifile.Song {
	return &midifile.Song{
		Container: api.ContainerMIDI,
		Division:  480,
		Tempo:     midifile.DefaultTempo,
		Events:    []midifile.Event{{Tick: 0, Message: []byte{0x90, 60, 100}, Duration: 960}},
		Length:    960,
	}
}

func TestSoftSynthPreprocess(t *testing.T) {
	s, rates := newTestSoftSynth(Config{SampleRate: 22050, Tail: -1})
	if s.Source() != nil {
		t.Fatal("Source() before Preprocess should be nil")
	}
	if err := s.Open(nil); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Preprocess(testSong(), false); err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	if len(*rates) != 1 || (*rates)[0] != 22050 {
		t.Errorf("synth created at %v, want [22050]", *rates)
	}

	src := s.Source()
	if src == nil {
		t.Fatal("Source() after Preprocess is nil")
	}
	info := src.StreamInfo()
	if info.SampleRate != 22050 || !info.IsFloat() || info.BufferSize == 0 {
		t.Errorf("StreamInfo() = %+v", info)
	}
	if got := s.Audio().Duration(); got != time.Second {
		t.Errorf("rendered duration = %v, want 1s", got)
	}
}

func TestSoftSynthSeekAndStop(t *testing.T) {
	s, _ := newTestSoftSynth(Config{SampleRate: 8000, Tail: -1})
	if err := s.Seek(time.Second); !errors.Is(err, playerrors.ErrNoData) {
		t.Errorf("Seek() before render error = %v, want ErrNoData", err)
	}

	s.Open(nil)
	s.Preprocess(testSong(), false)
	s.Seek(500 * time.Millisecond)
	if got := s.Position(); got != 500*time.Millisecond {
		t.Errorf("Position() = %v, want 500ms", got)
	}
	s.Stop()
	if got := s.Position(); got != 0 {
		t.Errorf("Position() after Stop = %v, want 0", got)
	}
}

func TestSoftSynthSettingsNeedRestart(t *testing.T) {
	s, rates := newTestSoftSynth(Config{SampleRate: 44100})
	s.Open(nil)

	tests := []struct {
		key     string
		value   interface{}
		wantErr error
	}{
		{"sample_rate", 32000, nil},
		{"fixed_point", "on", nil},
		{"sample_rate", 10, nil},
		{"chorus", true, playerrors.ErrUnknownSetting},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			applied, err := s.ApplySetting(tt.key, tt.value)
			if applied {
				t.Error("softsynth settings never apply live")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	s.Preprocess(testSong(), false)
	if (*rates)[0] != 32000 {
		t.Errorf("rendered at %d Hz, want 32000", (*rates)[0])
	}
	if s.Source().StreamInfo().IsFloat() {
		t.Error("fixed_point setting ignored")
	}
}

func TestSoftSynthOpenWithoutSoundFont(t *testing.T) {
	log := logging.NewDefaultLoggerFactory().NewLogger("softsynth")

	s := NewSoftSynth(Config{}, log)
	if err := s.Open(nil); !errors.Is(err, playerrors.ErrDeviceUnavailable) {
		t.Errorf("Open() without soundfont error = %v, want ErrDeviceUnavailable", err)
	}

	s = NewSoftSynth(Config{SoundFont: filepath.Join(t.TempDir(), "missing.sf2")}, log)
	if err := s.Open(nil); !errors.Is(err, playerrors.ErrDeviceUnavailable) {
		t.Errorf("Open() with missing soundfont error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(Config{Name: "opl3"}, logging.NewDefaultLoggerFactory())
	if !errors.Is(err, playerrors.ErrDeviceUnavailable) {
		t.Errorf("New(opl3) error = %v, want ErrDeviceUnavailable", err)
	}

	b, err := New(Config{Name: "SoftSynth"}, logging.NewDefaultLoggerFactory())
	if err != nil || b.Capability() != PseudoStreaming {
		t.Errorf("New(SoftSynth) = %v, %v", b, err)
	}
}
