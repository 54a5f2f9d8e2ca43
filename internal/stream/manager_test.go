package stream

import (
	"errors"
	"testing"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/gain"
	"github.com/pion/logging"
)

type fakeStream struct {
	playing bool
	paused  bool
	stopped bool
	volume  float64
	playErr error
}

func (s *fakeStream) Play(looping bool, volume float64) error {
	if s.playErr != nil {
		return s.playErr
	}
	s.playing = true
	s.volume = volume
	return nil
}

func (s *fakeStream) SetPaused(paused bool) { s.paused = paused }
func (s *fakeStream) SetVolume(v float64)   { s.volume = v }
func (s *fakeStream) Stop()                 { s.stopped = true }

type fakeMixer struct {
	created    []*fakeStream
	bufferSize int
	flags      Flags
	sampleRate int
	fill       FillFunc
	err        error
}

func (m *fakeMixer) CreateStream(fill FillFunc, bufferSize int, flags Flags, sampleRate int) (Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.fill = fill
	m.bufferSize = bufferSize
	m.flags = flags
	m.sampleRate = sampleRate
	s := &fakeStream{}
	m.created = append(m.created, s)
	return s, nil
}

func newTestManager(mixer Mixer) (*Manager, *gain.State) {
	g := gain.NewState()
	log := logging.NewDefaultLoggerFactory().NewLogger("stream")
	return NewManager(mixer, g, log), g
}

func TestCreateStreamFormats(t *testing.T) {
	tests := []struct {
		name       string
		format     api.StreamFormat
		wantSize   int
		wantFlags  Flags
		wantStream bool
	}{
		{"float stereo", api.StreamFormat{Channels: 2, SampleRate: 44100, BufferSize: 4096}, 4096, FlagFloat, true},
		{"fixed stereo", api.StreamFormat{Channels: -2, SampleRate: 22050, BufferSize: 2048}, 4096, FlagFloat, true},
		{"float mono", api.StreamFormat{Channels: 1, SampleRate: 44100, BufferSize: 1024}, 1024, FlagFloat | FlagMono, true},
		{"fixed mono", api.StreamFormat{Channels: -1, SampleRate: 11025, BufferSize: 512}, 1024, FlagFloat | FlagMono, true},
		{"self rendering", api.StreamFormat{Channels: 2, SampleRate: 44100}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mixer := &fakeMixer{}
			m, _ := newTestManager(mixer)

			if err := m.CreateStream(&fakeSource{format: tt.format}); err != nil {
				t.Fatalf("CreateStream() error = %v", err)
			}
			if got := len(mixer.created) == 1; got != tt.wantStream {
				t.Fatalf("stream created = %v, want %v", got, tt.wantStream)
			}
			if m.Active() != tt.wantStream {
				t.Errorf("Active() = %v, want %v", m.Active(), tt.wantStream)
			}
			if !tt.wantStream {
				return
			}
			if mixer.bufferSize != tt.wantSize {
				t.Errorf("buffer size = %d, want %d", mixer.bufferSize, tt.wantSize)
			}
			if mixer.flags != tt.wantFlags {
				t.Errorf("flags = %v, want %v", mixer.flags, tt.wantFlags)
			}
			if mixer.sampleRate != tt.format.SampleRate {
				t.Errorf("sample rate = %d, want %d", mixer.sampleRate, tt.format.SampleRate)
			}
			if !mixer.created[0].playing {
				t.Error("stream was not started")
			}
		})
	}
}

func TestCreateStreamStartsAtEffectiveVolume(t *testing.T) {
	mixer := &fakeMixer{}
	m, g := newTestManager(mixer)
	g.SetMasterVolume(0.5)
	g.SetRelativeVolume(0.5)

	m.CreateStream(&fakeSource{format: api.StreamFormat{Channels: 2, SampleRate: 44100, BufferSize: 64}})
	if got := mixer.created[0].volume; got != 0.25 {
		t.Errorf("initial volume = %v, want 0.25", got)
	}

	g.SetMasterVolume(1)
	if got := mixer.created[0].volume; got != 0.5 {
		t.Errorf("volume after change = %v, want 0.5", got)
	}
}

func TestCreateStreamReplacesPrevious(t *testing.T) {
	mixer := &fakeMixer{}
	m, _ := newTestManager(mixer)
	format := api.StreamFormat{Channels: 2, SampleRate: 44100, BufferSize: 64}

	m.CreateStream(&fakeSource{format: format})
	m.CreateStream(&fakeSource{format: format})
	if len(mixer.created) != 2 {
		t.Fatalf("created %d streams, want 2", len(mixer.created))
	}
	if !mixer.created[0].stopped {
		t.Error("first stream was not stopped")
	}
	if mixer.created[1].stopped {
		t.Error("second stream should still run")
	}
}

func TestCreateStreamErrors(t *testing.T) {
	boom := errors.New("boom")
	mixer := &fakeMixer{err: boom}
	m, _ := newTestManager(mixer)

	err := m.CreateStream(&fakeSource{format: api.StreamFormat{Channels: 2, SampleRate: 44100, BufferSize: 64}})
	if !errors.Is(err, boom) {
		t.Fatalf("CreateStream() error = %v, want %v", err, boom)
	}
	if m.Active() {
		t.Error("manager active after failed create")
	}
	if m.Filler().Fill(make([]byte, 8)) {
		t.Error("filler still has a source after failed create")
	}
}

func TestPauseAndStopWithoutStream(t *testing.T) {
	m, _ := newTestManager(&fakeMixer{})
	m.PauseStream(true)
	m.PauseStream(false)
	m.StopStream()
	m.StopStream()
	if m.Active() {
		t.Error("Active() = true with no stream")
	}
}

func TestPauseAndStop(t *testing.T) {
	mixer := &fakeMixer{}
	m, _ := newTestManager(mixer)
	src := &fakeSource{format: api.StreamFormat{Channels: 2, SampleRate: 44100, BufferSize: 64}, payload: floatBytes(0.1), ok: true}
	m.CreateStream(src)
	s := mixer.created[0]

	m.PauseStream(true)
	if !s.paused {
		t.Error("stream not paused")
	}
	m.PauseStream(false)
	if s.paused {
		t.Error("stream not resumed")
	}

	if !mixer.fill(make([]byte, 8)) {
		t.Fatal("fill before stop = false, want true")
	}
	m.StopStream()
	if !s.stopped {
		t.Error("stream not stopped")
	}
	if mixer.fill(make([]byte, 8)) {
		t.Error("fill after stop = true, want false")
	}
	m.StopStream()
}
