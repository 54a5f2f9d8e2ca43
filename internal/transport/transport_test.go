package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/backend"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	"github.com/jscyril/golang_midi_player/internal/stream"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/pion/logging"
)

type fakeBackend struct {
	mu         sync.Mutex
	capability backend.Capability
	done       backend.DoneFunc
	streamed   [][]midifile.StreamEvent
	openErr    error
	streamErr  error
	paused     bool
	resumes    int
	stops      int
	closes     int
	prepared   int
}

func (b *fakeBackend) Name() string                   { return "fake" }
func (b *fakeBackend) Capability() backend.Capability { return b.capability }
func (b *fakeBackend) SetTimeDiv(uint16) error        { return nil }
func (b *fakeBackend) SetTempo(uint32) error          { return nil }
func (b *fakeBackend) Source() stream.Source          { return nil }
func (b *fakeBackend) VolumeChanged(float64)          {}
func (b *fakeBackend) Stats() string                  { return "fake" }

func (b *fakeBackend) Open(done backend.DoneFunc) error {
	if b.openErr != nil {
		return b.openErr
	}
	b.done = done
	return nil
}

func (b *fakeBackend) Close() error {
	b.closes++
	return nil
}

func (b *fakeBackend) Preprocess(*midifile.Song, bool) error {
	b.prepared++
	return nil
}

func (b *fakeBackend) StreamOut(events []midifile.StreamEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamErr != nil {
		return b.streamErr
	}
	if b.capability == backend.PseudoStreaming {
		return nil
	}
	b.streamed = append(b.streamed, events)
	return nil
}

func (b *fakeBackend) Resume() error {
	b.resumes++
	return nil
}

func (b *fakeBackend) Pause(paused bool) error {
	b.paused = paused
	return nil
}

func (b *fakeBackend) Stop() error {
	b.stops++
	return nil
}

func (b *fakeBackend) buffers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streamed)
}

type callbackLog struct {
	mu     sync.Mutex
	events []Event
	errs   []error
}

func (l *callbackLog) record(ev Event, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	l.errs = append(l.errs, err)
}

func (l *callbackLog) count(ev Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == ev {
			n++
		}
	}
	return n
}

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("transport")
}

// scaleSong plays n quarter notes one after another.
func scaleSong(n int) *midifile.Song {
	song := &midifile.Song{
		Container: api.ContainerMIDI,
		Division:  96,
		Tempo:     midifile.DefaultTempo,
	}
	for i := 0; i < n; i++ {
		song.Events = append(song.Events, midifile.Event{
			Tick:     uint32(i * 96),
			Message:  []byte{0x90, byte(60 + i), 100},
			Duration: 96,
		})
	}
	song.Length = uint32(n * 96)
	return song
}

func openPrepared(t *testing.T, b *fakeBackend, song *midifile.Song, looping bool) (*Transport, *callbackLog) {
	t.Helper()
	tr := New(b, testLogger())
	cbs := &callbackLog{}
	if err := tr.Open(cbs.record); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := tr.Prepare(song, looping); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	return tr, cbs
}

func TestLifecycle(t *testing.T) {
	b := &fakeBackend{capability: backend.PseudoStreaming}
	tr := New(b, testLogger())

	steps := []struct {
		name string
		do   func() error
		want api.TransportState
	}{
		{"open", func() error { return tr.Open(nil) }, api.TransportOpen},
		{"prepare", func() error { return tr.Prepare(scaleSong(4), false) }, api.TransportPrepared},
		{"resume", tr.Resume, api.TransportStreaming},
		{"pause", func() error { return tr.Pause(true) }, api.TransportPaused},
		{"pause again", func() error { return tr.Pause(true) }, api.TransportPaused},
		{"resume from pause", tr.Resume, api.TransportStreaming},
		{"unpause while streaming", func() error { return tr.Pause(false) }, api.TransportStreaming},
		{"stop", func() error { tr.Stop(); return nil }, api.TransportStopped},
		{"prepare after stop", func() error { return tr.Prepare(scaleSong(2), false) }, api.TransportPrepared},
		{"close", tr.Close, api.TransportClosed},
		{"reopen", func() error { return tr.Open(nil) }, api.TransportOpen},
	}

	for _, step := range steps {
		if err := step.do(); err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		if got := tr.State(); got != step.want {
			t.Fatalf("%s: state = %v, want %v", step.name, got, step.want)
		}
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Transport)
		op    func(*Transport) error
	}{
		{"prepare before open", func(*Transport) {}, func(tr *Transport) error { return tr.Prepare(scaleSong(1), false) }},
		{"resume before prepare", func(tr *Transport) { tr.Open(nil) }, (*Transport).Resume},
		{"pause before streaming", func(tr *Transport) { tr.Open(nil) }, func(tr *Transport) error { return tr.Pause(true) }},
		{"open twice", func(tr *Transport) { tr.Open(nil) }, func(tr *Transport) error { return tr.Open(nil) }},
		{"stream out while prepared", func(tr *Transport) {
			tr.Open(nil)
			tr.Prepare(scaleSong(1), false)
		}, func(tr *Transport) error { return tr.StreamOut(nil) }},
		{"stream out while paused", func(tr *Transport) {
			tr.Open(nil)
			tr.Prepare(scaleSong(1), false)
			tr.Resume()
			tr.Pause(true)
		}, func(tr *Transport) error { return tr.StreamOut(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(&fakeBackend{capability: backend.PseudoStreaming}, testLogger())
			tt.setup(tr)
			before := tr.State()

			err := tt.op(tr)
			if !errors.Is(err, playerrors.ErrInvalidState) {
				t.Fatalf("error = %v, want ErrInvalidState", err)
			}
			var stateErr *playerrors.StateError
			if !errors.As(err, &stateErr) || stateErr.State != before.String() {
				t.Errorf("error = %#v, want StateError in %v", err, before)
			}
			if tr.State() != before {
				t.Errorf("state changed to %v", tr.State())
			}
		})
	}
}

func TestPrepareRejectsTiming(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*midifile.Song)
	}{
		{"smpte", func(s *midifile.Song) { s.Division = 0 }},
		{"division too large", func(s *midifile.Song) { s.Division = 0x8000 }},
		{"tempo too large", func(s *midifile.Song) {
			s.Events = append(s.Events, midifile.Event{Tick: 10, Tempo: midifile.MaxTempo + 1})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(&fakeBackend{}, testLogger())
			tr.Open(nil)
			song := scaleSong(2)
			tt.modify(song)

			if err := tr.Prepare(song, false); !errors.Is(err, playerrors.ErrUnsupportedFormat) {
				t.Errorf("Prepare() error = %v, want ErrUnsupportedFormat", err)
			}
			if tr.State() != api.TransportOpen {
				t.Errorf("state = %v, want open", tr.State())
			}
		})
	}
}

func TestOpenUnavailableDevice(t *testing.T) {
	tr := New(&fakeBackend{openErr: playerrors.ErrDeviceUnavailable}, testLogger())
	if err := tr.Open(nil); !errors.Is(err, playerrors.ErrDeviceUnavailable) {
		t.Fatalf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
	if tr.State() != api.TransportClosed {
		t.Errorf("state = %v, want closed", tr.State())
	}
}

func TestNativeStreamingPrimesTwoBuffers(t *testing.T) {
	b := &fakeBackend{capability: backend.NativeStreaming}
	tr, _ := openPrepared(t, b, scaleSong(10), false)
	tr.bufferEvents = 4

	if err := tr.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got := b.buffers(); got != 2 {
		t.Fatalf("buffers after Resume = %d, want 2", got)
	}

	b.done()
	if got := b.buffers(); got != 3 {
		t.Errorf("buffers after one done = %d, want 3", got)
	}
}

func TestPseudoStreamingTakesNoBuffers(t *testing.T) {
	b := &fakeBackend{capability: backend.PseudoStreaming}
	tr, _ := openPrepared(t, b, scaleSong(10), false)
	tr.Resume()

	if got := b.buffers(); got != 0 {
		t.Errorf("buffers = %d, want 0", got)
	}
	if b.prepared != 1 {
		t.Errorf("Preprocess called %d times, want 1", b.prepared)
	}
}

func TestSongFinishedOnce(t *testing.T) {
	b := &fakeBackend{capability: backend.NativeStreaming}
	tr, cbs := openPrepared(t, b, scaleSong(3), false)
	tr.bufferEvents = 2

	tr.Resume()
	// 3 note-ons and 3 releases need three buffers of two
	for i := 0; i < 10; i++ {
		b.done()
	}

	if got := cbs.count(SongFinished); got != 1 {
		t.Errorf("SongFinished reported %d times, want 1", got)
	}
	total := 0
	for _, buf := range b.streamed {
		total += len(buf)
	}
	if total != 6 {
		t.Errorf("streamed %d events, want 6", total)
	}
}

func TestLoopingRewinds(t *testing.T) {
	b := &fakeBackend{capability: backend.NativeStreaming}
	tr, cbs := openPrepared(t, b, scaleSong(2), true)
	tr.bufferEvents = 4

	tr.Resume()
	for i := 0; i < 5; i++ {
		b.done()
	}

	if got := cbs.count(SongFinished); got != 0 {
		t.Errorf("looping song reported finished %d times", got)
	}
	if got := b.buffers(); got < 5 {
		t.Fatalf("buffers = %d, want at least 5", got)
	}
	if !b.streamed[1][0].IsTempo() {
		t.Errorf("buffer after rewind starts with %+v, want a tempo reset", b.streamed[1][0])
	}
}

func TestStopDiscardsPendingNoteOffs(t *testing.T) {
	b := &fakeBackend{capability: backend.NativeStreaming}
	song := scaleSong(8)
	for i := range song.Events {
		song.Events[i].Duration = 960
	}
	tr, _ := openPrepared(t, b, song, false)
	tr.bufferEvents = 3

	tr.Resume()
	if tr.seq.Queue().Len() == 0 {
		t.Fatal("expected pending note-offs after priming")
	}

	tr.Stop()
	if got := tr.seq.Queue().Len(); got != 0 {
		t.Errorf("pending note-offs after Stop = %d, want 0", got)
	}
	if b.stops == 0 {
		t.Error("backend was not stopped")
	}

	before := b.buffers()
	b.done()
	if b.buffers() != before {
		t.Error("done callback after Stop streamed another buffer")
	}
}

func TestStopFromEveryState(t *testing.T) {
	song := func() *midifile.Song {
		s := scaleSong(8)
		for i := range s.Events {
			s.Events[i].Duration = 960
		}
		return s
	}
	opened := func(tr *Transport) { tr.Open(nil) }
	prepare := func(tr *Transport) {
		opened(tr)
		tr.Prepare(song(), false)
	}
	streaming := func(tr *Transport) {
		prepare(tr)
		tr.Resume()
	}

	tests := []struct {
		name  string
		setup func(*Transport)
		from  api.TransportState
	}{
		{"closed", func(*Transport) {}, api.TransportClosed},
		{"open", opened, api.TransportOpen},
		{"prepared", prepare, api.TransportPrepared},
		{"streaming", streaming, api.TransportStreaming},
		{"paused", func(tr *Transport) {
			streaming(tr)
			tr.Pause(true)
		}, api.TransportPaused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(&fakeBackend{capability: backend.NativeStreaming}, testLogger())
			tr.bufferEvents = 3
			tt.setup(tr)
			if got := tr.State(); got != tt.from {
				t.Fatalf("setup left state %v, want %v", got, tt.from)
			}

			tr.Stop()
			if got := tr.State(); got != api.TransportStopped {
				t.Fatalf("state after Stop = %v, want %v", got, api.TransportStopped)
			}
			if tr.seq != nil {
				if _, ok := tr.seq.Queue().PopDue(); ok {
					t.Error("a note-off was still due after Stop")
				}
				if got := tr.seq.Queue().Len(); got != 0 {
					t.Errorf("pending note-offs after Stop = %d, want 0", got)
				}
			}

			if err := tr.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if got := tr.State(); got != api.TransportClosed {
				t.Errorf("state after Close = %v, want %v", got, api.TransportClosed)
			}
		})
	}
}

func TestStreamErrorClosesTransport(t *testing.T) {
	lost := errors.New("port unplugged")
	b := &fakeBackend{capability: backend.NativeStreaming}
	tr, cbs := openPrepared(t, b, scaleSong(8), false)
	tr.bufferEvents = 2
	tr.Resume()

	b.mu.Lock()
	b.streamErr = lost
	b.mu.Unlock()
	b.done()

	if tr.State() != api.TransportClosed {
		t.Errorf("state = %v, want closed", tr.State())
	}
	if cbs.count(DeviceLost) != 1 || !errors.Is(cbs.errs[0], lost) {
		t.Errorf("callbacks = %v %v, want one DeviceLost", cbs.events, cbs.errs)
	}
	if b.closes != 1 {
		t.Errorf("backend closed %d times, want 1", b.closes)
	}
}

func TestSeekStreamingRefills(t *testing.T) {
	b := &fakeBackend{capability: backend.NativeStreaming}
	tr, _ := openPrepared(t, b, scaleSong(20), false)
	tr.bufferEvents = 4
	tr.Resume()

	// Quarter notes at 120 BPM: note 10 starts at 5s
	if err := tr.Seek(5 * time.Second); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if got := b.buffers(); got != 5 {
		t.Fatalf("buffers = %d, want 2 before seek plus restore and 2 more", got)
	}
	if !b.streamed[2][0].IsTempo() {
		t.Errorf("restore buffer starts with %+v, want tempo", b.streamed[2][0])
	}
	first := b.streamed[3][0].Message
	if len(first) < 2 || first[1] != 70 {
		t.Errorf("first event after seek = %v, want note 70", first)
	}
}
