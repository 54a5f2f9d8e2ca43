// Package transport runs a song through a backend under the
// open/prepare/stream/pause/stop lifecycle.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/backend"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/pion/logging"
)

const (
	// DefaultBufferEvents is the number of events in one streamed buffer.
	DefaultBufferEvents = 64
	numBuffers          = 2
	maxDivision         = 0x7FFF
)

// Event is reported to the transport's owner.
type Event int

const (
	SongFinished Event = iota
	DeviceLost
)

// Callback receives transport events. It is never called with the
// transport lock held.
type Callback func(ev Event, err error)

// Transport owns a backend and the sequencer feeding it.
type Transport struct {
	mu           sync.Mutex
	backend      backend.Backend
	log          logging.LeveledLogger
	state        api.TransportState
	cb           Callback
	song         *midifile.Song
	seq          *midifile.Sequencer
	looping      bool
	bufferEvents int
	outstanding  int
	finished     bool
}

// New returns a closed transport over b.
func New(b backend.Backend, log logging.LeveledLogger) *Transport {
	return &Transport{
		backend:      b,
		log:          log,
		bufferEvents: DefaultBufferEvents,
	}
}

// Backend returns the device the transport drives.
func (t *Transport) Backend() backend.Backend {
	return t.backend
}

// State returns the lifecycle state.
func (t *Transport) State() api.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) stateError(op string) error {
	return &playerrors.StateError{Op: op, State: t.state.String()}
}

// Open acquires the backend.
func (t *Transport) Open(cb Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != api.TransportClosed {
		return t.stateError("open")
	}
	if err := t.backend.Open(t.bufferDone); err != nil {
		return fmt.Errorf("open %s: %w", t.backend.Name(), err)
	}
	t.cb = cb
	t.state = api.TransportOpen
	t.log.Debugf("%s opened", t.backend.Name())
	return nil
}

// Prepare hands song to the backend. It is also accepted after Stop or a
// previous Prepare.
func (t *Transport) Prepare(song *midifile.Song, looping bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case api.TransportOpen, api.TransportPrepared, api.TransportStopped:
	default:
		return t.stateError("prepare")
	}
	if err := checkTiming(song); err != nil {
		return err
	}

	if err := t.backend.SetTimeDiv(song.Division); err != nil {
		return fmt.Errorf("set time division: %w", err)
	}
	if err := t.backend.SetTempo(song.Tempo); err != nil {
		return fmt.Errorf("set tempo: %w", err)
	}
	if err := t.backend.Preprocess(song, looping); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}

	t.song = song
	t.seq = midifile.NewSequencer(song)
	t.looping = looping
	t.outstanding = 0
	t.finished = false
	t.state = api.TransportPrepared
	return nil
}

func checkTiming(song *midifile.Song) error {
	if song.Division == 0 || song.Division > maxDivision {
		return fmt.Errorf("%w: time division %d", playerrors.ErrUnsupportedFormat, song.Division)
	}
	for _, tempo := range song.Tempos() {
		if tempo > midifile.MaxTempo {
			return fmt.Errorf("%w: tempo %d", playerrors.ErrUnsupportedFormat, tempo)
		}
	}
	return nil
}

// Resume starts streaming a prepared song or continues a paused one.
func (t *Transport) Resume() error {
	t.mu.Lock()

	switch t.state {
	case api.TransportPaused:
		if err := t.backend.Pause(false); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("resume: %w", err)
		}
		t.state = api.TransportStreaming
		t.mu.Unlock()
		return nil
	case api.TransportPrepared:
	default:
		err := t.stateError("resume")
		t.mu.Unlock()
		return err
	}

	if err := t.backend.Resume(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("resume: %w", err)
	}
	t.state = api.TransportStreaming

	var notify func()
	if t.backend.Capability() == backend.NativeStreaming {
		for i := 0; i < numBuffers && notify == nil; i++ {
			notify = t.pumpLocked()
		}
	}
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Pause pauses or continues streaming. Asking for the current state is a
// no-op.
func (t *Transport) Pause(paused bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case api.TransportStreaming:
		if !paused {
			return nil
		}
	case api.TransportPaused:
		if paused {
			return nil
		}
	default:
		return t.stateError("pause")
	}

	if err := t.backend.Pause(paused); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	if paused {
		t.state = api.TransportPaused
	} else {
		t.state = api.TransportStreaming
	}
	return nil
}

// StreamOut queues a buffer of events on the backend. Calling it outside
// Streaming is a programming error.
func (t *Transport) StreamOut(events []midifile.StreamEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != api.TransportStreaming {
		err := t.stateError("stream out")
		t.log.Errorf("%v", err)
		return err
	}
	return t.backend.StreamOut(events)
}

// Stop halts output and discards pending note-offs. It never fails.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != api.TransportClosed {
		if err := t.backend.Stop(); err != nil {
			t.log.Warnf("stop %s: %v", t.backend.Name(), err)
		}
	}
	if t.seq != nil {
		t.seq.Reset()
	}
	t.outstanding = 0
	t.finished = false
	t.state = api.TransportStopped
}

// Close releases the backend.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == api.TransportClosed {
		return nil
	}
	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	t.backend.Stop()
	err := t.backend.Close()
	t.state = api.TransportClosed
	t.song = nil
	t.seq = nil
	t.outstanding = 0
	return err
}

// Position is the play position. Backends keeping their own clock are
// asked; otherwise it is the time of the last event sent.
func (t *Transport) Position() time.Duration {
	if s, ok := t.backend.(backend.Seeker); ok {
		return s.Position()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.song == nil || t.seq == nil {
		return 0
	}
	return t.song.TimeAt(t.seq.Tick())
}

// Seek moves playback to position. Streaming backends are flushed and
// refed from the new point, with controller state restored.
func (t *Transport) Seek(position time.Duration) error {
	if s, ok := t.backend.(backend.Seeker); ok {
		return s.Seek(position)
	}

	t.mu.Lock()
	switch t.state {
	case api.TransportPrepared, api.TransportStreaming, api.TransportPaused:
	default:
		err := t.stateError("seek")
		t.mu.Unlock()
		return err
	}

	state := t.seq.SeekTick(t.song.TickAt(position))
	if t.state == api.TransportPrepared {
		t.mu.Unlock()
		return nil
	}

	paused := t.state == api.TransportPaused
	t.backend.Stop()
	t.outstanding = 0
	t.finished = false
	if err := t.backend.Resume(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("seek: %w", err)
	}
	if paused {
		t.backend.Pause(true)
	}
	restore := append([]midifile.StreamEvent{{Tempo: t.seq.Tempo()}}, state...)
	if err := t.backend.StreamOut(restore); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("seek: %w", err)
	}
	t.outstanding++
	var notify func()
	for i := 0; i < numBuffers && notify == nil; i++ {
		notify = t.pumpLocked()
	}
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// bufferDone is the backend's done callback.
func (t *Transport) bufferDone() {
	t.mu.Lock()
	if t.state != api.TransportStreaming && t.state != api.TransportPaused {
		t.mu.Unlock()
		return
	}
	if t.outstanding > 0 {
		t.outstanding--
	}
	notify := t.pumpLocked()
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// pumpLocked sends the next buffer. It returns a callback invocation to
// run after unlocking when the song finished or the device failed.
func (t *Transport) pumpLocked() func() {
	events := t.seq.Fill(nil, t.bufferEvents)
	if len(events) == 0 && t.looping && t.seq.Done() && len(t.song.Events) > 0 {
		t.seq.Reset()
		// The backend still runs at the tempo the song ended on
		events = t.seq.Fill([]midifile.StreamEvent{{Tempo: t.song.Tempo}}, t.bufferEvents)
	}

	if len(events) == 0 {
		if t.outstanding > 0 || t.finished {
			return nil
		}
		t.finished = true
		t.log.Debugf("song finished")
		return t.notifier(SongFinished, nil)
	}

	if err := t.backend.StreamOut(events); err != nil {
		t.log.Errorf("%s lost: %v", t.backend.Name(), err)
		t.closeLocked()
		return t.notifier(DeviceLost, err)
	}
	t.outstanding++
	return nil
}

func (t *Transport) notifier(ev Event, err error) func() {
	cb := t.cb
	if cb == nil {
		return func() {}
	}
	return func() { cb(ev, err) }
}
