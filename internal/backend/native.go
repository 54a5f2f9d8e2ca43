package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	"github.com/jscyril/golang_midi_player/internal/stream"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/pion/logging"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const (
	ccChannelVolume = 7
	ccAllNotesOff   = 123
	// defaultChannelVolume is the General MIDI power-on channel volume.
	defaultChannelVolume = 100
)

// Native plays event buffers on a hardware or OS MIDI output port. A
// goroutine sleeps out each event's delta and reports every finished
// buffer through the done callback.
type Native struct {
	mu   sync.Mutex
	cond *sync.Cond

	portName   string
	out        drivers.Out
	send       func(midi.Message) error
	after      func(time.Duration) <-chan time.Time
	log        logging.LeveledLogger
	done       DoneFunc
	division   uint16
	tempo      uint32
	queue      [][]midifile.StreamEvent
	cancel     context.CancelFunc
	generation uint64 // bumped for every output goroutine started
	paused     bool
	fakeVolume bool
	volume     float64
	channelVol [16]uint8

	sent    atomic.Int64
	buffers atomic.Int64
}

// NewNative returns a backend for the output port whose name contains
// port. An empty name picks the first port. With fakeVolume the player
// volume is applied by scaling channel volume controllers.
func NewNative(port string, fakeVolume bool, log logging.LeveledLogger) *Native {
	n := &Native{
		portName:   port,
		after:      time.After,
		log:        log,
		tempo:      midifile.DefaultTempo,
		fakeVolume: fakeVolume,
		volume:     1,
	}
	n.cond = sync.NewCond(&n.mu)
	for i := range n.channelVol {
		n.channelVol[i] = defaultChannelVolume
	}
	return n
}

func (n *Native) Name() string           { return NameNative }
func (n *Native) Capability() Capability { return NativeStreaming }

// Open acquires the output port.
func (n *Native) Open(done DoneFunc) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.send == nil {
		out, err := n.findPort()
		if err != nil {
			return err
		}
		send, err := midi.SendTo(out)
		if err != nil {
			return fmt.Errorf("%w: %v", playerrors.ErrDeviceUnavailable, err)
		}
		n.out = out
		n.send = send
		n.log.Infof("opened MIDI output %s", out.String())
	}
	n.done = done
	return nil
}

func (n *Native) findPort() (drivers.Out, error) {
	if n.portName != "" {
		out, err := midi.FindOutPort(n.portName)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", playerrors.ErrDeviceUnavailable, n.portName, err)
		}
		return out, nil
	}
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: no MIDI output ports", playerrors.ErrDeviceUnavailable)
	}
	return outs[0], nil
}

// Close stops output and releases the port.
func (n *Native) Close() error {
	n.Stop()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = nil
	if n.out == nil {
		return nil
	}
	err := n.out.Close()
	n.out = nil
	n.send = nil
	return err
}

func (n *Native) SetTimeDiv(division uint16) error {
	if division == 0 {
		return fmt.Errorf("%w: SMPTE time division", playerrors.ErrUnsupportedFormat)
	}
	n.mu.Lock()
	n.division = division
	n.mu.Unlock()
	return nil
}

func (n *Native) SetTempo(tempo uint32) error {
	if tempo == 0 || tempo > midifile.MaxTempo {
		return fmt.Errorf("%w: tempo %d", playerrors.ErrUnsupportedFormat, tempo)
	}
	n.mu.Lock()
	n.tempo = tempo
	n.mu.Unlock()
	return nil
}

// StreamOut queues a buffer for the output goroutine.
func (n *Native) StreamOut(events []midifile.StreamEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.send == nil {
		return fmt.Errorf("%w: port not open", playerrors.ErrDeviceUnavailable)
	}
	n.queue = append(n.queue, events)
	n.cond.Broadcast()
	return nil
}

// Resume starts the output goroutine, or wakes it when paused.
func (n *Native) Resume() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.send == nil {
		return fmt.Errorf("%w: port not open", playerrors.ErrDeviceUnavailable)
	}
	n.paused = false
	if n.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancel = cancel
		n.generation++
		go n.run(ctx, n.generation)
	}
	n.cond.Broadcast()
	return nil
}

// Pause holds the output goroutine and silences sounding notes.
func (n *Native) Pause(paused bool) error {
	n.mu.Lock()
	n.paused = paused
	n.cond.Broadcast()
	n.mu.Unlock()

	if paused {
		n.allNotesOff()
	}
	return nil
}

func (n *Native) Stop() error {
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.queue = nil
	n.paused = false
	n.cond.Broadcast()
	n.mu.Unlock()

	n.allNotesOff()
	return nil
}

// Preprocess is a no-op; events are played as they arrive.
func (n *Native) Preprocess(song *midifile.Song, looping bool) error {
	return nil
}

// Source reports a zero buffer size: the port is its own output.
func (n *Native) Source() stream.Source {
	return portSource{}
}

// VolumeChanged rescales every channel's volume when fake volume is on.
func (n *Native) VolumeChanged(volume float64) {
	n.mu.Lock()
	n.volume = volume
	fake := n.fakeVolume
	n.mu.Unlock()

	if fake {
		n.sendChannelVolumes(volume)
	}
}

// ApplySetting handles "fake_volume" live. Other keys are unknown.
func (n *Native) ApplySetting(key string, value interface{}) (bool, error) {
	switch key {
	case "fake_volume":
		on, err := settingBool(key, value)
		if err != nil {
			return false, err
		}
		n.mu.Lock()
		n.fakeVolume = on
		scale := n.volume
		n.mu.Unlock()
		if !on {
			scale = 1
		}
		n.sendChannelVolumes(scale)
		return true, nil
	}
	return false, fmt.Errorf("%w: %s", playerrors.ErrUnknownSetting, key)
}

func (n *Native) sendChannelVolumes(scale float64) {
	n.mu.Lock()
	levels := n.channelVol
	n.mu.Unlock()
	for ch := range levels {
		n.emit(midi.ControlChange(uint8(ch), ccChannelVolume, scaleVolume(levels[ch], scale)))
	}
}

func (n *Native) Stats() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	port := n.portName
	if n.out != nil {
		port = n.out.String()
	}
	return fmt.Sprintf("port %q: %d events in %d buffers, tempo %d, division %d, %d queued",
		port, n.sent.Load(), n.buffers.Load(), n.tempo, n.division, len(n.queue))
}

func (n *Native) run(ctx context.Context, gen uint64) {
	for {
		buf, ok := n.nextBuffer(ctx)
		if !ok {
			return
		}
		for _, ev := range buf {
			if !n.wait(ctx, ev.Delta) {
				return
			}
			n.play(ev)
		}
		n.buffers.Add(1)

		if done := n.doneFor(gen); done != nil {
			done()
		}
	}
}

// doneFor returns the done callback while gen is still the running
// output goroutine. A buffer finishing after Stop, or after a restart, is
// not reported.
func (n *Native) doneFor(gen uint64) DoneFunc {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel == nil || n.generation != gen {
		return nil
	}
	return n.done
}

// nextBuffer blocks until a buffer is queued and output is not paused.
func (n *Native) nextBuffer(ctx context.Context) ([]midifile.StreamEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.queue) == 0 || n.paused {
		if ctx.Err() != nil {
			return nil, false
		}
		n.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, false
	}
	buf := n.queue[0]
	n.queue = n.queue[1:]
	return buf, true
}

// wait sleeps for delta ticks at the current tempo, then holds while
// paused. It returns false once the goroutine has been cancelled.
func (n *Native) wait(ctx context.Context, delta uint32) bool {
	if delta > 0 {
		n.mu.Lock()
		d := tickDuration(delta, n.tempo, uint32(n.division))
		n.mu.Unlock()
		select {
		case <-ctx.Done():
			return false
		case <-n.after(d):
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for n.paused && ctx.Err() == nil {
		n.cond.Wait()
	}
	return ctx.Err() == nil
}

func (n *Native) play(ev midifile.StreamEvent) {
	if ev.IsTempo() {
		n.mu.Lock()
		n.tempo = ev.Tempo
		n.mu.Unlock()
		return
	}

	msg := ev.Message
	if len(msg) == 3 && msg[0]&0xF0 == 0xB0 && msg[1] == ccChannelVolume {
		n.mu.Lock()
		n.channelVol[msg[0]&0x0f] = msg[2]
		fake, volume := n.fakeVolume, n.volume
		n.mu.Unlock()
		if fake {
			msg = midi.ControlChange(msg[0]&0x0f, ccChannelVolume, scaleVolume(msg[2], volume))
		}
	}
	n.emit(msg)
}

func (n *Native) emit(msg midi.Message) {
	n.mu.Lock()
	send := n.send
	n.mu.Unlock()
	if send == nil {
		return
	}
	if err := send(msg); err != nil {
		n.log.Warnf("send %v: %v", msg, err)
		return
	}
	n.sent.Add(1)
}

func (n *Native) allNotesOff() {
	for ch := uint8(0); ch < 16; ch++ {
		n.emit(midi.ControlChange(ch, ccAllNotesOff, 0))
	}
}

func scaleVolume(level uint8, volume float64) uint8 {
	v := float64(level) * volume
	if v > 127 {
		return 127
	}
	if v < 0 {
		return 0
	}
	return uint8(v + 0.5)
}

func tickDuration(ticks, tempo, division uint32) time.Duration {
	if division == 0 {
		return 0
	}
	return time.Duration(uint64(ticks)*uint64(tempo)/uint64(division)) * time.Microsecond
}

type portSource struct{}

func (portSource) StreamInfo() api.StreamFormat { return api.StreamFormat{Channels: 2} }
func (portSource) FillStream([]byte) bool       { return false }
