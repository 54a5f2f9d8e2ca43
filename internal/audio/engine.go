package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/backend"
	"github.com/jscyril/golang_midi_player/internal/gain"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	"github.com/jscyril/golang_midi_player/internal/stream"
	"github.com/jscyril/golang_midi_player/internal/transport"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"github.com/pion/logging"
)

// Ensure AudioEngine implements Player interface at compile time
var _ api.Player = (*AudioEngine)(nil)

// BackendFactory creates the MIDI device songs are played on.
type BackendFactory func() (backend.Backend, error)

// Options wires an engine to its devices.
type Options struct {
	Backend BackendFactory
	// NewMixer creates the host mixer; onEnd must be called when a
	// stream runs out of data.
	NewMixer func(onEnd func()) stream.Mixer
	Gain     *gain.State
	Looping  bool
	Logger   logging.LoggerFactory
}

// endNotice reports the end of the song started in generation gen.
type endNotice struct {
	gen int
	err error
}

// AudioEngine manages playback in a separate goroutine
type AudioEngine struct {
	state      *api.PlaybackState
	commands   chan api.AudioCommand
	events     chan api.AudioEvent
	ended      chan endNotice
	mu         sync.RWMutex
	gain       *gain.State
	streams    *stream.Manager
	newBackend BackendFactory
	backend    backend.Backend
	transport  *transport.Transport
	digital    *digitalSource
	looping    bool
	gen        int
	loggers    logging.LoggerFactory
	log        logging.LeveledLogger
}

// NewAudioEngine creates a new audio engine instance
func NewAudioEngine(opts Options) *AudioEngine {
	if opts.Logger == nil {
		opts.Logger = logging.NewDefaultLoggerFactory()
	}
	if opts.Gain == nil {
		opts.Gain = gain.NewState()
	}

	e := &AudioEngine{
		state: &api.PlaybackState{
			Status:         api.StatusStopped,
			Volume:         opts.Gain.MasterVolume(),
			RelativeVolume: opts.Gain.RelativeVolume(),
			ReplayGain:     opts.Gain.ReplayGain(),
			Repeat:         api.RepeatNone,
		},
		commands:   make(chan api.AudioCommand, 10),
		events:     make(chan api.AudioEvent, 20),
		ended:      make(chan endNotice, 4),
		gain:       opts.Gain,
		newBackend: opts.Backend,
		looping:    opts.Looping,
		loggers:    opts.Logger,
		log:        opts.Logger.NewLogger("engine"),
	}

	var mixer stream.Mixer
	if opts.NewMixer != nil {
		mixer = opts.NewMixer(e.streamEnded)
	}
	e.streams = stream.NewManager(mixer, opts.Gain, opts.Logger.NewLogger("stream"))

	opts.Gain.OnChange(func(g *gain.State) {
		e.mu.RLock()
		b := e.backend
		active := e.transport != nil
		e.mu.RUnlock()
		if active {
			b.VolumeChanged(g.EffectiveVolume())
		}
	})
	return e
}

// Start begins the audio engine goroutines
func (e *AudioEngine) Start(ctx context.Context) {
	go e.run(ctx)
	go e.trackPosition(ctx)
}

// Events returns the events channel for subscribing to audio events
func (e *AudioEngine) Events() <-chan api.AudioEvent {
	return e.events
}

// Gain returns the shared volume state.
func (e *AudioEngine) Gain() *gain.State {
	return e.gain
}

// emit publishes an event without blocking the engine.
func (e *AudioEngine) emit(ev api.AudioEvent) {
	select {
	case e.events <- ev:
	default:
		e.log.Debugf("event %d dropped, no reader", ev.Type)
	}
}

func (e *AudioEngine) emitState() {
	e.emit(api.AudioEvent{Type: api.EventStateChange, Payload: e.GetState()})
}

// run is the main command processing loop
func (e *AudioEngine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.cleanup()
			return

		case notice := <-e.ended:
			e.handleEnd(notice)

		case cmd := <-e.commands:
			e.handle(cmd)
		}
	}
}

func (e *AudioEngine) handle(cmd api.AudioCommand) {
	switch cmd.Type {
	case api.CmdPlay:
		song := cmd.Payload.(*api.Song)
		if err := e.playSong(song); err != nil {
			e.log.Errorf("play %s: %v", song.FilePath, err)
			e.emit(api.AudioEvent{Type: api.EventError, Payload: err})
		}

	case api.CmdPause, api.CmdResume:
		paused := cmd.Type == api.CmdPause
		if err := e.setPaused(paused); err != nil {
			e.emit(api.AudioEvent{Type: api.EventError, Payload: err})
			return
		}
		e.emitState()

	case api.CmdStop:
		e.stopPlayback()
		e.emitState()

	case api.CmdVolume:
		e.gain.SetMasterVolume(cmd.Payload.(float64))
		e.mu.Lock()
		e.state.Volume = e.gain.MasterVolume()
		e.mu.Unlock()

	case api.CmdRelativeVolume:
		e.gain.SetRelativeVolume(cmd.Payload.(float64))
		e.mu.Lock()
		e.state.RelativeVolume = e.gain.RelativeVolume()
		e.mu.Unlock()

	case api.CmdSeek:
		if err := e.seekTo(cmd.Payload.(time.Duration)); err != nil {
			e.emit(api.AudioEvent{Type: api.EventError, Payload: err})
		}

	case api.CmdSetting:
		setting := cmd.Payload.(api.Setting)
		if err := e.changeSetting(setting); err != nil {
			e.log.Warnf("setting %s: %v", setting.Key, err)
			e.emit(api.AudioEvent{Type: api.EventError, Payload: err})
			return
		}
		e.emit(api.AudioEvent{Type: api.EventSettingChanged, Payload: setting})
	}
}

// trackPosition updates playback position periodically
func (e *AudioEngine) trackPosition(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.state.Status != api.StatusPlaying {
				e.mu.Unlock()
				continue
			}
			pos := e.positionLocked()
			e.state.Position = pos
			e.mu.Unlock()
			e.emit(api.AudioEvent{Type: api.EventPositionUpdate, Payload: pos})
		}
	}
}

func (e *AudioEngine) positionLocked() time.Duration {
	switch {
	case e.transport != nil:
		return e.transport.Position()
	case e.digital != nil:
		return e.digital.Position()
	}
	return 0
}

// playSong identifies the file and starts it on the matching path
func (e *AudioEngine) playSong(song *api.Song) error {
	e.stopPlayback()

	header, err := readHeader(song.FilePath)
	if err != nil {
		return playerrors.NewPlayerError("open", song.ID, err)
	}

	replayGain := song.ReplayGain
	if replayGain == 0 {
		replayGain = 1
	}
	e.gain.SetReplayGain(replayGain)

	kind := midifile.Identify(header)
	switch {
	case kind.IsMidi():
		err = e.playMidi(song)
	case IsDigital(song.FilePath):
		err = e.playDigital(song)
	default:
		err = fmt.Errorf("%w: %s", playerrors.ErrInvalidFormat, song.FilePath)
	}
	if err != nil {
		e.stopPlayback()
		return err
	}

	e.mu.Lock()
	e.state.CurrentSong = song
	e.state.Status = api.StatusPlaying
	e.state.Position = 0
	e.state.ReplayGain = e.gain.ReplayGain()
	if e.transport != nil {
		e.state.Transport = e.transport.State()
		e.state.Backend = e.backend.Name()
	} else {
		e.state.Transport = api.TransportClosed
		e.state.Backend = ""
	}
	e.mu.Unlock()

	e.log.Infof("playing %s (%s)", song.FilePath, kind)
	e.emit(api.AudioEvent{Type: api.EventSongStarted, Payload: song})
	return nil
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, midifile.HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return header[:n], nil
}

func (e *AudioEngine) playMidi(song *api.Song) error {
	parsed, err := midifile.LoadFile(song.FilePath)
	if err != nil {
		return playerrors.NewPlayerError("load", song.ID, err)
	}
	if song.Duration == 0 {
		song.Duration = parsed.Duration()
	}

	b, err := e.deviceBackend()
	if err != nil {
		return playerrors.NewPlayerError("backend", song.ID, err)
	}

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	tr := transport.New(b, e.loggers.NewLogger("transport"))
	err = tr.Open(func(ev transport.Event, err error) {
		e.ended <- endNotice{gen: gen, err: err}
	})
	if err != nil {
		return playerrors.NewPlayerError("open", song.ID, err)
	}

	e.mu.Lock()
	e.transport = tr
	e.mu.Unlock()

	if err := tr.Prepare(parsed, e.looping); err != nil {
		return playerrors.NewPlayerError("prepare", song.ID, err)
	}
	if err := tr.Resume(); err != nil {
		return playerrors.NewPlayerError("resume", song.ID, err)
	}
	b.VolumeChanged(e.gain.EffectiveVolume())

	if src := b.Source(); src != nil {
		if err := e.streams.CreateStream(src); err != nil {
			return playerrors.NewPlayerError("stream", song.ID, err)
		}
	}
	return nil
}

// deviceBackend returns the backend, creating it on first use. It is kept
// across songs so settings applied to it persist.
func (e *AudioEngine) deviceBackend() (backend.Backend, error) {
	e.mu.RLock()
	b := e.backend
	e.mu.RUnlock()
	if b != nil {
		return b, nil
	}
	if e.newBackend == nil {
		return nil, fmt.Errorf("%w: no MIDI backend configured", playerrors.ErrDeviceUnavailable)
	}

	b, err := e.newBackend()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.backend = b
	e.mu.Unlock()
	return b, nil
}

func (e *AudioEngine) playDigital(song *api.Song) error {
	file, err := os.Open(song.FilePath)
	if err != nil {
		return playerrors.NewPlayerError("open", song.ID, err)
	}

	streamer, format, err := DecodeAudio(file, song.FilePath)
	if err != nil {
		file.Close()
		return playerrors.NewPlayerError("decode", song.ID, err)
	}

	src := newDigitalSource(streamer, format)
	e.mu.Lock()
	e.gen++
	e.digital = src
	e.mu.Unlock()
	if song.Duration == 0 {
		song.Duration = src.Duration()
	}

	if err := e.streams.CreateStream(src); err != nil {
		return playerrors.NewPlayerError("stream", song.ID, err)
	}
	return nil
}

// streamEnded is the mixer's end-of-data callback.
func (e *AudioEngine) streamEnded() {
	e.mu.RLock()
	gen := e.gen
	e.mu.RUnlock()
	e.ended <- endNotice{gen: gen}
}

func (e *AudioEngine) handleEnd(notice endNotice) {
	e.mu.RLock()
	current := notice.gen == e.gen
	song := e.state.CurrentSong
	e.mu.RUnlock()
	if !current || song == nil {
		return
	}

	e.stopPlayback()
	if notice.err != nil {
		e.log.Errorf("device lost: %v", notice.err)
		e.emit(api.AudioEvent{Type: api.EventError, Payload: notice.err})
		e.emitState()
		return
	}
	e.emit(api.AudioEvent{Type: api.EventSongEnded, Payload: song})
}

func (e *AudioEngine) setPaused(paused bool) error {
	e.mu.RLock()
	tr, digital := e.transport, e.digital
	e.mu.RUnlock()
	if tr == nil && digital == nil {
		return playerrors.ErrNoSongPlaying
	}

	if tr != nil {
		if err := tr.Pause(paused); err != nil {
			return err
		}
	}
	e.streams.PauseStream(paused)

	e.mu.Lock()
	if paused {
		e.state.Status = api.StatusPaused
	} else {
		e.state.Status = api.StatusPlaying
	}
	if tr != nil {
		e.state.Transport = tr.State()
	}
	e.mu.Unlock()
	return nil
}

// stopPlayback stops the current playback
func (e *AudioEngine) stopPlayback() {
	e.streams.StopStream()

	e.mu.Lock()
	tr, digital := e.transport, e.digital
	e.transport = nil
	e.digital = nil
	e.gen++
	e.state.Status = api.StatusStopped
	e.state.Transport = api.TransportClosed
	e.state.Position = 0
	e.mu.Unlock()

	if tr != nil {
		tr.Stop()
		if err := tr.Close(); err != nil {
			e.log.Warnf("close %s: %v", tr.Backend().Name(), err)
		}
	}
	if digital != nil {
		digital.Close()
	}
}

// seekTo seeks to a specific position
func (e *AudioEngine) seekTo(pos time.Duration) error {
	e.mu.RLock()
	tr, digital := e.transport, e.digital
	e.mu.RUnlock()

	var err error
	switch {
	case tr != nil:
		err = tr.Seek(pos)
	case digital != nil:
		err = digital.Seek(pos)
	default:
		return playerrors.ErrNoSongPlaying
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.state.Position = pos
	e.mu.Unlock()
	return nil
}

// changeSetting routes a setting to the backend. When the backend cannot
// apply it live the current song is reopened at the same position.
func (e *AudioEngine) changeSetting(setting api.Setting) error {
	b, err := e.deviceBackend()
	if err != nil {
		return err
	}
	applier, ok := b.(backend.SettingApplier)
	if !ok {
		return fmt.Errorf("%w: %s does not take settings", playerrors.ErrUnknownSetting, b.Name())
	}

	applied, err := applier.ApplySetting(setting.Key, setting.Value)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	e.mu.RLock()
	song := e.state.CurrentSong
	status := e.state.Status
	tr := e.transport
	e.mu.RUnlock()
	if tr == nil || song == nil {
		return nil
	}

	pos := tr.Position()
	e.log.Infof("setting %s needs a restart, reopening at %v", setting.Key, pos)
	if err := e.playSong(song); err != nil {
		return err
	}
	if err := e.seekTo(pos); err != nil {
		return err
	}
	if status == api.StatusPaused {
		return e.setPaused(true)
	}
	return nil
}

// cleanup releases resources
func (e *AudioEngine) cleanup() {
	e.stopPlayback()
	close(e.events)
}

// Play starts playing the specified song
func (e *AudioEngine) Play(song *api.Song) error {
	if song == nil {
		return playerrors.ErrSongNotFound
	}
	e.commands <- api.AudioCommand{Type: api.CmdPlay, Payload: song}
	return nil
}

// Pause pauses playback
func (e *AudioEngine) Pause() error {
	e.commands <- api.AudioCommand{Type: api.CmdPause}
	return nil
}

// Resume resumes playback
func (e *AudioEngine) Resume() error {
	e.commands <- api.AudioCommand{Type: api.CmdResume}
	return nil
}

// Stop stops playback
func (e *AudioEngine) Stop() error {
	e.commands <- api.AudioCommand{Type: api.CmdStop}
	return nil
}

// Seek seeks to the specified position
func (e *AudioEngine) Seek(position time.Duration) error {
	if position < 0 {
		return fmt.Errorf("seek to %v: negative position", position)
	}
	e.commands <- api.AudioCommand{Type: api.CmdSeek, Payload: position}
	return nil
}

// SetVolume sets the volume level (0.0 to 1.0)
func (e *AudioEngine) SetVolume(level float64) error {
	if level < 0 || level > 1 {
		return playerrors.ErrInvalidVolume
	}
	e.commands <- api.AudioCommand{Type: api.CmdVolume, Payload: level}
	return nil
}

// SetRelativeVolume sets the per-song volume factor, clamped to 0.0..2.0
func (e *AudioEngine) SetRelativeVolume(factor float64) error {
	e.commands <- api.AudioCommand{Type: api.CmdRelativeVolume, Payload: factor}
	return nil
}

// ChangeSetting passes a backend setting such as "sample_rate" or
// "fake_volume" to the MIDI device
func (e *AudioEngine) ChangeSetting(key string, value interface{}) error {
	if key == "" {
		return playerrors.ErrUnknownSetting
	}
	e.commands <- api.AudioCommand{Type: api.CmdSetting, Payload: api.Setting{Key: key, Value: value}}
	return nil
}

// Stats describes what the active device is doing
func (e *AudioEngine) Stats() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case e.transport != nil:
		return e.backend.Stats()
	case e.digital != nil:
		return fmt.Sprintf("digital audio: %d Hz, %v of %v",
			e.digital.format.SampleRate, e.digital.Position().Round(time.Second), e.digital.Duration().Round(time.Second))
	}
	return "No song playing"
}

// GetState returns a copy of the current playback state
func (e *AudioEngine) GetState() *api.PlaybackState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// Return a copy to prevent external modification
	state := *e.state
	if e.state.CurrentSong != nil {
		song := *e.state.CurrentSong
		state.CurrentSong = &song
	}
	return &state
}
