package stream

import (
	"fmt"
	"sync"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/gain"
	"github.com/pion/logging"
)

// Manager owns the single music stream on the mixer and the filler
// attached to it.
type Manager struct {
	mu     sync.Mutex
	mixer  Mixer
	filler *Filler
	gain   *gain.State
	stream Stream
	format api.StreamFormat
	log    logging.LeveledLogger
}

// NewManager returns a manager creating streams on mixer. Volume changes
// on g are forwarded to the live stream.
func NewManager(mixer Mixer, g *gain.State, log logging.LeveledLogger) *Manager {
	m := &Manager{
		mixer:  mixer,
		filler: NewFiller(g),
		gain:   g,
		log:    log,
	}
	g.OnChange(func(s *gain.State) {
		m.SetVolume(s.EffectiveVolume())
	})
	return m
}

// Filler returns the callback streams are fed from.
func (m *Manager) Filler() *Filler {
	return m.filler
}

// CreateStream starts a mixer stream pulling from src. A source reporting
// a zero buffer size plays through its own output and gets no stream.
func (m *Manager) CreateStream(src Source) error {
	info := src.StreamInfo()
	isFloat := info.IsFloat()

	// Fixed-point input is widened to float, doubling the byte count
	bufferSize := info.BufferSize
	if !isFloat {
		bufferSize *= 2
	}
	if bufferSize <= 0 {
		m.log.Debugf("source renders its own output, no mixer stream")
		return nil
	}

	flags := FlagFloat
	if info.NumChannels() < 2 {
		flags |= FlagMono
	}

	m.StopStream()
	m.filler.Attach(src, isFloat)

	s, err := m.mixer.CreateStream(m.filler.Fill, bufferSize, flags, info.SampleRate)
	if err != nil {
		m.filler.Detach()
		return fmt.Errorf("create stream: %w", err)
	}
	if err := s.Play(true, m.gain.EffectiveVolume()); err != nil {
		s.Stop()
		m.filler.Detach()
		return fmt.Errorf("play stream: %w", err)
	}

	m.mu.Lock()
	m.stream = s
	m.format = info
	m.mu.Unlock()

	m.log.Infof("music stream created: %d Hz, %d channels, float=%v, %d bytes",
		info.SampleRate, info.NumChannels(), isFloat, bufferSize)
	return nil
}

// PauseStream pauses or resumes the active stream, if any.
func (m *Manager) PauseStream(paused bool) {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()

	if s != nil {
		s.SetPaused(paused)
	}
}

// StopStream stops and forgets the active stream, if any. The filler is
// detached afterwards so later callbacks see no source.
func (m *Manager) StopStream() {
	m.mu.Lock()
	s := m.stream
	m.stream = nil
	m.format = api.StreamFormat{}
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.Stop()
	m.filler.Detach()
	m.log.Debugf("music stream stopped")
}

// SetVolume forwards a mixer volume to the active stream.
func (m *Manager) SetVolume(volume float64) {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()

	if s != nil {
		s.SetVolume(volume)
	}
}

// Active reports whether a stream is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Format returns the format of the active stream's source.
func (m *Manager) Format() api.StreamFormat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format
}
