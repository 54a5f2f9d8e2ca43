package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
)

// SpeakerMixer creates music streams on the beep speaker. The speaker
// holds its lock while pulling samples, so pausing or stopping a stream
// waits for any callback in flight.
type SpeakerMixer struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	bufferTime time.Duration
	ready      bool
	onEnd      func()
}

// NewSpeakerMixer returns a mixer running the speaker at sampleRate with
// the given device buffer latency. onEnd runs on its own goroutine when a
// stream runs out of data.
func NewSpeakerMixer(sampleRate int, bufferTime time.Duration, onEnd func()) *SpeakerMixer {
	if bufferTime <= 0 {
		bufferTime = time.Second / 10
	}
	return &SpeakerMixer{
		sampleRate: beep.SampleRate(sampleRate),
		bufferTime: bufferTime,
		onEnd:      onEnd,
	}
}

// CreateStream wraps fill in a pausable, volume-controlled streamer,
// resampled to the speaker rate when needed. The speaker is initialized
// on first use.
func (m *SpeakerMixer) CreateStream(fill FillFunc, bufferSize int, flags Flags, sampleRate int) (Stream, error) {
	if flags&FlagFloat == 0 {
		return nil, errors.New("speaker streams must be floating point")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	m.mu.Lock()
	if !m.ready {
		if err := speaker.Init(m.sampleRate, m.sampleRate.N(m.bufferTime)); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("speaker init: %w", err)
		}
		m.ready = true
	}
	m.mu.Unlock()

	channels := 2
	if flags&FlagMono != 0 {
		channels = 1
	}
	ctrl := &beep.Ctrl{Streamer: &pullStreamer{fill: fill, channels: channels, buf: make([]byte, bufferSize)}}

	var out beep.Streamer = ctrl
	if rate := beep.SampleRate(sampleRate); rate != m.sampleRate {
		out = beep.Resample(4, rate, m.sampleRate, ctrl)
	}
	return &speakerStream{
		ctrl:   ctrl,
		volume: &effects.Volume{Streamer: out, Base: 2},
		onEnd:  m.onEnd,
	}, nil
}

// Close stops everything playing on the speaker.
func (m *SpeakerMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		speaker.Clear()
	}
}

type speakerStream struct {
	ctrl    *beep.Ctrl
	volume  *effects.Volume
	onEnd   func()
	stopped atomic.Bool
}

// Play starts the stream. Looping is up to the source, which keeps
// supplying data for as long as it wants to play.
func (s *speakerStream) Play(looping bool, volume float64) error {
	s.SetVolume(volume)
	speaker.Play(beep.Seq(s.volume, beep.Callback(func() {
		if !s.stopped.Load() && s.onEnd != nil {
			go s.onEnd()
		}
	})))
	return nil
}

func (s *speakerStream) SetPaused(paused bool) {
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
}

// SetVolume maps a linear volume onto the base-2 volume effect.
func (s *speakerStream) SetVolume(volume float64) {
	speaker.Lock()
	defer speaker.Unlock()
	if volume <= 0 {
		s.volume.Silent = true
		return
	}
	s.volume.Silent = false
	s.volume.Volume = math.Log2(volume)
}

func (s *speakerStream) Stop() {
	s.stopped.Store(true)
	speaker.Lock()
	s.ctrl.Streamer = nil
	speaker.Unlock()
}

// pullStreamer adapts a FillFunc producing interleaved float32 bytes to a
// beep.Streamer.
type pullStreamer struct {
	fill     FillFunc
	channels int
	buf      []byte
}

func (p *pullStreamer) Stream(samples [][2]float64) (int, bool) {
	need := len(samples) * p.channels * 4
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	buf := p.buf[:need]
	if !p.fill(buf) {
		return 0, false
	}

	for i := range samples {
		if p.channels == 1 {
			v := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
			samples[i] = [2]float64{v, v}
			continue
		}
		l := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:]))
		r := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:]))
		samples[i] = [2]float64{float64(l), float64(r)}
	}
	return len(samples), true
}

func (p *pullStreamer) Err() error {
	return nil
}
