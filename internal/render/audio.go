package render

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/jscyril/golang_midi_player/api"
)

// Audio is a rendered song held in memory. It is a stream source with its
// own play cursor.
type Audio struct {
	sampleRate   int
	left, right  []float32
	fixed        bool
	bufferFrames int

	mu      sync.Mutex
	pos     int
	looping bool
}

// Frames returns the rendered length in sample frames.
func (a *Audio) Frames() int { return len(a.left) }

// SampleRate returns the render sample rate.
func (a *Audio) SampleRate() int { return a.sampleRate }

// Duration returns the rendered length in time.
func (a *Audio) Duration() time.Duration {
	return a.frameTime(len(a.left))
}

// Frame returns the left and right samples of frame i.
func (a *Audio) Frame(i int) (float32, float32) {
	return a.left[i], a.right[i]
}

// SetLooping makes the cursor wrap to the start at the end.
func (a *Audio) SetLooping(looping bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.looping = looping
}

// Position returns the play cursor.
func (a *Audio) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frameTime(a.pos)
}

// Seek moves the play cursor, clamped to the rendered length.
func (a *Audio) Seek(d time.Duration) {
	frame := min(framesFor(d, a.sampleRate), len(a.left))
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos = frame
}

// Rewind moves the play cursor to the start.
func (a *Audio) Rewind() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos = 0
}

func (a *Audio) frameTime(frame int) time.Duration {
	if a.sampleRate == 0 {
		return 0
	}
	return time.Duration(frame) * time.Second / time.Duration(a.sampleRate)
}

func (a *Audio) bytesPerSample() int {
	if a.fixed {
		return 2
	}
	return 4
}

// StreamInfo describes the interleaved stereo output of FillStream.
func (a *Audio) StreamInfo() api.StreamFormat {
	channels := 2
	if a.fixed {
		channels = -2
	}
	return api.StreamFormat{
		Channels:   channels,
		SampleRate: a.sampleRate,
		BufferSize: a.bufferFrames * 2 * a.bytesPerSample(),
	}
}

// FillStream copies frames from the cursor into buf, padding with silence
// past the end. It returns false once nothing is left to play.
func (a *Audio) FillStream(buf []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	frameSize := 2 * a.bytesPerSample()
	frames := len(buf) / frameSize
	if a.pos >= len(a.left) && (!a.looping || len(a.left) == 0) {
		return false
	}

	for i := 0; i < frames; i++ {
		if a.pos >= len(a.left) {
			if !a.looping {
				clear(buf[i*frameSize:])
				return true
			}
			a.pos = 0
		}
		a.putFrame(buf[i*frameSize:], a.left[a.pos], a.right[a.pos])
		a.pos++
	}
	clear(buf[frames*frameSize:])
	return true
}

func (a *Audio) putFrame(dst []byte, l, r float32) {
	if a.fixed {
		binary.LittleEndian.PutUint16(dst, uint16(toInt16(l)))
		binary.LittleEndian.PutUint16(dst[2:], uint16(toInt16(r)))
		return
	}
	binary.LittleEndian.PutUint32(dst, math.Float32bits(l))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(r))
}

func toInt16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(s * 32767)
}

// Format is the beep format of the rendered audio.
func (a *Audio) Format() beep.Format {
	return beep.Format{SampleRate: beep.SampleRate(a.sampleRate), NumChannels: 2, Precision: 2}
}

// Streamer returns a beep streamer over the audio, independent of the play
// cursor.
func (a *Audio) Streamer() beep.Streamer {
	return &audioStreamer{audio: a}
}

// WriteWave encodes the rendered audio as a 16-bit WAV file.
func (a *Audio) WriteWave(w io.WriteSeeker) error {
	return wav.Encode(w, a.Streamer(), a.Format())
}

type audioStreamer struct {
	audio *Audio
	pos   int
}

func (s *audioStreamer) Stream(samples [][2]float64) (int, bool) {
	n := min(len(samples), len(s.audio.left)-s.pos)
	if n <= 0 {
		return 0, false
	}
	for i := 0; i < n; i++ {
		samples[i] = [2]float64{float64(s.audio.left[s.pos+i]), float64(s.audio.right[s.pos+i])}
	}
	s.pos += n
	return n, true
}

func (s *audioStreamer) Err() error { return nil }
