package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	"github.com/jscyril/golang_midi_player/api"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
)

const digitalBufferFrames = 4096

// MidiFormats returns the extensions of MIDI-family files
func MidiFormats() []string {
	return []string{".mid", ".midi", ".rmi", ".mus", ".hmi", ".hmp", ".xmi"}
}

// DigitalFormats returns the extensions of sampled audio files
func DigitalFormats() []string {
	return []string{".mp3", ".wav", ".flac"}
}

// SupportedFormats returns list of supported audio formats
func SupportedFormats() []string {
	return append(MidiFormats(), DigitalFormats()...)
}

// IsSupported checks if a file format is supported
func IsSupported(filePath string) bool {
	return hasExt(filePath, SupportedFormats())
}

// IsDigital checks if a file is sampled audio rather than MIDI
func IsDigital(filePath string) bool {
	return hasExt(filePath, DigitalFormats())
}

func hasExt(filePath string, formats []string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range formats {
		if ext == format {
			return true
		}
	}
	return false
}

// DecodeAudio decodes an audio file based on its extension
func DecodeAudio(r io.ReadSeekCloser, filePath string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".mp3":
		return mp3.Decode(r)
	case ".wav":
		return wav.Decode(r)
	case ".flac":
		return flac.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", playerrors.ErrInvalidFormat, ext)
	}
}

// digitalSource feeds a decoded file to the stream filler as stereo
// float samples.
type digitalSource struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	frames   [][2]float64
}

func newDigitalSource(streamer beep.StreamSeekCloser, format beep.Format) *digitalSource {
	return &digitalSource{
		streamer: streamer,
		format:   format,
		frames:   make([][2]float64, digitalBufferFrames),
	}
}

func (d *digitalSource) StreamInfo() api.StreamFormat {
	return api.StreamFormat{
		Channels:   2,
		SampleRate: int(d.format.SampleRate),
		BufferSize: digitalBufferFrames * 8,
	}
}

func (d *digitalSource) FillStream(buf []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := len(buf) / 8
	if cap(d.frames) < count {
		d.frames = make([][2]float64, count)
	}
	n, _ := d.streamer.Stream(d.frames[:count])
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(float32(d.frames[i][0])))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(float32(d.frames[i][1])))
	}
	clear(buf[n*8:])
	return true
}

func (d *digitalSource) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format.SampleRate.D(d.streamer.Position())
}

func (d *digitalSource) Duration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format.SampleRate.D(d.streamer.Len())
}

func (d *digitalSource) Seek(pos time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := min(d.format.SampleRate.N(pos), d.streamer.Len())
	return d.streamer.Seek(max(n, 0))
}

func (d *digitalSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamer.Close()
}
