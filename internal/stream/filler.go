package stream

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/jscyril/golang_midi_player/internal/gain"
)

// Filler is the audio callback. It always produces 32-bit float samples,
// converting fixed-point sources and applying replay gain on the way.
type Filler struct {
	mu      sync.Mutex
	source  Source
	isFloat bool
	gain    *gain.State
	convert []byte
}

// NewFiller returns a filler reading replay gain from g.
func NewFiller(g *gain.State) *Filler {
	return &Filler{gain: g}
}

// Attach makes src the active source. It waits for any fill in progress.
func (f *Filler) Attach(src Source, isFloat bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = src
	f.isFloat = isFloat
}

// Detach drops the active source. It waits for any fill in progress, so
// once it returns no fill can observe the old source.
func (f *Filler) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = nil
}

// Fill writes len(buf) bytes of float samples. When the source is missing
// or cannot supply data the buffer is zeroed and Fill returns false.
func (f *Filler) Fill(buf []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	written := false
	if f.source != nil {
		replayGain := float32(1)
		if f.gain != nil {
			replayGain = float32(f.gain.ReplayGain())
		}
		if f.isFloat {
			written = f.fillFloat(buf, replayGain)
		} else {
			written = f.fillFixed(buf, replayGain)
		}
	}

	if !written {
		clear(buf)
		return false
	}
	return true
}

func (f *Filler) fillFloat(buf []byte, replayGain float32) bool {
	written := f.source.FillStream(buf)
	if written && replayGain != 1 {
		for i := 0; i+4 <= len(buf); i += 4 {
			sample := math.Float32frombits(binary.LittleEndian.Uint32(buf[i:]))
			binary.LittleEndian.PutUint32(buf[i:], math.Float32bits(sample*replayGain))
		}
	}
	return written
}

// fillFixed pulls 16-bit samples into the reusable scratch buffer, half
// the size of the float output.
func (f *Filler) fillFixed(buf []byte, replayGain float32) bool {
	n := len(buf) / 2
	if cap(f.convert) < n {
		f.convert = make([]byte, n)
	}
	scratch := f.convert[:n]

	written := f.source.FillStream(scratch)
	if !written {
		return false
	}
	scale := replayGain / 32768
	for i := 0; i < len(buf)/4; i++ {
		sample := int16(binary.LittleEndian.Uint16(scratch[i*2:]))
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(sample)*scale))
	}
	clear(buf[len(buf)/4*4:])
	return true
}
