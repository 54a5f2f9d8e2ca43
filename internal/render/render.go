// Package render turns a song into sampled audio with a software
// synthesizer, ahead of playback.
package render

import (
	"fmt"
	"time"

	"github.com/jscyril/golang_midi_player/internal/midifile"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
)

const (
	DefaultSampleRate = 44100
	DefaultTail       = 2 * time.Second
	// DefaultBufferFrames is the number of frames a playback buffer holds.
	DefaultBufferFrames = 2048
)

// Synth is a software synthesizer driven by channel messages.
type Synth interface {
	ProcessMidiMessage(channel, command, data1, data2 int32)
	NoteOffAll(immediate bool)
	Render(left, right []float32)
}

// Options controls an offline render.
type Options struct {
	SampleRate int
	// Tail is rendered after the last release so voices can decay. Zero
	// means DefaultTail, negative means none.
	Tail time.Duration
	// Fixed makes the rendered audio stream 16-bit samples instead of float.
	Fixed        bool
	BufferFrames int
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	switch {
	case o.Tail == 0:
		o.Tail = DefaultTail
	case o.Tail < 0:
		o.Tail = 0
	}
	if o.BufferFrames <= 0 {
		o.BufferFrames = DefaultBufferFrames
	}
	return o
}

// RenderOffline plays song through synth into memory. The length is fixed
// up front from the song's tempo map, then the sequencer is walked and the
// synth rendered up to each event before the event is dispatched.
func RenderOffline(song *midifile.Song, synth Synth, opts Options) (*Audio, error) {
	if song.Division == 0 {
		return nil, fmt.Errorf("%w: SMPTE time division", playerrors.ErrUnsupportedFormat)
	}
	opts = opts.withDefaults()

	body := framesFor(song.Duration(), opts.SampleRate)
	total := body + framesFor(opts.Tail, opts.SampleRate)
	left := make([]float32, total)
	right := make([]float32, total)

	seq := midifile.NewSequencer(song)
	var elapsed float64 // microseconds
	rendered := 0
	for {
		tempo := seq.Tempo()
		ev, ok := seq.Next()
		if !ok {
			break
		}
		elapsed += float64(ev.Delta) * float64(tempo) / float64(song.Division)

		target := min(int(elapsed*float64(opts.SampleRate)/1e6), body)
		if target > rendered {
			synth.Render(left[rendered:target], right[rendered:target])
			rendered = target
		}
		if !ev.IsTempo() {
			dispatch(synth, ev.Message)
		}
	}

	synth.NoteOffAll(false)
	if rendered < total {
		synth.Render(left[rendered:], right[rendered:])
	}

	return &Audio{
		sampleRate:   opts.SampleRate,
		left:         left,
		right:        right,
		fixed:        opts.Fixed,
		bufferFrames: opts.BufferFrames,
	}, nil
}

// dispatch sends a channel message to the synth. System messages have no
// meaning to it and are dropped.
func dispatch(synth Synth, msg []byte) {
	if len(msg) == 0 || msg[0] < 0x80 || msg[0] >= 0xF0 {
		return
	}
	var data1, data2 int32
	if len(msg) > 1 {
		data1 = int32(msg[1])
	}
	if len(msg) > 2 {
		data2 = int32(msg[2])
	}
	synth.ProcessMidiMessage(int32(msg[0]&0x0f), int32(msg[0]&0xF0), data1, data2)
}

func framesFor(d time.Duration, sampleRate int) int {
	if d <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(sampleRate))
}
