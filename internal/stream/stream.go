// Package stream feeds synthesized music into the host audio mixer through
// a pull callback.
package stream

import "github.com/jscyril/golang_midi_player/api"

// Source is a synthesis engine stream. FillStream writes len(buf) bytes of
// little-endian samples in the format StreamInfo describes and reports
// false when it has nothing to give.
type Source interface {
	StreamInfo() api.StreamFormat
	FillStream(buf []byte) bool
}

// FillFunc is the pull callback a mixer stream invokes for more samples.
type FillFunc func(buf []byte) bool

// Flags describe the sample layout of a mixer stream.
type Flags uint8

const (
	FlagFloat Flags = 1 << iota
	FlagMono
)

// Mixer is the host audio layer music streams are created on.
type Mixer interface {
	CreateStream(fill FillFunc, bufferSize int, flags Flags, sampleRate int) (Stream, error)
}

// Stream is a live mixer stream.
type Stream interface {
	Play(looping bool, volume float64) error
	SetPaused(paused bool)
	SetVolume(volume float64)
	Stop()
}
