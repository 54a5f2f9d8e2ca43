// Package gain holds the process-wide music volume state shared between
// the control layer and the audio callback.
package gain

import (
	"math"
	"sync"
	"sync/atomic"
)

const (
	DefaultMasterVolume = 0.25
	MaxRelativeVolume   = 2.0
)

// State is a synchronized cell holding master volume, relative volume and
// the current song's replay gain. Reads are lock-free so the audio
// callback can consult it on every buffer.
type State struct {
	master     atomic.Uint64
	relative   atomic.Uint64
	replayGain atomic.Uint64

	mu        sync.Mutex
	listeners []func(*State)
}

// NewState returns a state with the default master volume, unity relative
// volume and unity replay gain.
func NewState() *State {
	s := &State{}
	s.master.Store(math.Float64bits(DefaultMasterVolume))
	s.relative.Store(math.Float64bits(1))
	s.replayGain.Store(math.Float64bits(1))
	return s
}

// OnChange registers fn to run after any volume change.
func (s *State) OnChange(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// MasterVolume returns the user volume in [0,1].
func (s *State) MasterVolume() float64 {
	return math.Float64frombits(s.master.Load())
}

// RelativeVolume returns the per-song volume factor in [0,2].
func (s *State) RelativeVolume() float64 {
	return math.Float64frombits(s.relative.Load())
}

// ReplayGain returns the per-song loudness factor applied to samples.
func (s *State) ReplayGain() float64 {
	return math.Float64frombits(s.replayGain.Load())
}

// EffectiveVolume is the volume handed to the mixer: master times
// relative, clamped to [0,1]. Replay gain is not part of it.
func (s *State) EffectiveVolume() float64 {
	return clamp(s.MasterVolume()*s.RelativeVolume(), 0, 1)
}

// SetMasterVolume stores v clamped to [0,1].
func (s *State) SetMasterVolume(v float64) {
	s.master.Store(math.Float64bits(clamp(v, 0, 1)))
	s.notify()
}

// SetRelativeVolume stores factor clamped to [0,2].
func (s *State) SetRelativeVolume(factor float64) {
	s.relative.Store(math.Float64bits(clamp(factor, 0, MaxRelativeVolume)))
	s.notify()
}

// SetReplayGain stores the replay gain factor. Negative and NaN values
// reset it to unity.
func (s *State) SetReplayGain(factor float64) {
	if factor < 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		factor = 1
	}
	s.replayGain.Store(math.Float64bits(factor))
	s.notify()
}

func (s *State) notify() {
	s.mu.Lock()
	listeners := make([]func(*State), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
