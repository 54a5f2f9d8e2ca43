package midifile

import (
	"math"

	"github.com/jscyril/golang_midi_player/internal/noteoff"
	"gitlab.com/gomidi/midi/v2"
)

// StreamEvent is a song event relative to the one before it. Tempo events
// have a nil Message and a non-zero Tempo.
type StreamEvent struct {
	Delta   uint32
	Message midi.Message
	Tempo   uint32
}

// IsTempo reports whether the event changes tempo.
func (e StreamEvent) IsTempo() bool {
	return e.Tempo != 0
}

// Sequencer walks a song in time order, emitting explicit note-offs for
// every note-on once its duration has elapsed.
type Sequencer struct {
	song  *Song
	queue *noteoff.Queue
	next  int
	tick  uint32
	tempo uint32
}

// NewSequencer returns a sequencer positioned at the start of song.
func NewSequencer(song *Song) *Sequencer {
	return &Sequencer{
		song:  song,
		queue: noteoff.NewQueue(64),
		tempo: song.Tempo,
	}
}

// Queue exposes the pending note-off queue.
func (s *Sequencer) Queue() *noteoff.Queue { return s.queue }

// Tick returns the absolute tick of the last emitted event.
func (s *Sequencer) Tick() uint32 { return s.tick }

// Tempo returns the tempo in effect at the current tick.
func (s *Sequencer) Tempo() uint32 { return s.tempo }

// Done reports whether every event and release has been emitted.
func (s *Sequencer) Done() bool {
	return s.next >= len(s.song.Events) && s.queue.Len() == 0
}

// Reset rewinds to the start and drops pending releases.
func (s *Sequencer) Reset() {
	s.next = 0
	s.tick = 0
	s.tempo = s.song.Tempo
	s.queue.Clear()
}

// Next returns the next event. A release due at the same tick as a song
// event goes first so a re-struck note is not cut short.
func (s *Sequencer) Next() (StreamEvent, bool) {
	hasSong := s.next < len(s.song.Events)
	pending, hasOff := s.queue.Peek()
	if !hasSong && !hasOff {
		return StreamEvent{}, false
	}

	useOff := false
	var at uint32
	if hasOff {
		offAt := int64(s.tick) + pending.Delay
		if offAt < int64(s.tick) {
			offAt = int64(s.tick)
		}
		if offAt > math.MaxUint32 {
			offAt = math.MaxUint32
		}
		if !hasSong || offAt <= int64(s.song.Events[s.next].Tick) {
			useOff = true
			at = uint32(offAt)
		}
	}
	if !useOff {
		at = s.song.Events[s.next].Tick
		if at < s.tick {
			at = s.tick
		}
	}

	delta := at - s.tick
	s.queue.Advance(delta)
	s.tick = at

	if useOff {
		off, ok := s.queue.PopDue()
		if !ok {
			// The release lies past the last representable tick.
			if top, _ := s.queue.Peek(); top.Delay > 0 {
				s.queue.Advance(uint32(min(top.Delay, math.MaxUint32)))
			}
			off, _ = s.queue.PopDue()
		}
		return StreamEvent{Delta: delta, Message: midi.NoteOff(off.Channel, off.Key)}, true
	}

	ev := s.song.Events[s.next]
	s.next++
	if ev.Tempo != 0 {
		s.tempo = ev.Tempo
		return StreamEvent{Delta: delta, Tempo: ev.Tempo}, true
	}
	if isNoteOn(ev.Message) {
		s.queue.Schedule(ev.Duration, ev.Message[0]&0x0f, ev.Message[1])
	}
	return StreamEvent{Delta: delta, Message: midi.Message(ev.Message)}, true
}

// Fill appends up to limit events to dst and returns the extended slice.
func (s *Sequencer) Fill(dst []StreamEvent, limit int) []StreamEvent {
	for i := 0; i < limit; i++ {
		ev, ok := s.Next()
		if !ok {
			break
		}
		dst = append(dst, ev)
	}
	return dst
}

// SeekTick repositions to tick without sounding any note. Controller,
// program and pitch changes passed over are returned with zero deltas so
// the caller can restore channel state.
func (s *Sequencer) SeekTick(tick uint32) []StreamEvent {
	s.Reset()

	var state []StreamEvent
	for s.next < len(s.song.Events) && s.song.Events[s.next].Tick < tick {
		ev := s.song.Events[s.next]
		s.next++
		switch {
		case ev.Tempo != 0:
			s.tempo = ev.Tempo
		case len(ev.Message) > 0 && isChannelState(ev.Message[0]):
			state = append(state, StreamEvent{Message: midi.Message(ev.Message)})
		}
	}
	s.tick = tick
	return state
}

// isChannelState matches controller, program change and pitch bend.
func isChannelState(status byte) bool {
	switch status & 0xF0 {
	case 0xB0, 0xC0, 0xE0:
		return true
	}
	return false
}
