// Package midifile identifies MIDI-family containers and turns standard
// MIDI files into songs whose notes carry their own release time.
package midifile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultTempo is 120 BPM expressed in microseconds per quarter note.
const DefaultTempo = 500000

// MaxTempo is the largest tempo a MIDI tempo event can carry.
const MaxTempo = 0xFFFFFF

// Event is one song event at an absolute tick. Note-ons carry Duration,
// the ticks until their automatic release; the matching note-off is not
// stored. Tempo events have a nil Message and a non-zero Tempo.
type Event struct {
	Tick     uint32
	Message  []byte
	Duration uint32
	Tempo    uint32
}

// Song is a parsed MIDI song in auto note-off form.
type Song struct {
	Container api.ContainerType
	// Division is ticks per quarter note; zero for SMPTE-timed files.
	Division uint16
	// Tempo is the tempo in effect at tick zero.
	Tempo  uint32
	Events []Event
	// Length is the tick at which the last note has been released.
	Length uint32
}

// LoadFile reads and parses a song from disk.
func LoadFile(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read song: %w", err)
	}
	return Parse(data)
}

// Load reads and parses a song.
func Load(r io.Reader) (*Song, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read song: %w", err)
	}
	return Parse(data)
}

// Parse sniffs data and parses it. Only standard MIDI files are decoded;
// other MIDI-family containers are reported as unsupported.
func Parse(data []byte) (*Song, error) {
	switch kind := Identify(data); kind {
	case api.ContainerMIDI:
		return parseSMF(data)
	case api.ContainerNotMidi:
		return nil, fmt.Errorf("%w: not a MIDI-based file", playerrors.ErrInvalidFormat)
	default:
		return nil, fmt.Errorf("%w: %s containers are not decoded", playerrors.ErrInvalidFormat, kind)
	}
}

type rawEvent struct {
	tick uint32
	msg  []byte
}

func parseSMF(data []byte) (*Song, error) {
	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", playerrors.ErrInvalidFormat, err)
	}

	song := &Song{Container: api.ContainerMIDI, Tempo: DefaultTempo}
	if ticks, ok := sm.TimeFormat.(smf.MetricTicks); ok {
		song.Division = uint16(ticks)
	}

	var raw []rawEvent
	for _, track := range sm.Tracks {
		var tick uint32
		for _, ev := range track {
			tick += ev.Delta
			raw = append(raw, rawEvent{tick: tick, msg: []byte(ev.Message)})
			if tick > song.Length {
				song.Length = tick
			}
		}
	}
	// Stable keeps per-track order for events sharing a tick.
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].tick < raw[j].tick })

	song.Events = pairNotes(raw, song.Length)
	for _, ev := range song.Events {
		if ev.Tempo != 0 && ev.Tick == 0 {
			song.Tempo = ev.Tempo
		}
		if ev.Duration > 0 && ev.Tick+ev.Duration > song.Length {
			song.Length = ev.Tick + ev.Duration
		}
	}
	return song, nil
}

// pairNotes folds each note-off into the duration of the oldest sounding
// note-on with the same channel and key. Notes still sounding at the end
// are released at songEnd.
func pairNotes(raw []rawEvent, songEnd uint32) []Event {
	events := make([]Event, 0, len(raw))
	open := make(map[[2]uint8][]int)

	for _, r := range raw {
		msg := r.msg
		if len(msg) == 0 {
			continue
		}
		status := msg[0]

		switch {
		case status == 0xFF:
			if tempo, ok := metaTempo(msg); ok {
				events = append(events, Event{Tick: r.tick, Tempo: tempo})
			}
		case status == 0xF0 || status == 0xF7:
			events = append(events, Event{Tick: r.tick, Message: msg})
		case status >= 0x80 && status < 0xF0:
			ch := status & 0x0f
			if isNoteOn(msg) {
				key := [2]uint8{ch, msg[1]}
				open[key] = append(open[key], len(events))
				events = append(events, Event{Tick: r.tick, Message: msg})
				continue
			}
			if isNoteOff(msg) {
				key := [2]uint8{ch, msg[1]}
				if pending := open[key]; len(pending) > 0 {
					idx := pending[0]
					open[key] = pending[1:]
					events[idx].Duration = r.tick - events[idx].Tick
				}
				continue
			}
			events = append(events, Event{Tick: r.tick, Message: msg})
		}
	}

	for _, pending := range open {
		for _, idx := range pending {
			events[idx].Duration = songEnd - events[idx].Tick
		}
	}
	return events
}

func isNoteOn(msg []byte) bool {
	return len(msg) >= 3 && msg[0]&0xF0 == 0x90 && msg[2] > 0
}

func isNoteOff(msg []byte) bool {
	if len(msg) < 3 {
		return false
	}
	kind := msg[0] & 0xF0
	return kind == 0x80 || (kind == 0x90 && msg[2] == 0)
}

// metaTempo decodes an FF 51 03 tttttt set-tempo meta event.
func metaTempo(msg []byte) (uint32, bool) {
	if len(msg) != 6 || msg[1] != 0x51 || msg[2] != 0x03 {
		return 0, false
	}
	tempo := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
	if tempo == 0 {
		return 0, false
	}
	return tempo, true
}

// TimeAt converts an absolute tick to elapsed playing time.
func (s *Song) TimeAt(tick uint32) time.Duration {
	if s.Division == 0 {
		return 0
	}
	var us float64
	last, tempo := uint32(0), s.Tempo
	for _, ev := range s.Events {
		if ev.Tempo == 0 {
			continue
		}
		if ev.Tick >= tick {
			break
		}
		us += float64(ev.Tick-last) * float64(tempo) / float64(s.Division)
		last, tempo = ev.Tick, ev.Tempo
	}
	us += float64(tick-last) * float64(tempo) / float64(s.Division)
	return time.Duration(us * float64(time.Microsecond))
}

// TickAt converts elapsed playing time to the tick sounding at that time.
func (s *Song) TickAt(d time.Duration) uint32 {
	if s.Division == 0 || d <= 0 {
		return 0
	}
	remaining := float64(d) / float64(time.Microsecond)
	last, tempo := uint32(0), s.Tempo
	for _, ev := range s.Events {
		if ev.Tempo == 0 {
			continue
		}
		span := float64(ev.Tick-last) * float64(tempo) / float64(s.Division)
		if span >= remaining {
			break
		}
		remaining -= span
		last, tempo = ev.Tick, ev.Tempo
	}
	return last + uint32(remaining*float64(s.Division)/float64(tempo))
}

// Duration returns the playing time of the whole song.
func (s *Song) Duration() time.Duration {
	return s.TimeAt(s.Length)
}

// Tempos returns every tempo in use, starting with the initial one.
func (s *Song) Tempos() []uint32 {
	tempos := []uint32{s.Tempo}
	for _, ev := range s.Events {
		if ev.Tempo != 0 {
			tempos = append(tempos, ev.Tempo)
		}
	}
	return tempos
}
