package midifile

import (
	"fmt"
	"io"

	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"gitlab.com/gomidi/midi/v2/smf"
)

// WriteSMF writes song as a single-track standard MIDI file. Writing
// plays the song through a Sequencer, so note durations come back out as
// explicit note-offs.
func WriteSMF(w io.Writer, song *Song) error {
	if song.Division == 0 {
		return fmt.Errorf("%w: SMPTE-timed songs cannot be written", playerrors.ErrUnsupportedFormat)
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(song.Division)

	var track smf.Track
	seq := NewSequencer(song)
	if song.Tempo != DefaultTempo && !startsWithTempo(song) {
		track.Add(0, smf.MetaTempo(bpm(song.Tempo)))
	}
	for {
		ev, ok := seq.Next()
		if !ok {
			break
		}
		if ev.IsTempo() {
			track.Add(ev.Delta, smf.MetaTempo(bpm(ev.Tempo)))
			continue
		}
		track.Add(ev.Delta, ev.Message)
	}
	track.Close(0)

	if err := sm.Add(track); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}

func startsWithTempo(song *Song) bool {
	return len(song.Events) > 0 && song.Events[0].Tick == 0 && song.Events[0].Tempo != 0
}

func bpm(tempo uint32) float64 {
	return 60000000 / float64(tempo)
}
