package midifile

import (
	"testing"
)

func testSong() *Song {
	return &Song{
		Division: 96,
		Tempo:    DefaultTempo,
		Events: []Event{
			{Tick: 0, Message: []byte{0xC0, 10}},
			{Tick: 0, Message: []byte{0x90, 60, 100}, Duration: 96},
			{Tick: 48, Tempo: 250000},
			{Tick: 48, Message: []byte{0xB0, 7, 90}},
			{Tick: 96, Message: []byte{0x90, 60, 110}, Duration: 0},
			{Tick: 100, Message: []byte{0x99, 36, 127}, Duration: 10},
		},
		Length: 110,
	}
}

type emitted struct {
	tick uint32
	msg  []byte
}

func drain(seq *Sequencer) []emitted {
	var out []emitted
	var tick uint32
	for {
		ev, ok := seq.Next()
		if !ok {
			return out
		}
		tick += ev.Delta
		if ev.IsTempo() {
			continue
		}
		out = append(out, emitted{tick: tick, msg: ev.Message})
	}
}

func TestSequencerEmitsReleases(t *testing.T) {
	seq := NewSequencer(testSong())
	got := drain(seq)

	want := []emitted{
		{0, []byte{0xC0, 10}},
		{0, []byte{0x90, 60, 100}},
		{48, []byte{0xB0, 7, 90}},
		{96, []byte{0x80, 60, 0}},
		{96, []byte{0x90, 60, 110}},
		{96, []byte{0x80, 60, 0}},
		{100, []byte{0x99, 36, 127}},
		{110, []byte{0x89, 36, 0}},
	}

	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].tick != want[i].tick || string(got[i].msg) != string(want[i].msg) {
			t.Errorf("event %d = tick %d % x, want tick %d % x",
				i, got[i].tick, got[i].msg, want[i].tick, want[i].msg)
		}
	}
	if !seq.Done() {
		t.Error("Done() = false after draining")
	}
	if seq.Tempo() != 250000 {
		t.Errorf("Tempo() = %d, want 250000", seq.Tempo())
	}
}

func TestSequencerFillRespectsLimit(t *testing.T) {
	seq := NewSequencer(testSong())

	buf := seq.Fill(nil, 3)
	if len(buf) != 3 {
		t.Fatalf("Fill returned %d events, want 3", len(buf))
	}
	buf = seq.Fill(buf[:0], 100)
	if len(buf) != 6 {
		t.Errorf("second Fill returned %d events, want 6", len(buf))
	}
}

func TestSequencerResetDropsPendingReleases(t *testing.T) {
	seq := NewSequencer(testSong())
	seq.Fill(nil, 2)
	if seq.Queue().Len() != 1 {
		t.Fatalf("queue len = %d, want 1 sounding note", seq.Queue().Len())
	}

	seq.Reset()
	if seq.Queue().Len() != 0 || seq.Tick() != 0 {
		t.Errorf("Reset left queue=%d tick=%d", seq.Queue().Len(), seq.Tick())
	}
	if got := drain(seq); len(got) != 8 {
		t.Errorf("replay after Reset produced %d events, want 8", len(got))
	}
}

func TestSequencerSeekTick(t *testing.T) {
	seq := NewSequencer(testSong())
	state := seq.SeekTick(97)

	if len(state) != 2 {
		t.Fatalf("SeekTick returned %d state events, want program + controller", len(state))
	}
	if state[0].Message[0] != 0xC0 || state[1].Message[0] != 0xB0 {
		t.Errorf("unexpected state events % x, % x", state[0].Message, state[1].Message)
	}
	if seq.Tempo() != 250000 {
		t.Errorf("Tempo() after seek = %d, want 250000", seq.Tempo())
	}
	if seq.Queue().Len() != 0 {
		t.Error("seek must not leave notes sounding")
	}

	ev, ok := seq.Next()
	if !ok || ev.Delta != 3 || ev.Message[0] != 0x99 {
		t.Errorf("first event after seek = %+v, %v", ev, ok)
	}
}
