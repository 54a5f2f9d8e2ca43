package render

import (
	"errors"
	"testing"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
)

type synthCall struct {
	frame                     int
	channel, command, d1, d2 int32
}

// fakeSynth renders a constant level and records when each message arrived.
type fakeSynth struct {
	level      float32
	rendered   int
	calls      []synthCall
	noteOffAll int
}

func (s *fakeSynth) ProcessMidiMessage(channel, command, data1, data2 int32) {
	s.calls = append(s.calls, synthCall{s.rendered, channel, command, data1, data2})
}

func (s *fakeSynth) NoteOffAll(immediate bool) { s.noteOffAll++ }

func (s *fakeSynth) Render(left, right []float32) {
	for i := range left {
		left[i] = s.level
		right[i] = -s.level
	}
	s.rendered += len(left)
}

func oneNoteSong() *midifile.Song {
	return &midifile.Song{
		Container: api.ContainerMIDI,
		Division:  480,
		Tempo:     midifile.DefaultTempo,
		Events: []midifile.Event{
			{Tick: 0, Message: []byte{0x91, 60, 100}, Duration: 480},
		},
		Length: 480,
	}
}

func TestRenderOfflineTiming(t *testing.T) {
	synth := &fakeSynth{level: 0.5}
	audio, err := RenderOffline(oneNoteSong(), synth, Options{SampleRate: 44100})
	if err != nil {
		t.Fatalf("RenderOffline() error = %v", err)
	}

	wantFrames := 22050 + 2*44100
	if audio.Frames() != wantFrames {
		t.Errorf("Frames() = %d, want %d", audio.Frames(), wantFrames)
	}
	if synth.rendered != wantFrames {
		t.Errorf("synth rendered %d frames, want %d", synth.rendered, wantFrames)
	}
	if synth.noteOffAll != 1 {
		t.Errorf("NoteOffAll called %d times, want 1", synth.noteOffAll)
	}

	want := []synthCall{
		{frame: 0, channel: 1, command: 0x90, d1: 60, d2: 100},
		{frame: 22050, channel: 1, command: 0x80, d1: 60, d2: 0},
	}
	if len(synth.calls) != len(want) {
		t.Fatalf("got %d synth messages, want %d: %+v", len(synth.calls), len(want), synth.calls)
	}
	for i := range want {
		if synth.calls[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, synth.calls[i], want[i])
		}
	}

	if l, r := audio.Frame(100); l != 0.5 || r != -0.5 {
		t.Errorf("Frame(100) = %v, %v, want 0.5, -0.5", l, r)
	}
}

func TestRenderOfflineFollowsTempoChanges(t *testing.T) {
	song := &midifile.Song{
		Container: api.ContainerMIDI,
		Division:  480,
		Tempo:     midifile.DefaultTempo,
		Events: []midifile.Event{
			{Tick: 480, Tempo: 250000},
			{Tick: 480, Message: []byte{0x90, 64, 90}, Duration: 480},
		},
		Length: 960,
	}

	synth := &fakeSynth{}
	audio, err := RenderOffline(song, synth, Options{SampleRate: 44100, Tail: -1})
	if err != nil {
		t.Fatalf("RenderOffline() error = %v", err)
	}
	if audio.Frames() != 33075 {
		t.Errorf("Frames() = %d, want 33075", audio.Frames())
	}
	if audio.Duration() != 750*time.Millisecond {
		t.Errorf("Duration() = %v, want 750ms", audio.Duration())
	}
	if len(synth.calls) != 2 || synth.calls[0].frame != 22050 || synth.calls[1].frame != 33075 {
		t.Errorf("messages = %+v, want note on at 22050 and off at 33075", synth.calls)
	}
}

func TestRenderOfflineDropsSystemMessages(t *testing.T) {
	song := oneNoteSong()
	song.Events = append([]midifile.Event{{Tick: 0, Message: []byte{0xF0, 0x7E, 0x7F, 0x09, 0x01, 0xF7}}}, song.Events...)

	synth := &fakeSynth{}
	if _, err := RenderOffline(song, synth, Options{}); err != nil {
		t.Fatalf("RenderOffline() error = %v", err)
	}
	for _, c := range synth.calls {
		if c.command == 0xF0 {
			t.Errorf("system message reached the synth: %+v", c)
		}
	}
}

func TestRenderOfflineRejectsSMPTE(t *testing.T) {
	song := oneNoteSong()
	song.Division = 0

	_, err := RenderOffline(song, &fakeSynth{}, Options{})
	if !errors.Is(err, playerrors.ErrUnsupportedFormat) {
		t.Errorf("RenderOffline() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	a, _ := RenderOffline(oneNoteSong(), &fakeSynth{level: 0.1}, Options{SampleRate: 22050})
	b, _ := RenderOffline(oneNoteSong(), &fakeSynth{level: 0.1}, Options{SampleRate: 22050})
	if a.Frames() != b.Frames() || a.Duration() != b.Duration() {
		t.Errorf("renders differ: %d/%v vs %d/%v", a.Frames(), a.Duration(), b.Frames(), b.Duration())
	}
}
