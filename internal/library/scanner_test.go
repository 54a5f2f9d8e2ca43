package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
)

func TestScanFile(t *testing.T) {
	dir := t.TempDir()
	mus := append([]byte("MUS\x1a"), make([]byte, 12)...)

	tests := []struct {
		name      string
		file      string
		data      []byte
		container api.ContainerType
		duration  time.Duration
		wantErr   error
	}{
		{"standard midi", "one.mid", nil, api.ContainerMIDI, time.Second, nil},
		{"mus by header", "e1m1.mus", mus, api.ContainerMUS, 0, nil},
		{"mus misnamed", "e1m1.mid", mus, api.ContainerMUS, 0, nil},
		{"untagged wav", "clip.wav", []byte("RIFF"), api.ContainerNotMidi, 0, nil},
		{"garbage midi", "bad.mid", []byte("garbage"), 0, 0, playerrors.ErrInvalidFormat},
		{"unsupported extension", "readme.txt", []byte("text"), 0, 0, playerrors.ErrInvalidFormat},
	}

	scanner := NewScanner(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = oneSecondSMF(t)
			}
			path := writeFile(t, dir, tt.file, data)

			song, err := scanner.ScanFile(path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ScanFile() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ScanFile() error = %v", err)
			}
			if song.Container != tt.container {
				t.Errorf("Container = %v, want %v", song.Container, tt.container)
			}
			if song.Duration != tt.duration {
				t.Errorf("Duration = %v, want %v", song.Duration, tt.duration)
			}
			if song.ReplayGain != 1 {
				t.Errorf("ReplayGain = %v, want 1", song.ReplayGain)
			}
			if song.ID != generateSongID(path) {
				t.Errorf("ID = %q", song.ID)
			}
		})
	}
}

func TestScannerCancelled(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mid", "b.mid", "c.mid"} {
		writeFile(t, dir, name, oneSecondSMF(t))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	songs, errs := NewScanner(2).Scan(ctx, []string{dir})
	for songs != nil || errs != nil {
		select {
		case _, ok := <-songs:
			if !ok {
				songs = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}

func TestGenerateSongIDStable(t *testing.T) {
	a := generateSongID("/music/doom/e1m1.mus")
	if a != generateSongID("/music/doom/e1m1.mus") {
		t.Error("ID not stable")
	}
	if a == generateSongID("/music/doom/e1m2.mus") {
		t.Error("distinct paths share an ID")
	}
}
