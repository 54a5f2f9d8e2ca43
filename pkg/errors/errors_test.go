package errors

import (
	"errors"
	"testing"
)

func TestPlayerErrorUnwrap(t *testing.T) {
	err := NewPlayerError("open", "song-1", ErrDeviceUnavailable)

	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("errors.Is(%v, ErrDeviceUnavailable) = false", err)
	}
	if got, want := err.Error(), "open failed for song song-1: midi device unavailable"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	noSong := NewPlayerError("prepare", "", ErrUnsupportedFormat)
	if got, want := noSong.Error(), "prepare failed: song timing not representable by device"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStateErrorMatchesInvalidState(t *testing.T) {
	err := error(&StateError{Op: "stream out", State: "paused"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("StateError should match ErrInvalidState")
	}

	wrapped := NewPlayerError("resume", "x", err)
	if !errors.Is(wrapped, ErrInvalidState) {
		t.Errorf("wrapped StateError should match ErrInvalidState")
	}
}

func TestScanErrorUnwrap(t *testing.T) {
	err := &ScanError{Path: "/music/a.mid", Err: ErrInvalidFormat}
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("ScanError should unwrap to its cause")
	}
}
