package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrSongNotFound      = errors.New("song not found")
	ErrInvalidFormat     = errors.New("unsupported audio format")
	ErrPlaybackFailed    = errors.New("playback failed")
	ErrEmptyQueue        = errors.New("playback queue is empty")
	ErrInvalidVolume     = errors.New("volume must be between 0.0 and 1.0")
	ErrNoSongPlaying     = errors.New("no song playing")
	ErrDeviceUnavailable = errors.New("midi device unavailable")
	ErrUnsupportedFormat = errors.New("song timing not representable by device")
	ErrInvalidState      = errors.New("invalid transport state")
	ErrNoData            = errors.New("no sample data available")
	ErrUnknownSetting    = errors.New("unknown setting")
	ErrQueueIndex        = errors.New("queue index out of range")
)

// PlayerError wraps errors with additional context
type PlayerError struct {
	Op   string // Operation that failed
	Song string // Song ID or path if applicable
	Err  error  // Underlying error
}

func (e *PlayerError) Error() string {
	if e.Song != "" {
		return fmt.Sprintf("%s failed for song %s: %v", e.Op, e.Song, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError
func NewPlayerError(op, song string, err error) *PlayerError {
	return &PlayerError{Op: op, Song: song, Err: err}
}

// StateError reports an operation attempted in the wrong transport state.
// It always matches ErrInvalidState with errors.Is.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (state %s)", e.Op, ErrInvalidState, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// ScanError represents an error during library scanning
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan error at %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
