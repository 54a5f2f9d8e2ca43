package library

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/audio"
	"github.com/jscyril/golang_midi_player/internal/gain"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
)

// MetadataReader extracts metadata from music files
type MetadataReader struct{}

// NewMetadataReader creates a new metadata reader
func NewMetadataReader() *MetadataReader {
	return &MetadataReader{}
}

// Read sniffs a file and returns a Song. MIDI-family files are named after
// the file and, for standard MIDI files, timed from the tempo map. Sampled
// audio is described by its tags.
func (r *MetadataReader) Read(filePath string) (*api.Song, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	header := make([]byte, midifile.HeaderSize)
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}

	song := &api.Song{
		ID:         generateSongID(filePath),
		Title:      titleFromPath(filePath),
		FilePath:   filePath,
		Container:  midifile.Identify(header[:n]),
		ReplayGain: 1,
		CreatedAt:  time.Now(),
	}

	if song.Container.IsMidi() {
		if song.Container == api.ContainerMIDI {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewind: %w", err)
			}
			parsed, err := midifile.Load(file)
			if err != nil {
				return nil, err
			}
			song.Duration = parsed.Duration()
		}
		return song, nil
	}

	if !audio.IsDigital(filePath) {
		return nil, fmt.Errorf("%w: %s", playerrors.ErrInvalidFormat, filepath.Base(filePath))
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind: %w", err)
	}

	// Untagged files keep the name taken from the path
	metadata, err := tag.ReadFrom(file)
	if err != nil {
		return song, nil
	}

	song.Title = getOrDefault(metadata.Title(), song.Title)
	song.Artist = getOrDefault(metadata.Artist(), "Unknown Artist")
	song.Album = getOrDefault(metadata.Album(), "Unknown Album")
	song.ReplayGain = gain.FromTags(metadata.Raw())
	return song, nil
}

// ReadCoverArt extracts cover art from an audio file
func (r *MetadataReader) ReadCoverArt(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	if picture := metadata.Picture(); picture != nil {
		return picture.Data, nil
	}

	return nil, nil
}

// generateSongID creates a unique ID for a song based on its file path
func generateSongID(filePath string) string {
	hash := md5.Sum([]byte(filePath))
	return fmt.Sprintf("song-%x", hash[:8])
}

func titleFromPath(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// getOrDefault returns the value if non-empty, otherwise returns the default
func getOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
