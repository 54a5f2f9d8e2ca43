package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jscyril/golang_midi_player/api"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
)

// Library represents the entire music collection
type Library struct {
	Songs       map[string]*api.Song `json:"songs"`
	ScanPaths   []string             `json:"scan_paths"`
	LastScanned time.Time            `json:"last_scanned"`
	TotalSongs  int                  `json:"total_songs"`

	// Secondary indices for efficient queries
	artistIndex    map[string][]string
	albumIndex     map[string][]string
	containerIndex map[api.ContainerType][]string

	mu      sync.RWMutex
	scanner *Scanner
}

// ScanResult summarises one Scan call.
type ScanResult struct {
	Added  int
	Errors []error
}

// NewLibrary creates a new empty library scanning with the given worker count
func NewLibrary(workers int) *Library {
	l := &Library{
		Songs:   make(map[string]*api.Song),
		scanner: NewScanner(workers),
	}
	l.resetIndices()
	return l
}

func (l *Library) resetIndices() {
	l.artistIndex = make(map[string][]string)
	l.albumIndex = make(map[string][]string)
	l.containerIndex = make(map[api.ContainerType][]string)
}

// AddSong adds a song to the library and updates indices. A song already
// known under the same ID is replaced.
func (l *Library) AddSong(song *api.Song) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.Songs[song.ID]; ok {
		l.unindex(old)
	}
	l.Songs[song.ID] = song
	l.TotalSongs = len(l.Songs)
	l.index(song)
}

func (l *Library) index(song *api.Song) {
	if song.Artist != "" {
		l.artistIndex[song.Artist] = append(l.artistIndex[song.Artist], song.ID)
	}
	if song.Album != "" {
		l.albumIndex[song.Album] = append(l.albumIndex[song.Album], song.ID)
	}
	l.containerIndex[song.Container] = append(l.containerIndex[song.Container], song.ID)
}

func (l *Library) unindex(song *api.Song) {
	removeFromIndex(l.artistIndex, song.Artist, song.ID)
	removeFromIndex(l.albumIndex, song.Album, song.ID)
	removeFromIndex(l.containerIndex, song.Container, song.ID)
}

// GetSong returns a song by ID
func (l *Library) GetSong(id string) (*api.Song, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	song, exists := l.Songs[id]
	if !exists {
		return nil, playerrors.ErrSongNotFound
	}
	return song, nil
}

// GetAllSongs returns all songs sorted by artist, album and title
func (l *Library) GetAllSongs() []*api.Song {
	l.mu.RLock()
	defer l.mu.RUnlock()

	songs := make([]*api.Song, 0, len(l.Songs))
	for _, song := range l.Songs {
		songs = append(songs, song)
	}

	sort.Slice(songs, func(i, j int) bool {
		if songs[i].Artist != songs[j].Artist {
			return songs[i].Artist < songs[j].Artist
		}
		if songs[i].Album != songs[j].Album {
			return songs[i].Album < songs[j].Album
		}
		return songs[i].Title < songs[j].Title
	})

	return songs
}

// GetSongsByArtist returns all songs by a specific artist
func (l *Library) GetSongsByArtist(artist string) []*api.Song {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookup(l.artistIndex[artist])
}

// GetSongsByAlbum returns all songs from a specific album
func (l *Library) GetSongsByAlbum(album string) []*api.Song {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookup(l.albumIndex[album])
}

// GetSongsByContainer returns all songs sniffed as the given container
func (l *Library) GetSongsByContainer(kind api.ContainerType) []*api.Song {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookup(l.containerIndex[kind])
}

func (l *Library) lookup(ids []string) []*api.Song {
	if len(ids) == 0 {
		return nil
	}
	songs := make([]*api.Song, 0, len(ids))
	for _, id := range ids {
		if song, ok := l.Songs[id]; ok {
			songs = append(songs, song)
		}
	}
	return songs
}

// GetArtists returns all unique artists
func (l *Library) GetArtists() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedKeys(l.artistIndex)
}

// GetAlbums returns all unique albums
func (l *Library) GetAlbums() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedKeys(l.albumIndex)
}

func sortedKeys(index map[string][]string) []string {
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Search matches title, artist and album. Title matches sort first.
func (l *Library) Search(query string) []*api.Song {
	l.mu.RLock()
	defer l.mu.RUnlock()

	query = strings.ToLower(query)
	results := make([]*api.Song, 0, 10)

	for _, song := range l.Songs {
		titleMatch := strings.Contains(strings.ToLower(song.Title), query)
		artistMatch := strings.Contains(strings.ToLower(song.Artist), query)
		albumMatch := strings.Contains(strings.ToLower(song.Album), query)

		if titleMatch || artistMatch || albumMatch {
			results = append(results, song)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		iTitle := strings.Contains(strings.ToLower(results[i].Title), query)
		jTitle := strings.Contains(strings.ToLower(results[j].Title), query)
		if iTitle != jTitle {
			return iTitle
		}
		return results[i].Title < results[j].Title
	})

	return results
}

// RemoveSong removes a song from the library
func (l *Library) RemoveSong(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	song, exists := l.Songs[id]
	if !exists {
		return playerrors.ErrSongNotFound
	}

	l.unindex(song)
	delete(l.Songs, id)
	l.TotalSongs = len(l.Songs)
	return nil
}

func removeFromIndex[K comparable](index map[K][]string, key K, songID string) {
	ids, ok := index[key]
	if !ok {
		return
	}
	for i, id := range ids {
		if id == songID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(index, key)
		return
	}
	index[key] = ids
}

// Scan walks paths and adds every readable song. Files that fail are
// reported in the result; the returned error is only set when ctx ends
// the scan early.
func (l *Library) Scan(ctx context.Context, paths []string) (ScanResult, error) {
	l.mu.Lock()
	l.ScanPaths = paths
	l.mu.Unlock()

	songs, errs := l.scanner.Scan(ctx, paths)

	var result ScanResult
	for songs != nil || errs != nil {
		select {
		case song, ok := <-songs:
			if !ok {
				songs = nil
				continue
			}
			l.AddSong(song)
			result.Added++
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			result.Errors = append(result.Errors, err)
		}
	}

	l.mu.Lock()
	l.LastScanned = time.Now()
	l.mu.Unlock()

	return result, ctx.Err()
}

// Clear removes all songs from the library
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Songs = make(map[string]*api.Song)
	l.resetIndices()
	l.TotalSongs = 0
}

// Save persists the library to a JSON file
func (l *Library) Save(path string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal library: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write library file: %w", err)
	}

	return nil
}

// LoadLibrary loads a library from a JSON file (or returns empty if not exists)
func LoadLibrary(path string, workers int) (*Library, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewLibrary(workers), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read library file: %w", err)
	}

	lib := NewLibrary(workers)
	if err := json.Unmarshal(data, lib); err != nil {
		return nil, fmt.Errorf("unmarshal library: %w", err)
	}
	if lib.Songs == nil {
		lib.Songs = make(map[string]*api.Song)
	}

	lib.rebuildIndices()
	return lib, nil
}

// rebuildIndices rebuilds the secondary indices from the songs map
func (l *Library) rebuildIndices() {
	l.resetIndices()
	for _, song := range l.Songs {
		l.index(song)
	}
	l.TotalSongs = len(l.Songs)
}

// AddFile adds a single file from any location to the library
func (l *Library) AddFile(filePath string) (*api.Song, error) {
	song, err := l.scanner.ScanFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	l.AddSong(song)
	return song, nil
}
