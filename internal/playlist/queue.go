// Package playlist holds the play queue that drives auto-advance.
package playlist

import (
	"math/rand/v2"
	"sync"

	"github.com/jscyril/golang_midi_player/api"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
)

// Queue is an ordered list of songs with a cursor, repeat mode and an
// optional shuffled order.
type Queue struct {
	songs      []*api.Song
	original   []*api.Song // order before Shuffle, nil when unshuffled
	index      int
	repeatMode api.RepeatMode
	rng        *rand.Rand
	mu         sync.RWMutex
}

// NewQueue creates a new empty queue
func NewQueue() *Queue {
	return &Queue{repeatMode: api.RepeatNone}
}

// WithRand makes shuffling use r.
func (q *Queue) WithRand(r *rand.Rand) *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rng = r
	return q
}

// Add appends songs
func (q *Queue) Add(songs ...*api.Song) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.songs = append(q.songs, songs...)
	if q.original != nil {
		q.original = append(q.original, songs...)
	}
}

// Set replaces the queue and moves the cursor to the first song
func (q *Queue) Set(songs []*api.Song) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.songs = append([]*api.Song(nil), songs...)
	q.original = nil
	q.index = 0
}

// Clear empties the queue
func (q *Queue) Clear() {
	q.Set(nil)
}

// Current returns the song under the cursor, or nil
func (q *Queue) Current() *api.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentLocked()
}

func (q *Queue) currentLocked() *api.Song {
	if q.index < 0 || q.index >= len(q.songs) {
		return nil
	}
	return q.songs[q.index]
}

// Next advances according to the repeat mode. It returns nil at the end
// of a non-repeating queue and leaves the cursor on the last song.
func (q *Queue) Next() *api.Song {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.songs) == 0 {
		return nil
	}

	switch q.repeatMode {
	case api.RepeatOne:
	case api.RepeatAll:
		q.index = (q.index + 1) % len(q.songs)
	default:
		if q.index >= len(q.songs)-1 {
			return nil
		}
		q.index++
	}
	return q.songs[q.index]
}

// Previous steps back. Without repeat it stays on the first song.
func (q *Queue) Previous() *api.Song {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.songs) == 0 {
		return nil
	}

	switch q.repeatMode {
	case api.RepeatOne:
	case api.RepeatAll:
		q.index = (q.index - 1 + len(q.songs)) % len(q.songs)
	default:
		if q.index > 0 {
			q.index--
		}
	}
	return q.songs[q.index]
}

// JumpTo moves the cursor to index
func (q *Queue) JumpTo(index int) (*api.Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.songs) {
		return nil, playerrors.ErrQueueIndex
	}
	q.index = index
	return q.songs[index], nil
}

// Remove drops the song at index, keeping the cursor on the same song
// where possible.
func (q *Queue) Remove(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.songs) {
		return playerrors.ErrQueueIndex
	}

	removed := q.songs[index]
	q.songs = append(q.songs[:index], q.songs[index+1:]...)
	if q.original != nil {
		q.original = without(q.original, removed)
	}

	switch {
	case q.index > index:
		q.index--
	case q.index >= len(q.songs) && len(q.songs) > 0:
		q.index = len(q.songs) - 1
	}
	return nil
}

func without(songs []*api.Song, song *api.Song) []*api.Song {
	for i, s := range songs {
		if s == song {
			return append(songs[:i:i], songs[i+1:]...)
		}
	}
	return songs
}

// Shuffle randomises the order and puts the current song first
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.songs) <= 1 {
		return
	}
	if q.original == nil {
		q.original = append([]*api.Song(nil), q.songs...)
	}

	current := q.currentLocked()
	shuffle := rand.Shuffle
	if q.rng != nil {
		shuffle = q.rng.Shuffle
	}
	shuffle(len(q.songs), func(i, j int) {
		q.songs[i], q.songs[j] = q.songs[j], q.songs[i]
	})

	for i, song := range q.songs {
		if song == current {
			q.songs[0], q.songs[i] = q.songs[i], q.songs[0]
			break
		}
	}
	q.index = 0
}

// Unshuffle restores the order from before Shuffle
func (q *Queue) Unshuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.original == nil {
		return
	}

	current := q.currentLocked()
	q.songs = q.original
	q.original = nil
	q.index = 0
	for i, song := range q.songs {
		if song == current {
			q.index = i
			break
		}
	}
}

// SetRepeatMode sets the repeat mode
func (q *Queue) SetRepeatMode(mode api.RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeatMode = mode
}

// CycleRepeat steps None, All, One and back, returning the new mode
func (q *Queue) CycleRepeat() api.RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeatMode = (q.repeatMode + 1) % 3
	return q.repeatMode
}

// RepeatMode returns the current repeat mode
func (q *Queue) RepeatMode() api.RepeatMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.repeatMode
}

// IsShuffled reports whether the queue is in shuffled order
func (q *Queue) IsShuffled() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.original != nil
}

// All returns a copy of the songs in play order
func (q *Queue) All() []*api.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*api.Song(nil), q.songs...)
}

// Len returns the number of songs
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.songs)
}

// Index returns the cursor position
func (q *Queue) Index() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index
}

// HasNext reports whether Next would return a song
func (q *Queue) HasNext() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.repeatMode != api.RepeatNone {
		return len(q.songs) > 0
	}
	return q.index < len(q.songs)-1
}
