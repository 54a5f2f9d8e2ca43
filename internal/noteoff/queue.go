// Package noteoff schedules automatic note releases for songs whose
// note-on events carry a duration instead of a matching note-off.
package noteoff

// PendingNoteOff is a note waiting to be released. Delay is the number of
// ticks left before release; zero or below means the release is due.
type PendingNoteOff struct {
	Delay   int64
	Channel uint8
	Key     uint8
}

// Queue is a binary min-heap of pending note-offs keyed on remaining delay.
// The zero value is ready to use. A Queue is not safe for concurrent use.
type Queue struct {
	items []PendingNoteOff
}

// NewQueue returns a queue with room for capacity notes before growing.
func NewQueue(capacity int) *Queue {
	return &Queue{items: make([]PendingNoteOff, 0, capacity)}
}

// Schedule adds a release for key on channel after delay ticks.
// Duplicate channel/key pairs are allowed.
func (q *Queue) Schedule(delay uint32, channel, key uint8) {
	q.items = append(q.items, PendingNoteOff{
		Delay:   int64(delay),
		Channel: channel & 0x0f,
		Key:     key & 0x7f,
	})
	q.siftUp(len(q.items) - 1)
}

// Advance moves time forward by elapsed ticks. Entries are never removed
// here; subtracting the same amount from every key keeps the heap ordered.
func (q *Queue) Advance(elapsed uint32) {
	if elapsed == 0 {
		return
	}
	for i := range q.items {
		q.items[i].Delay -= int64(elapsed)
	}
}

// PopDue removes and returns the note with the smallest remaining delay if
// it is due. Order among equal delays is unspecified.
func (q *Queue) PopDue() (PendingNoteOff, bool) {
	if len(q.items) == 0 || q.items[0].Delay > 0 {
		return PendingNoteOff{}, false
	}
	top := q.items[0]
	last := len(q.items) - 1
	q.items[0] = q.items[last]
	q.items = q.items[:last]
	if last > 0 {
		q.siftDown(0)
	}
	return top, true
}

// Peek returns the note that will be released next without removing it.
func (q *Queue) Peek() (PendingNoteOff, bool) {
	if len(q.items) == 0 {
		return PendingNoteOff{}, false
	}
	return q.items[0], true
}

// Len returns the number of pending releases.
func (q *Queue) Len() int {
	return len(q.items)
}

// Clear discards every pending release.
func (q *Queue) Clear() {
	q.items = q.items[:0]
}

func parent(i int) int { return (i+1)/2 - 1 }
func left(i int) int   { return (i+1)*2 - 1 }
func right(i int) int  { return (i + 1) * 2 }

func (q *Queue) siftUp(i int) {
	for i > 0 {
		p := parent(i)
		if q.items[p].Delay <= q.items[i].Delay {
			return
		}
		q.items[p], q.items[i] = q.items[i], q.items[p]
		i = p
	}
}

func (q *Queue) siftDown(i int) {
	n := len(q.items)
	for {
		smallest := i
		if l := left(i); l < n && q.items[l].Delay < q.items[smallest].Delay {
			smallest = l
		}
		if r := right(i); r < n && q.items[r].Delay < q.items[smallest].Delay {
			smallest = r
		}
		if smallest == i {
			return
		}
		q.items[i], q.items[smallest] = q.items[smallest], q.items[i]
		i = smallest
	}
}
