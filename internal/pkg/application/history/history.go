package history

import "github.com/diwise/monitoring-gasdetector/domain"

const DefaultCapacity = 1000

// Store is a size-bounded, ordered collection of accepted readings.
// Insertion order reflects arrival order of accepted readings, never
// server time order. It is not safe for concurrent use; the owning
// session serializes access.
type Store struct {
	buf  []domain.Reading
	head int
	size int
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Store{
		buf: make([]domain.Reading, capacity),
	}
}

// Append records a reading as the newest entry, evicting the oldest
// entry when the store is at capacity.
func (s *Store) Append(r domain.Reading) {
	if s.size == len(s.buf) {
		s.buf[s.head] = r
		s.head = (s.head + 1) % len(s.buf)
		return
	}

	s.buf[(s.head+s.size)%len(s.buf)] = r
	s.size++
}

func (s *Store) Clear() {
	s.head = 0
	s.size = 0
}

func (s *Store) Len() int {
	return s.size
}

func (s *Store) Latest() (domain.Reading, bool) {
	if s.size == 0 {
		return domain.Reading{}, false
	}

	return s.buf[(s.head+s.size-1)%len(s.buf)], true
}

// Snapshot returns a newest-first copy, the order the live table wants.
func (s *Store) Snapshot() []domain.Reading {
	out := make([]domain.Reading, s.size)

	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+s.size-1-i)%len(s.buf)]
	}

	return out
}

// SnapshotOldestFirst returns an oldest-first copy, the order the
// graph wants.
func (s *Store) SnapshotOldestFirst() []domain.Reading {
	out := make([]domain.Reading, s.size)

	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}

	return out
}
