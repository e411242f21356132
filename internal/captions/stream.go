package captions

import (
	"sync"

	"earinterp/internal/domain"
)

// MaxEntries bounds the caption log.
const MaxEntries = 200

// Stream keeps the most recent captions, newest first.
type Stream struct {
	mu      sync.Mutex
	entries []domain.Caption
}

func NewStream() *Stream {
	return &Stream{entries: make([]domain.Caption, 0, MaxEntries)}
}

// Append puts caption at the front, evicts past MaxEntries and returns a copy of the log.
func (s *Stream) Append(caption domain.Caption) []domain.Caption {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) < MaxEntries {
		s.entries = append(s.entries, domain.Caption{})
	}
	copy(s.entries[1:], s.entries[:len(s.entries)-1])
	s.entries[0] = caption

	return s.snapshotLocked()
}

// Snapshot returns a copy of the log.
func (s *Stream) Snapshot() []domain.Caption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Stream) snapshotLocked() []domain.Caption {
	out := make([]domain.Caption, len(s.entries))
	copy(out, s.entries)
	return out
}
