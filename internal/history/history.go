// Package history keeps the append-only log of executed jobs.
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry records one executed job. Entries are never mutated; a resubmitted
// identical query produces a new entry.
type Entry struct {
	JobID       string    `json:"jobId"`
	QueryText   string    `json:"query"`
	TargetCount int       `json:"targetCount"`
	Overall     string    `json:"overallStatus"`
	SubmittedAt time.Time `json:"submittedAt"`
	Seq         uint64    `json:"seq"`
}

// NotFoundError indicates an unknown job id.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("history entry for job %q not found", e.JobID)
}

// Store is the history log. List returns entries in reverse submission order
// (by Seq), independent of the order jobs completed in. MaxSeq reports the
// highest Seq ever appended (0 for an empty log) so a restarted process can
// continue the sequence instead of reusing persisted values.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, limit, offset int) ([]Entry, error)
	Find(ctx context.Context, jobID string) (*Entry, error)
	Clear(ctx context.Context) error
	MaxSeq(ctx context.Context) (uint64, error)
}

// MemoryStore keeps entries in memory, capped at maxEntries (oldest evicted
// first). Jobs complete concurrently, so access is mutex-guarded even though
// a single consumer per job performs each append.
type MemoryStore struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 50
	}
	return &MemoryStore{maxEntries: maxEntries}
}

// Append inserts the entry at its submission-sequence position. Entries arrive
// in completion order, so the insertion point is almost always the end.
func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Seq > entry.Seq
	})
	s.entries = append(s.entries, Entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry

	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = len(s.entries)
	}

	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *MemoryStore) Find(_ context.Context, jobID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].JobID == jobID {
			entry := s.entries[i]
			return &entry, nil
		}
	}
	return nil, &NotFoundError{JobID: jobID}
}

func (s *MemoryStore) MaxSeq(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, nil
	}
	// Entries are kept sorted by Seq, so the last one carries the maximum.
	return s.entries[len(s.entries)-1].Seq, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
