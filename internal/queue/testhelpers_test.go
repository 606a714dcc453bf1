package queue_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/queue"
)

// fakeDLQ is an in-memory stand-in for the Postgres dead-letter table.
type fakeDLQ struct {
	mu      sync.Mutex
	entries []queue.DLQEntry
}

func newFakeDLQ() *fakeDLQ {
	return &fakeDLQ{}
}

func (f *fakeDLQ) InsertDeadLetter(_ context.Context, entry queue.DLQEntry) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	f.entries = append(f.entries, entry)
	return entry.ID, nil
}

func (f *fakeDLQ) DeleteDeadLetter(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, entry := range f.entries {
		if entry.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeDLQ) GetDeadLetter(_ context.Context, id uuid.UUID) (queue.DLQEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return queue.DLQEntry{}, sql.ErrNoRows
}

func (f *fakeDLQ) ListDeadLetters(_ context.Context, kind string, limit, offset int) ([]queue.DLQEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]queue.DLQEntry, 0, len(f.entries))
	for _, entry := range f.entries {
		if kind == "" || entry.Kind == kind {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit <= 0 {
		limit = len(matched)
	}
	if offset >= len(matched) {
		return []queue.DLQEntry{}, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}

func (f *fakeDLQ) CountDeadLetters(_ context.Context, kind string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, entry := range f.entries {
		if kind == "" || entry.Kind == kind {
			total++
		}
	}
	return total, nil
}

func (f *fakeDLQ) DeadLetterSizeByKind(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make(map[string]int64)
	for _, entry := range f.entries {
		sizes[entry.Kind]++
	}
	return sizes, nil
}

func (f *fakeDLQ) all() []queue.DLQEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.DLQEntry, len(f.entries))
	copy(out, f.entries)
	return out
}
