package memory

import (
	"context"
	"fmt"
	"sync"

	"winterstorm/internal/core"
	ports "winterstorm/internal/sheets"
)

var (
	_ ports.TimelineExporter = (*Store)(nil)
	_ ports.TimelineLister   = (*Store)(nil)
)

// Store keeps exported timelines in process memory.
type Store struct {
	mu    sync.Mutex
	items []core.Timeline
}

func New() *Store {
	return &Store{}
}

// ExportTimeline stores the timeline and returns a synthetic reference.
func (s *Store) ExportTimeline(_ context.Context, t core.Timeline) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = append([]string(nil), r...)
	}
	t.Rows = rows
	t.SheetName = t.Sheet()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// ListTimelines returns the stored timelines in export order.
func (s *Store) ListTimelines(_ context.Context) ([]core.Timeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Timeline(nil), s.items...), nil
}

// Len returns how many timelines were exported.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
