package tracker

import (
	"context"
	"sort"
	"sync"

	"mirakl-orchestrator/internal/entities"
)

// Filter narrows a Query to one order and/or one stage. Zero values match
// everything.
type Filter struct {
	OrderID string
	Stage   entities.Stage
}

// Store is the append-only operations log. Append assigns each event a
// monotonically increasing Seq and must persist all events of one call
// atomically; Query and Snapshot return events in (Timestamp, Seq) order
// and must never observe a partially appended call.
type Store interface {
	Append(ctx context.Context, events ...*entities.OpEvent) error
	Query(ctx context.Context, f Filter) ([]entities.OpEvent, error)
	Snapshot(ctx context.Context) ([]entities.OpEvent, error)
}

// MemoryStore keeps the log in process memory. Used in tests and as the
// default backing when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	events []entities.OpEvent
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, events ...*entities.OpEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.seq++
		ev.Seq = s.seq
		s.events = append(s.events, *ev)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]entities.OpEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.OpEvent, 0, len(s.events))
	for _, ev := range s.events {
		if f.OrderID != "" && ev.OrderID != f.OrderID {
			continue
		}
		if f.Stage != "" && ev.Stage != f.Stage {
			continue
		}
		out = append(out, ev)
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) ([]entities.OpEvent, error) {
	return s.Query(ctx, Filter{})
}

func sortEvents(events []entities.OpEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Seq < events[j].Seq
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
