// Package reconcile records provider identities left without a local
// profile after a failed signup, and relays them to a reconciliation topic.
package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"parkspot/pkg/platform/sentinel"
)

// Orphan is a provider identity whose local profile write failed.
type Orphan struct {
	ID             string    `json:"id"`
	ProviderUserID string    `json:"provider_user_id"`
	Email          string    `json:"email"`
	Reason         string    `json:"reason"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Store is an outbox: Append is durable before the signup responds, and the
// relay publishes and marks entries later.
type Store interface {
	Append(ctx context.Context, orphan Orphan) error
	Pending(ctx context.Context, limit int) ([]Orphan, error)
	MarkPublished(ctx context.Context, id string) error
}

type InMemoryStore struct {
	mu        sync.Mutex
	orphans   map[string]Orphan
	published map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orphans:   make(map[string]Orphan),
		published: make(map[string]time.Time),
	}
}

func (s *InMemoryStore) Append(_ context.Context, orphan Orphan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orphans[orphan.ID] = orphan
	return nil
}

// Pending returns unpublished orphans, oldest first.
func (s *InMemoryStore) Pending(_ context.Context, limit int) ([]Orphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Orphan, 0, len(s.orphans))
	for id, o := range s.orphans {
		if _, done := s.published[id]; !done {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orphans[id]; !ok {
		return sentinel.ErrNotFound
	}
	s.published[id] = time.Now()
	return nil
}

// All returns every recorded orphan regardless of publish state.
func (s *InMemoryStore) All() []Orphan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Orphan, 0, len(s.orphans))
	for _, o := range s.orphans {
		out = append(out, o)
	}
	return out
}
