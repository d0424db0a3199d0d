// Package identity persists identities. Email uniqueness is enforced by the
// store itself and reported as sentinel.ErrConflict.
package identity

import (
	"context"
	"fmt"
	"sync"

	"parkspot/internal/auth/models"
	"parkspot/pkg/platform/sentinel"
)

// InMemoryStore is the development and test store. The email index is
// checked and written under the same lock as the insert.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Identity
	byEmail map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]*models.Identity),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryStore) Create(_ context.Context, identity *models.Identity) error {
	key := models.NormalizeEmail(identity.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[key]; exists {
		return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
	}
	if _, exists := s.byID[identity.ID]; exists {
		return fmt.Errorf("identity id already used: %w", sentinel.ErrConflict)
	}
	stored := *identity
	s.byID[identity.ID] = &stored
	s.byEmail[key] = identity.ID
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *s.byID[id]
	return &found, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *identity
	return &found, nil
}

// Count is used by tests asserting that failed registrations write nothing.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
