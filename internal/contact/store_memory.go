package contact

import (
	"context"
	"sync"

	"consentry/pkg/platform/sentinel"
)

// InMemoryStore keeps contacts in a mutex-guarded map. Used by unit tests and
// single-node development setups.
type InMemoryStore struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contacts: make(map[string]Contact)}
}

func (s *InMemoryStore) Create(_ context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contacts[c.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.contacts[c.ID] = *c
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) Update(_ context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.contacts[c.ID] = *c
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.contacts, id)
	return nil
}
