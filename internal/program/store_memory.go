package program

import (
	"context"
	"sort"
	"sync"

	"consentry/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	programs map[string]Program
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{programs: make(map[string]Program)}
}

func (s *InMemoryStore) Create(_ context.Context, p *Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.programs[p.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.programs[p.ID] = *p
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemoryStore) Update(_ context.Context, p *Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.programs[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.programs[p.ID] = *p
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Program, 0, len(s.programs))
	for _, p := range s.programs {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
