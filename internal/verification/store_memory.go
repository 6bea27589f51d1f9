package verification

import (
	"context"
	"sort"
	"sync"
	"time"

	"consentry/pkg/platform/sentinel"
)

// InMemoryStore keeps codes in a mutex-guarded map keyed by contact ID.
type InMemoryStore struct {
	mu    sync.RWMutex
	codes map[string][]*Code
	byID  map[string]*Code
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		codes: make(map[string][]*Code),
		byID:  make(map[string]*Code),
	}
}

func (s *InMemoryStore) Create(_ context.Context, code *Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, prior := range s.codes[code.ContactID] {
		if prior.Status == StatusPending && prior.Purpose == code.Purpose && prior.Channel == code.Channel {
			prior.Status = StatusExpired
		}
	}

	stored := *code
	s.codes[code.ContactID] = append(s.codes[code.ContactID], &stored)
	s.byID[code.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindCurrent(_ context.Context, contactID, codeValue string, channel Channel) (*Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*Code
	for _, c := range s.codes[contactID] {
		if c.Status != StatusPending || c.Code != codeValue {
			continue
		}
		if channel != "" && c.Channel != channel {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) == 0 {
		return nil, sentinel.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ExpiresAt.After(matches[j].ExpiresAt)
	})
	found := *matches[0]
	return &found, nil
}

func (s *InMemoryStore) MarkVerified(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	c.ApplyVerified(at)
	return nil
}

func (s *InMemoryStore) MarkExpired(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	c.Status = StatusExpired
	return nil
}
