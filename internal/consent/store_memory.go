package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"consentry/pkg/platform/sentinel"
)

type naturalKey struct {
	contactID string
	programID string
	channel   Channel
}

// InMemoryStore keeps consent rows in a mutex-guarded map keyed by the natural
// key. Used by unit tests and single-node development setups.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[naturalKey]Consent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[naturalKey]Consent)}
}

func (s *InMemoryStore) Upsert(_ context.Context, c *Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := naturalKey{contactID: c.ContactID, programID: c.ProgramID, channel: c.Channel}
	if existing, ok := s.rows[key]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	s.rows[key] = *c
	return nil
}

func (s *InMemoryStore) FindCurrent(_ context.Context, contactID, programID string, channel Channel) (*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rows[naturalKey{contactID: contactID, programID: programID, channel: channel}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) ListByContact(_ context.Context, contactID string) ([]*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Consent
	for key, c := range s.rows {
		if key.contactID != contactID {
			continue
		}
		row := c
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProgramID != out[j].ProgramID {
			return out[i].ProgramID < out[j].ProgramID
		}
		return out[i].Channel < out[j].Channel
	})
	return out, nil
}

func (s *InMemoryStore) RevokeAllForContact(_ context.Context, contactID string, revokedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for key, c := range s.rows {
		if key.contactID != contactID || c.Status == StatusOptOut {
			continue
		}
		c.ApplyOptOut(revokedAt)
		s.rows[key] = c
		changed++
	}
	return changed, nil
}
