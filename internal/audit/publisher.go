package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher is the sink for audit events. Emit is append-only; implementations
// must not mutate the event.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Stamp fills server-assigned fields callers usually leave zero.
func Stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

// InMemoryPublisher records events for tests and for deployments without a
// broker.
type InMemoryPublisher struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Stamp(event))
	return nil
}

// ListByContact returns recorded events for one contact, oldest first.
func (p *InMemoryPublisher) ListByContact(contactID string) []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Event
	for _, e := range p.events {
		if e.ContactID == contactID {
			out = append(out, e)
		}
	}
	return out
}
