package audit

import (
	"context"
	"log/slog"
	"sync"
)

// AsyncPublisher decouples request latency from the sink by draining events
// through a buffered channel on a background goroutine. A full buffer drops
// the event with an error log rather than blocking the request: audit is
// best-effort, consent writes are not allowed to stall behind a slow broker.
type AsyncPublisher struct {
	inner  Publisher
	events chan Event
	logger *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewAsyncPublisher starts the drain worker. Close flushes and stops it.
func NewAsyncPublisher(inner Publisher, bufferSize int, logger *slog.Logger) *AsyncPublisher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	p := &AsyncPublisher{
		inner:   inner,
		events:  make(chan Event, bufferSize),
		logger:  logger,
		stopped: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.drain()
	return p
}

func (p *AsyncPublisher) Emit(_ context.Context, event Event) error {
	event = Stamp(event)
	select {
	case <-p.stopped:
		return nil
	default:
	}
	select {
	case p.events <- event:
		return nil
	default:
		p.logger.Error("audit buffer full, dropping event",
			"action", event.Action,
			"contact_id", event.ContactID,
		)
		return nil
	}
}

func (p *AsyncPublisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopped:
			// Flush whatever is still buffered, then exit.
			for {
				select {
				case event := <-p.events:
					p.publish(event)
				default:
					return
				}
			}
		case event := <-p.events:
			p.publish(event)
		}
	}
}

func (p *AsyncPublisher) publish(event Event) {
	if err := p.inner.Emit(context.Background(), event); err != nil {
		p.logger.Error("failed to publish audit event",
			"action", event.Action,
			"contact_id", event.ContactID,
			"error", err,
		)
	}
}

// Close stops accepting events, flushes the buffer, and waits for the worker.
func (p *AsyncPublisher) Close() {
	p.stopOnce.Do(func() { close(p.stopped) })
	p.wg.Wait()
}
