package screening

import (
	"context"
	"sync"
)

// Publisher fans events out to subscribers in publish order.
// A send blocks until the subscriber has room for the event, so a subscriber must keep draining its channel.
type Publisher struct {
	mu          sync.Mutex
	subscribers []chan Event
	closed      bool
}

// NewPublisher ...
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe returns a channel receiving every event published from now on.
// The channel is closed by Close.
func (p *Publisher) Subscribe(buffer int) <-chan Event {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		close(ch)
		return ch
	}
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// Publish delivers event to every subscriber. Delivery stops when ctx is done.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for _, ch := range p.subscribers {
		select {
		case ch <- event:
		case <-ctx.Done():
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.subscribers {
		close(ch)
	}
	p.subscribers = nil
}
