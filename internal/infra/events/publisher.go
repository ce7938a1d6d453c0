// Package events provides the default ports.Publisher implementation used by
// the CLI: a synchronous fan-out to zero or more subscriber callbacks.
package events

import (
	"sync"

	"github.com/mdl-run/mdl/internal/ports"
)

// Publisher fans a single Event out to every registered subscriber, in
// registration order, on the publishing goroutine.
type Publisher struct {
	mu          sync.Mutex
	subscribers []func(ports.Event)
}

// New creates an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Subscribe registers a callback invoked for every subsequent Publish.
func (p *Publisher) Subscribe(fn func(ports.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// Publish implements ports.Publisher.
func (p *Publisher) Publish(e ports.Event) {
	p.mu.Lock()
	subs := append([]func(ports.Event){}, p.subscribers...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
