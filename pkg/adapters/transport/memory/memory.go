package memory

import (
	"context"
	"sync"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// Bus implements ports.MessageBus with in-process handler fan-out.
// Used by tests and by agents embedded in the orchestrator process.
type Bus struct {
	subscribers map[string][]ports.MessageHandler
	mu          sync.RWMutex
}

// NewBus creates a new in-memory message bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]ports.MessageHandler)}
}

// Publish delivers the message to every subscriber of the topic. Delivery is
// asynchronous, matching the at-least-once, unordered semantics of the real
// transports.
func (b *Bus) Publish(ctx context.Context, topic string, msg *domain.Message) error {
	b.mu.RLock()
	handlers := make([]ports.MessageHandler, len(b.subscribers[topic]))
	copy(handlers, b.subscribers[topic])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h ports.MessageHandler) {
			// Handler errors are the handler's problem; a bus does not
			// retry in-process deliveries.
			_ = h(ctx, msg)
		}(handler)
	}
	return nil
}

// Subscribe registers a handler for a topic until the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.MessageHandler) error {
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
	b.mu.Unlock()
	return nil
}

// Close drops all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]ports.MessageHandler)
	return nil
}
