package nats

import (
	"context"
	"sync"

	"github.com/prepwise/mock-interview/internal/model"
)

// LocalBus is an in-process Bus used when no NATS server is configured.
// Subscribers only see events published by the same process.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(model.ConversationEvent)
}

var _ Bus = (*LocalBus)(nil)

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]func(model.ConversationEvent))}
}

// Publish delivers the event synchronously to current subscribers.
func (b *LocalBus) Publish(ctx context.Context, event *model.ConversationEvent) error {
	key := ConversationFilter(event.UserID, event.ConversationID)

	b.mu.RLock()
	fns := make([]func(model.ConversationEvent), 0, len(b.subs[key]))
	for _, fn := range b.subs[key] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(*event)
	}
	return nil
}

// Subscribe registers fn until the returned stop func is called.
func (b *LocalBus) Subscribe(ctx context.Context, userID, conversationID string, fn func(model.ConversationEvent)) (func(), error) {
	key := ConversationFilter(userID, conversationID)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]func(model.ConversationEvent))
	}
	b.subs[key][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}, nil
}

// Healthy always succeeds.
func (b *LocalBus) Healthy(ctx context.Context) error {
	return nil
}
