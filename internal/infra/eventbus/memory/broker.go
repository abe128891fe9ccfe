// Package memory provides an in-memory implementation of the event bus. It is
// non-persistent and suitable for tests and single-process deployments where a
// broker is not available.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/diffbridge/diffbridge/internal/domain/events"
)

type subscription struct {
	types   map[events.EventType]struct{}
	handler events.HandlerFunc
}

var _ events.EventBus = (*Broker)(nil)

// Broker is an in-memory events.EventBus. Publishing delivers synchronously to
// every live subscriber whose type set matches; there is no buffering or
// redelivery.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscription)}
}

// PublishDomainEvent delivers the event to all matching subscribers, stopping
// at the first handler error.
func (b *Broker) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	if params.Key != "" {
		event.Key = params.Key
	}
	if len(params.Headers) > 0 {
		event.Headers = params.Headers
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("broker is closed")
	}
	// Copy handlers so none run under the lock.
	var handlers []events.HandlerFunc
	for _, sub := range b.subs {
		if _, ok := sub.types[event.Type]; ok {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types. The subscription is
// removed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	types := make(map[events.EventType]struct{}, len(eventTypes))
	for _, et := range eventTypes {
		types[et] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("broker is closed")
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{types: types, handler: handler}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	return nil
}

// Close drops all subscriptions and rejects further publishes.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]*subscription)
	return nil
}
