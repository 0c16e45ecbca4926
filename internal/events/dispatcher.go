package events

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned when an asynchronous publish had to drop the event.
var ErrQueueFull = errors.New("events: queue full")

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish synchronously invokes handlers for the given event.
// Every handler runs; the first handler error is returned.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// AsyncDispatcher queues events and hands them to an inner dispatcher from Run.
// Publish never blocks: when the queue is full the event is dropped.
type AsyncDispatcher struct {
	inner  Dispatcher
	queue  chan Event
	onDrop func(Event)
}

// NewAsyncDispatcher wraps inner with a queue of the given size.
func NewAsyncDispatcher(inner Dispatcher, size int, onDrop func(Event)) *AsyncDispatcher {
	if size <= 0 {
		size = 1
	}
	return &AsyncDispatcher{inner: inner, queue: make(chan Event, size), onDrop: onDrop}
}

// Publish enqueues event or drops it.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	select {
	case d.queue <- event:
		return nil
	default:
		if d.onDrop != nil {
			d.onDrop(event)
		}
		return ErrQueueFull
	}
}

// Subscribe registers handler on the inner dispatcher.
func (d *AsyncDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.inner.Subscribe(eventType, handler)
}

// Run drains the queue until ctx is done. errFn, when set, sees handler errors.
func (d *AsyncDispatcher) Run(ctx context.Context, errFn func(Event, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			if err := d.inner.Publish(ctx, event); err != nil && errFn != nil {
				errFn(event, err)
			}
		}
	}
}

// Pending reports how many events are waiting.
func (d *AsyncDispatcher) Pending() int {
	return len(d.queue)
}
