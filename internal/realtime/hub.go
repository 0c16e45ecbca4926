package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/observability"
)

// Channel names used for metrics and logs.
const (
	ChannelCustomer = "customer"
	ChannelAdmin    = "admin"
)

// Sink receives committed change notifications for fan-out.
type Sink interface {
	Deliver(ctx context.Context, event events.Event) error
}

// Subscriber is one open event stream.
type Subscriber struct {
	ID         string
	Channel    string
	CustomerID string
	ch         chan events.Event
}

// Events returns the delivery channel. It is closed on Unsubscribe.
func (s *Subscriber) Events() <-chan events.Event {
	return s.ch
}

// Hub is the in-process subscriber registry. Delivery is at-most-once:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu        sync.RWMutex
	customers map[string]map[*Subscriber]struct{}
	admins    map[*Subscriber]struct{}
	buffer    int
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewHub builds an empty registry with per-subscriber buffers of the given size.
func NewHub(buffer int, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		customers: make(map[string]map[*Subscriber]struct{}),
		admins:    make(map[*Subscriber]struct{}),
		buffer:    buffer,
		logger:    logger,
		metrics:   metrics,
	}
}

// SubscribeCustomer opens a stream scoped to one customer's requests.
func (h *Hub) SubscribeCustomer(customerID string) *Subscriber {
	sub := h.newSubscriber(ChannelCustomer, customerID)
	h.mu.Lock()
	set, ok := h.customers[customerID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.customers[customerID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberAdded(ChannelCustomer)
	return sub
}

// SubscribeAdmin opens a stream that receives every event.
func (h *Hub) SubscribeAdmin() *Subscriber {
	sub := h.newSubscriber(ChannelAdmin, "")
	h.mu.Lock()
	h.admins[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberAdded(ChannelAdmin)
	return sub
}

func (h *Hub) newSubscriber(channel, customerID string) *Subscriber {
	return &Subscriber{
		ID:         uuid.NewString(),
		Channel:    channel,
		CustomerID: customerID,
		ch:         make(chan events.Event, h.buffer),
	}
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	removed := false
	switch sub.Channel {
	case ChannelAdmin:
		if _, ok := h.admins[sub]; ok {
			delete(h.admins, sub)
			removed = true
		}
	default:
		if set, ok := h.customers[sub.CustomerID]; ok {
			if _, ok := set[sub]; ok {
				delete(set, sub)
				removed = true
			}
			if len(set) == 0 {
				delete(h.customers, sub.CustomerID)
			}
		}
	}
	if removed {
		close(sub.ch)
	}
	h.mu.Unlock()
	if removed {
		h.metrics.SubscriberRemoved(sub.Channel)
	}
}

// Broadcast hands event to the owning customer's streams and to every admin stream.
// It never blocks and returns how many subscribers received it.
func (h *Hub) Broadcast(event events.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	if event.CustomerID != nil {
		for sub := range h.customers[*event.CustomerID] {
			if h.offer(sub, event) {
				delivered++
			}
		}
	}
	for sub := range h.admins {
		if h.offer(sub, event) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) offer(sub *Subscriber, event events.Event) bool {
	select {
	case sub.ch <- event:
		return true
	default:
		h.metrics.RecordDropped("subscriber_full")
		h.logger.Debug("subscriber buffer full",
			zap.String("subscriber_id", sub.ID),
			zap.String("channel", sub.Channel),
			zap.String("event_type", string(event.Type)))
		return false
	}
}

// Deliver implements Sink for single-instance deployments.
func (h *Hub) Deliver(_ context.Context, event events.Event) error {
	h.Broadcast(event)
	return nil
}

// Counts reports open customer and admin subscriptions.
func (h *Hub) Counts() (customers, admins int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.customers {
		customers += len(set)
	}
	return customers, len(h.admins)
}
