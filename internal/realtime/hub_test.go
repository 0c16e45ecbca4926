package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/observability"
)

func strPtr(s string) *string { return &s }

func TestHubRoutesByCustomerAndAdmin(t *testing.T) {
	hub := NewHub(4, nil, observability.NewMetrics())
	alice := hub.SubscribeCustomer("alice")
	bob := hub.SubscribeCustomer("bob")
	admin := hub.SubscribeAdmin()
	defer hub.Unsubscribe(alice)
	defer hub.Unsubscribe(bob)
	defer hub.Unsubscribe(admin)

	n := hub.Broadcast(events.Event{ID: "e1", Type: events.EventStageChanged, CustomerID: strPtr("alice")})
	assert.Equal(t, 2, n)

	assert.Equal(t, "e1", (<-alice.Events()).ID)
	assert.Equal(t, "e1", (<-admin.Events()).ID)
	select {
	case e := <-bob.Events():
		t.Fatalf("bob received %s", e.ID)
	default:
	}
}

func TestHubGuestEventsReachAdminsOnly(t *testing.T) {
	hub := NewHub(4, nil, nil)
	admin := hub.SubscribeAdmin()
	cust := hub.SubscribeCustomer("c1")

	assert.Equal(t, 1, hub.Broadcast(events.Event{ID: "g", Type: events.EventServiceRequestCreated}))
	assert.Len(t, cust.Events(), 0)
	assert.Len(t, admin.Events(), 1)
}

func TestHubFullBufferDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(1, nil, observability.NewMetrics())
	admin := hub.SubscribeAdmin()

	done := make(chan struct{})
	go func() {
		hub.Broadcast(events.Event{ID: "1", Type: events.EventStageChanged})
		hub.Broadcast(events.Event{ID: "2", Type: events.EventStageChanged})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	assert.Equal(t, "1", (<-admin.Events()).ID)
	assert.Len(t, admin.Events(), 0)
}

func TestHubUnsubscribeReleasesImmediately(t *testing.T) {
	hub := NewHub(2, nil, nil)
	sub := hub.SubscribeCustomer("c1")
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok)
	customers, admins := hub.Counts()
	assert.Zero(t, customers)
	assert.Zero(t, admins)
	assert.Zero(t, hub.Broadcast(events.Event{ID: "x", CustomerID: strPtr("c1")}))
}

func TestHubConcurrentSubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(8, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for ctx.Err() == nil {
			_ = hub.Deliver(ctx, events.Event{Type: events.EventStageChanged, CustomerID: strPtr("c")})
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.SubscribeCustomer("c")
			hub.Unsubscribe(sub)
		}()
	}
	wg.Wait()
	customers, _ := hub.Counts()
	assert.Zero(t, customers)
}

func TestEventCodecRoundTripAndRejectsGarbage(t *testing.T) {
	in := events.Event{ID: "e", Type: events.EventQuoteAccepted, CustomerID: strPtr("c"), OccurredAt: time.Unix(0, 0).UTC()}
	payload, err := encodeEvent(in)
	require.NoError(t, err)
	out, err := decodeEvent(string(payload))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeEvent(`{"id":"e"}`)
	require.Error(t, err)
	_, err = decodeEvent(`not json`)
	require.Error(t, err)
}
