package trackerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sseServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, flush func())) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "no flusher", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		handler(w, r, flusher.Flush)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func next(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestStreamSubscriberDeliversEventsAfterConfirm(t *testing.T) {
	var auth atomic.Value
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		auth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		flush()
		fmt.Fprint(w, ": heartbeat\n\n")
		fmt.Fprint(w, "id: e1\nevent: quote.submitted\ndata: {\"stage\":\"awaiting_customer\"}\n\n")
		flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := &StreamSubscriber{URL: srv.URL, Token: "tok", ConfirmTimeout: time.Second}
	updates, err := sub.Subscribe(ctx)
	require.NoError(t, err)

	u := next(t, updates)
	assert.Equal(t, UpdateEvent, u.Kind)
	require.NotNil(t, u.Event)
	assert.Equal(t, "e1", u.Event.ID)
	assert.Equal(t, "quote.submitted", u.Event.Type)
	assert.JSONEq(t, `{"stage":"awaiting_customer"}`, string(u.Event.Data))
	assert.Equal(t, "Bearer tok", auth.Load())
}

func TestStreamSubscriberUnconfirmed(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		<-r.Context().Done()
	})
	sub := &StreamSubscriber{URL: srv.URL, ConfirmTimeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := sub.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrStreamUnconfirmed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStreamSubscriberWrongFirstFrame(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		fmt.Fprint(w, "event: quote.submitted\ndata: {}\n\n")
		flush()
		<-r.Context().Done()
	})
	_, err := (&StreamSubscriber{URL: srv.URL, ConfirmTimeout: time.Second}).Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrStreamUnconfirmed)
}

func TestStreamSubscriberHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := (&StreamSubscriber{URL: srv.URL, ConfirmTimeout: time.Second}).Subscribe(context.Background())
	require.ErrorIs(t, err, ErrStreamUnconfirmed)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestPollSubscriberFetches(t *testing.T) {
	var calls atomic.Int32
	poll := &PollSubscriber{
		Interval: 10 * time.Millisecond,
		Fetch: func(context.Context) (json.RawMessage, error) {
			n := calls.Add(1)
			return json.RawMessage(fmt.Sprintf(`{"n":%d}`, n)), nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	updates, err := poll.Subscribe(ctx)
	require.NoError(t, err)

	first := next(t, updates)
	assert.Equal(t, UpdateRefetch, first.Kind)
	assert.JSONEq(t, `{"n":1}`, string(first.Data))
	second := next(t, updates)
	assert.JSONEq(t, `{"n":2}`, string(second.Data))

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestConnectFallsBackToPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := Connect(ctx,
		&StreamSubscriber{URL: srv.URL, ConfirmTimeout: time.Second},
		&PollSubscriber{Interval: 10 * time.Millisecond},
		zap.NewNop())
	require.NoError(t, err)

	u := next(t, updates)
	assert.Equal(t, UpdateRefetch, u.Kind)
	assert.Equal(t, "poll", u.Source)
}

func TestConnectSwitchesToPollingWhenStreamDrops(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		fmt.Fprint(w, "id: e1\nevent: service_request.stage_changed\ndata: {}\n\n")
		flush()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := Connect(ctx,
		&StreamSubscriber{URL: srv.URL, ConfirmTimeout: time.Second},
		&PollSubscriber{Interval: 10 * time.Millisecond},
		zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, UpdateEvent, next(t, updates).Kind)
	lost := next(t, updates)
	assert.Equal(t, UpdateRefetch, lost.Kind)
	assert.Equal(t, "stream_lost", lost.Source)
	assert.Equal(t, "poll", next(t, updates).Source)
}

func TestParseFramesJoinsDataAndDefaultsName(t *testing.T) {
	input := "data: line one\r\ndata: line two\r\n\r\n: comment\n\nid: 7\nevent: x\ndata:{}\n\n"
	frames := make(chan frame, 4)
	require.NoError(t, parseFrames(context.Background(), strings.NewReader(input), frames))
	close(frames)

	var got []frame
	for f := range frames {
		got = append(got, f)
	}
	require.Len(t, got, 2)
	assert.Equal(t, frame{event: "message", data: "line one\nline two"}, got[0])
	assert.Equal(t, frame{id: "7", event: "x", data: "{}"}, got[1])
}
