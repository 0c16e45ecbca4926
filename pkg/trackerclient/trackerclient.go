// Package trackerclient consumes the tracker's live change feed. It prefers
// the server-sent event stream and degrades to periodic polling when the
// stream cannot be confirmed or drops.
package trackerclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultConfirmTimeout bounds how long a stream may take to send its connected frame.
	DefaultConfirmTimeout = 5 * time.Second
	// DefaultPollInterval is the refetch cadence once a client has fallen back to polling.
	DefaultPollInterval = 15 * time.Second

	connectedEvent = "connected"
)

// ErrStreamUnconfirmed is returned when the stream did not confirm in time.
var ErrStreamUnconfirmed = errors.New("event stream not confirmed")

// UpdateKind says what an Update carries.
type UpdateKind string

const (
	// UpdateEvent carries one change notification from the stream.
	UpdateEvent UpdateKind = "event"
	// UpdateRefetch asks the consumer to re-read its resources. Poll updates
	// carry the fetched body when a Fetch callback is configured.
	UpdateRefetch UpdateKind = "refetch"
)

// Event is one frame received from the stream.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// Update is what subscribers emit.
type Update struct {
	Kind   UpdateKind
	Source string
	Event  *Event
	Data   json.RawMessage
	Err    error
}

// Subscriber produces updates until ctx is done or the source ends.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Update, error)
}

// StreamSubscriber reads the text/event-stream endpoint.
type StreamSubscriber struct {
	URL            string
	Token          string
	Client         *http.Client
	ConfirmTimeout time.Duration
}

type frame struct {
	id    string
	event string
	data  string
}

// Subscribe opens the stream and waits for the connected frame.
func (s *StreamSubscriber) Subscribe(ctx context.Context) (<-chan Update, error) {
	timeout := s.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	streamCtx, cancel := context.WithCancel(ctx)
	frames := make(chan frame, 16)
	errc := make(chan error, 1)
	go s.read(streamCtx, frames, errc)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f, ok := <-frames:
		if !ok || f.event != connectedEvent {
			cancel()
			select {
			case err := <-errc:
				return nil, fmt.Errorf("%w: %v", ErrStreamUnconfirmed, err)
			default:
				return nil, ErrStreamUnconfirmed
			}
		}
	case <-timer.C:
		cancel()
		return nil, ErrStreamUnconfirmed
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	out := make(chan Update, 16)
	go func() {
		defer close(out)
		defer cancel()
		for f := range frames {
			update := Update{
				Kind:   UpdateEvent,
				Source: "stream",
				Event:  &Event{ID: f.id, Type: f.event, Data: json.RawMessage(f.data)},
			}
			select {
			case out <- update:
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *StreamSubscriber) read(ctx context.Context, frames chan<- frame, errc chan<- error) {
	defer close(frames)
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		errc <- fmt.Errorf("create request: %w", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	resp, err := client.Do(req)
	if err != nil {
		errc <- fmt.Errorf("send request: %w", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		errc <- fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return
	}
	if err := parseFrames(ctx, resp.Body, frames); err != nil && ctx.Err() == nil {
		errc <- err
	}
}

// parseFrames splits an event stream into frames. Comment lines are heartbeats
// and are skipped; multi-line data is joined with newlines.
func parseFrames(ctx context.Context, r io.Reader, frames chan<- frame) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var cur frame
	var data []string
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			if cur.event == "" && len(data) == 0 {
				continue
			}
			if cur.event == "" {
				cur.event = "message"
			}
			cur.data = strings.Join(data, "\n")
			select {
			case frames <- cur:
			case <-ctx.Done():
				return ctx.Err()
			}
			cur, data = frame{}, nil
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				cur.id = value
			case "event":
				cur.event = value
			case "data":
				data = append(data, value)
			}
		}
	}
	return scanner.Err()
}

// PollSubscriber emits a refetch update right away and then every Interval.
type PollSubscriber struct {
	Interval time.Duration
	Fetch    func(ctx context.Context) (json.RawMessage, error)
}

// Subscribe starts the ticker. It never fails.
func (p *PollSubscriber) Subscribe(ctx context.Context) (<-chan Update, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	out := make(chan Update, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			update := Update{Kind: UpdateRefetch, Source: "poll"}
			if p.Fetch != nil {
				update.Data, update.Err = p.Fetch(ctx)
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Connect tries the stream once and falls back to polling. When an
// established stream ends before ctx does, a refetch update is emitted and
// the feed continues on polling. There is no reconnect loop.
func Connect(ctx context.Context, stream, poll Subscriber, logger *zap.Logger) (<-chan Update, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	updates, err := stream.Subscribe(ctx)
	if err != nil {
		logger.Warn("event stream unavailable; polling", zap.Error(err))
		return poll.Subscribe(ctx)
	}

	out := make(chan Update, 16)
	go func() {
		defer close(out)
		if !forward(ctx, updates, out) {
			return
		}
		logger.Warn("event stream lost; polling")
		select {
		case out <- Update{Kind: UpdateRefetch, Source: "stream_lost"}:
		case <-ctx.Done():
			return
		}
		polled, err := poll.Subscribe(ctx)
		if err != nil {
			logger.Error("start polling", zap.Error(err))
			return
		}
		forward(ctx, polled, out)
	}()
	return out, nil
}

// forward copies in to out. It reports true when in closed while ctx was still live.
func forward(ctx context.Context, in <-chan Update, out chan<- Update) bool {
	for {
		select {
		case update, ok := <-in:
			if !ok {
				return ctx.Err() == nil
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}
