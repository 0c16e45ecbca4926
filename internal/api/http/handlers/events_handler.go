package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/realtime"
)

const heartbeatFrame = ": heartbeat\n\n"

// EventsHandler streams change notifications as text/event-stream.
type EventsHandler struct {
	hub       *realtime.Hub
	heartbeat time.Duration
	logger    *zap.Logger
	done      <-chan struct{}
}

// NewEventsHandler constructs handler. Open streams end when done is closed.
func NewEventsHandler(hub *realtime.Hub, heartbeat time.Duration, done <-chan struct{}, logger *zap.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{hub: hub, heartbeat: heartbeat, logger: logger, done: done}
}

// CustomerStream GET /customer/events.
func (h *EventsHandler) CustomerStream(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	return h.stream(c, h.hub.SubscribeCustomer(actor.CustomerID))
}

// AdminStream GET /admin/events.
func (h *EventsHandler) AdminStream(c *fiber.Ctx) error {
	if _, err := staffActor(c); err != nil {
		return err
	}
	return h.stream(c, h.hub.SubscribeAdmin())
}

func (h *EventsHandler) stream(c *fiber.Ctx, sub *realtime.Subscriber) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(sub)
		h.logger.Info("event stream opened", zap.String("subscriber_id", sub.ID), zap.String("channel", sub.Channel))
		h.pump(w, sub)
		h.logger.Info("event stream closed", zap.String("subscriber_id", sub.ID), zap.String("channel", sub.Channel))
	}))
	return nil
}

// pump writes the connected frame, then events and heartbeats until the
// client goes away, the subscriber is released, or the server shuts down.
func (h *EventsHandler) pump(w *bufio.Writer, sub *realtime.Subscriber) {
	if err := writeFrame(w, "", "connected", fiber.Map{"subscriber_id": sub.ID}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			if _, err := w.WriteString(heartbeatFrame); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeFrame(w, event.ID, string(event.Type), event); err != nil {
				h.logger.Debug("event stream write failed", zap.String("subscriber_id", sub.ID), zap.Error(err))
				return
			}
		}
	}
}

func writeFrame(w *bufio.Writer, id, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
