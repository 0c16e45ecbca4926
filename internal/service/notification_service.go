package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/realtime"
)

// NotificationService fans committed changes out to live subscribers.
type NotificationService struct {
	dispatcher events.Dispatcher
	sink       realtime.Sink
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sink realtime.Sink, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.forward)
	}
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	n.logger.Info("notification",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("service_request_id", event.ServiceRequestID),
		zap.String("stage", event.Stage))
	if n.sink == nil {
		return nil
	}
	if err := n.sink.Deliver(ctx, event); err != nil {
		n.logger.Warn("deliver notification", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}
	return nil
}
