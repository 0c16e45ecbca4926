package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/service"
)

// StartNotificationWorker registers notification handlers and drains the
// queue in the background until ctx is done.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, queue *events.AsyncDispatcher, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if queue == nil {
		return
	}
	go queue.Run(ctx, func(event events.Event, err error) {
		logger.Warn("notification handler failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	})
}
