package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/dispatcher"
	"github.com/garyjia/agency-workflow/internal/domain/event"
)

// LogSinkName is the dispatcher name of the log sink
const LogSinkName = "log"

// NewLogSink returns a handler that writes every event to the structured log
func NewLogSink(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		logger.Info("Domain event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("application_id", evt.ApplicationID),
			zap.String("from", evt.GetPayloadString(event.KeyFromStage)),
			zap.String("to", evt.GetPayloadString(event.KeyToStage)),
			zap.String("actor_id", evt.GetPayloadString(event.KeyActorID)),
			zap.Time("timestamp", evt.Timestamp))
		return nil
	}
}
