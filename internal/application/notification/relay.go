package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/event"
	"github.com/garyjia/agency-workflow/internal/metrics"
)

// DefaultBatchSize is the number of pending messages read per relay pass
const DefaultBatchSize = 100

// Relay redelivers outbox messages that were not delivered after commit
type Relay struct {
	outbox    port.OutboxRepository
	publisher *Publisher
	batchSize int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewRelay creates a relay over the publisher's outbox
func NewRelay(outbox port.OutboxRepository, publisher *Publisher, batchSize int, m *metrics.Metrics, logger *zap.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

// RunOnce delivers one batch of pending messages, oldest first, and
// returns how many were delivered
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending events: %w", err)
	}

	delivered := 0
	for _, msg := range pending {
		if ctx.Err() != nil {
			break
		}

		evt, err := event.Decode([]byte(msg.Payload))
		if err != nil {
			r.logger.Error("Parking undecodable event",
				zap.String("event_id", msg.EventID), zap.Error(err))
			if markErr := r.outbox.MarkFailed(ctx, msg.EventID, err.Error(), 1); markErr != nil {
				r.logger.Error("Failed to park event", zap.String("event_id", msg.EventID), zap.Error(markErr))
			}
			continue
		}

		if err := r.publisher.deliver(ctx, evt); err != nil {
			r.logger.Warn("Redelivery failed",
				zap.String("event_id", msg.EventID),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			continue
		}
		delivered++
	}

	backlog, err := r.outbox.CountPending(ctx)
	if err != nil {
		r.logger.Warn("Failed to count outbox backlog", zap.Error(err))
	} else {
		r.metrics.SetOutboxBacklog(backlog)
	}

	if delivered > 0 {
		r.logger.Info("Relayed pending events", zap.Int("delivered", delivered), zap.Int("backlog", backlog))
	}
	return delivered, nil
}
