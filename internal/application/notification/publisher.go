// Package notification delivers domain events through a transactional outbox.
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/dispatcher"
	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/event"
)

// DefaultMaxAttempts bounds redelivery before a message is parked as FAILED
const DefaultMaxAttempts = 10

// Publisher stores events in the outbox and hands them to the dispatcher.
// It implements port.EventOutbox.
type Publisher struct {
	outbox      port.OutboxRepository
	dispatcher  dispatcher.Dispatcher
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewPublisher creates a new outbox publisher
func NewPublisher(outbox port.OutboxRepository, d dispatcher.Dispatcher, maxAttempts int, logger *zap.Logger) *Publisher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Publisher{
		outbox:      outbox,
		dispatcher:  d,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Record enqueues the event. It joins the caller's transaction when ctx carries one.
func (p *Publisher) Record(ctx context.Context, evt *event.Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", evt.ID, err)
	}

	return p.outbox.Enqueue(ctx, &entity.OutboxMessage{
		EventID:       evt.ID,
		ApplicationID: evt.ApplicationID,
		EventType:     string(evt.Type),
		Payload:       string(payload),
		Status:        entity.OutboxStatusPending,
		CreatedAt:     p.now().UTC(),
	})
}

// Publish delivers a committed event. Failures stay in the outbox for the relay.
func (p *Publisher) Publish(ctx context.Context, evt *event.Event) {
	if err := p.deliver(ctx, evt); err != nil {
		p.logger.Warn("Event delivery deferred to relay",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err))
	}
}

// deliver dispatches one event and records the outcome in the outbox
func (p *Publisher) deliver(ctx context.Context, evt *event.Event) error {
	if dispatchErr := p.dispatcher.Dispatch(ctx, evt); dispatchErr != nil {
		if err := p.outbox.MarkFailed(ctx, evt.ID, dispatchErr.Error(), p.maxAttempts); err != nil {
			p.logger.Error("Failed to record delivery failure",
				zap.String("event_id", evt.ID), zap.Error(err))
		}
		return dispatchErr
	}

	if err := p.outbox.MarkDelivered(ctx, evt.ID, p.now().UTC()); err != nil {
		// Delivered but not marked: the relay will deliver it again
		p.logger.Error("Failed to mark event delivered",
			zap.String("event_id", evt.ID), zap.Error(err))
		return err
	}
	return nil
}

// Verify interface compliance
var _ port.EventOutbox = (*Publisher)(nil)
