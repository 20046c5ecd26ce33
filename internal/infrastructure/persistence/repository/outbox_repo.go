package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/infrastructure/persistence/sqlite"
)

// OutboxRepository implements port.OutboxRepository
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new notification outbox repository
func NewOutboxRepository(db *sql.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue stores an event for delivery
func (r *OutboxRepository) Enqueue(ctx context.Context, msg *entity.OutboxMessage) error {
	query := `
		INSERT INTO notification_outbox (
			event_id, application_id, event_type, payload, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	if msg.Status == "" {
		msg.Status = entity.OutboxStatusPending
	}

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		msg.EventID,
		msg.ApplicationID,
		msg.EventType,
		msg.Payload,
		msg.Status,
		msg.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to enqueue event",
			zap.String("event_id", msg.EventID),
			zap.String("event_type", msg.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	return nil
}

// ListPending returns undelivered events, oldest first
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*entity.OutboxMessage, error) {
	query := `
		SELECT event_id, application_id, event_type, payload, status, attempts,
			last_error, created_at, delivered_at
		FROM notification_outbox
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, entity.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to list pending events", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()

	messages := make([]*entity.OutboxMessage, 0)
	for rows.Next() {
		var msg entity.OutboxMessage
		var deliveredAt sql.NullTime
		err := rows.Scan(
			&msg.EventID,
			&msg.ApplicationID,
			&msg.EventType,
			&msg.Payload,
			&msg.Status,
			&msg.Attempts,
			&msg.LastError,
			&msg.CreatedAt,
			&deliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if deliveredAt.Valid {
			msg.DeliveredAt = &deliveredAt.Time
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}

	return messages, nil
}

// MarkDelivered marks an event as delivered. Delivering twice is harmless.
func (r *OutboxRepository) MarkDelivered(ctx context.Context, eventID string, at time.Time) error {
	query := `
		UPDATE notification_outbox
		SET status = ?, delivered_at = ?, attempts = attempts + 1
		WHERE event_id = ? AND status != ?
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entity.OutboxStatusDelivered, at, eventID, entity.OutboxStatusDelivered)
	if err != nil {
		r.logger.Error("Failed to mark event delivered", zap.String("event_id", eventID), zap.Error(err))
		return fmt.Errorf("failed to mark event delivered: %w", err)
	}

	return nil
}

// MarkFailed records a failed delivery attempt
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID, lastError string, maxAttempts int) error {
	query := `
		UPDATE notification_outbox
		SET attempts = attempts + 1,
			last_error = ?,
			status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END
		WHERE event_id = ? AND status = ?
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		lastError, maxAttempts, entity.OutboxStatusFailed, eventID, entity.OutboxStatusPending)
	if err != nil {
		r.logger.Error("Failed to record delivery failure", zap.String("event_id", eventID), zap.Error(err))
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}

	return nil
}

// CountPending returns the number of undelivered events
func (r *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_outbox WHERE status = ?`, entity.OutboxStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return count, nil
}

// Verify interface compliance
var _ port.OutboxRepository = (*OutboxRepository)(nil)
