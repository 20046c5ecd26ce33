package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/event"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional write matched no row
	ErrConflict = errors.New("concurrent modification")
)

// StageUpdate is a version-checked stage change of one application
type StageUpdate struct {
	ApplicationID   string
	ExpectedVersion int64
	ToStage         string
	// ClearAssignee drops the assignee; otherwise the stored one is kept
	ClearAssignee   bool
	At              time.Time
}

// ApplicationRepository defines persistence operations for Application
type ApplicationRepository interface {
	Create(ctx context.Context, app *entity.Application) error

	// GetByID returns nil, nil when the application does not exist
	GetByID(ctx context.Context, id string) (*entity.Application, error)

	// UpdateStage applies the change only if the stored version still equals
	// ExpectedVersion, bumping it by one; otherwise it returns ErrConflict.
	UpdateStage(ctx context.Context, update StageUpdate) error

	// UpdatePaymentStatus moves payment status from -> to, or returns ErrConflict
	UpdatePaymentStatus(ctx context.Context, id string, from, to entity.PaymentStatus) error

	// Assign sets the assignee if the application is still at expectedVersion
	Assign(ctx context.Context, id string, expectedVersion int64, assignee string) error

	// ListAtStages returns applications whose current stage is one of the
	// given stages for their type, read in one consistent query
	ListAtStages(ctx context.Context, stages map[entity.ApplicationType][]string) ([]*entity.Application, error)
}

// TransitionRepository defines persistence operations for the append-only transition log
type TransitionRepository interface {
	// Append stores a record; a duplicate (application, sequence) returns ErrConflict
	Append(ctx context.Context, record *entity.TransitionRecord) error
	ListByApplication(ctx context.Context, applicationID string) ([]*entity.TransitionRecord, error)
}

// OutboxRepository defines persistence operations for undelivered events
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg *entity.OutboxMessage) error
	ListPending(ctx context.Context, limit int) ([]*entity.OutboxMessage, error)
	MarkDelivered(ctx context.Context, eventID string, at time.Time) error

	// MarkFailed records a failed attempt; the message is parked as FAILED
	// once attempts reach maxAttempts
	MarkFailed(ctx context.Context, eventID, lastError string, maxAttempts int) error
	CountPending(ctx context.Context) (int, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventOutbox hands domain events to the notification pipeline
type EventOutbox interface {
	// Record stores the event; call it inside the transaction that makes
	// the state change so both commit or neither does
	Record(ctx context.Context, evt *event.Event) error

	// Publish attempts delivery after commit. Failures are left for the
	// relay and never reported to the caller.
	Publish(ctx context.Context, evt *event.Event)
}
