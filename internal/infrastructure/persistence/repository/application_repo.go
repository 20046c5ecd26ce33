package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/infrastructure/persistence/sqlite"
)

const applicationColumns = `id, type, current_stage, submitted_by, payment_status,
			assigned_to, version, created_at, last_transition_at`

// ApplicationRepository implements port.ApplicationRepository
type ApplicationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *sql.DB, logger *zap.Logger) port.ApplicationRepository {
	return &ApplicationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new application
func (r *ApplicationRepository) Create(ctx context.Context, app *entity.Application) error {
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		app.ID,
		app.Type,
		app.CurrentStage,
		app.SubmittedBy,
		app.PaymentStatus,
		app.AssignedTo,
		app.Version,
		app.CreatedAt,
		app.LastTransitionAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: application %s already exists", port.ErrConflict, app.ID)
		}
		r.logger.Error("Failed to create application", zap.String("id", app.ID), zap.Error(err))
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

// GetByID retrieves an application by ID
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*entity.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE id = ?
	`

	app, err := scanApplication(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get application by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	return app, nil
}

// UpdateStage moves an application to a new stage if its version is unchanged
func (r *ApplicationRepository) UpdateStage(ctx context.Context, u port.StageUpdate) error {
	query := `
		UPDATE applications
		SET current_stage = ?,
			assigned_to = CASE WHEN ? THEN '' ELSE assigned_to END,
			last_transition_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		u.ToStage, u.ClearAssignee, u.At, u.ApplicationID, u.ExpectedVersion)
	if err != nil {
		r.logger.Error("Failed to update stage",
			zap.String("id", u.ApplicationID),
			zap.String("to_stage", u.ToStage),
			zap.Error(err))
		return fmt.Errorf("failed to update stage: %w", err)
	}

	return expectOneRow(result, fmt.Sprintf("application %s at version %d", u.ApplicationID, u.ExpectedVersion))
}

// UpdatePaymentStatus moves the payment status if it still equals from
func (r *ApplicationRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to entity.PaymentStatus) error {
	query := `UPDATE applications SET payment_status = ? WHERE id = ? AND payment_status = ?`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, to, id, from)
	if err != nil {
		r.logger.Error("Failed to update payment status", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	return expectOneRow(result, fmt.Sprintf("application %s with payment %s", id, from))
}

// Assign sets the assignee if the application has not moved since it was read
func (r *ApplicationRepository) Assign(ctx context.Context, id string, expectedVersion int64, assignee string) error {
	query := `UPDATE applications SET assigned_to = ? WHERE id = ? AND version = ?`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, assignee, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to assign application", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to assign application: %w", err)
	}

	return expectOneRow(result, fmt.Sprintf("application %s at version %d", id, expectedVersion))
}

// ListAtStages returns every application sitting at one of the given stages
func (r *ApplicationRepository) ListAtStages(ctx context.Context, stages map[entity.ApplicationType][]string) ([]*entity.Application, error) {
	var clauses []string
	var args []interface{}
	for appType, ids := range stages {
		if len(ids) == 0 {
			continue
		}
		clauses = append(clauses, "(type = ? AND current_stage IN (?"+strings.Repeat(", ?", len(ids)-1)+"))")
		args = append(args, appType)
		for _, id := range ids {
			args = append(args, id)
		}
	}
	if len(clauses) == 0 {
		return []*entity.Application{}, nil
	}

	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE ` + strings.Join(clauses, " OR ") + `
		ORDER BY last_transition_at ASC, id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list applications by stage", zap.Error(err))
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*entity.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}

	return apps, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*entity.Application, error) {
	var app entity.Application
	err := row.Scan(
		&app.ID,
		&app.Type,
		&app.CurrentStage,
		&app.SubmittedBy,
		&app.PaymentStatus,
		&app.AssignedTo,
		&app.Version,
		&app.CreatedAt,
		&app.LastTransitionAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// Verify interface compliance
var _ port.ApplicationRepository = (*ApplicationRepository)(nil)
