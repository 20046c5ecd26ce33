package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/infrastructure/persistence/sqlite"
)

// TransitionRepository implements port.TransitionRepository.
// Rows are never updated or deleted; the schema enforces it with triggers.
type TransitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransitionRepository creates a new transition log repository
func NewTransitionRepository(db *sql.DB, logger *zap.Logger) port.TransitionRepository {
	return &TransitionRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores one transition record
func (r *TransitionRepository) Append(ctx context.Context, record *entity.TransitionRecord) error {
	query := `
		INSERT INTO transition_records (
			application_id, seq, from_stage, to_stage, actor_id, actor_role,
			decision, note, document_ids, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	docs := record.DocumentIDs
	if docs == nil {
		docs = []string{}
	}
	docIDs, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to encode document ids: %w", err)
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		record.ApplicationID,
		record.Sequence,
		record.FromStage,
		record.ToStage,
		record.ActorID,
		record.ActorRole,
		record.Decision,
		record.Note,
		string(docIDs),
		record.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: record %d of application %s already exists",
				port.ErrConflict, record.Sequence, record.ApplicationID)
		}
		r.logger.Error("Failed to append transition record",
			zap.String("application_id", record.ApplicationID),
			zap.Int("sequence", record.Sequence),
			zap.Error(err))
		return fmt.Errorf("failed to append transition record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// ListByApplication returns an application's records in sequence order
func (r *TransitionRepository) ListByApplication(ctx context.Context, applicationID string) ([]*entity.TransitionRecord, error) {
	query := `
		SELECT id, application_id, seq, from_stage, to_stage, actor_id, actor_role,
			decision, note, document_ids, created_at
		FROM transition_records
		WHERE application_id = ?
		ORDER BY seq ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, applicationID)
	if err != nil {
		r.logger.Error("Failed to list transition records",
			zap.String("application_id", applicationID), zap.Error(err))
		return nil, fmt.Errorf("failed to list transition records: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.TransitionRecord, 0)
	for rows.Next() {
		var record entity.TransitionRecord
		var docIDs string
		err := rows.Scan(
			&record.ID,
			&record.ApplicationID,
			&record.Sequence,
			&record.FromStage,
			&record.ToStage,
			&record.ActorID,
			&record.ActorRole,
			&record.Decision,
			&record.Note,
			&docIDs,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition record: %w", err)
		}
		if docIDs != "" {
			if err := json.Unmarshal([]byte(docIDs), &record.DocumentIDs); err != nil {
				return nil, fmt.Errorf("failed to decode document ids of record %d: %w", record.ID, err)
			}
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transition records: %w", err)
	}

	return records, nil
}

// Verify interface compliance
var _ port.TransitionRepository = (*TransitionRepository)(nil)
