package workflow

import (
	"context"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/priority"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
)

// WorkflowEngine is the only write path for application state
type WorkflowEngine interface {
	// CreateApplication registers a new application at its pipeline's entry stage
	CreateApplication(ctx context.Context, req CreateRequest) (*entity.Application, error)

	// GetApplication returns an application with its current urgency
	GetApplication(ctx context.Context, id string) (*ApplicationView, error)

	// RequestTransition validates and applies one stage change
	RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	// RecordPaymentOutcome stores a payment fact reported by the payment collaborator
	RecordPaymentOutcome(ctx context.Context, id string, outcome entity.PaymentStatus) (*entity.Application, error)

	// History returns the audit trail and checks that it replays to the current stage
	History(ctx context.Context, id string) (*HistoryView, error)
}

// CreateRequest carries the data needed to open an application
type CreateRequest struct {
	Type        entity.ApplicationType
	SubmittedBy string
}

// TransitionRequest is a reviewer's decision on an application.
// ExpectedStage, when set, must match the stored stage.
type TransitionRequest struct {
	ApplicationID string
	Actor         entity.Actor
	Decision      entity.Decision
	TargetStage   string
	ExpectedStage string
	Note          string
	DocumentIDs   []string
}

// TransitionResult is the state after an accepted transition
type TransitionResult struct {
	Application *entity.Application
	Record      *entity.TransitionRecord
}

// ApplicationView is an application enriched with its stage and urgency
type ApplicationView struct {
	Application *entity.Application      `json:"application"`
	Stage       domainwf.StageDefinition `json:"stage"`
	Assessment  priority.Assessment      `json:"assessment"`
}

// HistoryView is the audit trail of one application.
// Consistent is false when the records do not replay to CurrentStage.
type HistoryView struct {
	ApplicationID string                     `json:"application_id"`
	CurrentStage  string                     `json:"current_stage"`
	ReplayedStage string                     `json:"replayed_stage"`
	Consistent    bool                       `json:"consistent"`
	ReplayError   string                     `json:"replay_error,omitempty"`
	Records       []*entity.TransitionRecord `json:"records"`
}
