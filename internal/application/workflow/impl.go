package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/priority"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
	"github.com/garyjia/agency-workflow/internal/metrics"
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	graph       *domainwf.Graph
	apps        port.ApplicationRepository
	transitions port.TransitionRepository
	txManager   port.TransactionManager
	outbox      port.EventOutbox

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithIDGenerator replaces the application id generator
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *engineImpl) {
		e.newID = newID
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	graph *domainwf.Graph,
	apps port.ApplicationRepository,
	transitions port.TransitionRepository,
	txManager port.TransactionManager,
	outbox port.EventOutbox,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		graph:       graph,
		apps:        apps,
		transitions: transitions,
		txManager:   txManager,
		outbox:      outbox,
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateApplication registers a new application at the entry stage
func (e *engineImpl) CreateApplication(ctx context.Context, req CreateRequest) (*entity.Application, error) {
	pipeline, err := e.graph.Pipeline(req.Type)
	if err != nil {
		return nil, err
	}
	if req.SubmittedBy == "" {
		return nil, fmt.Errorf("%w: submittedBy is required", domainwf.ErrInvalidInput)
	}

	now := e.now().UTC()
	payment := entity.PaymentNotRequired
	if pipeline.RequiresPayment() {
		payment = entity.PaymentPending
	}

	app := &entity.Application{
		ID:               e.newID(),
		Type:             req.Type,
		CurrentStage:     pipeline.Entry,
		SubmittedBy:      req.SubmittedBy,
		PaymentStatus:    payment,
		CreatedAt:        now,
		LastTransitionAt: now,
	}
	evt := newSubmittedEvent(app)

	err = e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := e.apps.Create(ctx, app); err != nil {
			return err
		}
		return e.outbox.Record(ctx, evt)
	})
	if err != nil {
		e.logger.Error("Failed to create application", zap.String("type", req.Type.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domainwf.ErrNotConfirmed, err)
	}

	e.outbox.Publish(ctx, evt)
	e.metrics.IncApplicationsCreated(req.Type.String())
	e.logger.Info("Application created",
		zap.String("application_id", app.ID),
		zap.String("type", app.Type.String()),
		zap.String("stage", app.CurrentStage))

	return app, nil
}

// GetApplication returns an application with its stage and urgency
func (e *engineImpl) GetApplication(ctx context.Context, id string) (*ApplicationView, error) {
	app, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	stage, err := e.graph.Stage(app.Type, app.CurrentStage)
	if err != nil {
		return nil, err
	}

	return &ApplicationView{
		Application: app,
		Stage:       stage,
		Assessment:  priority.Compute(stage, app.LastTransitionAt, e.now()),
	}, nil
}

// RequestTransition validates and applies one stage change
func (e *engineImpl) RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	start := time.Now()
	result, appType, err := e.requestTransition(ctx, req)
	e.metrics.RecordTransition(appType, req.Decision.String(), outcome(err), start)
	return result, err
}

func (e *engineImpl) requestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, string, error) {
	if !req.Decision.IsValid() {
		return nil, "", fmt.Errorf("%w: %q", domainwf.ErrInvalidDecision, req.Decision)
	}

	app, err := e.load(ctx, req.ApplicationID)
	if err != nil {
		return nil, "", err
	}
	appType := app.Type.String()

	current, err := e.graph.Stage(app.Type, app.CurrentStage)
	if err != nil {
		return nil, appType, err
	}

	// Checks run in a fixed order and all of them before any write
	if current.Terminal {
		return nil, appType, fmt.Errorf("%w: %s is at %s", domainwf.ErrApplicationTerminal, app.ID, app.CurrentStage)
	}
	if req.ExpectedStage != "" && req.ExpectedStage != app.CurrentStage {
		return nil, appType, fmt.Errorf("%w: expected %s, application is at %s",
			domainwf.ErrStaleState, req.ExpectedStage, app.CurrentStage)
	}

	target, err := e.graph.ResolveTarget(app.Type, app.CurrentStage, req.Decision, req.TargetStage)
	if err != nil {
		return nil, appType, err
	}
	if req.Actor.Role != current.OwnerRole {
		return nil, appType, fmt.Errorf("%w: %s is owned by %s, actor has %s",
			domainwf.ErrRoleMismatch, app.CurrentStage, current.OwnerRole, req.Actor.Role)
	}
	if current.RequiresPayment && app.PaymentStatus != entity.PaymentVerified {
		return nil, appType, fmt.Errorf("%w: payment is %s", domainwf.ErrPaymentNotVerified, app.PaymentStatus)
	}

	next, err := e.graph.Stage(app.Type, target)
	if err != nil {
		return nil, appType, err
	}

	now := e.now().UTC()
	clearAssignee := next.OwnerRole != current.OwnerRole

	record := &entity.TransitionRecord{
		ApplicationID: app.ID,
		Sequence:      int(app.Version) + 1,
		FromStage:     app.CurrentStage,
		ToStage:       target,
		ActorID:       req.Actor.ID,
		ActorRole:     req.Actor.Role,
		Decision:      req.Decision,
		Note:          req.Note,
		DocumentIDs:   req.DocumentIDs,
		Timestamp:     now,
	}
	evt := newTransitionEvent(app, record)

	err = e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := e.apps.UpdateStage(ctx, port.StageUpdate{
			ApplicationID:   app.ID,
			ExpectedVersion: app.Version,
			ToStage:         target,
			ClearAssignee:   clearAssignee,
			At:              now,
		}); err != nil {
			return err
		}
		if err := e.transitions.Append(ctx, record); err != nil {
			return err
		}
		return e.outbox.Record(ctx, evt)
	})
	if err != nil {
		return nil, appType, e.writeError(app.ID, err)
	}

	e.outbox.Publish(ctx, evt)
	e.logger.Info("Transition applied",
		zap.String("application_id", app.ID),
		zap.String("from", record.FromStage),
		zap.String("to", record.ToStage),
		zap.String("decision", record.Decision.String()),
		zap.String("actor_id", record.ActorID))

	updated := *app
	updated.CurrentStage = target
	if clearAssignee {
		updated.AssignedTo = ""
	}
	updated.LastTransitionAt = now
	updated.Version++

	return &TransitionResult{Application: &updated, Record: record}, appType, nil
}

// RecordPaymentOutcome stores a Verified or Rejected payment fact.
// Verified is final; repeating the current outcome is a no-op.
func (e *engineImpl) RecordPaymentOutcome(ctx context.Context, id string, outcome entity.PaymentStatus) (*entity.Application, error) {
	if !outcome.IsOutcome() {
		return nil, fmt.Errorf("%w: payment outcome must be Verified or Rejected, got %q", domainwf.ErrInvalidInput, outcome)
	}

	app, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	stage, err := e.graph.Stage(app.Type, app.CurrentStage)
	if err != nil {
		return nil, err
	}
	if stage.Terminal {
		return nil, fmt.Errorf("%w: %s is at %s", domainwf.ErrApplicationTerminal, app.ID, app.CurrentStage)
	}

	switch {
	case app.PaymentStatus == entity.PaymentNotRequired:
		return nil, fmt.Errorf("%w: %s pipeline has no payment stage", domainwf.ErrPaymentNotApplicable, app.Type)
	case app.PaymentStatus == outcome:
		return app, nil
	case app.PaymentStatus == entity.PaymentVerified:
		return nil, fmt.Errorf("%w: cannot change to %s", domainwf.ErrPaymentFinal, outcome)
	}

	previous := app.PaymentStatus
	evt := newPaymentEvent(app, previous, outcome, e.now().UTC())

	err = e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := e.apps.UpdatePaymentStatus(ctx, app.ID, previous, outcome); err != nil {
			return err
		}
		return e.outbox.Record(ctx, evt)
	})
	if err != nil {
		return nil, e.writeError(app.ID, err)
	}

	e.outbox.Publish(ctx, evt)
	e.metrics.IncPaymentOutcome(string(outcome))
	e.logger.Info("Payment outcome recorded",
		zap.String("application_id", app.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(outcome)))

	updated := *app
	updated.PaymentStatus = outcome
	return &updated, nil
}

// History returns the audit trail and whether it replays to the current stage
func (e *engineImpl) History(ctx context.Context, id string) (*HistoryView, error) {
	app, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	records, err := e.transitions.ListByApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	plain := make([]entity.TransitionRecord, len(records))
	for i, r := range records {
		plain[i] = *r
	}

	view := &HistoryView{
		ApplicationID: app.ID,
		CurrentStage:  app.CurrentStage,
		Records:       records,
	}

	replayed, err := e.graph.Replay(app.Type, plain)
	view.ReplayedStage = replayed
	if err != nil {
		view.ReplayError = err.Error()
		e.logger.Error("Transition log does not replay",
			zap.String("application_id", app.ID), zap.Error(err))
	}
	view.Consistent = err == nil && replayed == app.CurrentStage

	return view, nil
}

func (e *engineImpl) load(ctx context.Context, id string) (*entity.Application, error) {
	app, err := e.apps.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load application %s: %w", id, err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrApplicationNotFound, id)
	}
	return app, nil
}

// writeError maps a failed write transaction to StaleState on a lost
// optimistic check, and to NotConfirmed otherwise
func (e *engineImpl) writeError(id string, err error) error {
	if errors.Is(err, port.ErrConflict) {
		return fmt.Errorf("%w: %w", domainwf.ErrStaleState, err)
	}
	e.logger.Error("Write not confirmed", zap.String("application_id", id), zap.Error(err))
	return fmt.Errorf("%w: %w", domainwf.ErrNotConfirmed, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domainwf.ErrRoleMismatch):
		return "role_mismatch"
	case errors.Is(err, domainwf.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domainwf.ErrPaymentNotVerified):
		return "payment_not_verified"
	case errors.Is(err, domainwf.ErrApplicationTerminal):
		return "application_terminal"
	case errors.Is(err, domainwf.ErrStaleState):
		return "stale_state"
	case errors.Is(err, domainwf.ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, domainwf.ErrApplicationNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Verify interface compliance
var _ WorkflowEngine = (*engineImpl)(nil)
