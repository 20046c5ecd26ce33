// Package queue materializes per-role work lists and handles claiming.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/event"
	"github.com/garyjia/agency-workflow/internal/domain/priority"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
	"github.com/garyjia/agency-workflow/internal/metrics"
)

// Filter narrows a queue
type Filter string

const (
	FilterAll          Filter = "all"
	FilterHighPriority Filter = "high-priority"
	FilterOverdue      Filter = "overdue"
	FilterPendingOnly  Filter = "pending-only"
)

// ParseFilter maps a query value to a Filter; empty means all
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterHighPriority, FilterOverdue, FilterPendingOnly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", domainwf.ErrInvalidInput, s)
	}
}

// SortKey orders a queue
type SortKey string

const (
	SortPriority      SortKey = "priority"
	SortSubmittedDate SortKey = "submittedDate"
	SortDaysWaiting   SortKey = "daysWaiting"
)

// ParseSort maps a query value to a SortKey; empty means priority
func ParseSort(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortPriority, nil
	case SortPriority, SortSubmittedDate, SortDaysWaiting:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q", domainwf.ErrInvalidInput, s)
	}
}

// AssignRequest claims an application for Assignee, or for the actor when Assignee is empty
type AssignRequest struct {
	ApplicationID string
	Actor         entity.Actor
	Assignee      string
}

// Service defines the task queue operations
type Service interface {
	// QueueFor returns the applications awaiting role's action, ordered by sortKey
	QueueFor(ctx context.Context, role entity.Role, filter Filter, sortKey SortKey) ([]*entity.QueueItem, error)

	// Assign sets the assignee of an application at a stage the actor's role owns
	Assign(ctx context.Context, req AssignRequest) (*entity.Application, error)
}

type service struct {
	graph      *domainwf.Graph
	calculator *priority.Calculator
	apps       port.ApplicationRepository
	txManager  port.TransactionManager
	outbox     port.EventOutbox
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures the queue service
type Option func(*service)

// WithClock replaces the wall clock used for days-waiting
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithMetrics enables query timing
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// NewService creates a new queue service
func NewService(
	graph *domainwf.Graph,
	apps port.ApplicationRepository,
	txManager port.TransactionManager,
	outbox port.EventOutbox,
	logger *zap.Logger,
	opts ...Option,
) Service {
	s := &service{
		graph:      graph,
		calculator: priority.NewCalculator(graph),
		apps:       apps,
		txManager:  txManager,
		outbox:     outbox,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) QueueFor(ctx context.Context, role entity.Role, filter Filter, sortKey SortKey) ([]*entity.QueueItem, error) {
	start := time.Now()
	defer s.metrics.ObserveQueue(start)

	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domainwf.ErrInvalidInput, role)
	}

	stages := s.graph.OwnedStages(role)
	if len(stages) == 0 {
		return []*entity.QueueItem{}, nil
	}

	apps, err := s.apps.ListAtStages(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	now := s.now()
	items := make([]*entity.QueueItem, 0, len(apps))
	for _, app := range apps {
		assessment, err := s.calculator.Assess(app.Type, app.CurrentStage, app.LastTransitionAt, now)
		if err != nil {
			s.logger.Warn("Skipping application at unknown stage",
				zap.String("application_id", app.ID),
				zap.String("stage", app.CurrentStage),
				zap.Error(err))
			continue
		}
		item := newQueueItem(app, role, assessment)
		if matches(item, filter) {
			items = append(items, item)
		}
	}

	sortItems(items, sortKey)
	return items, nil
}

func (s *service) Assign(ctx context.Context, req AssignRequest) (*entity.Application, error) {
	app, err := s.apps.GetByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load application %s: %w", req.ApplicationID, err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrApplicationNotFound, req.ApplicationID)
	}

	stage, err := s.graph.Stage(app.Type, app.CurrentStage)
	if err != nil {
		return nil, err
	}
	if stage.Terminal {
		return nil, fmt.Errorf("%w: %s is at %s", domainwf.ErrApplicationTerminal, app.ID, app.CurrentStage)
	}
	if req.Actor.Role != stage.OwnerRole {
		return nil, fmt.Errorf("%w: %s is owned by %s, actor has %s",
			domainwf.ErrRoleMismatch, app.CurrentStage, stage.OwnerRole, req.Actor.Role)
	}

	assignee := req.Assignee
	if assignee == "" {
		assignee = req.Actor.ID
	}
	if assignee == "" {
		return nil, fmt.Errorf("%w: assignee is required", domainwf.ErrInvalidInput)
	}

	evt := event.NewEvent(event.TypeApplicationAssigned, app.ID, map[string]interface{}{
		event.KeyApplicationType: app.Type.String(),
		event.KeyToStage:         app.CurrentStage,
		event.KeyActorID:         req.Actor.ID,
		event.KeyActorRole:       req.Actor.Role.String(),
		event.KeyAssignedTo:      assignee,
	}, s.now().UTC())

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.apps.Assign(ctx, app.ID, app.Version, assignee); err != nil {
			return err
		}
		return s.outbox.Record(ctx, evt)
	})
	if err != nil {
		if errors.Is(err, port.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", domainwf.ErrStaleState, err)
		}
		s.logger.Error("Assignment not confirmed", zap.String("application_id", app.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domainwf.ErrNotConfirmed, err)
	}

	s.outbox.Publish(ctx, evt)
	s.logger.Info("Application assigned",
		zap.String("application_id", app.ID),
		zap.String("stage", app.CurrentStage),
		zap.String("assigned_to", assignee))

	updated := *app
	updated.AssignedTo = assignee
	return &updated, nil
}

func newQueueItem(app *entity.Application, role entity.Role, a priority.Assessment) *entity.QueueItem {
	return &entity.QueueItem{
		ApplicationID:    app.ID,
		Type:             app.Type,
		Stage:            app.CurrentStage,
		OwnerRole:        role,
		SubmittedBy:      app.SubmittedBy,
		AssignedTo:       app.AssignedTo,
		PaymentStatus:    app.PaymentStatus,
		Priority:         a.Priority,
		DaysWaiting:      a.DaysWaiting,
		SLADays:          a.SLADays,
		Overdue:          a.Overdue,
		CreatedAt:        app.CreatedAt,
		LastTransitionAt: app.LastTransitionAt,
	}
}

func matches(item *entity.QueueItem, filter Filter) bool {
	switch filter {
	case FilterHighPriority:
		return item.Priority == entity.PriorityHigh
	case FilterOverdue:
		return item.Overdue
	case FilterPendingOnly:
		return item.AssignedTo == ""
	default:
		return true
	}
}

// sortItems orders in place. Every key falls back to the oldest
// lastTransitionAt and then the id, so the order is total.
func sortItems(items []*entity.QueueItem, key SortKey) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch key {
		case SortSubmittedDate:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case SortDaysWaiting:
			if a.DaysWaiting != b.DaysWaiting {
				return a.DaysWaiting > b.DaysWaiting
			}
		default:
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() > b.Priority.Rank()
			}
		}
		if !a.LastTransitionAt.Equal(b.LastTransitionAt) {
			return a.LastTransitionAt.Before(b.LastTransitionAt)
		}
		return a.ApplicationID < b.ApplicationID
	})
}
