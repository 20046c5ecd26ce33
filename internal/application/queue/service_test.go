package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/event"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
)

type mockApplicationRepo struct {
	apps      []*entity.Application
	listErr   error
	assignErr error
	lastQuery map[entity.ApplicationType][]string
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *entity.Application) error {
	m.apps = append(m.apps, app)
	return nil
}

func (m *mockApplicationRepo) GetByID(ctx context.Context, id string) (*entity.Application, error) {
	for _, app := range m.apps {
		if app.ID == id {
			out := *app
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockApplicationRepo) UpdateStage(ctx context.Context, u port.StageUpdate) error {
	return errors.New("not implemented")
}

func (m *mockApplicationRepo) UpdatePaymentStatus(ctx context.Context, id string, from, to entity.PaymentStatus) error {
	return errors.New("not implemented")
}

func (m *mockApplicationRepo) Assign(ctx context.Context, id string, expectedVersion int64, assignee string) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	for _, app := range m.apps {
		if app.ID == id {
			if app.Version != expectedVersion {
				return port.ErrConflict
			}
			app.AssignedTo = assignee
			return nil
		}
	}
	return port.ErrConflict
}

func (m *mockApplicationRepo) ListAtStages(ctx context.Context, stages map[entity.ApplicationType][]string) ([]*entity.Application, error) {
	m.lastQuery = stages
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*entity.Application
	for _, app := range m.apps {
		for _, s := range stages[app.Type] {
			if s == app.CurrentStage {
				copied := *app
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockOutbox struct {
	recorded  []*event.Event
	published []*event.Event
}

func (m *mockOutbox) Record(ctx context.Context, evt *event.Event) error {
	m.recorded = append(m.recorded, evt)
	return nil
}

func (m *mockOutbox) Publish(ctx context.Context, evt *event.Event) {
	m.published = append(m.published, evt)
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func app(id string, appType entity.ApplicationType, stage string, created, last time.Time) *entity.Application {
	return &entity.Application{
		ID:               id,
		Type:             appType,
		CurrentStage:     stage,
		SubmittedBy:      "applicant-" + id,
		PaymentStatus:    entity.PaymentPending,
		CreatedAt:        created,
		LastTransitionAt: last,
	}
}

func newTestService(t *testing.T, repo *mockApplicationRepo, outbox *mockOutbox, now time.Time) Service {
	t.Helper()
	graph, err := domainwf.LoadDefault()
	require.NoError(t, err)
	return NewService(graph, repo, mockTxManager{}, outbox, zap.NewNop(),
		WithClock(func() time.Time { return now }))
}

func ids(items []*entity.QueueItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ApplicationID
	}
	return out
}

func TestQueueFor_OverdueEscalates(t *testing.T) {
	repo := &mockApplicationRepo{apps: []*entity.Application{
		app("rp-1", entity.TypeRegularPermit, "submitted", t0, t0),
	}}
	svc := newTestService(t, repo, &mockOutbox{}, t0.Add(days(11)))

	items, err := svc.QueueFor(context.Background(), entity.RoleImmigration, FilterAll, SortPriority)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, 11, items[0].DaysWaiting)
	assert.Equal(t, 10, items[0].SLADays)
	assert.True(t, items[0].Overdue)
	assert.Equal(t, entity.PriorityHigh, items[0].Priority)
	assert.Equal(t, entity.RoleImmigration, items[0].OwnerRole)
}

func TestQueueFor_OnlyOwnedNonTerminalStages(t *testing.T) {
	repo := &mockApplicationRepo{apps: []*entity.Application{
		app("rp-1", entity.TypeRegularPermit, "submitted", t0, t0),
		app("rp-2", entity.TypeRegularPermit, "permit_fee", t0, t0),
		app("rp-3", entity.TypeRegularPermit, "issued", t0, t0),
		app("cr-1", entity.TypeCompanyRegistration, "fee_payment", t0, t0),
		app("cr-2", entity.TypeCompanyRegistration, "document_review", t0, t0),
	}}
	svc := newTestService(t, repo, &mockOutbox{}, t0.Add(time.Hour))

	items, err := svc.QueueFor(context.Background(), entity.RoleFinance, FilterAll, SortPriority)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"rp-2", "cr-1"}, ids(items))

	for _, stages := range repo.lastQuery {
		for _, s := range stages {
			assert.NotEqual(t, "issued", s)
		}
	}

	items, err = svc.QueueFor(context.Background(), entity.RoleImmigration, FilterAll, SortPriority)
	require.NoError(t, err)
	assert.Equal(t, []string{"rp-1"}, ids(items))
}

func TestQueueFor_Filters(t *testing.T) {
	assigned := app("rp-2", entity.TypeRegularPermit, "document_review", t0, t0.Add(days(5)))
	assigned.AssignedTo = "imm-1"
	repo := &mockApplicationRepo{apps: []*entity.Application{
		app("rp-1", entity.TypeRegularPermit, "submitted", t0, t0),
		assigned,
		app("rp-3", entity.TypeRegularPermit, "immigration_approval", t0, t0.Add(days(8))),
	}}
	// rp-1 overdue (11 > 10), rp-2 not (6 <= 7), rp-3 at 3 days of 10
	svc := newTestService(t, repo, &mockOutbox{}, t0.Add(days(11)))

	tests := []struct {
		filter Filter
		want   []string
	}{
		{FilterAll, []string{"rp-1", "rp-2", "rp-3"}},
		{FilterOverdue, []string{"rp-1"}},
		{FilterHighPriority, []string{"rp-1"}},
		{FilterPendingOnly, []string{"rp-1", "rp-3"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			items, err := svc.QueueFor(context.Background(), entity.RoleImmigration, tt.filter, SortSubmittedDate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(items))
		})
	}
}

func TestQueueFor_Sorts(t *testing.T) {
	repo := &mockApplicationRepo{apps: []*entity.Application{
		// Medium, 1 day waiting, newest submission
		app("a", entity.TypeRegularPermit, "document_review", t0.Add(days(3)), t0.Add(days(9))),
		// overdue, escalated to High
		app("b", entity.TypeRegularPermit, "submitted", t0.Add(days(1)), t0.Add(days(-2))),
		// Medium, 2 days waiting, oldest submission
		app("c", entity.TypeRegularPermit, "immigration_approval", t0, t0.Add(days(8))),
		// Medium, same lastTransitionAt as c, later id
		app("d", entity.TypeRegularPermit, "immigration_approval", t0.Add(days(2)), t0.Add(days(8))),
	}}
	svc := newTestService(t, repo, &mockOutbox{}, t0.Add(days(10)))

	tests := []struct {
		sort SortKey
		want []string
	}{
		{SortPriority, []string{"b", "c", "d", "a"}},
		{SortSubmittedDate, []string{"c", "b", "d", "a"}},
		{SortDaysWaiting, []string{"b", "c", "d", "a"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			items, err := svc.QueueFor(context.Background(), entity.RoleImmigration, FilterAll, tt.sort)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(items))
		})
	}
}

func TestQueueFor_Errors(t *testing.T) {
	repo := &mockApplicationRepo{}
	svc := newTestService(t, repo, &mockOutbox{}, t0)

	_, err := svc.QueueFor(context.Background(), "auditor", FilterAll, SortPriority)
	assert.ErrorIs(t, err, domainwf.ErrInvalidInput)

	repo.listErr = errors.New("database is locked")
	_, err = svc.QueueFor(context.Background(), entity.RoleGIS, FilterAll, SortPriority)
	assert.Error(t, err)
}

func TestQueueFor_DoesNotMutate(t *testing.T) {
	repo := &mockApplicationRepo{apps: []*entity.Application{
		app("rp-1", entity.TypeRegularPermit, "submitted", t0, t0),
	}}
	before := *repo.apps[0]
	outbox := &mockOutbox{}
	svc := newTestService(t, repo, outbox, t0.Add(days(30)))

	_, err := svc.QueueFor(context.Background(), entity.RoleImmigration, FilterAll, SortPriority)
	require.NoError(t, err)
	assert.Equal(t, before, *repo.apps[0])
	assert.Empty(t, outbox.recorded)
}

func TestParseFilterAndSort(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseFilter("pending-only")
	require.NoError(t, err)
	assert.Equal(t, FilterPendingOnly, f)

	_, err = ParseFilter("mine")
	assert.ErrorIs(t, err, domainwf.ErrInvalidInput)

	k, err := ParseSort("")
	require.NoError(t, err)
	assert.Equal(t, SortPriority, k)

	k, err = ParseSort("daysWaiting")
	require.NoError(t, err)
	assert.Equal(t, SortDaysWaiting, k)

	_, err = ParseSort("alphabetical")
	assert.ErrorIs(t, err, domainwf.ErrInvalidInput)
}

func TestAssign(t *testing.T) {
	repo := &mockApplicationRepo{apps: []*entity.Application{
		app("rp-1", entity.TypeRegularPermit, "submitted", t0, t0),
	}}
	outbox := &mockOutbox{}
	svc := newTestService(t, repo, outbox, t0)
	ctx := context.Background()

	_, err := svc.Assign(ctx, AssignRequest{
		ApplicationID: "rp-1",
		Actor:         entity.Actor{ID: "fin-1", Role: entity.RoleFinance},
	})
	assert.ErrorIs(t, err, domainwf.ErrRoleMismatch)
	assert.Empty(t, repo.apps[0].AssignedTo)

	updated, err := svc.Assign(ctx, AssignRequest{
		ApplicationID: "rp-1",
		Actor:         entity.Actor{ID: "imm-1", Role: entity.RoleImmigration},
	})
	require.NoError(t, err)
	assert.Equal(t, "imm-1", updated.AssignedTo)
	assert.Equal(t, "imm-1", repo.apps[0].AssignedTo)

	require.Len(t, outbox.recorded, 1)
	assert.Equal(t, event.TypeApplicationAssigned, outbox.recorded[0].Type)
	assert.Equal(t, "imm-1", outbox.recorded[0].GetPayloadString(event.KeyAssignedTo))
	assert.Len(t, outbox.published, 1)

	updated, err = svc.Assign(ctx, AssignRequest{
		ApplicationID: "rp-1",
		Actor:         entity.Actor{ID: "imm-1", Role: entity.RoleImmigration},
		Assignee:      "imm-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "imm-2", updated.AssignedTo)
}

func TestAssign_Errors(t *testing.T) {
	repo := &mockApplicationRepo{apps: []*entity.Application{
		app("rp-1", entity.TypeRegularPermit, "submitted", t0, t0),
		app("rp-2", entity.TypeRegularPermit, "issued", t0, t0),
	}}
	svc := newTestService(t, repo, &mockOutbox{}, t0)
	ctx := context.Background()
	actor := entity.Actor{ID: "imm-1", Role: entity.RoleImmigration}

	_, err := svc.Assign(ctx, AssignRequest{ApplicationID: "missing", Actor: actor})
	assert.ErrorIs(t, err, domainwf.ErrApplicationNotFound)

	_, err = svc.Assign(ctx, AssignRequest{ApplicationID: "rp-2", Actor: actor})
	assert.ErrorIs(t, err, domainwf.ErrApplicationTerminal)

	repo.assignErr = port.ErrConflict
	_, err = svc.Assign(ctx, AssignRequest{ApplicationID: "rp-1", Actor: actor})
	assert.ErrorIs(t, err, domainwf.ErrStaleState)

	repo.assignErr = errors.New("disk full")
	_, err = svc.Assign(ctx, AssignRequest{ApplicationID: "rp-1", Actor: actor})
	assert.ErrorIs(t, err, domainwf.ErrNotConfirmed)
}
