package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agency-workflow/internal/application/queue"
	"github.com/garyjia/agency-workflow/internal/application/workflow"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
	"github.com/garyjia/agency-workflow/internal/metrics"
)

type mockEngine struct {
	transitionErr error
	lastCreate    workflow.CreateRequest
	lastRequest   workflow.TransitionRequest
	lastOutcome   entity.PaymentStatus
}

func (m *mockEngine) CreateApplication(ctx context.Context, req workflow.CreateRequest) (*entity.Application, error) {
	m.lastCreate = req
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrUnknownType, req.Type)
	}
	return &entity.Application{ID: "app-1", Type: req.Type, CurrentStage: "submitted", SubmittedBy: req.SubmittedBy}, nil
}

func (m *mockEngine) GetApplication(ctx context.Context, id string) (*workflow.ApplicationView, error) {
	if id != "app-1" {
		return nil, domainwf.ErrApplicationNotFound
	}
	return &workflow.ApplicationView{Application: &entity.Application{ID: id, CurrentStage: "submitted"}}, nil
}

func (m *mockEngine) RequestTransition(ctx context.Context, req workflow.TransitionRequest) (*workflow.TransitionResult, error) {
	m.lastRequest = req
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	return &workflow.TransitionResult{
		Application: &entity.Application{ID: req.ApplicationID, CurrentStage: "document_review", Version: 1},
		Record:      &entity.TransitionRecord{ApplicationID: req.ApplicationID, Sequence: 1, FromStage: "submitted", ToStage: "document_review"},
	}, nil
}

func (m *mockEngine) RecordPaymentOutcome(ctx context.Context, id string, outcome entity.PaymentStatus) (*entity.Application, error) {
	m.lastOutcome = outcome
	if !outcome.IsOutcome() {
		return nil, domainwf.ErrInvalidInput
	}
	return &entity.Application{ID: id, PaymentStatus: outcome}, nil
}

func (m *mockEngine) History(ctx context.Context, id string) (*workflow.HistoryView, error) {
	return &workflow.HistoryView{ApplicationID: id, CurrentStage: "submitted", ReplayedStage: "submitted", Consistent: true}, nil
}

type mockQueue struct {
	lastRole   entity.Role
	lastFilter queue.Filter
	lastSort   queue.SortKey
	lastAssign queue.AssignRequest
}

func (m *mockQueue) QueueFor(ctx context.Context, role entity.Role, filter queue.Filter, sortKey queue.SortKey) ([]*entity.QueueItem, error) {
	m.lastRole, m.lastFilter, m.lastSort = role, filter, sortKey
	return []*entity.QueueItem{{ApplicationID: "app-1", OwnerRole: role, Priority: entity.PriorityHigh}}, nil
}

func (m *mockQueue) Assign(ctx context.Context, req queue.AssignRequest) (*entity.Application, error) {
	m.lastAssign = req
	return &entity.Application{ID: req.ApplicationID, AssignedTo: req.Actor.ID}, nil
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockHealth struct{ err error }

func (m mockHealth) Health(ctx context.Context) error { return m.err }

type testServer struct {
	server *Server
	engine *mockEngine
	queue  *mockQueue
}

func newTestServer(t *testing.T, health HealthChecker) *testServer {
	t.Helper()
	graph, err := domainwf.LoadDefault()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.New(reg).IncApplicationsCreated("Renewal")

	ts := &testServer{engine: &mockEngine{}, queue: &mockQueue{}}
	ts.server = NewServer(DefaultServerConfig(), Dependencies{
		Engine:   ts.engine,
		Queue:    ts.queue,
		Graph:    graph,
		Health:   health,
		Gatherer: reg,
	}, nopLogger{})
	return ts
}

func (ts *testServer) do(method, path string, role entity.Role, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set(HeaderActorID, string(role)+"-1")
		req.Header.Set(HeaderActorRole, string(role))
	}
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, mockHealth{})
	rec := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)

	ts = newTestServer(t, mockHealth{err: errors.New("database is closed")})
	rec = ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decode(t, rec).Success)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "workflow_applications_created_total")
}

func TestIdentityRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/applications/app-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidInput, decode(t, rec).Code)

	rec = ts.do(http.MethodGet, "/applications/app-1", "auditor", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateApplication(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/applications", entity.RoleApplicant, `{"type":"RegularPermit"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "applicant-1", ts.engine.lastCreate.SubmittedBy)

	rec = ts.do(http.MethodPost, "/applications", entity.RoleApplicant, `{"type":"Visa"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/applications", entity.RoleApplicant, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestTransition_Success(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/applications/app-1/transition", entity.RoleImmigration,
		`{"decision":"Approve","target_stage":"document_review","note":"ok","document_ids":["doc-1"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	req := ts.engine.lastRequest
	assert.Equal(t, "app-1", req.ApplicationID)
	assert.Equal(t, entity.Actor{ID: "immigration-1", Role: entity.RoleImmigration}, req.Actor)
	assert.Equal(t, entity.DecisionApprove, req.Decision)
	assert.Equal(t, []string{"doc-1"}, req.DocumentIDs)
	assert.Contains(t, rec.Body.String(), `"document_review"`)
}

func TestRequestTransition_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domainwf.ErrRoleMismatch, http.StatusForbidden, CodeRoleMismatch},
		{domainwf.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
		{fmt.Errorf("%w: moved", domainwf.ErrStaleState), http.StatusConflict, CodeStaleState},
		{domainwf.ErrPaymentNotVerified, http.StatusPaymentRequired, CodePaymentNotVerified},
		{domainwf.ErrApplicationTerminal, http.StatusGone, CodeApplicationTerminal},
		{domainwf.ErrApplicationNotFound, http.StatusNotFound, CodeNotFound},
		{domainwf.ErrInvalidDecision, http.StatusBadRequest, CodeInvalidInput},
		{fmt.Errorf("%w: %w", domainwf.ErrNotConfirmed, errors.New("disk I/O")), http.StatusServiceUnavailable, CodeTransitionNotConfirm},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.engine.transitionErr = tt.err

			rec := ts.do(http.MethodPost, "/applications/app-1/transition", entity.RoleImmigration, `{"decision":"Approve"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestRecordPayment(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/applications/app-1/payment", entity.RoleFinance, `{"outcome":"Verified"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.PaymentVerified, ts.engine.lastOutcome)

	rec = ts.do(http.MethodPost, "/applications/app-1/payment", entity.RoleFinance, `{"outcome":"Pending"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssign(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/applications/app-1/assign", entity.RoleImmigration, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "immigration-1", ts.queue.lastAssign.Actor.ID)
	assert.Empty(t, ts.queue.lastAssign.Assignee)

	rec = ts.do(http.MethodPost, "/applications/app-1/assign", entity.RoleImmigration, `{"assignee":"imm-9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "imm-9", ts.queue.lastAssign.Assignee)
}

func TestGetQueue(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/queue/finance?filter=overdue&sort=daysWaiting", entity.RoleFinance, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.RoleFinance, ts.queue.lastRole)
	assert.Equal(t, queue.FilterOverdue, ts.queue.lastFilter)
	assert.Equal(t, queue.SortDaysWaiting, ts.queue.lastSort)

	rec = ts.do(http.MethodGet, "/queue/finance", entity.RoleFinance, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, queue.FilterAll, ts.queue.lastFilter)
	assert.Equal(t, queue.SortPriority, ts.queue.lastSort)

	rec = ts.do(http.MethodGet, "/queue/finance?filter=mine", entity.RoleFinance, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/queue/finance", entity.RoleGIS, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/queue/auditor", entity.RoleGIS, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistoryAndApplication(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/applications/app-1/history", entity.RoleApplicant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consistent":true`)

	rec = ts.do(http.MethodGet, "/applications/app-1", entity.RoleApplicant, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/applications/missing", entity.RoleApplicant, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStageGraph(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/stage-graph/RegularPermit", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data domainwf.Pipeline `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "submitted", resp.Data.Entry)
	assert.Equal(t, "rework", resp.Data.Rework)
	require.NotEmpty(t, resp.Data.Stages)
	assert.Equal(t, "submitted", resp.Data.Stages[0].ID)
	last := resp.Data.Stages[len(resp.Data.Stages)-1]
	assert.Equal(t, "rejected", last.ID)
	assert.True(t, last.Rejection)

	rec = ts.do(http.MethodGet, "/stage-graph/Visa", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartStop(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	graph, err := domainwf.LoadDefault()
	require.NoError(t, err)
	server := NewServer(cfg, Dependencies{Graph: graph}, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, strings.HasPrefix(server.Address(), "127.0.0.1:"))
}

func TestInputValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/applications/app-1", nil)
	req.Header.Set(HeaderActorID, "bad id")
	req.Header.Set(HeaderActorRole, string(entity.RoleFinance))
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/applications/app-1/assign", entity.RoleImmigration, `{"assignee":"a b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/applications/app-1/transition", entity.RoleImmigration,
		`{"decision":"Approve","note":"  passport\u0000 attached  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "passport attached", ts.engine.lastRequest.Note)
}
