package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/workflow"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "workflow.db")
	cfg.Database.MaxOpenConns = 4
	cfg.Notification.RelayInterval = 50 * time.Millisecond
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Path = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_StartServeClose(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start must fail")

	health := c.Health()
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.NotContains(t, health.Components, "redis")
	assert.Contains(t, health.Components["workers"].Message, "OutboxWorker: delivered")

	ctx := context.Background()
	app, err := c.WorkflowEngine().CreateApplication(ctx, workflow.CreateRequest{
		Type:        entity.TypeCompanyRegistration,
		SubmittedBy: "applicant-1",
	})
	require.NoError(t, err)

	items, err := c.QueueService().QueueFor(ctx, entity.RoleCommissionAdmin, "", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, app.ID, items[0].ApplicationID)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/applications/"+app.ID, nil)
	req.Header.Set("X-Actor-ID", "admin-1")
	req.Header.Set("X-Actor-Role", "commission_admin")
	c.Server().Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	c.Server().Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "workflow_applications_created_total")

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close must fail")
	assert.Error(t, c.Start(context.Background()), "start after close must fail")
}

func TestContainer_RedisSinkReceivesEvents(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Notification.Redis.Enabled = true
	cfg.Notification.Redis.Addr = mr.Addr()
	// Keep the relay idle so each event is delivered exactly once by Publish
	cfg.Notification.RelayInterval = time.Hour

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.True(t, c.Health().Components["redis"].Healthy)

	ctx := context.Background()
	app, err := c.WorkflowEngine().CreateApplication(ctx, workflow.CreateRequest{
		Type:        entity.TypeCompanyRegistration,
		SubmittedBy: "applicant-1",
	})
	require.NoError(t, err)

	_, err = c.WorkflowEngine().RequestTransition(ctx, workflow.TransitionRequest{
		ApplicationID: app.ID,
		Actor:         entity.Actor{ID: "admin-1", Role: entity.RoleCommissionAdmin},
		Decision:      entity.DecisionApprove,
	})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.Eventually(t, func() bool {
		entries, err := client.XRange(ctx, cfg.Notification.Redis.Stream, "-", "+").Result()
		return err == nil && len(entries) == 2
	}, 2*time.Second, 20*time.Millisecond)

	pending, err := c.Repositories().Outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestContainer_RedisUnreachableFailsStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notification.Redis.Enabled = true
	cfg.Notification.Redis.Addr = "127.0.0.1:1"

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification")
	assert.False(t, c.Ready())
}

func TestContainer_StageGraphFromFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.StageGraphPath = filepath.Join(t.TempDir(), "missing.yaml")

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage graph")
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("a", 1, 2, "skipped", "b", "x", "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Key)
	assert.Equal(t, "b", fields[1].Key)
}
