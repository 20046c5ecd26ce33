package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-workflow/internal/application/queue"
	"github.com/garyjia/agency-workflow/internal/application/workflow"
	"github.com/garyjia/agency-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
	"github.com/garyjia/agency-workflow/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine workflow.WorkflowEngine
	queue  queue.Service
	graph  *domainwf.Graph
	health HealthChecker
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		engine: deps.Engine,
		queue:  deps.Queue,
		graph:  deps.Graph,
		health: deps.Health,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}

// CreateApplicationRequest is the body of POST /applications
type CreateApplicationRequest struct {
	Type        entity.ApplicationType `json:"type" binding:"required"`
	SubmittedBy string                 `json:"submitted_by"`
}

// TransitionRequestBody is the body of POST /applications/:id/transition
type TransitionRequestBody struct {
	Decision      entity.Decision `json:"decision" binding:"required"`
	TargetStage   string          `json:"target_stage"`
	ExpectedStage string          `json:"expected_stage"`
	Note          string          `json:"note"`
	DocumentIDs   []string        `json:"document_ids"`
}

// PaymentRequest is the body of POST /applications/:id/payment
type PaymentRequest struct {
	Outcome entity.PaymentStatus `json:"outcome" binding:"required"`
}

// AssignRequestBody is the body of POST /applications/:id/assign
type AssignRequestBody struct {
	Assignee string `json:"assignee"`
}

// QueueRequest represents query parameters for the task queue
type QueueRequest struct {
	Filter string `form:"filter"`
	Sort   string `form:"sort"`
}

// TransitionResponse is the result of an accepted transition
type TransitionResponse struct {
	Application *entity.Application      `json:"application"`
	Record      *entity.TransitionRecord `json:"record"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if h.health != nil {
		if err := h.health.Health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			response.Database = err.Error()
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response, Error: "database unreachable"})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateApplication handles POST /applications
func (h *Handlers) CreateApplication(c *gin.Context) {
	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	actor := actorFrom(c)
	if req.SubmittedBy == "" {
		req.SubmittedBy = actor.ID
	}
	if err := utils.ValidateIdentifier("submitted_by", req.SubmittedBy); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	app, err := h.engine.CreateApplication(c.Request.Context(), workflow.CreateRequest{
		Type:        req.Type,
		SubmittedBy: req.SubmittedBy,
	})
	if err != nil {
		h.fail(c, "Failed to create application", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: app})
}

// GetApplication handles GET /applications/:id
func (h *Handlers) GetApplication(c *gin.Context) {
	view, err := h.engine.GetApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get application", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// RequestTransition handles POST /applications/:id/transition
func (h *Handlers) RequestTransition(c *gin.Context) {
	var req TransitionRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	note, err := utils.ValidateNote(req.Note)
	if err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	result, err := h.engine.RequestTransition(c.Request.Context(), workflow.TransitionRequest{
		ApplicationID: c.Param("id"),
		Actor:         actorFrom(c),
		Decision:      req.Decision,
		TargetStage:   req.TargetStage,
		ExpectedStage: req.ExpectedStage,
		Note:          note,
		DocumentIDs:   req.DocumentIDs,
	})
	if err != nil {
		h.fail(c, "Transition rejected", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TransitionResponse{
			Application: result.Application,
			Record:      result.Record,
		},
	})
}

// RecordPayment handles POST /applications/:id/payment
func (h *Handlers) RecordPayment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	app, err := h.engine.RecordPaymentOutcome(c.Request.Context(), c.Param("id"), req.Outcome)
	if err != nil {
		h.fail(c, "Failed to record payment outcome", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: app})
}

// Assign handles POST /applications/:id/assign
func (h *Handlers) Assign(c *gin.Context) {
	var req AssignRequestBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}
	if req.Assignee != "" {
		if err := utils.ValidateIdentifier("assignee", req.Assignee); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	app, err := h.queue.Assign(c.Request.Context(), queue.AssignRequest{
		ApplicationID: c.Param("id"),
		Actor:         actorFrom(c),
		Assignee:      req.Assignee,
	})
	if err != nil {
		h.fail(c, "Failed to assign application", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: app})
}

// GetHistory handles GET /applications/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	view, err := h.engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get history", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// GetQueue handles GET /queue/:role. Callers may only read their own role's queue.
func (h *Handlers) GetQueue(c *gin.Context) {
	var req QueueRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	role := entity.Role(c.Param("role"))
	if !role.IsValid() {
		abort(c, http.StatusBadRequest, CodeInvalidInput, "unknown role "+string(role))
		return
	}
	if actor := actorFrom(c); actor.Role != role {
		abort(c, http.StatusForbidden, CodeRoleMismatch, "cannot read the queue of another role")
		return
	}

	filter, err := queue.ParseFilter(req.Filter)
	if err != nil {
		h.fail(c, "Invalid queue filter", err)
		return
	}
	sortKey, err := queue.ParseSort(req.Sort)
	if err != nil {
		h.fail(c, "Invalid queue sort", err)
		return
	}

	items, err := h.queue.QueueFor(c.Request.Context(), role, filter, sortKey)
	if err != nil {
		h.fail(c, "Failed to compute queue", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// GetStageGraph handles GET /stage-graph/:type
func (h *Handlers) GetStageGraph(c *gin.Context) {
	appType := entity.ApplicationType(c.Param("type"))
	pipeline, err := h.graph.Pipeline(appType)
	if err != nil {
		h.fail(c, "Failed to get stage graph", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: pipeline})
}

func (h *Handlers) badRequest(c *gin.Context, message string, err error) {
	h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   message + ": " + err.Error(),
		Code:    CodeInvalidInput,
	})
}

func (h *Handlers) fail(c *gin.Context, message string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, "path", c.FullPath(), "error", err)
	} else {
		h.logger.Info(message, "path", c.FullPath(), "code", code, "error", err.Error())
	}

	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	})
}
