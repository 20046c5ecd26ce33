// Package priority derives queue urgency from stage SLAs and elapsed time.
package priority

import (
	"time"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/workflow"
)

const day = 24 * time.Hour

// Assessment is the computed urgency of an application at a point in time
type Assessment struct {
	Priority    entity.Priority `json:"priority"`
	DaysWaiting int             `json:"days_waiting"`
	SLADays     int             `json:"sla_days"`
	Overdue     bool            `json:"overdue"`
}

// Calculator looks up stage SLAs in the stage graph. It holds no other
// state, so results depend only on the arguments.
type Calculator struct {
	graph *workflow.Graph
}

// NewCalculator creates a calculator over an immutable stage graph
func NewCalculator(graph *workflow.Graph) *Calculator {
	return &Calculator{graph: graph}
}

// Assess computes priority, days waiting and overdue for an application
// sitting in stageID since lastTransitionAt, as observed at now.
func (c *Calculator) Assess(appType entity.ApplicationType, stageID string, lastTransitionAt, now time.Time) (Assessment, error) {
	stage, err := c.graph.Stage(appType, stageID)
	if err != nil {
		return Assessment{}, err
	}
	return Compute(stage, lastTransitionAt, now), nil
}

// Compute is the pure form of Assess for an already resolved stage.
// Terminal stages are never overdue.
func Compute(stage workflow.StageDefinition, lastTransitionAt, now time.Time) Assessment {
	days := DaysWaiting(lastTransitionAt, now)
	base := stage.BasePriority
	if !base.IsValid() {
		base = entity.PriorityMedium
	}

	a := Assessment{
		Priority:    base,
		DaysWaiting: days,
		SLADays:     stage.SLADays,
	}
	if stage.Terminal {
		return a
	}

	a.Overdue = days > stage.SLADays
	if a.Overdue {
		a.Priority = base.Escalate()
	}
	return a
}

// DaysWaiting returns the whole days elapsed between since and now.
// A clock that runs behind since yields 0.
func DaysWaiting(since, now time.Time) int {
	elapsed := now.Sub(since)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / day)
}
