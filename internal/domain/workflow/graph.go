package workflow

import (
	"fmt"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
)

// Graph holds the pipelines of every application type. A Graph is never
// mutated after Build and is safe for concurrent use without locking.
type Graph struct {
	types     []entity.ApplicationType
	pipelines map[entity.ApplicationType]*Pipeline
}

// Types returns the configured application types in definition order
func (g *Graph) Types() []entity.ApplicationType {
	return append([]entity.ApplicationType(nil), g.types...)
}

// Pipeline returns a copy of the pipeline for an application type
func (g *Graph) Pipeline(appType entity.ApplicationType) (*Pipeline, error) {
	p, err := g.pipeline(appType)
	if err != nil {
		return nil, err
	}
	return p.clone(), nil
}

func (g *Graph) pipeline(appType entity.ApplicationType) (*Pipeline, error) {
	p, ok := g.pipelines[appType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, appType)
	}
	return p, nil
}

// StagesFor returns a copy of the ordered stage definitions for a type
func (g *Graph) StagesFor(appType entity.ApplicationType) ([]StageDefinition, error) {
	p, err := g.pipeline(appType)
	if err != nil {
		return nil, err
	}
	stages := make([]StageDefinition, len(p.Stages))
	for i, s := range p.Stages {
		stages[i] = s.clone()
	}
	return stages, nil
}

// Stage returns a single stage definition
func (g *Graph) Stage(appType entity.ApplicationType, stageID string) (StageDefinition, error) {
	p, err := g.pipeline(appType)
	if err != nil {
		return StageDefinition{}, err
	}
	s, ok := p.Stage(stageID)
	if !ok {
		return StageDefinition{}, fmt.Errorf("%w: %s/%s", ErrUnknownStage, appType, stageID)
	}
	return s.clone(), nil
}

// IsValidTransition reports whether to is in the allowed next stages of from
func (g *Graph) IsValidTransition(appType entity.ApplicationType, from, to string) bool {
	p, ok := g.pipelines[appType]
	if !ok {
		return false
	}
	s, ok := p.Stage(from)
	if !ok {
		return false
	}
	return s.Allows(to)
}

// OwnerRole returns the role authorized to act at a stage
func (g *Graph) OwnerRole(appType entity.ApplicationType, stageID string) (entity.Role, error) {
	s, err := g.Stage(appType, stageID)
	if err != nil {
		return "", err
	}
	return s.OwnerRole, nil
}

// OwnedStages returns the non-terminal stages owned by role, keyed by type
func (g *Graph) OwnedStages(role entity.Role) map[entity.ApplicationType][]string {
	owned := make(map[entity.ApplicationType][]string)
	for _, appType := range g.types {
		for _, s := range g.pipelines[appType].Stages {
			if s.OwnerRole == role && !s.Terminal {
				owned[appType] = append(owned[appType], s.ID)
			}
		}
	}
	return owned
}

// ResolveTarget decides the stage a decision moves an application to.
//
// Approve must name one of the allowed next stages that is not a rejection
// stage; an empty target takes the first such stage. RequestInfo always
// returns to the rework stage. Reject returns to the rework stage unless it
// names an allowed rejection stage.
func (g *Graph) ResolveTarget(appType entity.ApplicationType, from string, decision entity.Decision, target string) (string, error) {
	p, err := g.pipeline(appType)
	if err != nil {
		return "", err
	}
	stage, ok := p.Stage(from)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnknownStage, appType, from)
	}
	if stage.Terminal {
		return "", fmt.Errorf("%w: %s", ErrApplicationTerminal, from)
	}

	switch decision {
	case entity.DecisionApprove:
		if target == "" {
			next, ok := p.forward(stage)
			if !ok {
				return "", fmt.Errorf("%w: %s has no stage to approve into", ErrInvalidTransition, from)
			}
			return next, nil
		}
		next, ok := p.Stage(target)
		if !ok || !stage.Allows(target) {
			return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
		}
		if next.Rejection {
			return "", fmt.Errorf("%w: approve cannot move %s into rejection stage %s", ErrInvalidTransition, from, target)
		}
		return target, nil

	case entity.DecisionRequestInfo:
		if target != "" && target != p.Rework {
			return "", fmt.Errorf("%w: request info must return to %s, not %s", ErrInvalidTransition, p.Rework, target)
		}
		return p.Rework, nil

	case entity.DecisionReject:
		if target == "" || target == p.Rework {
			return p.Rework, nil
		}
		next, ok := p.Stage(target)
		if !ok || !next.Rejection || !stage.Allows(target) {
			return "", fmt.Errorf("%w: reject %s -> %s", ErrInvalidTransition, from, target)
		}
		return target, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
}
