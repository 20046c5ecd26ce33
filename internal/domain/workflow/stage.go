package workflow

import "github.com/garyjia/agency-workflow/internal/domain/entity"

// StageDefinition describes one step of an approval pipeline
type StageDefinition struct {
	ID              string          `json:"stage_id" yaml:"id"`
	OwnerRole       entity.Role     `json:"owner_role" yaml:"owner"`
	Next            []string        `json:"allowed_next_stages" yaml:"next"`
	RequiresPayment bool            `json:"requires_payment" yaml:"requires_payment"`
	Terminal        bool            `json:"is_terminal" yaml:"terminal"`
	Rejection       bool            `json:"is_rejection" yaml:"rejection"`
	SLADays         int             `json:"sla_days" yaml:"sla_days"`
	BasePriority    entity.Priority `json:"base_priority" yaml:"priority"`
}

// Allows returns true if target is one of the stage's allowed next stages
func (s StageDefinition) Allows(target string) bool {
	for _, next := range s.Next {
		if next == target {
			return true
		}
	}
	return false
}

// forward returns the first allowed next stage that is not a rejection
func (p *Pipeline) forward(s StageDefinition) (string, bool) {
	for _, next := range s.Next {
		if n, ok := p.Stage(next); ok && !n.Rejection {
			return next, true
		}
	}
	return "", false
}

func (s StageDefinition) clone() StageDefinition {
	s.Next = append([]string(nil), s.Next...)
	return s
}

// Pipeline is the immutable stage sequence for one application type
type Pipeline struct {
	Type   entity.ApplicationType `json:"type"`
	Entry  string                 `json:"entry_stage"`
	Rework string                 `json:"rework_stage"`
	Stages []StageDefinition      `json:"stages"`

	index map[string]int
}

// clone copies the stages; the index is never written after Build and is shared
func (p *Pipeline) clone() *Pipeline {
	out := *p
	out.Stages = make([]StageDefinition, len(p.Stages))
	for i, s := range p.Stages {
		out.Stages[i] = s.clone()
	}
	return &out
}

// Stage looks up a stage by id
func (p *Pipeline) Stage(id string) (StageDefinition, bool) {
	i, ok := p.index[id]
	if !ok {
		return StageDefinition{}, false
	}
	return p.Stages[i], true
}

// RequiresPayment returns true if any stage of the pipeline is payment-gated
func (p *Pipeline) RequiresPayment() bool {
	for _, s := range p.Stages {
		if s.RequiresPayment {
			return true
		}
	}
	return false
}

// CanMove reports whether from -> to is a legal move, counting both the
// explicit allowed-next edges and the implicit rework edge every
// non-terminal stage carries.
func (p *Pipeline) CanMove(from, to string) bool {
	stage, ok := p.Stage(from)
	if !ok || stage.Terminal {
		return false
	}
	if _, ok := p.Stage(to); !ok {
		return false
	}
	return to == p.Rework || stage.Allows(to)
}
