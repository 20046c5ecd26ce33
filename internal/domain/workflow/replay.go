package workflow

import (
	"fmt"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
)

// Replay folds an application's transition records, in sequence order,
// starting from the entry stage and returns the stage they lead to.
// A record whose from-stage does not match the running stage, or whose
// move the pipeline does not allow, stops the replay with ErrReplayDiverged.
func (g *Graph) Replay(appType entity.ApplicationType, records []entity.TransitionRecord) (string, error) {
	p, err := g.pipeline(appType)
	if err != nil {
		return "", err
	}

	current := p.Entry
	for i, r := range records {
		if r.Sequence != i+1 {
			return current, fmt.Errorf("%w: expected sequence %d, got %d", ErrReplayDiverged, i+1, r.Sequence)
		}
		if r.FromStage != current {
			return current, fmt.Errorf("%w: record %d starts at %s but application was at %s",
				ErrReplayDiverged, r.Sequence, r.FromStage, current)
		}
		if !p.CanMove(r.FromStage, r.ToStage) {
			return current, fmt.Errorf("%w: record %d moves %s -> %s",
				ErrReplayDiverged, r.Sequence, r.FromStage, r.ToStage)
		}
		current = r.ToStage
	}
	return current, nil
}
