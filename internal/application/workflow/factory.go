package workflow

import (
	"time"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/internal/domain/event"
)

func newSubmittedEvent(app *entity.Application) *event.Event {
	return event.NewEvent(event.TypeApplicationSubmitted, app.ID, map[string]interface{}{
		event.KeyApplicationType: app.Type.String(),
		event.KeyToStage:         app.CurrentStage,
		event.KeyActorID:         app.SubmittedBy,
		event.KeyPaymentStatus:   string(app.PaymentStatus),
	}, app.CreatedAt)
}

func newTransitionEvent(app *entity.Application, record *entity.TransitionRecord) *event.Event {
	return event.NewEvent(event.TypeApplicationTransitioned, app.ID, map[string]interface{}{
		event.KeyApplicationType: app.Type.String(),
		event.KeyFromStage:       record.FromStage,
		event.KeyToStage:         record.ToStage,
		event.KeyActorID:         record.ActorID,
		event.KeyActorRole:       record.ActorRole.String(),
		event.KeyDecision:        record.Decision.String(),
		event.KeySequence:        record.Sequence,
	}, record.Timestamp)
}

func newPaymentEvent(app *entity.Application, from, to entity.PaymentStatus, at time.Time) *event.Event {
	return event.NewEvent(event.TypePaymentRecorded, app.ID, map[string]interface{}{
		event.KeyApplicationType: app.Type.String(),
		"previous_status":        string(from),
		event.KeyPaymentStatus:   string(to),
		event.KeyToStage:         app.CurrentStage,
	}, at)
}
