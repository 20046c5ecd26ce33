package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by producers and delivery sinks
const (
	KeyApplicationType = "application_type"
	KeyFromStage       = "from_stage"
	KeyToStage         = "to_stage"
	KeyActorID         = "actor_id"
	KeyActorRole       = "actor_role"
	KeyDecision        = "decision"
	KeySequence        = "sequence"
	KeyPaymentStatus   = "payment_status"
	KeyAssignedTo      = "assigned_to"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ApplicationID string                 `json:"application_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID
func NewEvent(eventType Type, applicationID string, payload map[string]interface{}, at time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		ApplicationID: applicationID,
		Payload:       payload,
		Timestamp:     at,
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, applicationID string, payload map[string]interface{}, at time.Time, correlationID string) *Event {
	e := NewEvent(eventType, applicationID, payload, at)
	e.CorrelationID = correlationID
	return e
}

// Decode restores an event from its stored JSON form
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Encode returns the JSON form used by the outbox and delivery sinks
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	return &Event{
		ID:            e.ID,
		Type:          e.Type,
		ApplicationID: e.ApplicationID,
		Payload:       newPayload,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
