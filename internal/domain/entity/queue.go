package entity

import "time"

// QueueItem is a derived, per-role view of an application awaiting action.
// It is computed per request and never persisted.
type QueueItem struct {
	ApplicationID    string          `json:"application_id"`
	Type             ApplicationType `json:"type"`
	Stage            string          `json:"stage"`
	OwnerRole        Role            `json:"owner_role"`
	SubmittedBy      string          `json:"submitted_by"`
	AssignedTo       string          `json:"assigned_to,omitempty"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	Priority         Priority        `json:"priority"`
	DaysWaiting      int             `json:"days_waiting"`
	SLADays          int             `json:"sla_days"`
	Overdue          bool            `json:"overdue"`
	CreatedAt        time.Time       `json:"created_at"`
	LastTransitionAt time.Time       `json:"last_transition_at"`
}

// OutboxMessage is a domain event waiting for, or past, delivery
type OutboxMessage struct {
	EventID       string     `json:"event_id"`
	ApplicationID string     `json:"application_id"`
	EventType     string     `json:"event_type"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}
