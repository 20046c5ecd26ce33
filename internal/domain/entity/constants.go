package entity

// Role is an organizational role that owns one or more stages
type Role string

const (
	RoleApplicant       Role = "applicant"
	RoleCommissionAdmin Role = "commission_admin"
	RoleFinance         Role = "finance"
	RoleImmigration     Role = "immigration"
	RoleGIS             Role = "gis"
)

// IsValid returns true if the role is part of the closed role set
func (r Role) IsValid() bool {
	switch r {
	case RoleApplicant, RoleCommissionAdmin, RoleFinance, RoleImmigration, RoleGIS:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Priority is the urgency level of a queue item
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Rank orders priorities; higher is more urgent. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// IsValid returns true if the priority is known
func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// Escalate returns the next priority level up; High stays High
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium, PriorityHigh:
		return PriorityHigh
	default:
		return p
	}
}

// Outbox delivery status constants
const (
	OutboxStatusPending   = "PENDING"
	OutboxStatusDelivered = "DELIVERED"
	OutboxStatusFailed    = "FAILED"
)
