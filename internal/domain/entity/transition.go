package entity

import "time"

// Decision is the reviewer's verdict carried by a transition
type Decision string

const (
	DecisionApprove     Decision = "Approve"
	DecisionReject      Decision = "Reject"
	DecisionRequestInfo Decision = "RequestInfo"
)

// IsValid returns true if the decision is known
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestInfo:
		return true
	default:
		return false
	}
}

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}

// Actor is the caller identity supplied by the session collaborator
type Actor struct {
	ID   string `json:"actor_id"`
	Role Role   `json:"role"`
}

// TransitionRecord is one immutable entry in an application's audit trail.
// Sequence starts at 1 and is contiguous per application.
type TransitionRecord struct {
	ID            int64     `json:"id"`
	ApplicationID string    `json:"application_id"`
	Sequence      int       `json:"sequence"`
	FromStage     string    `json:"from_stage"`
	ToStage       string    `json:"to_stage"`
	ActorID       string    `json:"actor_id"`
	ActorRole     Role      `json:"actor_role"`
	Decision      Decision  `json:"decision"`
	Note          string    `json:"note,omitempty"`
	DocumentIDs   []string  `json:"document_ids,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
