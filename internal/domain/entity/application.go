package entity

import "time"

// ApplicationType identifies which approval pipeline an application follows
type ApplicationType string

const (
	TypeCompanyRegistration ApplicationType = "CompanyRegistration"
	TypeRegularPermit       ApplicationType = "RegularPermit"
	TypeRotatorPermit       ApplicationType = "RotatorPermit"
	TypeJVApproval          ApplicationType = "JVApproval"
	TypeRenewal             ApplicationType = "Renewal"
)

// ApplicationTypes lists every supported type in a stable order
var ApplicationTypes = []ApplicationType{
	TypeCompanyRegistration,
	TypeRegularPermit,
	TypeRotatorPermit,
	TypeJVApproval,
	TypeRenewal,
}

// IsValid returns true if the type is one of the supported application types
func (t ApplicationType) IsValid() bool {
	switch t {
	case TypeCompanyRegistration, TypeRegularPermit, TypeRotatorPermit, TypeJVApproval, TypeRenewal:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type
func (t ApplicationType) String() string {
	return string(t)
}

// PaymentStatus is the payment fact consumed from the payment collaborator
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "NotRequired"
	PaymentPending     PaymentStatus = "Pending"
	PaymentVerified    PaymentStatus = "Verified"
	PaymentRejected    PaymentStatus = "Rejected"
)

// IsValid returns true if the status is a known payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentNotRequired, PaymentPending, PaymentVerified, PaymentRejected:
		return true
	default:
		return false
	}
}

// IsOutcome returns true for the statuses a payment collaborator may report
func (s PaymentStatus) IsOutcome() bool {
	return s == PaymentVerified || s == PaymentRejected
}

// Application is a regulatory application moving through its stage pipeline.
//
// CurrentStage is a cache of the transition log: replaying the application's
// TransitionRecords from the entry stage must yield the same value.
// Version increments on every stage change and backs the optimistic check
// that linearizes transitions per application.
type Application struct {
	ID               string          `json:"id"`
	Type             ApplicationType `json:"type"`
	CurrentStage     string          `json:"current_stage"`
	SubmittedBy      string          `json:"submitted_by"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	AssignedTo       string          `json:"assigned_to,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	LastTransitionAt time.Time       `json:"last_transition_at"`
}

// IsAssigned returns true when an actor has claimed the application
func (a *Application) IsAssigned() bool {
	return a.AssignedTo != ""
}
