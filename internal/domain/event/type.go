package event

// Type identifies the type of domain event
type Type string

const (
	TypeApplicationSubmitted    Type = "application.submitted"
	TypeApplicationTransitioned Type = "application.transitioned"
	TypeApplicationAssigned     Type = "application.assigned"
	TypePaymentRecorded         Type = "payment.recorded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApplicationSubmitted,
		TypeApplicationTransitioned,
		TypeApplicationAssigned,
		TypePaymentRecorded:
		return true
	default:
		return false
	}
}
