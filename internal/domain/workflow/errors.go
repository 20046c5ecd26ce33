package workflow

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidTransition is returned when the target stage is not reachable from the current stage
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrRoleMismatch is returned when the actor does not own the current stage
	ErrRoleMismatch = errors.New("actor role does not own the current stage")

	// ErrPaymentNotVerified is returned when leaving a payment-gated stage without verified payment
	ErrPaymentNotVerified = errors.New("payment not verified")

	// ErrApplicationTerminal is returned when the application is already in a terminal stage
	ErrApplicationTerminal = errors.New("application is in a terminal stage")

	// ErrStaleState is returned when the application changed underneath the caller
	ErrStaleState = errors.New("application state is stale")

	// ErrNotConfirmed is returned when storage failed and the outcome of a write is unknown
	ErrNotConfirmed = errors.New("transition not confirmed")

	// ErrApplicationNotFound is returned when no application has the requested id
	ErrApplicationNotFound = errors.New("application not found")

	// ErrInvalidInput is returned for a malformed request
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownType is returned when no pipeline is defined for an application type
	ErrUnknownType = errors.New("unknown application type")

	// ErrUnknownStage is returned when a stage is not defined for the application type
	ErrUnknownStage = errors.New("unknown stage")

	// ErrInvalidDecision is returned for a decision outside Approve, Reject and RequestInfo
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrPaymentNotApplicable is returned when a payment outcome is recorded for an application that needs none
	ErrPaymentNotApplicable = errors.New("payment not applicable")

	// ErrPaymentFinal is returned when a verified payment would be overwritten
	ErrPaymentFinal = errors.New("payment already verified")

	// ErrReplayDiverged is returned when the transition log does not replay cleanly
	ErrReplayDiverged = errors.New("transition log does not replay")
)

// ConfigError collects every problem found while validating a stage graph
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid stage graph: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) add(problem string) {
	e.Problems = append(e.Problems, problem)
}

func (e *ConfigError) empty() bool {
	return len(e.Problems) == 0
}
