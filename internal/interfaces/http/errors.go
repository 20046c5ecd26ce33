package http

import (
	"errors"
	"net/http"

	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
)

// Error codes returned in Response.Code
const (
	CodeRoleMismatch         = "ROLE_MISMATCH"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeStaleState           = "STALE_STATE"
	CodePaymentNotVerified   = "PAYMENT_NOT_VERIFIED"
	CodeApplicationTerminal  = "APPLICATION_TERMINAL"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidInput         = "INVALID_INPUT"
	CodePaymentConflict      = "PAYMENT_CONFLICT"
	CodeTransitionNotConfirm = "TRANSITION_NOT_CONFIRMED"
	CodeInternal             = "INTERNAL"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins
var errorMappings = []errorMapping{
	{domainwf.ErrRoleMismatch, http.StatusForbidden, CodeRoleMismatch},
	{domainwf.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{domainwf.ErrStaleState, http.StatusConflict, CodeStaleState},
	{domainwf.ErrPaymentNotVerified, http.StatusPaymentRequired, CodePaymentNotVerified},
	{domainwf.ErrApplicationTerminal, http.StatusGone, CodeApplicationTerminal},
	{domainwf.ErrApplicationNotFound, http.StatusNotFound, CodeNotFound},
	{domainwf.ErrUnknownType, http.StatusNotFound, CodeNotFound},
	{domainwf.ErrUnknownStage, http.StatusBadRequest, CodeInvalidInput},
	{domainwf.ErrInvalidDecision, http.StatusBadRequest, CodeInvalidInput},
	{domainwf.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput},
	{domainwf.ErrPaymentNotApplicable, http.StatusConflict, CodePaymentConflict},
	{domainwf.ErrPaymentFinal, http.StatusConflict, CodePaymentConflict},
	{domainwf.ErrNotConfirmed, http.StatusServiceUnavailable, CodeTransitionNotConfirm},
}

// statusFor maps an application error to an HTTP status and error code
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}
