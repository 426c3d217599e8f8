package ingress

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrValidation       = errors.New("validation failed")
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrStore            = errors.New("store write failed")
	ErrMisconfigured    = errors.New("server misconfigured")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

// statusFor maps an App error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownChannel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the error text returned to callers. Store failures are
// not detailed.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "Invalid signature"
	case errors.Is(err, ErrValidation):
		return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	case errors.Is(err, ErrMisconfigured):
		return ErrMisconfigured.Error()
	case errors.Is(err, ErrStore):
		return ErrStore.Error()
	default:
		return err.Error()
	}
}
