// Package constant holds the sentinel errors and small enums shared
// across the tunnel engines, the way the teacher's constant package
// centralizes cross-cutting types instead of letting each adapter
// invent its own.
package constant

import (
	"errors"
	"net/http"
)

// Error kinds from spec §7. Handlers map these to HTTP status codes;
// nothing below an HTTP boundary ever leaks a Go stack trace to a
// client.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUpstreamDial   = errors.New("upstream dial failure")
	ErrUpstreamIO     = errors.New("upstream io error")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrInternal       = errors.New("internal error")
)

// StatusFor maps an error kind to the HTTP status spec §7 calls for.
// Unrecognized errors are treated as internal.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamDial):
		return http.StatusBadGateway
	case errors.Is(err, ErrUpstreamIO):
		return http.StatusBadGateway
	case errors.Is(err, ErrProtocolViolation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
