package serviceerr

import (
	"fmt"
	"net/http"
)

type Code string

const (
	// RFC6749 codes used by the callback endpoint
	CodeInvalidRequest Code = "invalid_request"
	CodeServerError    Code = "server_error"

	// Custom codes
	CodeUnknown              Code = "unknown"
	CodeInvalidState         Code = "invalid_state"
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeUnauthenticated      Code = "unauthenticated"
	CodeSessionNotFound      Code = "session_not_found"
	CodeSessionExpired       Code = "session_expired"
	CodeForbidden            Code = "forbidden"
	CodeNotFound             Code = "not_found"
	CodeUpstreamError        Code = "upstream_error"
	CodeUpstreamUnreachable  Code = "upstream_unreachable"
)

// Error is an error returned to the browser as
// {"error": Err, "error_description": Description}.
type Error struct {
	Err         Code
	Description string

	// Status overrides the status derived from Err. Used for upstream errors
	// that are relayed with the upstream status.
	Status int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Err, e.Description)
}

func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}

	switch e.Err {
	case CodeInvalidRequest, CodeInvalidState:
		return http.StatusBadRequest
	case CodeUnauthenticated, CodeSessionNotFound, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrInvalidRequest = &Error{Err: CodeInvalidRequest, Description: "invalid request"}
	ErrServerError    = &Error{Err: CodeServerError}

	ErrUnknown              = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrInvalidState         = &Error{Err: CodeInvalidState, Description: "login state is missing, invalid or expired"}
	ErrAuthenticationFailed = &Error{Err: CodeAuthenticationFailed, Description: "Authentication failed"}
	ErrUnauthenticated      = &Error{Err: CodeUnauthenticated, Description: "Not authenticated"}
	ErrSessionNotFound      = &Error{Err: CodeSessionNotFound, Description: "session not found"}
	ErrSessionExpired       = &Error{Err: CodeSessionExpired, Description: "session expired"}
	ErrUpstreamForbidden    = &Error{Err: CodeForbidden, Description: "access to the resource is forbidden"}
	ErrUpstreamNotFound     = &Error{Err: CodeNotFound, Description: "resource not found"}
	ErrUpstreamUnreachable  = &Error{Err: CodeUpstreamUnreachable, Description: "Failed to fetch from GitHub"}
)

// NewUpstreamError returns the generic proxy error for an upstream status
// that has no dedicated mapping. The status is relayed as is.
func NewUpstreamError(status int) *Error {
	return &Error{
		Err:         CodeUpstreamError,
		Description: fmt.Sprintf("GitHub API error: %s", http.StatusText(status)),
		Status:      status,
	}
}
