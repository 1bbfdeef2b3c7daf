package github

import "net/http"

// OutcomeKind is the closed set of results of an upstream call.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeUnauthorized
	OutcomeForbidden
	OutcomeNotFound
	OutcomeUpstreamError
	OutcomeUnreachable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUpstreamError:
		return "upstream_error"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Outcome is a classified upstream response. Body holds the unmodified
// payload for OutcomeOK. StatusCode is zero for OutcomeUnreachable.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Err        error
}

// Classify maps an upstream status code to its outcome kind.
func Classify(status int) OutcomeKind {
	switch {
	case status >= 200 && status <= 299:
		return OutcomeOK
	case status == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case status == http.StatusForbidden:
		return OutcomeForbidden
	case status == http.StatusNotFound:
		return OutcomeNotFound
	default:
		return OutcomeUpstreamError
	}
}
