// Package bearer provides utilities to inject the session id carried in the
// Authorization header in and retrieve it from the context.
package bearer

import (
	"context"
	"net/http"
	"strings"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

// SessionIDKey is the context key used to store the bearer session id.
const SessionIDKey contextKey = "session-id"

const prefix = "Bearer "

// SessionIDMiddleware is an http.Handler middleware that injects the bearer
// session id of the *http.Request into the context for later handlers to access.
// Requests without a bearer credential pass through unchanged.
func SessionIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := sessionIDFromHeader(r.Header.Get("Authorization")); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), SessionIDKey, id))
		}

		next.ServeHTTP(w, r)
	})
}

// SessionIDFromContext returns the bearer session id, or an empty string for
// anonymous requests.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// sessionIDFromHeader extracts the credential of a "Bearer <id>" header value.
// The scheme is matched case-insensitively.
func sessionIDFromHeader(header string) string {
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(header[len(prefix):])
}
