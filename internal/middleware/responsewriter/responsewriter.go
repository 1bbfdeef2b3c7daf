// Package responsewriter provides a response writer that records the status
// code of the response, and utilities to inject it into the context of the
// original *http.Request and also retrieve it.
package responsewriter

import (
	"context"
	"errors"
	"net/http"
)

// Using an unexported type prevents key collisions from other packages.
type responseWriterKey string

// ResponseWriterKey is the context key for the response writer.
const ResponseWriterKey responseWriterKey = "response-writer"

// StatusRecorder wraps an http.ResponseWriter and remembers the status code.
type StatusRecorder struct {
	http.ResponseWriter

	status int
}

func (r *StatusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(b)
}

// Status returns the written status code, or 200 if nothing was written yet.
func (r *StatusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}

// Unwrap lets http.ResponseController reach the original writer.
func (r *StatusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// ResponseWriterMiddleware is an http.Handler middleware that wraps the
// response writer in a StatusRecorder and injects it into the context.
func ResponseWriterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &StatusRecorder{ResponseWriter: w}
		ctx := context.WithValue(r.Context(), ResponseWriterKey, rec)
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// ResponseWriterFromContext is a helper function that retrieves the
// StatusRecorder from the context.
func ResponseWriterFromContext(ctx context.Context) (*StatusRecorder, error) {
	rec, ok := ctx.Value(ResponseWriterKey).(*StatusRecorder)
	if !ok {
		return nil, errors.New("response writer not found in context")
	}
	return rec, nil
}
