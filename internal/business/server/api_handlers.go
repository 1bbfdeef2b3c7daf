package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/repo-explorer/internal/middleware/bearer"
	"github.com/openkcm/repo-explorer/internal/proxy"
	"github.com/openkcm/repo-explorer/internal/serviceerr"
)

type apiServer struct {
	sessions Sessions
	proxy    Proxy
	appURL   *url.URL
}

type errorBody struct {
	Error            serviceerr.Code `json:"error"`
	ErrorDescription string          `json:"error_description,omitempty"`
}

type rotatedBody struct {
	SessionID string `json:"sessionId"`
}

func (s *apiServer) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authURL, err := s.sessions.BeginLogin(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to begin the login", "error", err)
		writeError(w, r, serviceerr.ErrServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback completes the login. Every failure other than a bad state is
// reported as a generic authentication failure.
func (s *apiServer) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		slogctx.Warn(ctx, "The provider rejected the login", "error", providerErr, "description", query.Get("error_description"))
		writeError(w, r, serviceerr.ErrAuthenticationFailed)
		return
	}

	sessionID, err := s.sessions.CompleteLogin(ctx, query.Get("code"), query.Get("state"))
	if err != nil {
		slogctx.Error(ctx, "Failed to complete the login", "error", err)

		if errors.Is(err, serviceerr.ErrInvalidState) {
			writeError(w, r, serviceerr.ErrInvalidState)
			return
		}

		writeError(w, r, serviceerr.ErrAuthenticationFailed)
		return
	}

	target := *s.appURL
	q := target.Query()
	q.Set("session", sessionID)
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *apiServer) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if sessionID := bearer.SessionIDFromContext(ctx); sessionID != "" {
		if err := s.sessions.Logout(ctx, sessionID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) user(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := s.proxy.User(ctx, bearer.SessionIDFromContext(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeResult(w, r, result)
}

func (s *apiServer) contents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := s.proxy.Contents(ctx,
		bearer.SessionIDFromContext(ctx),
		r.PathValue("owner"),
		r.PathValue("repo"),
		r.PathValue("path"),
		r.URL.Query().Get("ref"),
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeResult(w, r, result)
}

// writeResult relays the upstream payload, or tells the client to retry with
// the new session id when the session was rotated.
func writeResult(w http.ResponseWriter, r *http.Request, result proxy.Result) {
	if result.Rotated() {
		rotations.Add(r.Context(), 1)
		writeJSON(w, r, http.StatusMultiStatus, rotatedBody{SessionID: result.RotatedSessionID})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(result.Payload); err != nil {
		slogctx.Debug(r.Context(), "Failed to write the response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var serviceErr *serviceerr.Error
	if !errors.As(err, &serviceErr) {
		slogctx.Error(r.Context(), "Unexpected error", "error", err)
		serviceErr = serviceerr.ErrUnknown
	}

	writeJSON(w, r, serviceErr.HTTPStatus(), errorBody{
		Error:            serviceErr.Err,
		ErrorDescription: serviceErr.Description,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slogctx.Debug(r.Context(), "Failed to write the response", "error", err)
	}
}
