package proxy

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/repo-explorer/internal/github"
	"github.com/openkcm/repo-explorer/internal/serviceerr"
	"github.com/openkcm/repo-explorer/pkg/session"
)

type Sessions interface {
	Lookup(ctx context.Context, sessionID string) (session.Record, bool, error)
	Rotate(ctx context.Context, oldSessionID, refreshToken string) (string, error)
	Discard(ctx context.Context, sessionID string)
}

type Upstream interface {
	GetContents(ctx context.Context, token, owner, repo, path, ref string) github.Outcome
	GetUser(ctx context.Context, token string) github.Outcome
}

// Result is either the upstream payload or, when the session was rotated,
// the id the client has to retry with.
type Result struct {
	Payload          []byte
	RotatedSessionID string
}

func (r Result) Rotated() bool {
	return r.RotatedSessionID != ""
}

type Handler struct {
	sessions Sessions
	upstream Upstream
	now      func() time.Time
}

func NewHandler(sessions Sessions, upstream Upstream) *Handler {
	return &Handler{
		sessions: sessions,
		upstream: upstream,
		now:      time.Now,
	}
}

// Contents proxies a repository contents request. Requests without a usable
// session are forwarded anonymously.
func (h *Handler) Contents(ctx context.Context, sessionID, owner, repo, path, ref string) (Result, error) {
	ctx = slogctx.With(ctx, "owner", owner, "repo", repo, "path", path)

	if err := github.ValidatePath(owner, repo, path); err != nil {
		slogctx.Info(ctx, "Rejected contents request", "error", err)
		return Result{}, fmt.Errorf("%w: %w", serviceerr.ErrInvalidRequest, err)
	}

	return h.handle(ctx, sessionID, true, func(token string) github.Outcome {
		return h.upstream.GetContents(ctx, token, owner, repo, path, ref)
	})
}

// User proxies the profile request of the session owner.
func (h *Handler) User(ctx context.Context, sessionID string) (Result, error) {
	return h.handle(ctx, sessionID, false, func(token string) github.Outcome {
		return h.upstream.GetUser(ctx, token)
	})
}

func (h *Handler) handle(ctx context.Context, sessionID string, allowAnonymous bool, call func(token string) github.Outcome) (Result, error) {
	if sessionID == "" {
		if !allowAnonymous {
			return Result{}, serviceerr.ErrUnauthenticated
		}

		return h.forwardAnonymous(ctx, call)
	}

	rec, ok, err := h.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("resolving session: %w", err)
	}

	if !ok {
		if !allowAnonymous {
			return Result{}, serviceerr.ErrSessionNotFound
		}

		slogctx.Debug(ctx, "Unknown session, forwarding anonymously")
		return h.forwardAnonymous(ctx, call)
	}

	ctx = slogctx.With(ctx, "session", rec)
	now := h.now()

	if rec.TerminallyExpired(now) {
		slogctx.Info(ctx, "Session expired")
		h.sessions.Discard(ctx, rec.ID)
		return Result{}, serviceerr.ErrSessionExpired
	}

	if rec.AccessExpired(now) {
		return h.rotate(ctx, rec)
	}

	return h.forward(ctx, rec, call)
}

func (h *Handler) rotate(ctx context.Context, rec session.Record) (Result, error) {
	if !rec.Refreshable() {
		slogctx.Info(ctx, "Access token expired and the session cannot be refreshed")
		h.sessions.Discard(ctx, rec.ID)
		return Result{}, serviceerr.ErrSessionExpired
	}

	newID, err := h.sessions.Rotate(ctx, rec.ID, rec.RefreshToken)
	if err != nil {
		slogctx.Warn(ctx, "Session rotation failed", "error", err)
		h.sessions.Discard(ctx, rec.ID)
		return Result{}, fmt.Errorf("%w: %w", serviceerr.ErrSessionExpired, err)
	}

	return Result{RotatedSessionID: newID}, nil
}

func (h *Handler) forward(ctx context.Context, rec session.Record, call func(token string) github.Outcome) (Result, error) {
	out := call(rec.AccessToken)

	switch out.Kind {
	case github.OutcomeOK:
		return Result{Payload: out.Body}, nil
	case github.OutcomeUnauthorized:
		slogctx.Info(ctx, "Upstream rejected the access token")
		h.sessions.Discard(ctx, rec.ID)
		return Result{}, serviceerr.ErrUnauthenticated
	case github.OutcomeForbidden:
		return Result{}, serviceerr.ErrUpstreamForbidden
	case github.OutcomeNotFound:
		return Result{}, serviceerr.ErrUpstreamNotFound
	case github.OutcomeUpstreamError:
		slogctx.Warn(ctx, "Upstream error", "status", out.StatusCode, "error", out.Err)
		return Result{}, serviceerr.NewUpstreamError(out.StatusCode)
	case github.OutcomeUnreachable:
		slogctx.Error(ctx, "Upstream unreachable", "error", out.Err)
		return Result{}, serviceerr.ErrUpstreamUnreachable
	default:
		return Result{}, fmt.Errorf("unexpected upstream outcome %s", out.Kind)
	}
}

// forwardAnonymous classifies like forward, except that 401 and 404 both
// mean the resource needs a login: GitHub hides private repositories behind 404.
func (h *Handler) forwardAnonymous(ctx context.Context, call func(token string) github.Outcome) (Result, error) {
	out := call("")

	switch out.Kind {
	case github.OutcomeOK:
		return Result{Payload: out.Body}, nil
	case github.OutcomeUnauthorized, github.OutcomeNotFound:
		return Result{}, serviceerr.ErrUnauthenticated
	case github.OutcomeForbidden:
		return Result{}, serviceerr.ErrUpstreamForbidden
	case github.OutcomeUpstreamError:
		slogctx.Warn(ctx, "Upstream error", "status", out.StatusCode, "error", out.Err)
		return Result{}, serviceerr.NewUpstreamError(out.StatusCode)
	case github.OutcomeUnreachable:
		slogctx.Error(ctx, "Upstream unreachable", "error", out.Err)
		return Result{}, serviceerr.ErrUpstreamUnreachable
	default:
		return Result{}, fmt.Errorf("unexpected upstream outcome %s", out.Kind)
	}
}
