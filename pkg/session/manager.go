package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/repo-explorer/internal/idsource"
	"github.com/openkcm/repo-explorer/internal/oauth"
	"github.com/openkcm/repo-explorer/internal/serviceerr"
	"github.com/openkcm/repo-explorer/pkg/csrf"
)

// rotatedTTL bounds how long a rotated session id keeps resolving to its successor.
const rotatedTTL = 30 * time.Second

// Exchanger talks to the OAuth provider.
type Exchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (oauth.TokenResponse, error)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (oauth.TokenResponse, error)
}

type Config struct {
	// SessionDuration is used for tokens the provider issues without a lifetime.
	SessionDuration time.Duration
	StateSecret     string
	StateMaxAge     time.Duration
	// AuditObjectID identifies this service in audit events.
	AuditObjectID string
}

type Manager struct {
	sessions  Store
	exchanger Exchanger
	ids       idsource.Source
	audit     *otlpaudit.AuditLogger

	rotations singleflight.Group
	rotated   *cache.Cache

	sessionDuration time.Duration
	stateSecret     []byte
	stateMaxAge     time.Duration
	auditObjectID   string
}

func NewManager(cfg Config, sessions Store, exchanger Exchanger, auditLogger *otlpaudit.AuditLogger) *Manager {
	return &Manager{
		sessions:        sessions,
		exchanger:       exchanger,
		audit:           auditLogger,
		rotated:         cache.New(rotatedTTL, 2*rotatedTTL),
		sessionDuration: cfg.SessionDuration,
		stateSecret:     []byte(cfg.StateSecret),
		stateMaxAge:     cfg.StateMaxAge,
		auditObjectID:   cfg.AuditObjectID,
	}
}

// BeginLogin returns the provider authorize URL. Nothing is persisted: the
// state is signed and validated statelessly in CompleteLogin.
func (m *Manager) BeginLogin(ctx context.Context) (string, error) {
	if len(m.stateSecret) == 0 {
		return "", errors.New("login state secret is not configured")
	}

	state := csrf.NewState(m.stateSecret, time.Now())
	slogctx.Debug(ctx, "Starting login")

	return m.exchanger.AuthCodeURL(state), nil
}

// CompleteLogin exchanges the authorization code, stores a new session and
// returns its id.
func (m *Manager) CompleteLogin(ctx context.Context, code, state string) (string, error) {
	metadata, err := otlpaudit.NewEventMetadata("repo explorer", m.auditObjectID, uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("creating audit metadata: %w", err)
	}

	if err := csrf.ValidateState(state, m.stateSecret, time.Now(), m.stateMaxAge); err != nil {
		m.sendUserLoginFailureAudit(ctx, metadata, "invalid state")
		return "", fmt.Errorf("%w: %w", serviceerr.ErrInvalidState, err)
	}

	if code == "" {
		m.sendUserLoginFailureAudit(ctx, metadata, "missing code")
		return "", &serviceerr.Error{Err: serviceerr.CodeInvalidRequest, Description: "missing authorization code"}
	}

	tokens, err := m.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		m.sendUserLoginFailureAudit(ctx, metadata, "code exchange failed")
		return "", fmt.Errorf("%w: %w", serviceerr.ErrAuthenticationFailed, err)
	}

	slogctx.Info(ctx, "Exchanged the auth code for tokens")

	rec := m.newRecord(tokens, time.Now())
	if err := m.sessions.Put(ctx, rec); err != nil {
		m.sendUserLoginFailureAudit(ctx, metadata, "failed to store session")
		return "", fmt.Errorf("storing session: %w", err)
	}

	m.sendUserLoginSuccessAudit(ctx, metadata)
	slogctx.Info(ctx, "Session created", "session", rec)

	return rec.ID, nil
}

// Rotate exchanges the refresh token of oldSessionID for a new token pair,
// stores it under a new id and deletes the old one. Concurrent rotations of
// the same id share one exchange and return the same new id. The store is
// not touched when the exchange fails.
func (m *Manager) Rotate(ctx context.Context, oldSessionID, refreshToken string) (string, error) {
	if newID, ok := m.rotated.Get(oldSessionID); ok {
		return newID.(string), nil
	}

	// A browser abort must not leave a put without its delete.
	ctx = context.WithoutCancel(ctx)

	v, err, shared := m.rotations.Do(oldSessionID, func() (any, error) {
		if newID, ok := m.rotated.Get(oldSessionID); ok {
			return newID.(string), nil
		}

		tokens, err := m.exchanger.ExchangeRefreshToken(ctx, refreshToken)
		if err != nil {
			return "", fmt.Errorf("exchanging refresh token: %w", err)
		}

		rec := m.newRecord(tokens, time.Now())
		if err := m.sessions.Put(ctx, rec); err != nil {
			return "", fmt.Errorf("storing rotated session: %w", err)
		}

		if err := m.sessions.Delete(ctx, oldSessionID); err != nil {
			slogctx.Warn(ctx, "Failed to delete the rotated session", "error", err)
		}

		m.rotated.SetDefault(oldSessionID, rec.ID)
		slogctx.Info(ctx, "Session rotated", "session", rec)

		return rec.ID, nil
	})
	if err != nil {
		return "", err
	}

	if shared {
		slogctx.Debug(ctx, "Joined an in-flight session rotation")
	}

	return v.(string), nil
}

// Logout deletes the session. Unknown ids are not an error.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// Lookup returns the stored session. ok is false for unknown ids.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (Record, bool, error) {
	rec, ok, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return Record{}, false, fmt.Errorf("loading session: %w", err)
	}

	return rec, ok, nil
}

// Discard deletes a session that can no longer be used.
func (m *Manager) Discard(ctx context.Context, sessionID string) {
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		slogctx.Warn(ctx, "Failed to delete the session", "error", err)
	}
}

func (m *Manager) newRecord(tokens oauth.TokenResponse, now time.Time) Record {
	rec := Record{
		ID:          m.ids.SessionID(),
		AccessToken: tokens.AccessToken,
		CreatedAt:   now,
	}

	// Tokens without a lifetime get the configured session duration and
	// no refresh, so the user logs in again afterwards.
	if tokens.ExpiresIn <= 0 {
		rec.AccessTokenExpiresAt = now.Add(m.sessionDuration)
		rec.RefreshTokenExpiresAt = rec.AccessTokenExpiresAt
		return rec
	}

	rec.AccessTokenExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	rec.RefreshTokenExpiresAt = rec.AccessTokenExpiresAt

	if tokens.RefreshToken != "" {
		rec.RefreshToken = tokens.RefreshToken
		if tokens.RefreshTokenExpiresIn > 0 {
			rec.RefreshTokenExpiresAt = now.Add(time.Duration(tokens.RefreshTokenExpiresIn) * time.Second)
		} else {
			rec.RefreshTokenExpiresAt = now.Add(max(m.sessionDuration, time.Duration(tokens.ExpiresIn)*time.Second))
		}
	}

	return rec
}

func (m *Manager) sendUserLoginSuccessAudit(ctx context.Context, metadata otlpaudit.EventMetadata) {
	if m.audit == nil {
		return
	}

	event, err := otlpaudit.NewUserLoginSuccessEvent(metadata, m.auditObjectID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.MFATYPE_NONE, otlpaudit.USERTYPE_BUSINESS, m.auditObjectID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login success", "error", err)
	}
}

// sendUserLoginFailureAudit creates the user-login-failure audit event and sends it.
// Errors are logged and not returned.
func (m *Manager) sendUserLoginFailureAudit(ctx context.Context, metadata otlpaudit.EventMetadata, reason string) {
	if m.audit == nil {
		return
	}

	event, err := otlpaudit.NewUserLoginFailureEvent(metadata, m.auditObjectID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.FailReason(reason), m.auditObjectID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login failure", "error", err)
	}
}
