package session

import (
	"log/slog"
	"time"
)

// Record represents one authenticated identity's permission to call the
// GitHub API on the user's behalf. Records are never updated in place:
// a refresh produces a new Record under a new ID.
type Record struct {
	ID                    string    `json:"id"`                    // Session ID handed out to the browser
	AccessToken           string    `json:"accessToken"`           // Access token from the identity provider
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`  // Access token must not be used after this time
	RefreshToken          string    `json:"refreshToken"`          // Refresh token from the identity provider, may be empty
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"` // Session is unrecoverable after this time
	CreatedAt             time.Time `json:"createdAt"`
}

// AccessExpired reports whether the access token can no longer be used at now.
func (r Record) AccessExpired(now time.Time) bool {
	return now.After(r.AccessTokenExpiresAt)
}

// TerminallyExpired reports whether neither token can be used at now.
func (r Record) TerminallyExpired(now time.Time) bool {
	return now.After(r.RefreshTokenExpiresAt)
}

// ExpiredRetention is how long stores keep a record after its refresh window
// ended, so that the next request sees the terminal expiry instead of an
// unknown session.
const ExpiredRetention = 24 * time.Hour

// RetainUntil is the time after which a store may drop the record.
func (r Record) RetainUntil() time.Time {
	return r.RefreshTokenExpiresAt.Add(ExpiredRetention)
}

// Refreshable reports whether the record carries a refresh token.
func (r Record) Refreshable() bool {
	return r.RefreshToken != ""
}

// LogValue implements slog.LogValuer. Tokens are never logged.
func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", r.ID),
		slog.Time("access_token_expires_at", r.AccessTokenExpiresAt),
		slog.Time("refresh_token_expires_at", r.RefreshTokenExpiresAt),
		slog.Bool("refreshable", r.Refreshable()),
	)
}
