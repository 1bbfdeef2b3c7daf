package sessionsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/repo-explorer/pkg/session"
)

var _ session.Store = (*Repository)(nil)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Get(ctx context.Context, sessionID string) (rec session.Record, ok bool, _ error) {
	if err := r.db.QueryRow(
		ctx, `SELECT id, access_token, access_token_expires_at, refresh_token, refresh_token_expires_at, created_at
FROM sessions
WHERE id = $1;`,
		sessionID,
	).
		Scan(&rec.ID, &rec.AccessToken, &rec.AccessTokenExpiresAt, &rec.RefreshToken, &rec.RefreshTokenExpiresAt, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Record{}, false, nil
		}

		return session.Record{}, false, fmt.Errorf("selecting from sessions: %w", err)
	}

	return rec, true, nil
}

func (r *Repository) Put(ctx context.Context, rec session.Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := r.db.Exec(
		ctx, `INSERT INTO sessions (id, access_token, access_token_expires_at, refresh_token, refresh_token_expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id)
	DO UPDATE SET (access_token, access_token_expires_at, refresh_token, refresh_token_expires_at, created_at) =
		(EXCLUDED.access_token, EXCLUDED.access_token_expires_at, EXCLUDED.refresh_token, EXCLUDED.refresh_token_expires_at, EXCLUDED.created_at);`,
		rec.ID, rec.AccessToken, rec.AccessTokenExpiresAt, rec.RefreshToken, rec.RefreshTokenExpiresAt, createdAt,
	); err != nil {
		return fmt.Errorf("inserting into sessions: %w", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, sessionID); err != nil {
		return fmt.Errorf("deleting from sessions: %w", err)
	}

	return nil
}

// DeleteExpired removes the sessions whose refresh window ended before the given time
// and returns the number of removed rows.
func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE refresh_token_expires_at < $1;`, before)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
