// Package sessionvalkey implements session.Store on top of Valkey.
// Records expire natively session.ExpiredRetention after their refresh window.
package sessionvalkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/repo-explorer/pkg/session"
)

const objectTypeSession = "session"

type Repository struct {
	store *store
}

var _ session.Store = (*Repository)(nil)

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) Put(ctx context.Context, rec session.Record) error {
	ttl := time.Until(rec.RetainUntil())
	if ttl <= 0 {
		ttl = time.Minute
	}

	if err := r.store.Set(ctx, objectTypeSession, rec.ID, rec, ttl); err != nil {
		return fmt.Errorf("setting session into storage: %w", err)
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, sessionID string) (rec session.Record, ok bool, _ error) {
	err := r.store.Get(ctx, objectTypeSession, sessionID, &rec)
	if errors.Is(err, errNotFound) {
		return session.Record{}, false, nil
	}
	if err != nil {
		return session.Record{}, false, fmt.Errorf("getting session from store: %w", err)
	}

	return rec, true, nil
}

func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	if err := r.store.Destroy(ctx, objectTypeSession, sessionID); err != nil {
		return fmt.Errorf("deleting session from store: %w", err)
	}

	return nil
}
