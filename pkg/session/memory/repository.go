// Package sessionmemory keeps sessions in process memory. Sessions are lost on
// restart, so it is meant for local development only.
package sessionmemory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/repo-explorer/pkg/session"
)

const cleanupInterval = 10 * time.Minute

var _ session.Store = (*Repository)(nil)

type Repository struct {
	cache *cache.Cache
}

func NewRepository() *Repository {
	return &Repository{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (r *Repository) Get(_ context.Context, sessionID string) (session.Record, bool, error) {
	v, ok := r.cache.Get(sessionID)
	if !ok {
		return session.Record{}, false, nil
	}

	rec, ok := v.(session.Record)
	if !ok {
		return session.Record{}, false, nil
	}

	return rec, true, nil
}

// Put stores the record until session.ExpiredRetention after its refresh
// window ends.
func (r *Repository) Put(_ context.Context, rec session.Record) error {
	ttl := time.Until(rec.RetainUntil())
	if ttl <= 0 {
		ttl = time.Minute
	}

	r.cache.Set(rec.ID, rec, ttl)
	return nil
}

func (r *Repository) Delete(_ context.Context, sessionID string) error {
	r.cache.Delete(sessionID)
	return nil
}

// Flush drops every stored session.
func (r *Repository) Flush() {
	r.cache.Flush()
}
