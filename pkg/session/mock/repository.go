package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/repo-explorer/pkg/session"
)

var _ session.Store = (*Repository)(nil)

type Repository struct {
	mu       sync.Mutex
	Sessions map[string]session.Record

	getErr, putErr, deleteErr error
}

func NewInMemRepository(getErr, putErr, deleteErr error) *Repository {
	return &Repository{
		Sessions:  make(map[string]session.Record),
		getErr:    getErr,
		putErr:    putErr,
		deleteErr: deleteErr,
	}
}

func (r *Repository) Get(ctx context.Context, sessionID string) (session.Record, bool, error) {
	if r.getErr != nil {
		return session.Record{}, false, r.getErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.Sessions[sessionID]
	return rec, ok, nil
}

func (r *Repository) Put(ctx context.Context, rec session.Record) error {
	if r.putErr != nil {
		return r.putErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sessions[rec.ID] = rec
	return nil
}

func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.Sessions, sessionID)
	return nil
}

// Len returns the number of stored sessions.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.Sessions)
}
