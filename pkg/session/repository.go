package session

import "context"

// Store is a durable mapping from session ID to Record.
//
// Get reports an absent key with ok == false and a nil error; errors are
// reserved for storage failures. Delete of an absent key is not an error.
type Store interface {
	Put(ctx context.Context, r Record) error
	Get(ctx context.Context, sessionID string) (r Record, ok bool, err error)
	Delete(ctx context.Context, sessionID string) error
}
