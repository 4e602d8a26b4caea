package driven

import (
	"context"
	"errors"
)

// ErrKeyInUse indicates the serp key is already assigned to a different user.
var ErrKeyInUse = errors.New("serp key already in use")

// KeyStore defines the driven port for assigning the globally unique serp key.
// Uniqueness is enforced by the store itself; SetKey reports a clash as
// (false, nil) instead of an error.
type KeyStore interface {
	// SetKey assigns key to the user, creating the user with defaults if needed.
	// An empty key releases the current assignment.
	SetKey(ctx context.Context, userID int64, key string) (bool, error)

	// GetKey returns the user's key. ok is false when the user does not exist
	// or holds no key. Never creates a record.
	GetKey(ctx context.Context, userID int64) (key string, ok bool, err error)

	// ClearKey releases the user's key and reports whether one was held.
	ClearKey(ctx context.Context, userID int64) (bool, error)

	// KeyExists reports whether any user holds key. When excludeUserID is
	// non-nil that user is ignored.
	KeyExists(ctx context.Context, key string, excludeUserID *int64) (bool, error)
}
