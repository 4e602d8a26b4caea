// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/botaccounts/internal/domain/model"
)

// Sentinel errors returned by UserStore implementations.
var (
	// ErrUserNotFound indicates the targeted user record does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientCredits indicates a debit would take the balance below zero.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrCreditOverflow indicates a credit would take the balance past the
	// largest storable value.
	ErrCreditOverflow = errors.New("credit balance overflow")
)

// UserStore defines the driven port for user record persistence.
// GetOrCreate inserts a record with model defaults when none exists.
// Update returns ErrUserNotFound if the record does not exist, and
// ErrKeyInUse if it would assign a serp key held by another user.
type UserStore interface {
	GetOrCreate(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, id int64, upd model.UserUpdate) error
	ListSummaries(ctx context.Context) ([]model.UserSummary, error)
	Count(ctx context.Context) (int64, error)

	// AddCredits adds delta (which may be negative) to the balance and returns
	// the new balance. Returns ErrInsufficientCredits if the result would be
	// negative, ErrCreditOverflow if it would not fit in an int64 and
	// ErrUserNotFound if the record does not exist. A rejected delta leaves
	// the balance unchanged.
	AddCredits(ctx context.Context, id int64, delta int64) (int64, error)

	// Redeem applies r and returns the updated record in one statement, so a
	// failed redemption changes nothing. Returns ErrUserNotFound if the record
	// does not exist and ErrCreditOverflow if the credits do not fit.
	Redeem(ctx context.Context, id int64, r model.Redemption) (*model.User, error)
}
