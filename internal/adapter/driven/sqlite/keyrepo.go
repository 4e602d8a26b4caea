package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/botaccounts/internal/domain/model"
	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KeyStore = (*KeyRepo)(nil)

// KeyRepo is the SQLite implementation of the KeyStore port interface.
// Uniqueness of serp_key is enforced by the column's UNIQUE constraint.
type KeyRepo struct {
	db  *DB
	now func() time.Time
}

// NewKeyRepo creates a new KeyRepo backed by the given DB.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db, now: time.Now}
}

// SetKey assigns key to the user in one upsert: a missing user is created with
// defaults carrying the key, an existing user has its key overwritten. Returns
// false when another user already holds key.
func (r *KeyRepo) SetKey(ctx context.Context, userID int64, key string) (bool, error) {
	const query = `
		INSERT INTO users (id, credits, plan, status, plan_expiry, keys_redeemed, registered_at, custom_urls, serp_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET serp_key = excluded.serp_key
	`

	u := model.NewUser(userID, r.now())

	_, err := r.db.Writer.ExecContext(ctx, query,
		u.ID, u.Credits, u.Plan, u.Status, u.PlanExpiry,
		u.KeysRedeemed, u.RegisteredAt, model.EncodeURLList(u.CustomURLs), keyArg(key),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("set serp key for user %d: %w", userID, err)
	}

	return true, nil
}

// GetKey returns the user's serp key. ok is false if the user does not exist
// or has no key.
func (r *KeyRepo) GetKey(ctx context.Context, userID int64) (string, bool, error) {
	const query = `SELECT serp_key FROM users WHERE id = ?`

	var key sql.NullString
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get serp key for user %d: %w", userID, err)
	}

	if !key.Valid || key.String == "" {
		return "", false, nil
	}
	return key.String, true, nil
}

// ClearKey releases the user's serp key. Returns true only if a key was held.
func (r *KeyRepo) ClearKey(ctx context.Context, userID int64) (bool, error) {
	const query = `
		UPDATE users SET serp_key = NULL
		WHERE id = ? AND serp_key IS NOT NULL AND serp_key <> ''
	`

	result, err := r.db.Writer.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("clear serp key for user %d: %w", userID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// KeyExists reports whether any user other than excludeUserID holds key.
func (r *KeyRepo) KeyExists(ctx context.Context, key string, excludeUserID *int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE serp_key = ?)`
	args := []any{key}
	if excludeUserID != nil {
		query = `SELECT EXISTS(SELECT 1 FROM users WHERE serp_key = ? AND id <> ?)`
		args = append(args, *excludeUserID)
	}

	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check serp key exists: %w", err)
	}

	return exists, nil
}
