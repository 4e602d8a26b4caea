package postgres

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

// KeyRepo is the PostgreSQL implementation of the KeyStore port interface.
type KeyRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewKeyRepo creates a new KeyRepo backed by the given pool.
func NewKeyRepo(db *sql.DB) *KeyRepo {
	return &KeyRepo{db: db, now: time.Now}
}

// SetKey upserts the user's serp key. Returns false on a unique_violation,
// meaning another user holds key.
func (r *KeyRepo) SetKey(ctx context.Context, userID int64, key string) (bool, error) {
	const query = `
		INSERT INTO users (id, credits, plan, status, plan_expiry, keys_redeemed, registered_at, custom_urls, serp_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET serp_key = EXCLUDED.serp_key
	`

	u := model.NewUser(userID, r.now())

	_, err := r.db.ExecContext(ctx, query,
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

// GetKey returns the user's serp key; ok is false when there is none.
func (r *KeyRepo) GetKey(ctx context.Context, userID int64) (string, bool, error) {
	var key sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT serp_key FROM users WHERE id = $1`, userID).Scan(&key)
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

// ClearKey releases the user's serp key and reports whether one was held.
func (r *KeyRepo) ClearKey(ctx context.Context, userID int64) (bool, error) {
	const query = `
		UPDATE users SET serp_key = NULL
		WHERE id = $1 AND serp_key IS NOT NULL AND serp_key <> ''
	`

	result, err := r.db.ExecContext(ctx, query, userID)
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
	var exists bool
	var err error
	if excludeUserID != nil {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE serp_key = $1 AND id <> $2)`, key, *excludeUserID,
		).Scan(&exists)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE serp_key = $1)`, key,
		).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("check serp key exists: %w", err)
	}

	return exists, nil
}
