package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/botaccounts/internal/dbx"
	"github.com/ericfisherdev/botaccounts/internal/domain/model"
	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserStore = (*UserRepo)(nil)

const selectUserColumns = `id, credits, plan, status, plan_expiry, keys_redeemed, registered_at, custom_urls, serp_key`

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	db  *DB
	now func() time.Time
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db, now: time.Now}
}

// GetOrCreate returns the user with the given id, inserting a record with all
// defaults first if none exists. The insert and the read-back run in a single
// transaction on the writer, so concurrent first access yields one row.
func (r *UserRepo) GetOrCreate(ctx context.Context, id int64) (*model.User, error) {
	const insert = `
		INSERT INTO users (id, credits, plan, status, plan_expiry, keys_redeemed, registered_at, custom_urls)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	const query = `SELECT ` + selectUserColumns + ` FROM users WHERE id = ?`

	defaults := model.NewUser(id, r.now())

	var user *model.User
	err := dbx.WithTx(ctx, r.db.Writer, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, insert,
			defaults.ID, defaults.Credits, defaults.Plan, defaults.Status, defaults.PlanExpiry,
			defaults.KeysRedeemed, defaults.RegisteredAt, model.EncodeURLList(defaults.CustomURLs),
		)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		user, err = scanUser(tx.QueryRowContext(ctx, query, id))
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get or create user %d: %w", id, err)
	}

	return user, nil
}

// Update applies the set fields of upd to the user. An empty update returns
// immediately without touching the database.
func (r *UserRepo) Update(ctx context.Context, id int64, upd model.UserUpdate) error {
	if upd.IsEmpty() {
		return nil
	}

	sets, args := updateAssignments(upd)
	args = append(args, id)
	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user %d: %w", id, driven.ErrKeyInUse)
		}
		return fmt.Errorf("update user %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update user %d: %w", id, driven.ErrUserNotFound)
	}

	return nil
}

// AddCredits adds delta to the user's balance in a single statement and
// returns the new balance. The WHERE clause rejects a result below zero or
// above the int64 range, so a rejected delta never reaches the row. A NULL
// balance counts as the default 200.
func (r *UserRepo) AddCredits(ctx context.Context, id int64, delta int64) (int64, error) {
	const query = `
		UPDATE users SET credits = COALESCE(credits, 200) + ?
		WHERE id = ?
			AND COALESCE(credits, 200) + ? >= 0
			AND COALESCE(credits, 200) <= 9223372036854775807 - MAX(?, 0)
		RETURNING credits
	`

	var balance int64
	err := r.db.Writer.QueryRowContext(ctx, query, delta, id, delta, delta).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.creditsFailure(ctx, id, delta)
	}
	if err != nil {
		return 0, fmt.Errorf("add credits for user %d: %w", id, err)
	}

	return balance, nil
}

// Redeem applies a plan grant in one conditional UPDATE and returns the
// resulting record.
func (r *UserRepo) Redeem(ctx context.Context, id int64, rd model.Redemption) (*model.User, error) {
	const query = `
		UPDATE users SET
			plan = ?, status = ?, plan_expiry = ?,
			keys_redeemed = COALESCE(keys_redeemed, 0) + 1,
			credits = COALESCE(credits, 200) + ?
		WHERE id = ?
			AND COALESCE(credits, 200) + ? >= 0
			AND COALESCE(credits, 200) <= 9223372036854775807 - MAX(?, 0)
		RETURNING ` + selectUserColumns

	user, err := scanUser(r.db.Writer.QueryRowContext(ctx, query,
		rd.Plan, rd.Plan, rd.Expiry, rd.Credits, id, rd.Credits, rd.Credits,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.creditsFailure(ctx, id, rd.Credits)
	}
	if err != nil {
		return nil, fmt.Errorf("redeem for user %d: %w", id, err)
	}

	return user, nil
}

// creditsFailure explains why a conditional credits update matched no row:
// the user is missing, or delta would overflow or overdraw the balance.
func (r *UserRepo) creditsFailure(ctx context.Context, id, delta int64) error {
	var exists bool
	err := r.db.Writer.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("credits for user %d: %w", id, err)
	}
	switch {
	case !exists:
		return fmt.Errorf("credits for user %d: %w", id, driven.ErrUserNotFound)
	case delta > 0:
		return fmt.Errorf("credits for user %d: %w", id, driven.ErrCreditOverflow)
	default:
		return fmt.Errorf("credits for user %d: %w", id, driven.ErrInsufficientCredits)
	}
}

// ListSummaries returns the id, plan, custom URLs and serp key of every user.
func (r *UserRepo) ListSummaries(ctx context.Context) ([]model.UserSummary, error) {
	const query = `SELECT id, plan, custom_urls, serp_key FROM users`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	summaries := []model.UserSummary{}
	for rows.Next() {
		var s model.UserSummary
		var plan, customURLs, serpKey sql.NullString

		if err := rows.Scan(&s.ID, &plan, &customURLs, &serpKey); err != nil {
			return nil, fmt.Errorf("scan user summary: %w", err)
		}

		s.Plan = dbx.StringOr(plan, model.DefaultPlan)
		s.CustomURLs = model.NormalizeURLList(customURLs)
		s.SerpKey = nullableKey(serpKey)
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return summaries, nil
}

// Count returns the number of user records.
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// updateAssignments builds the SET clauses and their arguments, in column order.
func updateAssignments(upd model.UserUpdate) ([]string, []any) {
	var sets []string
	var args []any

	if upd.Credits != nil {
		sets = append(sets, "credits = ?")
		args = append(args, *upd.Credits)
	}
	if upd.Plan != nil {
		sets = append(sets, "plan = ?")
		args = append(args, *upd.Plan)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.PlanExpiry != nil {
		sets = append(sets, "plan_expiry = ?")
		args = append(args, *upd.PlanExpiry)
	}
	if upd.KeysRedeemed != nil {
		sets = append(sets, "keys_redeemed = ?")
		args = append(args, *upd.KeysRedeemed)
	}
	if upd.CustomURLs != nil {
		sets = append(sets, "custom_urls = ?")
		args = append(args, model.EncodeURLList(*upd.CustomURLs))
	}
	if upd.SerpKey != nil {
		sets = append(sets, "serp_key = ?")
		args = append(args, keyArg(*upd.SerpKey))
	}

	return sets, args
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanUser reads a full row. NULL scalar columns left by older writers fall
// back to the model defaults.
func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var credits, keysRedeemed sql.NullInt64
	var plan, status, planExpiry, registeredAt, customURLs, serpKey sql.NullString

	err := s.Scan(
		&u.ID, &credits, &plan, &status, &planExpiry,
		&keysRedeemed, &registeredAt, &customURLs, &serpKey,
	)
	if err != nil {
		return nil, err
	}

	u.Credits = dbx.Int64Or(credits, model.DefaultCredits)
	u.Plan = dbx.StringOr(plan, model.DefaultPlan)
	u.Status = dbx.StringOr(status, model.DefaultStatus)
	u.PlanExpiry = dbx.StringOr(planExpiry, model.DefaultPlanExpiry)
	u.KeysRedeemed = dbx.Int64Or(keysRedeemed, model.DefaultKeysRedeemed)
	u.RegisteredAt = registeredAt.String
	u.CustomURLs = model.NormalizeURLList(customURLs)
	u.SerpKey = nullableKey(serpKey)

	return &u, nil
}

// nullableKey maps NULL and empty serp keys to nil.
func nullableKey(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	key := ns.String
	return &key
}

// keyArg stores an empty key as NULL so the UNIQUE constraint ignores it.
func keyArg(key string) any {
	if key == "" {
		return nil
	}
	return key
}
