package postgres

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

// creditsInRange keeps the balance inside [0, MaxInt64]. The sum is taken in
// numeric so an out-of-range result filters the row instead of raising.
const creditsInRange = `COALESCE(credits, 200)::numeric + $%d::numeric BETWEEN 0 AND 9223372036854775807`

// UserRepo is the PostgreSQL implementation of the UserStore port interface.
type UserRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepo creates a new UserRepo backed by the given pool.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db, now: time.Now}
}

// GetOrCreate returns the user with the given id, inserting a default record
// first if none exists. Postgres does not serialize writers, so the insert is
// an ON CONFLICT DO NOTHING and the read-back shares its transaction.
func (r *UserRepo) GetOrCreate(ctx context.Context, id int64) (*model.User, error) {
	const insert = `
		INSERT INTO users (id, credits, plan, status, plan_expiry, keys_redeemed, registered_at, custom_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	const query = `SELECT ` + selectUserColumns + ` FROM users WHERE id = $1`

	defaults := model.NewUser(id, r.now())

	var user *model.User
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
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

// Update applies the set fields of upd. An empty update is a no-op.
func (r *UserRepo) Update(ctx context.Context, id int64, upd model.UserUpdate) error {
	if upd.IsEmpty() {
		return nil
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Credits != nil {
		set("credits", *upd.Credits)
	}
	if upd.Plan != nil {
		set("plan", *upd.Plan)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.PlanExpiry != nil {
		set("plan_expiry", *upd.PlanExpiry)
	}
	if upd.KeysRedeemed != nil {
		set("keys_redeemed", *upd.KeysRedeemed)
	}
	if upd.CustomURLs != nil {
		set("custom_urls", model.EncodeURLList(*upd.CustomURLs))
	}
	if upd.SerpKey != nil {
		set("serp_key", keyArg(*upd.SerpKey))
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
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

// AddCredits adds delta to the balance atomically and returns the new balance.
// A result below zero or above math.MaxInt64 leaves the row untouched.
func (r *UserRepo) AddCredits(ctx context.Context, id int64, delta int64) (int64, error) {
	query := `
		UPDATE users SET credits = COALESCE(credits, 200) + $1
		WHERE id = $2 AND ` + fmt.Sprintf(creditsInRange, 3) + `
		RETURNING credits
	`

	var balance int64
	err := r.db.QueryRowContext(ctx, query, delta, id, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("add credits for user %d: %w", id, err)
	}
	return 0, r.creditsFailure(ctx, id, delta)
}

// Redeem applies a plan grant in a single statement: plan, status and expiry
// are replaced, the redemption count is incremented and the credits are added.
func (r *UserRepo) Redeem(ctx context.Context, id int64, rd model.Redemption) (*model.User, error) {
	query := `
		UPDATE users SET plan = $1, status = $1, plan_expiry = $2,
			keys_redeemed = COALESCE(keys_redeemed, 0) + 1,
			credits = COALESCE(credits, 200) + $3
		WHERE id = $4 AND ` + fmt.Sprintf(creditsInRange, 5) + `
		RETURNING ` + selectUserColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, rd.Plan, rd.Expiry, rd.Credits, id, rd.Credits))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redeem for user %d: %w", id, err)
	}
	return nil, r.creditsFailure(ctx, id, rd.Credits)
}

// creditsFailure explains why a guarded credit update matched no row.
func (r *UserRepo) creditsFailure(ctx context.Context, id, delta int64) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
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
	rows, err := r.db.QueryContext(ctx, `SELECT id, plan, custom_urls, serp_key FROM users`)
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
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanUser reads a full row, filling NULL scalar columns with the model
// defaults.
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

func nullableKey(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	key := ns.String
	return &key
}

func keyArg(key string) any {
	if key == "" {
		return nil
	}
	return key
}
