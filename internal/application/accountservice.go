package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/ericfisherdev/botaccounts/internal/domain/model"
	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// PlanGrant describes what redeeming a plan key gives the user.
type PlanGrant struct {
	Plan    string
	Expiry  string
	Credits int64
}

// Stats is the aggregate view used for reporting and broadcasts.
type Stats struct {
	TotalUsers     int64
	ByPlan         map[string]int64
	WithSerpKey    int64
	WithCustomURLs int64
}

// AccountService exposes the user record operations the bot command layer
// needs. It depends only on the UserStore port.
type AccountService struct {
	users driven.UserStore
}

// NewAccountService creates a new AccountService with the required dependencies.
func NewAccountService(users driven.UserStore) *AccountService {
	return &AccountService{users: users}
}

// Account returns the user's record, creating it with defaults on first access.
func (s *AccountService) Account(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.GetOrCreate(ctx, userID)
}

// Update applies a partial update to an existing user.
func (s *AccountService) Update(ctx context.Context, userID int64, upd model.UserUpdate) error {
	if upd.IsEmpty() {
		return nil
	}
	if err := s.users.Update(ctx, userID, upd); err != nil {
		return err
	}
	slog.Info("user updated", "user_id", userID)
	return nil
}

// AddCredits tops up the user's balance and returns the new balance.
func (s *AccountService) AddCredits(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := s.users.GetOrCreate(ctx, userID); err != nil {
		return 0, err
	}

	balance, err := s.users.AddCredits(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	slog.Info("credits added", "user_id", userID, "amount", amount, "balance", balance)
	return balance, nil
}

// SpendCredits debits the user's balance. Returns driven.ErrInsufficientCredits
// when the balance is lower than amount; the balance is then left unchanged.
func (s *AccountService) SpendCredits(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := s.users.GetOrCreate(ctx, userID); err != nil {
		return 0, err
	}

	return s.users.AddCredits(ctx, userID, -amount)
}

// Redeem applies a plan grant: plan and status switch to the granted plan, the
// expiry is replaced, credits are added and the redemption counter increments.
// All four changes are applied by the store in one step, so a failed grant
// leaves the record as it was.
func (s *AccountService) Redeem(ctx context.Context, userID int64, grant PlanGrant) (*model.User, error) {
	plan := strings.TrimSpace(grant.Plan)
	if plan == "" {
		return nil, ErrInvalidPlan
	}
	if grant.Credits < 0 {
		return nil, ErrInvalidAmount
	}

	if _, err := s.users.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	user, err := s.users.Redeem(ctx, userID, model.Redemption{
		Plan:    plan,
		Expiry:  grant.Expiry,
		Credits: grant.Credits,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("plan redeemed", "user_id", userID, "plan", plan, "expiry", grant.Expiry, "credits", grant.Credits)
	return user, nil
}

// AddCustomURL appends rawURL to the user's custom URL list unless it is
// already present, and returns the resulting list.
func (s *AccountService) AddCustomURL(ctx context.Context, userID int64, rawURL string) ([]string, error) {
	normalized, err := normalizeCustomURL(rawURL)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(user.CustomURLs, normalized) {
		return user.CustomURLs, nil
	}

	urls := append(slices.Clone(user.CustomURLs), normalized)
	if err := s.users.Update(ctx, userID, model.UserUpdate{CustomURLs: &urls}); err != nil {
		return nil, err
	}
	return urls, nil
}

// RemoveCustomURL drops rawURL from the user's list. removed is false when the
// URL was not in the list.
func (s *AccountService) RemoveCustomURL(ctx context.Context, userID int64, rawURL string) (urls []string, removed bool, err error) {
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	target := strings.TrimSpace(rawURL)
	urls = slices.DeleteFunc(slices.Clone(user.CustomURLs), func(u string) bool { return u == target })
	if len(urls) == len(user.CustomURLs) {
		return user.CustomURLs, false, nil
	}

	if err := s.users.Update(ctx, userID, model.UserUpdate{CustomURLs: &urls}); err != nil {
		return nil, false, err
	}
	return urls, true, nil
}

// Stats aggregates every user into totals per plan and key/URL usage.
func (s *AccountService) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}

	summaries, err := s.users.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalUsers: total, ByPlan: make(map[string]int64)}
	for _, u := range summaries {
		stats.ByPlan[u.Plan]++
		if u.SerpKey != nil {
			stats.WithSerpKey++
		}
		if len(u.CustomURLs) > 0 {
			stats.WithCustomURLs++
		}
	}

	return stats, nil
}

// normalizeCustomURL trims rawURL and checks it is an absolute http(s) URL.
func normalizeCustomURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.ParseRequestURI(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return trimmed, nil
}
