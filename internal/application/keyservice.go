package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// KeyService manages the serp key a user registers. The store guarantees
// uniqueness; the service adds input validation and the availability
// pre-check used to give a friendly answer before claiming.
type KeyService struct {
	keys driven.KeyStore
}

// NewKeyService creates a new KeyService with the required dependencies.
func NewKeyService(keys driven.KeyStore) *KeyService {
	return &KeyService{keys: keys}
}

// Claim assigns key to the user. Returns ErrInvalidKey for a blank key and an
// error wrapping driven.ErrKeyInUse when another user holds it, including when
// a concurrent claim wins between the pre-check and the write.
func (s *KeyService) Claim(ctx context.Context, userID int64, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidKey
	}

	taken, err := s.keys.KeyExists(ctx, key, &userID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("claim serp key for user %d: %w", userID, driven.ErrKeyInUse)
	}

	ok, err := s.keys.SetKey(ctx, userID, key)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("serp key claim lost race", "user_id", userID)
		return fmt.Errorf("claim serp key for user %d: %w", userID, driven.ErrKeyInUse)
	}

	slog.Info("serp key claimed", "user_id", userID)
	return nil
}

// Key returns the user's current key; ok is false when none is assigned.
func (s *KeyService) Key(ctx context.Context, userID int64) (string, bool, error) {
	return s.keys.GetKey(ctx, userID)
}

// Release removes the user's key and reports whether one was held.
func (s *KeyService) Release(ctx context.Context, userID int64) (bool, error) {
	removed, err := s.keys.ClearKey(ctx, userID)
	if err != nil {
		return false, err
	}
	if removed {
		slog.Info("serp key released", "user_id", userID)
	}
	return removed, nil
}

// IsAvailable reports whether key is free for userID to claim. A key the user
// already holds counts as available.
func (s *KeyService) IsAvailable(ctx context.Context, key string, userID int64) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, ErrInvalidKey
	}

	taken, err := s.keys.KeyExists(ctx, key, &userID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}
