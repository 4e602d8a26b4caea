package application

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ericfisherdev/botaccounts/internal/domain/model"
	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// --- In-memory store used by AccountService and KeyService tests ---

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type memStore struct {
	mu    sync.Mutex
	users map[int64]*model.User

	// Forced outcomes.
	setKeyLoses bool
	err         error
	redeemErr   error

	updates int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]*model.User)}
}

func (m *memStore) GetOrCreate(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		nu := model.NewUser(id, testNow)
		u = &nu
		m.users[id] = u
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) Update(_ context.Context, id int64, upd model.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[id]
	if !ok {
		return driven.ErrUserNotFound
	}
	m.updates++
	if upd.Credits != nil {
		u.Credits = *upd.Credits
	}
	if upd.Plan != nil {
		u.Plan = *upd.Plan
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.PlanExpiry != nil {
		u.PlanExpiry = *upd.PlanExpiry
	}
	if upd.KeysRedeemed != nil {
		u.KeysRedeemed = *upd.KeysRedeemed
	}
	if upd.CustomURLs != nil {
		u.CustomURLs = append([]string{}, (*upd.CustomURLs)...)
	}
	if upd.SerpKey != nil {
		if *upd.SerpKey == "" {
			u.SerpKey = nil
		} else {
			k := *upd.SerpKey
			u.SerpKey = &k
		}
	}
	return nil
}

func (m *memStore) ListSummaries(_ context.Context) ([]model.UserSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []model.UserSummary{}
	for _, u := range m.users {
		out = append(out, model.UserSummary{ID: u.ID, Plan: u.Plan, CustomURLs: u.CustomURLs, SerpKey: u.SerpKey})
	}
	return out, nil
}

func (m *memStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.users)), nil
}

func (m *memStore) AddCredits(_ context.Context, id int64, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, driven.ErrUserNotFound
	}
	if err := checkCredits(u.Credits, delta); err != nil {
		return 0, err
	}
	u.Credits += delta
	return u.Credits, nil
}

func (m *memStore) Redeem(_ context.Context, id int64, r model.Redemption) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redeemErr != nil {
		return nil, m.redeemErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, driven.ErrUserNotFound
	}
	if err := checkCredits(u.Credits, r.Credits); err != nil {
		return nil, err
	}
	u.Plan = r.Plan
	u.Status = r.Plan
	u.PlanExpiry = r.Expiry
	u.KeysRedeemed++
	u.Credits += r.Credits
	cp := *u
	return &cp, nil
}

func checkCredits(balance, delta int64) error {
	if delta > 0 && balance > math.MaxInt64-delta {
		return driven.ErrCreditOverflow
	}
	if balance+delta < 0 {
		return driven.ErrInsufficientCredits
	}
	return nil
}

func (m *memStore) SetKey(_ context.Context, userID int64, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.setKeyLoses {
		return false, nil
	}
	for id, u := range m.users {
		if id != userID && u.SerpKey != nil && *u.SerpKey == key {
			return false, nil
		}
	}
	u, ok := m.users[userID]
	if !ok {
		nu := model.NewUser(userID, testNow)
		u = &nu
		m.users[userID] = u
	}
	u.SerpKey = &key
	return true, nil
}

func (m *memStore) GetKey(_ context.Context, userID int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.SerpKey == nil {
		return "", false, nil
	}
	return *u.SerpKey, true, nil
}

func (m *memStore) ClearKey(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.SerpKey == nil {
		return false, nil
	}
	u.SerpKey = nil
	return true, nil
}

func (m *memStore) KeyExists(_ context.Context, key string, excludeUserID *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for id, u := range m.users {
		if excludeUserID != nil && id == *excludeUserID {
			continue
		}
		if u.SerpKey != nil && *u.SerpKey == key {
			return true, nil
		}
	}
	return false, nil
}

var (
	_ driven.UserStore = (*memStore)(nil)
	_ driven.KeyStore  = (*memStore)(nil)
)
