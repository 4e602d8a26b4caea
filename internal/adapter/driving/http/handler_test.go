package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/botaccounts/internal/adapter/driving/http"
	"github.com/ericfisherdev/botaccounts/internal/application"
	"github.com/ericfisherdev/botaccounts/internal/domain/model"
	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// --- Mock implementations ---

// mockStore implements both driven.UserStore and driven.KeyStore over a map.
type mockStore struct {
	users   map[int64]*model.User
	err     error
	panics  bool
	updated bool
}

func newMockStore(users ...model.User) *mockStore {
	m := &mockStore{users: make(map[int64]*model.User)}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
	}
	return m
}

func (m *mockStore) GetOrCreate(_ context.Context, id int64) (*model.User, error) {
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		nu := model.NewUser(id, testTime)
		u = &nu
		m.users[id] = u
	}
	cp := *u
	return &cp, nil
}

func (m *mockStore) Update(_ context.Context, id int64, upd model.UserUpdate) error {
	m.updated = true
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[id]
	if !ok {
		return driven.ErrUserNotFound
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
	if upd.Credits != nil {
		u.Credits = *upd.Credits
	}
	if upd.CustomURLs != nil {
		u.CustomURLs = *upd.CustomURLs
	}
	if upd.SerpKey != nil {
		if *upd.SerpKey != "" && m.holder(*upd.SerpKey, id) {
			return driven.ErrKeyInUse
		}
		k := *upd.SerpKey
		u.SerpKey = &k
	}
	return nil
}

func (m *mockStore) ListSummaries(_ context.Context) ([]model.UserSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []model.UserSummary{}
	for _, u := range m.users {
		out = append(out, model.UserSummary{ID: u.ID, Plan: u.Plan, CustomURLs: u.CustomURLs, SerpKey: u.SerpKey})
	}
	return out, nil
}

func (m *mockStore) Count(_ context.Context) (int64, error) {
	return int64(len(m.users)), m.err
}

func (m *mockStore) AddCredits(_ context.Context, id int64, delta int64) (int64, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, driven.ErrUserNotFound
	}
	if delta > 0 && u.Credits > math.MaxInt64-delta {
		return 0, driven.ErrCreditOverflow
	}
	if u.Credits+delta < 0 {
		return 0, driven.ErrInsufficientCredits
	}
	u.Credits += delta
	return u.Credits, nil
}

func (m *mockStore) Redeem(ctx context.Context, id int64, r model.Redemption) (*model.User, error) {
	if _, err := m.AddCredits(ctx, id, r.Credits); err != nil {
		return nil, err
	}
	u := m.users[id]
	u.Plan = r.Plan
	u.Status = r.Plan
	u.PlanExpiry = r.Expiry
	u.KeysRedeemed++
	cp := *u
	return &cp, nil
}

func (m *mockStore) SetKey(_ context.Context, userID int64, key string) (bool, error) {
	if m.holder(key, userID) {
		return false, nil
	}
	u, ok := m.users[userID]
	if !ok {
		nu := model.NewUser(userID, testTime)
		u = &nu
		m.users[userID] = u
	}
	u.SerpKey = &key
	return true, nil
}

func (m *mockStore) GetKey(_ context.Context, userID int64) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	u, ok := m.users[userID]
	if !ok || u.SerpKey == nil {
		return "", false, nil
	}
	return *u.SerpKey, true, nil
}

func (m *mockStore) ClearKey(_ context.Context, userID int64) (bool, error) {
	u, ok := m.users[userID]
	if !ok || u.SerpKey == nil {
		return false, nil
	}
	u.SerpKey = nil
	return true, nil
}

func (m *mockStore) KeyExists(_ context.Context, key string, excludeUserID *int64) (bool, error) {
	var exclude int64 = -1
	if excludeUserID != nil {
		exclude = *excludeUserID
	}
	return m.holder(key, exclude), nil
}

func (m *mockStore) holder(key string, exclude int64) bool {
	for id, u := range m.users {
		if id != exclude && u.SerpKey != nil && *u.SerpKey == key {
			return true
		}
	}
	return false
}

// --- Helper functions ---

var testTime = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func setupMux(store *mockStore) http.Handler {
	h := httphandler.NewHandler(
		application.NewAccountService(store),
		application.NewKeyService(store),
		store,
		slog.Default(),
	)
	return httphandler.NewServeMux(h, slog.Default())
}

func serve(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

func keyPtr(s string) *string { return &s }

// --- Tests ---

func TestHealth(t *testing.T) {
	rec := serve(t, setupMux(newMockStore()), http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["time"])
}

func TestGetUser_CreatesDefaults(t *testing.T) {
	store := newMockStore()
	rec := serve(t, setupMux(store), http.MethodGet, "/api/v1/users/42", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, float64(42), resp["id"])
	assert.Equal(t, float64(200), resp["credits"])
	assert.Equal(t, "Free", resp["plan"])
	assert.Equal(t, "Free", resp["status"])
	assert.Equal(t, "N/A", resp["plan_expiry"])
	assert.Equal(t, float64(0), resp["keys_redeemed"])
	assert.Equal(t, "19-10-2026", resp["registered_at"])
	assert.Equal(t, []any{}, resp["custom_urls"])
	assert.Nil(t, resp["serp_key"])
	assert.Len(t, store.users, 1)
}

func TestGetUser_InvalidID(t *testing.T) {
	rec := serve(t, setupMux(newMockStore()), http.MethodGet, "/api/v1/users/abc", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "invalid user id", resp["error"])
}

func TestGetUser_StoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("database is locked")

	rec := serve(t, setupMux(store), http.MethodGet, "/api/v1/users/1", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}

func TestListUsersAndCount(t *testing.T) {
	store := newMockStore(
		model.User{ID: 1, Plan: "Free"},
		model.User{ID: 2, Plan: "Pro", CustomURLs: []string{"https://example.com"}, SerpKey: keyPtr("K2")},
	)
	mux := setupMux(store)

	rec := serve(t, mux, http.MethodGet, "/api/v1/users", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	decodeJSON(t, rec, &list)
	require.Len(t, list, 2)
	for _, u := range list {
		assert.NotNil(t, u["custom_urls"], "custom_urls must be an array, not null")
	}

	rec = serve(t, mux, http.MethodGet, "/api/v1/users/count", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var count map[string]any
	decodeJSON(t, rec, &count)
	assert.Equal(t, float64(2), count["count"])
}

func TestListUsers_Empty(t *testing.T) {
	rec := serve(t, setupMux(newMockStore()), http.MethodGet, "/api/v1/users", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStats(t *testing.T) {
	store := newMockStore(
		model.User{ID: 1, Plan: "Free"},
		model.User{ID: 2, Plan: "Pro", SerpKey: keyPtr("K2")},
		model.User{ID: 3, Plan: "Pro", CustomURLs: []string{"https://example.com"}},
	)

	rec := serve(t, setupMux(store), http.MethodGet, "/api/v1/users/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"total_users":3,"by_plan":{"Free":1,"Pro":2},"with_serp_key":1,"with_custom_urls":1}`,
		rec.Body.String())
}

func TestUpdateUser(t *testing.T) {
	tests := []struct {
		name        string
		store       *mockStore
		body        string
		wantStatus  int
		wantError   string
		wantUpdated bool
	}{
		{
			name:        "partial update",
			store:       newMockStore(model.User{ID: 1, Plan: "Free"}),
			body:        `{"plan":"Pro","credits":50}`,
			wantStatus:  http.StatusNoContent,
			wantUpdated: true,
		},
		{
			name:        "empty update skips storage",
			store:       newMockStore(),
			body:        `{}`,
			wantStatus:  http.StatusNoContent,
			wantUpdated: false,
		},
		{
			name:        "missing user",
			store:       newMockStore(),
			body:        `{"plan":"Pro"}`,
			wantStatus:  http.StatusNotFound,
			wantError:   "user not found",
			wantUpdated: true,
		},
		{
			name:        "key clash",
			store:       newMockStore(model.User{ID: 1}, model.User{ID: 2, SerpKey: keyPtr("K")}),
			body:        `{"serp_key":"K"}`,
			wantStatus:  http.StatusConflict,
			wantError:   "serp key already in use",
			wantUpdated: true,
		},
		{
			name:       "unknown field",
			store:      newMockStore(model.User{ID: 1}),
			body:       `{"registered_at":"01-01-2020"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "invalid JSON",
			store:      newMockStore(model.User{ID: 1}),
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, setupMux(tt.store), http.MethodPatch, "/api/v1/users/1", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUpdated, tt.store.updated)

			if tt.wantError != "" {
				var resp map[string]any
				decodeJSON(t, rec, &resp)
				assert.Equal(t, tt.wantError, resp["error"])
			}
		})
	}
}

func TestUpdateUser_AppliesFields(t *testing.T) {
	store := newMockStore(model.User{ID: 1, Plan: "Free", Credits: 200})

	rec := serve(t, setupMux(store), http.MethodPatch, "/api/v1/users/1",
		`{"plan":"Pro","credits":50,"custom_urls":["https://a.example"]}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	u := store.users[1]
	assert.Equal(t, "Pro", u.Plan)
	assert.Equal(t, int64(50), u.Credits)
	assert.Equal(t, []string{"https://a.example"}, u.CustomURLs)
}

func TestChangeCredits(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantCredits float64
		wantError   string
	}{
		{name: "add", body: `{"amount":25}`, wantStatus: http.StatusOK, wantCredits: 225},
		{name: "spend", body: `{"amount":-200}`, wantStatus: http.StatusOK, wantCredits: 0},
		{name: "overdraft", body: `{"amount":-201}`, wantStatus: http.StatusConflict, wantError: "insufficient credits"},
		{name: "zero", body: `{"amount":0}`, wantStatus: http.StatusBadRequest, wantError: application.ErrInvalidAmount.Error()},
		{name: "overflow", body: `{"amount":9223372036854775807}`, wantStatus: http.StatusBadRequest, wantError: "credit balance overflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, setupMux(newMockStore()), http.MethodPost, "/api/v1/users/7/credits", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]any
			decodeJSON(t, rec, &resp)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
				return
			}
			assert.Equal(t, tt.wantCredits, resp["credits"])
		})
	}
}

func TestRedeem(t *testing.T) {
	mux := setupMux(newMockStore())

	rec := serve(t, mux, http.MethodPost, "/api/v1/users/3/redeem", `{"plan":"Pro","expiry":"19-11-2026","credits":1000}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "Pro", resp["plan"])
	assert.Equal(t, "Pro", resp["status"])
	assert.Equal(t, "19-11-2026", resp["plan_expiry"])
	assert.Equal(t, float64(1200), resp["credits"])
	assert.Equal(t, float64(1), resp["keys_redeemed"])
}

func TestRedeem_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "missing plan", body: `{"expiry":"19-11-2026"}`, wantStatus: http.StatusBadRequest, wantError: application.ErrInvalidPlan.Error()},
		{name: "blank plan", body: `{"plan":"  "}`, wantStatus: http.StatusBadRequest, wantError: application.ErrInvalidPlan.Error()},
		{name: "negative credits", body: `{"plan":"Pro","credits":-1}`, wantStatus: http.StatusBadRequest, wantError: application.ErrInvalidAmount.Error()},
		{name: "overflow", body: `{"plan":"Pro","credits":9223372036854775807}`, wantStatus: http.StatusBadRequest, wantError: "credit balance overflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			rec := serve(t, setupMux(store), http.MethodPost, "/api/v1/users/3/redeem", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]any
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tt.wantError, resp["error"])

			if u, ok := store.users[3]; ok {
				assert.Equal(t, "Free", u.Plan)
				assert.Equal(t, int64(0), u.KeysRedeemed)
			}
		})
	}
}

func TestCustomURLs(t *testing.T) {
	store := newMockStore()
	mux := setupMux(store)

	rec := serve(t, mux, http.MethodPost, "/api/v1/users/1/custom-urls", `{"url":"https://example.com/a"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"custom_urls":["https://example.com/a"]}`, rec.Body.String())

	rec = serve(t, mux, http.MethodPost, "/api/v1/users/1/custom-urls", `{"url":"ftp://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, mux, http.MethodDelete, "/api/v1/users/1/custom-urls?url=https%3A%2F%2Fexample.com%2Fa", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"custom_urls":[],"removed":true}`, rec.Body.String())

	rec = serve(t, mux, http.MethodDelete, "/api/v1/users/1/custom-urls?url=https%3A%2F%2Fexample.com%2Fa", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"custom_urls":[],"removed":false}`, rec.Body.String())

	rec = serve(t, mux, http.MethodDelete, "/api/v1/users/1/custom-urls", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSerpKeyLifecycle(t *testing.T) {
	store := newMockStore()
	mux := setupMux(store)

	rec := serve(t, mux, http.MethodGet, "/api/v1/users/1/serp-key", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, mux, http.MethodPut, "/api/v1/users/1/serp-key", `{"serp_key":"K1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(t, mux, http.MethodGet, "/api/v1/users/1/serp-key", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"serp_key":"K1"}`, rec.Body.String())

	rec = serve(t, mux, http.MethodPut, "/api/v1/users/2/serp-key", `{"serp_key":"K1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, mux, http.MethodGet, "/api/v1/serp-keys/K1/available?user_id=2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":false}`, rec.Body.String())

	rec = serve(t, mux, http.MethodDelete, "/api/v1/users/1/serp-key", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true}`, rec.Body.String())

	rec = serve(t, mux, http.MethodDelete, "/api/v1/users/1/serp-key", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":false}`, rec.Body.String())

	rec = serve(t, mux, http.MethodGet, "/api/v1/serp-keys/K1/available?user_id=2", "")
	assert.JSONEq(t, `{"available":true}`, rec.Body.String())
}

func TestSetSerpKey_Blank(t *testing.T) {
	rec := serve(t, setupMux(newMockStore()), http.MethodPut, "/api/v1/users/1/serp-key", `{"serp_key":"  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, application.ErrInvalidKey.Error(), resp["error"])
}

func TestKeyAvailable_InvalidUserID(t *testing.T) {
	rec := serve(t, setupMux(newMockStore()), http.MethodGet, "/api/v1/serp-keys/K1/available", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	mux := setupMux(newMockStore())

	rec := serve(t, mux, http.MethodGet, "/api/v1/health", "")
	generated := rec.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	store := newMockStore()
	store.panics = true

	rec := serve(t, setupMux(store), http.MethodGet, "/api/v1/users/1", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}
