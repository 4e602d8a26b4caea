package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/botaccounts/internal/application"
	"github.com/ericfisherdev/botaccounts/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// UserResponse is the JSON representation of a full user record.
type UserResponse struct {
	ID           int64    `json:"id"`
	Credits      int64    `json:"credits"`
	Plan         string   `json:"plan"`
	Status       string   `json:"status"`
	PlanExpiry   string   `json:"plan_expiry"`
	KeysRedeemed int64    `json:"keys_redeemed"`
	RegisteredAt string   `json:"registered_at"`
	CustomURLs   []string `json:"custom_urls"`
	SerpKey      *string  `json:"serp_key"`
}

// UserSummaryResponse is the JSON representation of a user summary.
type UserSummaryResponse struct {
	ID         int64    `json:"id"`
	Plan       string   `json:"plan"`
	CustomURLs []string `json:"custom_urls"`
	SerpKey    *string  `json:"serp_key"`
}

// CountResponse is the body of the user count endpoint.
type CountResponse struct {
	Count int64 `json:"count"`
}

// StatsResponse is the JSON representation of aggregate user statistics.
type StatsResponse struct {
	TotalUsers     int64            `json:"total_users"`
	ByPlan         map[string]int64 `json:"by_plan"`
	WithSerpKey    int64            `json:"with_serp_key"`
	WithCustomURLs int64            `json:"with_custom_urls"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// SerpKeyResponse carries a user's serp key.
type SerpKeyResponse struct {
	SerpKey string `json:"serp_key"`
}

// RemovedResponse reports whether a delete removed anything.
type RemovedResponse struct {
	Removed bool `json:"removed"`
}

// CreditsResponse carries a balance after a credits change.
type CreditsResponse struct {
	Credits int64 `json:"credits"`
}

// CustomURLsResponse carries the user's custom URL list after a change.
type CustomURLsResponse struct {
	CustomURLs []string `json:"custom_urls"`
	Removed    *bool    `json:"removed,omitempty"`
}

// AvailabilityResponse is the body of the key availability endpoint.
type AvailabilityResponse struct {
	Available bool `json:"available"`
}

// UpdateUserRequest is the JSON body for the partial update endpoint. Absent
// fields are left unchanged.
type UpdateUserRequest struct {
	Credits      *int64    `json:"credits"`
	Plan         *string   `json:"plan"`
	Status       *string   `json:"status"`
	PlanExpiry   *string   `json:"plan_expiry"`
	KeysRedeemed *int64    `json:"keys_redeemed"`
	CustomURLs   *[]string `json:"custom_urls"`
	SerpKey      *string   `json:"serp_key"`
}

// SetSerpKeyRequest is the JSON body for the set serp key endpoint.
type SetSerpKeyRequest struct {
	SerpKey string `json:"serp_key"`
}

// CreditsRequest is the JSON body for the credits endpoint. A negative amount
// spends credits.
type CreditsRequest struct {
	Amount int64 `json:"amount"`
}

// RedeemRequest is the JSON body for the plan redemption endpoint.
type RedeemRequest struct {
	Plan    string `json:"plan"`
	Expiry  string `json:"expiry"`
	Credits int64  `json:"credits"`
}

// AddCustomURLRequest is the JSON body for the add custom URL endpoint.
type AddCustomURLRequest struct {
	URL string `json:"url"`
}

// toModel converts the request into a domain update.
func (r UpdateUserRequest) toModel() model.UserUpdate {
	return model.UserUpdate{
		Credits:      r.Credits,
		Plan:         r.Plan,
		Status:       r.Status,
		PlanExpiry:   r.PlanExpiry,
		KeysRedeemed: r.KeysRedeemed,
		CustomURLs:   r.CustomURLs,
		SerpKey:      r.SerpKey,
	}
}

// toUserResponse converts a domain User to its JSON response representation.
func toUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Credits:      u.Credits,
		Plan:         u.Plan,
		Status:       u.Status,
		PlanExpiry:   u.PlanExpiry,
		KeysRedeemed: u.KeysRedeemed,
		RegisteredAt: u.RegisteredAt,
		CustomURLs:   nonNil(u.CustomURLs),
		SerpKey:      u.SerpKey,
	}
}

// toUserSummaryResponse converts a domain UserSummary to its JSON representation.
func toUserSummaryResponse(s model.UserSummary) UserSummaryResponse {
	return UserSummaryResponse{
		ID:         s.ID,
		Plan:       s.Plan,
		CustomURLs: nonNil(s.CustomURLs),
		SerpKey:    s.SerpKey,
	}
}

// toStatsResponse converts application Stats to its JSON representation.
func toStatsResponse(s application.Stats) StatsResponse {
	byPlan := s.ByPlan
	if byPlan == nil {
		byPlan = map[string]int64{}
	}
	return StatsResponse{
		TotalUsers:     s.TotalUsers,
		ByPlan:         byPlan,
		WithSerpKey:    s.WithSerpKey,
		WithCustomURLs: s.WithCustomURLs,
	}
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}
