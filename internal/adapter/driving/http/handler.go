package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/botaccounts/internal/application"
	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// maxBodyBytes caps request bodies on write endpoints.
const maxBodyBytes = 64 << 10

// Handler is the HTTP driving adapter that serves the admin REST API.
type Handler struct {
	accounts *application.AccountService
	keys     *application.KeyService
	users    driven.UserStore
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. users backs the
// read-only listing endpoints.
func NewHandler(
	accounts *application.AccountService,
	keys *application.KeyService,
	users driven.UserStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		accounts: accounts,
		keys:     keys,
		users:    users,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/users", h.ListUsers)
	mux.HandleFunc("GET /api/v1/users/count", h.CountUsers)
	mux.HandleFunc("GET /api/v1/users/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/users/{id}", h.GetUser)
	mux.HandleFunc("PATCH /api/v1/users/{id}", h.UpdateUser)
	mux.HandleFunc("POST /api/v1/users/{id}/credits", h.ChangeCredits)
	mux.HandleFunc("POST /api/v1/users/{id}/redeem", h.Redeem)
	mux.HandleFunc("POST /api/v1/users/{id}/custom-urls", h.AddCustomURL)
	mux.HandleFunc("DELETE /api/v1/users/{id}/custom-urls", h.RemoveCustomURL)
	mux.HandleFunc("GET /api/v1/users/{id}/serp-key", h.GetSerpKey)
	mux.HandleFunc("PUT /api/v1/users/{id}/serp-key", h.SetSerpKey)
	mux.HandleFunc("DELETE /api/v1/users/{id}/serp-key", h.ClearSerpKey)
	mux.HandleFunc("GET /api/v1/serp-keys/{key}/available", h.KeyAvailable)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListUsers returns a summary of every user.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.users.ListSummaries(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]UserSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, toUserSummaryResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CountUsers returns the number of user records.
func (h *Handler) CountUsers(w http.ResponseWriter, r *http.Request) {
	n, err := h.users.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// Stats returns aggregate user statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(*stats))
}

// GetUser returns the full record, creating it with defaults on first access.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.Account(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get user", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

// UpdateUser applies a partial update to an existing user.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.accounts.Update(r.Context(), id, req.toModel()); err != nil {
		h.writeServiceError(w, "update user", id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeCredits adds a positive amount or spends a negative one.
func (h *Handler) ChangeCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req CreditsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		balance int64
		err     error
	)
	if req.Amount < 0 {
		balance, err = h.accounts.SpendCredits(r.Context(), id, -req.Amount)
	} else {
		balance, err = h.accounts.AddCredits(r.Context(), id, req.Amount)
	}
	if err != nil {
		h.writeServiceError(w, "change credits", id, err)
		return
	}

	writeJSON(w, http.StatusOK, CreditsResponse{Credits: balance})
}

// Redeem applies a plan grant to the user.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req RedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.accounts.Redeem(r.Context(), id, application.PlanGrant{
		Plan:    req.Plan,
		Expiry:  req.Expiry,
		Credits: req.Credits,
	})
	if err != nil {
		h.writeServiceError(w, "redeem plan", id, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

// AddCustomURL appends a URL to the user's custom URL list.
func (h *Handler) AddCustomURL(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req AddCustomURLRequest
	if !decodeBody(w, r, &req) {
		return
	}

	urls, err := h.accounts.AddCustomURL(r.Context(), id, req.URL)
	if err != nil {
		h.writeServiceError(w, "add custom url", id, err)
		return
	}

	writeJSON(w, http.StatusOK, CustomURLsResponse{CustomURLs: nonNil(urls)})
}

// RemoveCustomURL drops the URL given in the url query parameter.
func (h *Handler) RemoveCustomURL(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	urls, removed, err := h.accounts.RemoveCustomURL(r.Context(), id, target)
	if err != nil {
		h.writeServiceError(w, "remove custom url", id, err)
		return
	}

	writeJSON(w, http.StatusOK, CustomURLsResponse{CustomURLs: nonNil(urls), Removed: &removed})
}

// GetSerpKey returns the user's serp key, or 404 when none is assigned.
func (h *Handler) GetSerpKey(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	key, found, err := h.keys.Key(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get serp key", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "serp key not set")
		return
	}

	writeJSON(w, http.StatusOK, SerpKeyResponse{SerpKey: key})
}

// SetSerpKey claims a serp key for the user.
func (h *Handler) SetSerpKey(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var req SetSerpKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.keys.Claim(r.Context(), id, req.SerpKey); err != nil {
		h.writeServiceError(w, "set serp key", id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearSerpKey releases the user's serp key.
func (h *Handler) ClearSerpKey(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	removed, err := h.keys.Release(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to clear serp key", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, RemovedResponse{Removed: removed})
}

// KeyAvailable reports whether the key is free for the user in user_id.
func (h *Handler) KeyAvailable(w http.ResponseWriter, r *http.Request) {
	forID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	available, err := h.keys.IsAvailable(r.Context(), r.PathValue("key"), forID)
	if err != nil {
		h.writeServiceError(w, "check serp key", forID, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{Available: available})
}

// writeServiceError maps domain and application errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, id int64, err error) {
	switch {
	case errors.Is(err, driven.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, driven.ErrKeyInUse):
		writeError(w, http.StatusConflict, "serp key already in use")
	case errors.Is(err, driven.ErrInsufficientCredits):
		writeError(w, http.StatusConflict, "insufficient credits")
	case errors.Is(err, driven.ErrCreditOverflow):
		writeError(w, http.StatusBadRequest, driven.ErrCreditOverflow.Error())
	case errors.Is(err, application.ErrInvalidKey),
		errors.Is(err, application.ErrInvalidURL),
		errors.Is(err, application.ErrInvalidAmount),
		errors.Is(err, application.ErrInvalidPlan):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "op", op, "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// userID parses the {id} path value, writing a 400 when it is not an integer.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
