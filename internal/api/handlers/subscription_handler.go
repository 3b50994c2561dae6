package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "beacon/internal/api/context"
	"beacon/internal/engine/signature"
	"beacon/internal/pkg/errors"
	"beacon/internal/platform/auth"
	"beacon/internal/platform/config"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

type SubscriptionHandler struct {
	subscriptions *repositories.SubscriptionRepository
	defaults      config.WebhooksConfig
}

func NewSubscriptionHandler(subscriptions *repositories.SubscriptionRepository, defaults config.WebhooksConfig) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, defaults: defaults}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req struct {
		URL            string   `json:"url"`
		EventTypes     []string `json:"event_types"`
		RetryCount     *int     `json:"retry_count"`
		TimeoutSeconds *int     `json:"timeout_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	sub := &models.Subscription{
		UserID:         claims.UserID,
		URL:            req.URL,
		EventTypes:     req.EventTypes,
		RetryCount:     h.defaults.DefaultRetryCount,
		TimeoutSeconds: h.defaults.DefaultTimeoutSeconds,
	}
	if req.RetryCount != nil {
		sub.RetryCount = *req.RetryCount
	}
	if req.TimeoutSeconds != nil {
		sub.TimeoutSeconds = *req.TimeoutSeconds
	}

	if err := sub.Validate(); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	secret, err := signature.GenerateSecret()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate secret", nil)
		return
	}
	sub.Secret = secret

	if err := h.subscriptions.Create(sub); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create subscription", nil)
		return
	}

	// The secret appears in this response and never again.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	activeOnly := r.URL.Query().Get("active_only") == "true"

	subs, err := h.subscriptions.ListForUser(claims.UserID, activeOnly)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list subscriptions", nil)
		return
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	for _, s := range subs {
		s.Secret = ""
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subs)
}

// owned loads a subscription and enforces ownership. Writes the error
// response itself when it returns nil.
func (h *SubscriptionHandler) owned(w http.ResponseWriter, r *http.Request) *models.Subscription {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("subscription_id")

	sub, err := h.subscriptions.GetByID(id)
	if err != nil {
		if err == sql.ErrNoRows {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Subscription not found", nil)
		} else {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load subscription", nil)
		}
		return nil
	}
	if sub.UserID != claims.UserID {
		// Do not leak existence of other users' subscriptions.
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Subscription not found", nil)
		return nil
	}
	return sub
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub := h.owned(w, r)
	if sub == nil {
		return
	}
	sub.Secret = ""

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	sub := h.owned(w, r)
	if sub == nil {
		return
	}

	var req struct {
		URL            *string  `json:"url"`
		EventTypes     []string `json:"event_types"`
		IsActive       *bool    `json:"is_active"`
		RetryCount     *int     `json:"retry_count"`
		TimeoutSeconds *int     `json:"timeout_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.URL != nil {
		sub.URL = *req.URL
	}
	if req.EventTypes != nil {
		sub.EventTypes = req.EventTypes
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}
	if req.RetryCount != nil {
		sub.RetryCount = *req.RetryCount
	}
	if req.TimeoutSeconds != nil {
		sub.TimeoutSeconds = *req.TimeoutSeconds
	}

	if err := sub.Validate(); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	if err := h.subscriptions.Update(sub); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update subscription", nil)
		return
	}
	sub.Secret = ""

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sub := h.owned(w, r)
	if sub == nil {
		return
	}

	if err := h.subscriptions.Delete(sub.ID); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to delete subscription", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EventTypes lists the subscription vocabulary so clients can validate
// before creating.
func (h *SubscriptionHandler) EventTypes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"event_types": models.EventTypes})
}
