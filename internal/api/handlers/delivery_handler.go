package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "beacon/internal/api/context"
	"beacon/internal/engine/delivery"
	"beacon/internal/engine/dispatch"
	"beacon/internal/pkg/errors"
	"beacon/internal/platform/auth"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

type DeliveryHandler struct {
	subscriptions *repositories.SubscriptionRepository
	deliveries    *repositories.DeliveryRepository
	engine        *delivery.Engine
	pool          *dispatch.Pool
}

func NewDeliveryHandler(subscriptions *repositories.SubscriptionRepository, deliveries *repositories.DeliveryRepository,
	engine *delivery.Engine, pool *dispatch.Pool) *DeliveryHandler {
	return &DeliveryHandler{
		subscriptions: subscriptions,
		deliveries:    deliveries,
		engine:        engine,
		pool:          pool,
	}
}

func (h *DeliveryHandler) ownedSubscription(w http.ResponseWriter, r *http.Request) *models.Subscription {
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
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Subscription not found", nil)
		return nil
	}
	return sub
}

// List returns the delivery history for a subscription, newest first.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubscription(w, r)
	if sub == nil {
		return
	}

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	deliveries, err := h.deliveries.ListForSubscription(sub.ID, limit, offset)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list deliveries", nil)
		return
	}
	if deliveries == nil {
		deliveries = []*models.Delivery{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deliveries)
}

// Test creates and dispatches a test delivery to the subscription's URL so
// subscribers can verify their endpoint and signature handling.
func (h *DeliveryHandler) Test(w http.ResponseWriter, r *http.Request) {
	sub := h.ownedSubscription(w, r)
	if sub == nil {
		return
	}

	var req struct {
		EventType string `json:"event_type"`
	}
	// Body is optional.
	json.NewDecoder(r.Body).Decode(&req)

	eventType := req.EventType
	if eventType == "" {
		eventType = sub.EventTypes[0]
	}
	if !models.ValidEventType(eventType) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown event type", nil)
		return
	}

	eventID := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	envelope := models.EventEnvelope{
		ID:        eventID,
		Event:     eventType,
		Timestamp: time.Now().Unix(),
		UserID:    sub.UserID,
		Data:      map[string]interface{}{"test": true},
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to build test payload", nil)
		return
	}

	d := &models.Delivery{
		SubscriptionID: sub.ID,
		EventType:      eventType,
		EventID:        eventID,
		Payload:        string(payload),
		MaxAttempts:    sub.RetryCount,
	}
	if err := h.deliveries.Create(d); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create test delivery", nil)
		return
	}

	id := d.ID
	if !h.pool.Enqueue(func(ctx context.Context) {
		if err := h.engine.Attempt(ctx, id); err != nil {
			log.Error().Err(err).Str("delivery_id", id).Msg("test delivery attempt errored")
		}
	}) {
		log.Warn().Str("delivery_id", id).Msg("dispatch queue full, test delivery deferred to sweeper")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(d)
}
