package handlers

import (
	"encoding/json"
	"net/http"

	"beacon/internal/engine/inbound"
	"beacon/internal/engine/router"
	"beacon/internal/pkg/errors"
	"beacon/internal/platform/models"
)

// EventHandler is the producer endpoint: internal systems (indexer,
// agents, sync jobs) fire vocabulary events here and the pipeline fans
// them out to subscribers. Guarded by API-key middleware.
type EventHandler struct {
	router *router.Router
	dedup  *inbound.DedupCache
}

func NewEventHandler(rt *router.Router, dedup *inbound.DedupCache) *EventHandler {
	return &EventHandler{router: rt, dedup: dedup}
}

func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventType string      `json:"event_type"`
		EventID   string      `json:"event_id"`
		UserID    string      `json:"user_id"`
		Payload   interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if !models.ValidEventType(req.EventType) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown event type", nil)
		return
	}
	if req.EventID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "event_id is required", nil)
		return
	}

	// event_id doubles as the producer's idempotency key.
	if h.dedup.Seen("internal", req.EventType+":"+req.EventID) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":             "duplicate",
			"deliveries_created": 0,
		})
		return
	}

	created, err := h.router.Publish(req.EventType, req.EventID, req.UserID, req.Payload)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to publish event", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":             "accepted",
		"deliveries_created": created,
	})
}
