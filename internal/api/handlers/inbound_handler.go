package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/engine/inbound"
	"beacon/internal/engine/router"
	"beacon/internal/engine/signature"
	pkgerrors "beacon/internal/pkg/errors"
	"beacon/internal/pkg/metrics"
)

// maxInboundBody bounds provider callback bodies. Gmail push headers carry
// everything; Slack event payloads stay well under this.
const maxInboundBody = 1 << 20

// InboundHandler terminates provider callbacks. Only authentication
// failures produce a non-2xx; internal failures are swallowed after
// logging, because providers treat error responses as a signal to retry
// aggressively.
type InboundHandler struct {
	gmail  inbound.Verifier
	slack  inbound.Verifier
	router *router.Router
	dedup  *inbound.DedupCache
}

func NewInboundHandler(gmail, slack inbound.Verifier, rt *router.Router, dedup *inbound.DedupCache) *InboundHandler {
	return &InboundHandler{gmail: gmail, slack: slack, router: rt, dedup: dedup}
}

// Gmail handles Gmail push notifications. The provider is always answered
// with 200 unless strict token checking rejects it; all real work happens
// in the background dispatch.
func (h *InboundHandler) Gmail(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody))
	if err != nil {
		body = nil
	}

	result, err := h.gmail.Verify(r.Header, body, time.Now())
	if err != nil {
		metrics.InboundEventsTotal.WithLabelValues(inbound.ProviderGmail, "rejected").Inc()
		pkgerrors.WriteError(w, http.StatusForbidden, pkgerrors.ErrCodeForbidden, "Channel token mismatch", nil)
		return
	}

	h.process(inbound.ProviderGmail, result)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result.Response)
}

// Slack handles the Slack Events API. Verification, parsing, and user
// resolution are synchronous; everything downstream is enqueued so the
// response goes out inside Slack's 3-second budget.
func (h *InboundHandler) Slack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody))
	if err != nil {
		pkgerrors.WriteError(w, http.StatusBadRequest, pkgerrors.ErrCodeInvalidInput, "Unreadable request body", nil)
		return
	}

	result, err := h.slack.Verify(r.Header, body, time.Now())
	if err != nil {
		metrics.InboundEventsTotal.WithLabelValues(inbound.ProviderSlack, "rejected").Inc()
		status := http.StatusBadRequest
		code := pkgerrors.ErrCodeInvalidInput
		if errors.Is(err, signature.ErrMissingSignature) ||
			errors.Is(err, signature.ErrInvalidSignature) ||
			errors.Is(err, signature.ErrInvalidTimestamp) ||
			errors.Is(err, signature.ErrTimestampExpired) ||
			errors.Is(err, inbound.ErrSigningSecretMissing) {
			status = http.StatusUnauthorized
			code = pkgerrors.ErrCodeUnauthorized
		}
		pkgerrors.WriteError(w, status, code, err.Error(), nil)
		return
	}

	h.process(inbound.ProviderSlack, result)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result.Response)
}

func (h *InboundHandler) process(provider string, result *inbound.Result) {
	if result.Event == nil {
		metrics.InboundEventsTotal.WithLabelValues(provider, "ignored").Inc()
		return
	}
	if h.dedup.Seen(result.Event.Provider, result.Event.DedupKey) {
		metrics.InboundEventsTotal.WithLabelValues(provider, "duplicate").Inc()
		log.Debug().Str("provider", provider).Str("dedup_key", result.Event.DedupKey).
			Msg("duplicate inbound event dropped")
		return
	}
	metrics.InboundEventsTotal.WithLabelValues(provider, "accepted").Inc()
	h.router.Route(result.Event)
}
