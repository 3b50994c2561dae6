package delivery

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/engine/signature"
	"beacon/internal/pkg/metrics"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

// maxResponseBody caps how much of a subscriber's response is retained for
// operator visibility.
const maxResponseBody = 1024

// Engine performs single delivery attempts and owns the delivery state
// machine. It is safe for concurrent use; the claim step in the repository
// guarantees a delivery is in flight in at most one goroutine.
type Engine struct {
	deliveries    *repositories.DeliveryRepository
	subscriptions *repositories.SubscriptionRepository
	client        *http.Client
}

func NewEngine(deliveries *repositories.DeliveryRepository, subscriptions *repositories.SubscriptionRepository) *Engine {
	return &Engine{
		deliveries:    deliveries,
		subscriptions: subscriptions,
		// Per-attempt deadlines come from the subscription via request
		// context; the client itself carries no timeout.
		client: &http.Client{},
	}
}

// Attempt executes one delivery attempt for the given delivery id and
// advances the state machine. A delivery that is terminal, or already
// claimed by another worker, is skipped without error.
func (e *Engine) Attempt(ctx context.Context, deliveryID string) error {
	// The claim doubles as the state check: terminal and in-flight rows
	// are not claimable.
	now := time.Now().Unix()
	claimed, err := e.deliveries.Claim(deliveryID, now)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	// Read after the claim so attempt accounting works off the row as it
	// is now, not a snapshot another worker may have advanced.
	d, err := e.deliveries.GetByID(deliveryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	sub, err := e.subscriptions.GetByID(d.SubscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Subscription deleted between scheduling and execution:
			// terminal, never retried.
			log.Warn().Str("delivery_id", d.ID).Str("subscription_id", d.SubscriptionID).
				Msg("subscription gone, abandoning delivery")
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			return e.deliveries.MarkFailed(d.ID, 0, "", "subscription deleted", time.Now().Unix())
		}
		return err
	}

	statusCode, body, attemptErr := e.send(ctx, sub, d)

	now = time.Now().Unix()
	if attemptErr == nil {
		if err := e.deliveries.RecordSuccess(d.ID, statusCode, body, now); err != nil {
			return err
		}
		if err := e.subscriptions.RecordSuccess(sub.ID, now); err != nil {
			return err
		}
		metrics.DeliveriesTotal.WithLabelValues("success").Inc()
		log.Debug().Str("delivery_id", d.ID).Int("status", statusCode).
			Int("attempt", d.AttemptCount+1).Msg("delivery succeeded")
		return nil
	}

	errMsg := attemptErr.Error()
	attempts := d.AttemptCount + 1
	terminal := attempts >= d.MaxAttempts

	if !terminal {
		nextRetryAt := now + int64(Backoff(attempts).Seconds())
		if err := e.deliveries.ScheduleRetry(d.ID, statusCode, body, errMsg, nextRetryAt); err != nil {
			return err
		}
		metrics.DeliveriesTotal.WithLabelValues("retrying").Inc()
		log.Debug().Str("delivery_id", d.ID).Int("attempt", attempts).
			Int64("next_retry_at", nextRetryAt).Str("error", errMsg).Msg("delivery scheduled for retry")
	} else {
		if err := e.deliveries.MarkFailed(d.ID, statusCode, body, errMsg, now); err != nil {
			return err
		}
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		log.Warn().Str("delivery_id", d.ID).Str("subscription_id", sub.ID).
			Int("attempts", attempts).Str("error", errMsg).Msg("delivery failed permanently")
	}

	if err := e.subscriptions.RecordFailure(sub.ID, terminal, now); err != nil {
		return err
	}
	return nil
}

// send performs the HTTP POST. It returns the response status code and a
// capped response body; a non-nil error marks the attempt as failed
// (non-2xx responses included).
func (e *Engine) send(ctx context.Context, sub *models.Subscription, d *models.Delivery) (int, string, error) {
	payload := []byte(d.Payload)
	sig := signature.Sign(sub.Secret, payload)

	timeout := time.Duration(sub.TimeoutSeconds) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Beacon-Signature", sig)
	req.Header.Set("X-Beacon-Event", d.EventType)
	req.Header.Set("X-Beacon-Delivery", d.ID)

	start := time.Now()
	resp, err := e.client.Do(req)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	body := string(bodyBytes)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, body, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}
