package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/engine/delivery"
	"beacon/internal/pkg/metrics"
	"beacon/internal/platform/config"
	"beacon/internal/platform/repositories"
)

// stalePendingAge is how long a pending delivery may sit before the
// sweeper assumes its original dispatch was lost.
const stalePendingAge = 60 * time.Second

// stuckProcessingAge is how long a delivery may sit in processing before
// the sweeper assumes the claiming worker died. Must comfortably exceed
// the largest allowed per-delivery timeout.
const stuckProcessingAge = 5 * time.Minute

// RetrySweeper periodically re-attempts deliveries whose backoff has
// elapsed. Multiple sweepers are safe: the engine's claim step makes each
// delivery exclusive to one worker.
type RetrySweeper struct {
	deliveries *repositories.DeliveryRepository
	engine     *delivery.Engine
	cfg        config.RetryConfig
}

func NewRetrySweeper(deliveries *repositories.DeliveryRepository, engine *delivery.Engine, cfg config.RetryConfig) *RetrySweeper {
	return &RetrySweeper{deliveries: deliveries, engine: engine, cfg: cfg}
}

// Run blocks until ctx is cancelled.
func (s *RetrySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over due retries and stale pending deliveries.
func (s *RetrySweeper) Sweep(ctx context.Context) {
	metrics.RetrySweeps.Inc()
	now := time.Now()

	// Orphaned claims from crashed workers go back to retrying first so
	// this sweep's due query already sees them.
	recovered, err := s.deliveries.RecoverStuckProcessing(now.Add(-stuckProcessingAge).Unix(), now.Unix())
	if err != nil {
		log.Error().Err(err).Msg("stuck processing recovery failed")
	} else if recovered > 0 {
		log.Warn().Int64("count", recovered).Msg("requeued deliveries orphaned in processing")
	}

	due, err := s.deliveries.DueForRetry(now.Unix(), s.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry sweep query failed")
		return
	}

	stale, err := s.deliveries.StalePending(now.Add(-stalePendingAge).Unix(), s.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("stale pending query failed")
	} else {
		due = append(due, stale...)
	}

	if len(due) == 0 {
		return
	}
	log.Info().Int("count", len(due)).Msg("retry sweep attempting deliveries")

	for _, d := range due {
		if ctx.Err() != nil {
			return
		}
		if err := s.engine.Attempt(ctx, d.ID); err != nil {
			log.Error().Err(err).Str("delivery_id", d.ID).Msg("retry attempt errored")
		}
	}
}
