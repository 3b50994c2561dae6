package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/platform/config"
	"beacon/internal/platform/repositories"
)

// CleanupWorker deletes terminal delivery records older than the retention
// window. Subscriptions and their aggregate counters are never touched.
type CleanupWorker struct {
	deliveries *repositories.DeliveryRepository
	cfg        config.RetentionConfig
}

func NewCleanupWorker(deliveries *repositories.DeliveryRepository, cfg config.RetentionConfig) *CleanupWorker {
	return &CleanupWorker{deliveries: deliveries, cfg: cfg}
}

func (w *CleanupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Cleanup()
		}
	}
}

func (w *CleanupWorker) Cleanup() {
	cutoff := time.Now().Add(-w.cfg.MaxAge).Unix()
	purged, err := w.deliveries.PurgeOlderThan(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("delivery retention cleanup failed")
		return
	}
	if purged > 0 {
		log.Info().Int64("purged", purged).Msg("deleted expired delivery records")
	}
}
