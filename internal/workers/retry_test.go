package workers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/engine/delivery"
	"beacon/internal/platform/config"
	"beacon/internal/platform/database"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

func setupSweeper(t *testing.T) (*sql.DB, *repositories.SubscriptionRepository, *repositories.DeliveryRepository, *RetrySweeper) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.EnsureSchema(db))

	subs := repositories.NewSubscriptionRepository(db)
	deliveries := repositories.NewDeliveryRepository(db)
	engine := delivery.NewEngine(deliveries, subs)
	sweeper := NewRetrySweeper(deliveries, engine, config.RetryConfig{
		SweepInterval: time.Second,
		BatchSize:     50,
	})
	return db, subs, deliveries, sweeper
}

func createSweepFixture(t *testing.T, subs *repositories.SubscriptionRepository, deliveries *repositories.DeliveryRepository, url string) *models.Delivery {
	t.Helper()

	sub := &models.Subscription{
		UserID:         "user-1",
		URL:            url,
		EventTypes:     []string{"task.completed"},
		Secret:         "whsec_sweeptest",
		RetryCount:     3,
		TimeoutSeconds: 5,
	}
	require.NoError(t, subs.Create(sub))

	d := &models.Delivery{
		SubscriptionID: sub.ID,
		EventType:      "task.completed",
		EventID:        "evt-1",
		Payload:        `{"event":"task.completed"}`,
		MaxAttempts:    sub.RetryCount,
	}
	require.NoError(t, deliveries.Create(d))
	return d
}

func TestSweepRetriesDueDeliveries(t *testing.T) {
	_, subs, deliveries, sweeper := setupSweeper(t)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := createSweepFixture(t, subs, deliveries, srv.URL)

	// A prior failed attempt scheduled a retry that is now due.
	now := time.Now().Unix()
	claimed, err := deliveries.Claim(d.ID, now-10)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, deliveries.ScheduleRetry(d.ID, 503, "", "HTTP 503", now-5))

	sweeper.Sweep(context.Background())

	assert.Equal(t, 1, hits)
	got, err := deliveries.GetByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySuccess, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
}

func TestSweepSkipsFutureRetries(t *testing.T) {
	_, subs, deliveries, sweeper := setupSweeper(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("delivery with unexpired backoff must not be attempted")
	}))
	defer srv.Close()

	d := createSweepFixture(t, subs, deliveries, srv.URL)
	now := time.Now().Unix()
	claimed, err := deliveries.Claim(d.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, deliveries.ScheduleRetry(d.ID, 503, "", "HTTP 503", now+300))

	sweeper.Sweep(context.Background())

	got, err := deliveries.GetByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryRetrying, got.Status)
}

func TestSweepRecoversStalePending(t *testing.T) {
	db, subs, deliveries, sweeper := setupSweeper(t)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := createSweepFixture(t, subs, deliveries, srv.URL)

	// Backdate creation so the delivery looks like a lost dispatch.
	_, err := db.Exec(`UPDATE webhook_deliveries SET created_at = ? WHERE id = ?`,
		time.Now().Add(-2*time.Minute).Unix(), d.ID)
	require.NoError(t, err)

	sweeper.Sweep(context.Background())

	assert.Equal(t, 1, hits)
	got, err := deliveries.GetByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySuccess, got.Status)
}

func TestSweepRecoversOrphanedProcessing(t *testing.T) {
	_, subs, deliveries, sweeper := setupSweeper(t)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := createSweepFixture(t, subs, deliveries, srv.URL)

	// A worker claimed the delivery ten minutes ago and never came back.
	claimed, err := deliveries.Claim(d.ID, time.Now().Add(-10*time.Minute).Unix())
	require.NoError(t, err)
	require.True(t, claimed)

	sweeper.Sweep(context.Background())

	assert.Equal(t, 1, hits)
	got, err := deliveries.GetByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySuccess, got.Status)
}

func TestCleanupPurgesExpiredTerminalDeliveries(t *testing.T) {
	db, subs, deliveries, _ := setupSweeper(t)

	d := createSweepFixture(t, subs, deliveries, "https://example.com/hooks")
	now := time.Now().Unix()
	claimed, err := deliveries.Claim(d.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, deliveries.RecordSuccess(d.ID, 200, "", now))

	// Push completion past the retention window.
	_, err = db.Exec(`UPDATE webhook_deliveries SET completed_at = ? WHERE id = ?`,
		time.Now().Add(-31*24*time.Hour).Unix(), d.ID)
	require.NoError(t, err)

	worker := NewCleanupWorker(deliveries, config.RetentionConfig{
		MaxAge:          30 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	})
	worker.Cleanup()

	_, err = deliveries.GetByID(d.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
