package repositories

import (
	"testing"
	"time"

	"beacon/internal/platform/models"
)

func createDeliveryFixture(t *testing.T, subs *SubscriptionRepository, deliveries *DeliveryRepository) *models.Delivery {
	t.Helper()

	sub := newTestSubscription("user-1", "task.completed")
	if err := subs.Create(sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	d := &models.Delivery{
		SubscriptionID: sub.ID,
		EventType:      "task.completed",
		EventID:        "evt-1",
		Payload:        `{"event":"task.completed"}`,
		MaxAttempts:    3,
	}
	if err := deliveries.Create(d); err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	return d
}

func TestDeliveryClaimTransitions(t *testing.T) {
	db := setupDB(t)
	subs := NewSubscriptionRepository(db)
	deliveries := NewDeliveryRepository(db)
	d := createDeliveryFixture(t, subs, deliveries)

	now := time.Now().Unix()
	claimed, err := deliveries.Claim(d.ID, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("pending delivery should be claimable")
	}

	got, err := deliveries.GetByID(d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.DeliveryProcessing {
		t.Errorf("status after claim: want processing, got %s", got.Status)
	}
	if got.FirstAttemptedAt != now || got.LastAttemptedAt != now {
		t.Errorf("attempt timestamps not set: %+v", got)
	}

	// A second claim must lose.
	claimed, err = deliveries.Claim(d.ID, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Error("processing delivery must not be claimable")
	}
}

func TestDeliverySuccessLifecycle(t *testing.T) {
	db := setupDB(t)
	subs := NewSubscriptionRepository(db)
	deliveries := NewDeliveryRepository(db)
	d := createDeliveryFixture(t, subs, deliveries)

	now := time.Now().Unix()
	if _, err := deliveries.Claim(d.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := deliveries.RecordSuccess(d.ID, 200, "ok", now); err != nil {
		t.Fatalf("record success: %v", err)
	}

	got, err := deliveries.GetByID(d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.DeliverySuccess {
		t.Errorf("status: want success, got %s", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("attempt_count: want 1, got %d", got.AttemptCount)
	}
	if got.ResponseStatusCode != 200 || got.ResponseBody != "ok" {
		t.Errorf("response not recorded: %+v", got)
	}
	if got.CompletedAt == 0 {
		t.Error("terminal deliveries must carry completed_at")
	}
	if got.NextRetryAt != 0 {
		t.Error("terminal deliveries must not carry next_retry_at")
	}
}

func TestDeliveryRetryLifecycle(t *testing.T) {
	db := setupDB(t)
	subs := NewSubscriptionRepository(db)
	deliveries := NewDeliveryRepository(db)
	d := createDeliveryFixture(t, subs, deliveries)

	now := time.Now().Unix()
	if _, err := deliveries.Claim(d.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Transport error: no status code recorded.
	if err := deliveries.ScheduleRetry(d.ID, 0, "", "connection refused", now+2); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}

	got, err := deliveries.GetByID(d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.DeliveryRetrying {
		t.Errorf("status: want retrying, got %s", got.Status)
	}
	if got.ResponseStatusCode != 0 {
		t.Errorf("transport errors carry no status code, got %d", got.ResponseStatusCode)
	}
	if got.NextRetryAt != now+2 {
		t.Errorf("next_retry_at: want %d, got %d", now+2, got.NextRetryAt)
	}
	if got.ErrorMessage != "connection refused" {
		t.Errorf("error_message: got %q", got.ErrorMessage)
	}

	// A retrying delivery is claimable again; a completion clears the
	// retry schedule.
	claimed, err := deliveries.Claim(d.ID, now+3)
	if err != nil || !claimed {
		t.Fatalf("reclaim: claimed=%v err=%v", claimed, err)
	}
	if err := deliveries.MarkFailed(d.ID, 503, "unavailable", "HTTP 503", now+3); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err = deliveries.GetByID(d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.DeliveryFailed || got.AttemptCount != 2 {
		t.Errorf("terminal state wrong: status=%s attempts=%d", got.Status, got.AttemptCount)
	}
	if got.NextRetryAt != 0 || got.CompletedAt == 0 {
		t.Errorf("terminal invariants violated: %+v", got)
	}
}

func TestDueForRetryOrdering(t *testing.T) {
	db := setupDB(t)
	subs := NewSubscriptionRepository(db)
	deliveries := NewDeliveryRepository(db)

	now := time.Now().Unix()
	var ids []string
	for _, offset := range []int64{30, -10, -20} {
		d := createDeliveryFixture(t, subs, deliveries)
		if _, err := deliveries.Claim(d.ID, now); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := deliveries.ScheduleRetry(d.ID, 503, "", "HTTP 503", now+offset); err != nil {
			t.Fatalf("schedule retry: %v", err)
		}
		ids = append(ids, d.ID)
	}

	due, err := deliveries.DueForRetry(now, 10)
	if err != nil {
		t.Fatalf("due for retry: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due deliveries, got %d", len(due))
	}
	// Oldest next_retry_at first.
	if due[0].ID != ids[2] || due[1].ID != ids[1] {
		t.Errorf("due order wrong: got %s, %s", due[0].ID, due[1].ID)
	}
}

func TestStalePending(t *testing.T) {
	db := setupDB(t)
	subs := NewSubscriptionRepository(db)
	deliveries := NewDeliveryRepository(db)
	d := createDeliveryFixture(t, subs, deliveries)

	stale, err := deliveries.StalePending(time.Now().Unix()+1, 10)
	if err != nil {
		t.Fatalf("stale pending: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != d.ID {
		t.Fatalf("expected the pending delivery, got %+v", stale)
	}

	// Claimed deliveries are no longer pending.
	if _, err := deliveries.Claim(d.ID, time.Now().Unix()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	stale, err = deliveries.StalePending(time.Now().Unix()+1, 10)
	if err != nil {
		t.Fatalf("stale pending: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("claimed delivery still reported stale: %+v", stale)
	}
}

func TestRecoverStuckProcessing(t *testing.T) {
	db := setupDB(t)
	subs := NewSubscriptionRepository(db)
	deliveries := NewDeliveryRepository(db)

	now := time.Now().Unix()

	orphaned := createDeliveryFixture(t, subs, deliveries)
	if _, err := deliveries.Claim(orphaned.ID, now-600); err != nil {
		t.Fatalf("claim: %v", err)
	}
	fresh := createDeliveryFixture(t, subs, deliveries)
	if _, err := deliveries.Claim(fresh.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	recovered, err := deliveries.RecoverStuckProcessing(now-300, now)
	if err != nil {
		t.Fatalf("recover stuck processing: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered delivery, got %d", recovered)
	}

	got, err := deliveries.GetByID(orphaned.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.DeliveryRetrying {
		t.Errorf("orphaned claim: want retrying, got %s", got.Status)
	}
	if got.NextRetryAt != now {
		t.Errorf("next_retry_at: want %d, got %d", now, got.NextRetryAt)
	}
	// The crashed attempt never recorded, so nothing to count.
	if got.AttemptCount != 0 {
		t.Errorf("attempt_count must be untouched, got %d", got.AttemptCount)
	}

	got, err = deliveries.GetByID(fresh.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.DeliveryProcessing {
		t.Errorf("in-flight delivery must keep its claim, got %s", got.Status)
	}
}

func TestPurgeOlderThanKeepsInFlight(t *testing.T) {
	db := setupDB(t)
	subs := NewSubscriptionRepository(db)
	deliveries := NewDeliveryRepository(db)

	now := time.Now().Unix()

	old := createDeliveryFixture(t, subs, deliveries)
	if _, err := deliveries.Claim(old.ID, now-100); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := deliveries.RecordSuccess(old.ID, 200, "", now-100); err != nil {
		t.Fatalf("record success: %v", err)
	}

	inflight := createDeliveryFixture(t, subs, deliveries)
	if _, err := deliveries.Claim(inflight.ID, now-100); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := deliveries.ScheduleRetry(inflight.ID, 503, "", "HTTP 503", now-50); err != nil {
		t.Fatalf("schedule retry: %v", err)
	}

	purged, err := deliveries.PurgeOlderThan(now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged delivery, got %d", purged)
	}
	if _, err := deliveries.GetByID(inflight.ID); err != nil {
		t.Errorf("retrying delivery must survive retention cleanup: %v", err)
	}
}
