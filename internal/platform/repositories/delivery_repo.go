package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"beacon/internal/platform/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(d *models.Delivery) error {
	d.ID = "del_" + uuid.New().String()
	d.Status = models.DeliveryPending
	d.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO webhook_deliveries
			(id, subscription_id, event_type, event_id, payload, status, attempt_count, max_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err := r.db.Exec(query, d.ID, d.SubscriptionID, d.EventType, d.EventID,
		d.Payload, d.Status, d.MaxAttempts, d.CreatedAt)
	return err
}

const deliveryColumns = `id, subscription_id, event_type, event_id, payload, status, attempt_count, max_attempts,
	response_status_code, response_body, error_message,
	created_at, first_attempted_at, last_attempted_at, completed_at, next_retry_at`

func scanDelivery(row interface{ Scan(...interface{}) error }) (*models.Delivery, error) {
	var d models.Delivery
	var statusCode sql.NullInt64
	var respBody, errMsg sql.NullString
	var firstAt, lastAt, completedAt, nextRetryAt sql.NullInt64

	err := row.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.EventID, &d.Payload,
		&d.Status, &d.AttemptCount, &d.MaxAttempts,
		&statusCode, &respBody, &errMsg,
		&d.CreatedAt, &firstAt, &lastAt, &completedAt, &nextRetryAt)
	if err != nil {
		return nil, err
	}

	if statusCode.Valid {
		d.ResponseStatusCode = int(statusCode.Int64)
	}
	if respBody.Valid {
		d.ResponseBody = respBody.String
	}
	if errMsg.Valid {
		d.ErrorMessage = errMsg.String
	}
	if firstAt.Valid {
		d.FirstAttemptedAt = firstAt.Int64
	}
	if lastAt.Valid {
		d.LastAttemptedAt = lastAt.Int64
	}
	if completedAt.Valid {
		d.CompletedAt = completedAt.Int64
	}
	if nextRetryAt.Valid {
		d.NextRetryAt = nextRetryAt.Int64
	}
	return &d, nil
}

func (r *DeliveryRepository) GetByID(id string) (*models.Delivery, error) {
	row := r.db.QueryRow(`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id)
	return scanDelivery(row)
}

func (r *DeliveryRepository) ListForSubscription(subscriptionID string, limit, offset int) ([]*models.Delivery, error) {
	rows, err := r.db.Query(`
		SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE subscription_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, subscriptionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// Claim transitions a pending or retrying delivery to processing. The
// guarded UPDATE makes the claim exclusive: a second concurrent sweep sees
// zero rows affected and skips the delivery.
func (r *DeliveryRepository) Claim(id string, now int64) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status = 'processing',
		    first_attempted_at = COALESCE(first_attempted_at, ?),
		    last_attempted_at = ?,
		    next_retry_at = NULL
		WHERE id = ? AND status IN ('pending', 'retrying')
	`, now, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordSuccess finalizes a processing delivery after a 2xx response.
func (r *DeliveryRepository) RecordSuccess(id string, statusCode int, body string, now int64) error {
	_, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status = 'success',
		    attempt_count = attempt_count + 1,
		    response_status_code = ?, response_body = ?, error_message = NULL,
		    completed_at = ?, next_retry_at = NULL
		WHERE id = ? AND status = 'processing'
	`, statusCode, body, now, id)
	return err
}

// ScheduleRetry records a failed attempt that still has attempts left.
// statusCode is zero for transport errors.
func (r *DeliveryRepository) ScheduleRetry(id string, statusCode int, body, errMsg string, nextRetryAt int64) error {
	_, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status = 'retrying',
		    attempt_count = attempt_count + 1,
		    response_status_code = ?, response_body = ?, error_message = ?,
		    next_retry_at = ?
		WHERE id = ? AND status = 'processing'
	`, nullableCode(statusCode), body, errMsg, nextRetryAt, id)
	return err
}

// MarkFailed records a terminal failure, either because attempts ran out
// or because the failure is not retryable.
func (r *DeliveryRepository) MarkFailed(id string, statusCode int, body, errMsg string, now int64) error {
	_, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status = 'failed',
		    attempt_count = attempt_count + 1,
		    response_status_code = ?, response_body = ?, error_message = ?,
		    completed_at = ?, next_retry_at = NULL
		WHERE id = ? AND status = 'processing'
	`, nullableCode(statusCode), body, errMsg, now, id)
	return err
}

func nullableCode(statusCode int) interface{} {
	if statusCode == 0 {
		return nil
	}
	return statusCode
}

// DueForRetry returns deliveries whose backoff has elapsed, oldest first.
// Served by the (status, next_retry_at) index.
func (r *DeliveryRepository) DueForRetry(now int64, limit int) ([]*models.Delivery, error) {
	rows, err := r.db.Query(`
		SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE status = 'retrying' AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// StalePending returns pending deliveries that were never picked up, for
// example because the dispatch queue was full or the process restarted
// between creation and dispatch.
func (r *DeliveryRepository) StalePending(olderThan int64, limit int) ([]*models.Delivery, error) {
	rows, err := r.db.Query(`
		SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE status = 'pending' AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// RecoverStuckProcessing requeues deliveries that have sat in processing
// since before the cutoff. A worker that crashed mid-attempt leaves its
// claim behind; moving the row back to retrying lets the sweeper pick it
// up. The crashed attempt was never recorded, so attempt_count is
// untouched.
func (r *DeliveryRepository) RecoverStuckProcessing(olderThan, now int64) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status = 'retrying', next_retry_at = ?
		WHERE status = 'processing' AND last_attempted_at <= ?
	`, now, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeOlderThan deletes terminal deliveries completed before the cutoff.
// Subscription counters are aggregates and are untouched.
func (r *DeliveryRepository) PurgeOlderThan(cutoff int64) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM webhook_deliveries
		WHERE status IN ('success', 'failed') AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
