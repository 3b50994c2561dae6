package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"beacon/internal/platform/models"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *models.Subscription) error {
	sub.ID = "sub_" + uuid.New().String()
	sub.CreatedAt = time.Now().Unix()
	sub.UpdatedAt = sub.CreatedAt
	sub.IsActive = true

	eventsJSON, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhook_subscriptions
			(id, user_id, url, event_types, secret, is_active, retry_count, timeout_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, sub.ID, sub.UserID, sub.URL, string(eventsJSON), sub.Secret,
		sub.RetryCount, sub.TimeoutSeconds, sub.CreatedAt, sub.UpdatedAt)
	return err
}

const subscriptionColumns = `id, user_id, url, event_types, secret, is_active, retry_count, timeout_seconds,
	total_deliveries, successful_deliveries, failed_deliveries,
	last_delivery_at, last_success_at, last_failure_at, created_at, updated_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (*models.Subscription, error) {
	var s models.Subscription
	var eventsStr string
	var isActive int
	var lastDelivery, lastSuccess, lastFailure sql.NullInt64

	err := row.Scan(&s.ID, &s.UserID, &s.URL, &eventsStr, &s.Secret, &isActive,
		&s.RetryCount, &s.TimeoutSeconds,
		&s.TotalDeliveries, &s.SuccessfulDeliveries, &s.FailedDeliveries,
		&lastDelivery, &lastSuccess, &lastFailure, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.IsActive = isActive == 1
	if lastDelivery.Valid {
		s.LastDeliveryAt = lastDelivery.Int64
	}
	if lastSuccess.Valid {
		s.LastSuccessAt = lastSuccess.Int64
	}
	if lastFailure.Valid {
		s.LastFailureAt = lastFailure.Int64
	}
	json.Unmarshal([]byte(eventsStr), &s.EventTypes)

	return &s, nil
}

// GetByID returns the subscription including its secret; API handlers blank
// the secret before responding.
func (r *SubscriptionRepository) GetByID(id string) (*models.Subscription, error) {
	row := r.db.QueryRow(`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = ?`, id)
	return scanSubscription(row)
}

func (r *SubscriptionRepository) ListForUser(userID string, activeOnly bool) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// ActiveForEvent returns active subscriptions registered for the event
// type. Event types live in a JSON column, so filtering happens here
// rather than in SQL; subscription counts per user are small.
func (r *SubscriptionRepository) ActiveForEvent(eventType string) ([]*models.Subscription, error) {
	rows, err := r.db.Query(`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE is_active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		for _, t := range s.EventTypes {
			if t == eventType {
				matched = append(matched, s)
				break
			}
		}
	}
	return matched, rows.Err()
}

func (r *SubscriptionRepository) Update(sub *models.Subscription) error {
	eventsJSON, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return err
	}
	sub.UpdatedAt = time.Now().Unix()

	active := 0
	if sub.IsActive {
		active = 1
	}

	query := `
		UPDATE webhook_subscriptions
		SET url = ?, event_types = ?, is_active = ?, retry_count = ?, timeout_seconds = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.Exec(query, sub.URL, string(eventsJSON), active, sub.RetryCount,
		sub.TimeoutSeconds, sub.UpdatedAt, sub.ID)
	return err
}

// Delete removes the subscription and all its deliveries.
func (r *SubscriptionRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM webhook_deliveries WHERE subscription_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM webhook_subscriptions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordSuccess bumps the rolling counters after a successful delivery
// attempt. Increments happen in SQL so concurrent deliveries for the same
// subscription never lose updates.
func (r *SubscriptionRepository) RecordSuccess(id string, now int64) error {
	_, err := r.db.Exec(`
		UPDATE webhook_subscriptions
		SET total_deliveries = total_deliveries + 1,
		    successful_deliveries = successful_deliveries + 1,
		    last_delivery_at = ?, last_success_at = ?
		WHERE id = ?
	`, now, now, id)
	return err
}

// RecordFailure bumps counters after a failed attempt. total_deliveries
// counts attempts; failed_deliveries only moves when the delivery goes
// terminal, so a delivery that fails three times and exhausts its retries
// shows up as one failed delivery.
func (r *SubscriptionRepository) RecordFailure(id string, terminal bool, now int64) error {
	query := `
		UPDATE webhook_subscriptions
		SET total_deliveries = total_deliveries + 1,
		    last_delivery_at = ?, last_failure_at = ?
		WHERE id = ?
	`
	if terminal {
		query = `
		UPDATE webhook_subscriptions
		SET total_deliveries = total_deliveries + 1,
		    failed_deliveries = failed_deliveries + 1,
		    last_delivery_at = ?, last_failure_at = ?
		WHERE id = ?
	`
	}
	_, err := r.db.Exec(query, now, now, id)
	return err
}
