package models

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySuccess    DeliveryStatus = "success"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryRetrying   DeliveryStatus = "retrying"
)

// Terminal reports whether a delivery in this status is finished and must
// never be mutated again.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

type Delivery struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	EventType      string         `json:"event_type"`
	EventID        string         `json:"event_id"`
	Payload        string         `json:"payload"` // opaque JSON, signed as stored
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`

	ResponseStatusCode int    `json:"response_status_code,omitempty"`
	ResponseBody       string `json:"response_body,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`

	CreatedAt        int64 `json:"created_at"`
	FirstAttemptedAt int64 `json:"first_attempted_at,omitempty"`
	LastAttemptedAt  int64 `json:"last_attempted_at,omitempty"`
	CompletedAt      int64 `json:"completed_at,omitempty"`
	NextRetryAt      int64 `json:"next_retry_at,omitempty"`
}

// EventEnvelope is the outbound POST body. Payload is event-specific and
// passed through untouched; receivers verify the signature over the exact
// serialized envelope bytes.
type EventEnvelope struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	UserID    string      `json:"user_id,omitempty"`
	Data      interface{} `json:"data"`
}
