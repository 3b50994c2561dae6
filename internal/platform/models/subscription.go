package models

import (
	"fmt"
	"net/url"
)

// EventTypes is the fixed vocabulary a subscription may register for.
// Subscription creation validates against this set; producers and the
// router only ever emit members of it.
var EventTypes = []string{
	"email.received",
	"email.sent",
	"email.indexed",
	"calendar.event.created",
	"calendar.event.updated",
	"calendar.event.deleted",
	"task.created",
	"task.updated",
	"task.completed",
	"task.deleted",
	"indexing.started",
	"indexing.completed",
	"indexing.failed",
	"user.created",
	"user.settings.updated",
	"slack.message.received",
	"slack.reaction.added",
	"slack.channel.created",
	"export.completed",
	"sync.completed",
}

var eventTypeSet = func() map[string]bool {
	set := make(map[string]bool, len(EventTypes))
	for _, t := range EventTypes {
		set[t] = true
	}
	return set
}()

func ValidEventType(eventType string) bool {
	return eventTypeSet[eventType]
}

const (
	MaxRetryCount     = 10
	MaxTimeoutSeconds = 60
)

type Subscription struct {
	ID         string   `json:"id"`
	UserID     string   `json:"user_id"`
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"` // JSON array in DB
	// Secret is only populated on creation; reads leave it empty.
	Secret         string `json:"secret,omitempty"`
	IsActive       bool   `json:"is_active"`
	RetryCount     int    `json:"retry_count"`
	TimeoutSeconds int    `json:"timeout_seconds"`

	TotalDeliveries      int64 `json:"total_deliveries"`
	SuccessfulDeliveries int64 `json:"successful_deliveries"`
	FailedDeliveries     int64 `json:"failed_deliveries"`

	LastDeliveryAt int64 `json:"last_delivery_at,omitempty"`
	LastSuccessAt  int64 `json:"last_success_at,omitempty"`
	LastFailureAt  int64 `json:"last_failure_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Validate checks the user-settable fields. It is called on create and on
// update, so zero values on update are checked by the handler before merge.
func (s *Subscription) Validate() error {
	u, err := url.Parse(s.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("url must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if len(s.EventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, t := range s.EventTypes {
		if !ValidEventType(t) {
			return fmt.Errorf("unknown event type %q", t)
		}
	}
	if s.RetryCount < 0 || s.RetryCount > MaxRetryCount {
		return fmt.Errorf("retry_count must be between 0 and %d", MaxRetryCount)
	}
	if s.TimeoutSeconds < 1 || s.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be between 1 and %d", MaxTimeoutSeconds)
	}
	return nil
}
