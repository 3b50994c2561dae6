package inbound

import (
	"net/http"
	"time"
)

const (
	ProviderGmail = "gmail"
	ProviderSlack = "slack"
)

// NormalizedEvent is the provider-neutral form of an inbound callback. It
// is never persisted; its only lasting trace is whatever deliveries the
// router creates from it.
type NormalizedEvent struct {
	Provider  string
	InnerType string
	// UserID is the resolved internal owner, best effort.
	UserID   string
	DedupKey string
	Data     map[string]interface{}
}

// Result is what a provider adapter hands back to the HTTP layer.
// Event is nil for heartbeats, handshakes, ignored callbacks, and bot
// echoes. Response, when set, is the JSON body the provider expects.
type Result struct {
	Event    *NormalizedEvent
	Response interface{}
}

// Verifier authenticates a raw provider callback and normalizes it. An
// error means authentication failed and the request must be rejected with
// a 4xx before any side effects; every other outcome is expressed through
// the Result.
type Verifier interface {
	Verify(headers http.Header, body []byte, now time.Time) (*Result, error)
}
