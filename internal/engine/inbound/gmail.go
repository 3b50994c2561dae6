package inbound

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/engine/signature"
	"beacon/internal/platform/config"
)

var ErrChannelTokenMismatch = errors.New("gmail channel token mismatch")

var resourceUserPattern = regexp.MustCompile(`/users/([^/]+)/`)

// GmailVerifier handles Gmail push notifications. Gmail watch channels
// carry a shared token set at watch creation; only resourceState "add"
// notifications carry actionable content, "sync" is a heartbeat.
type GmailVerifier struct {
	cfg config.GmailConfig
}

func NewGmailVerifier(cfg config.GmailConfig) *GmailVerifier {
	return &GmailVerifier{cfg: cfg}
}

func (v *GmailVerifier) Verify(headers http.Header, body []byte, now time.Time) (*Result, error) {
	channelID := headers.Get("X-Goog-Channel-Id")
	token := headers.Get("X-Goog-Channel-Token")
	messageNumber := headers.Get("X-Goog-Message-Number")
	resourceID := headers.Get("X-Goog-Resource-Id")
	resourceState := headers.Get("X-Goog-Resource-State")
	resourceURI := headers.Get("X-Goog-Resource-Uri")
	expiration := headers.Get("X-Goog-Channel-Expiration")

	if v.cfg.ChannelToken != "" && !signature.VerifyChannelToken(v.cfg.ChannelToken, token) {
		if v.cfg.StrictToken {
			return nil, ErrChannelTokenMismatch
		}
		// Gmail does not consistently echo custom tokens; trust is
		// downgraded rather than dropping the notification.
		log.Warn().Str("channel_id", channelID).Msg("gmail channel token mismatch, continuing")
	}

	response := map[string]interface{}{
		"status":         "received",
		"resource_state": resourceState,
	}

	// "sync" heartbeats confirm the watch; nothing to route.
	if resourceState != "add" {
		return &Result{Response: response}, nil
	}

	userID := resolveGmailUser(token, resourceURI)
	if userID == "" {
		// Polling outside this pipeline covers the mailbox; drop here.
		log.Warn().Str("channel_id", channelID).Str("resource_uri", resourceURI).
			Msg("gmail notification without resolvable user, dropping")
		return &Result{Response: response}, nil
	}

	event := &NormalizedEvent{
		Provider:  ProviderGmail,
		InnerType: "message.added",
		UserID:    userID,
		DedupKey:  channelID + ":" + messageNumber,
		Data: map[string]interface{}{
			"channel_id":     channelID,
			"message_number": messageNumber,
			"resource_id":    resourceID,
			"resource_uri":   resourceURI,
			"expiration":     expiration,
		},
	}
	return &Result{Event: event, Response: response}, nil
}

// resolveGmailUser extracts the owning user from the channel token
// ("user_{id}_{random}") or, failing that, from the resource URI's
// /users/{id}/ segment.
func resolveGmailUser(token, resourceURI string) string {
	if strings.HasPrefix(token, "user_") {
		rest := token[len("user_"):]
		if i := strings.LastIndex(rest, "_"); i > 0 {
			return rest[:i]
		}
	}
	if m := resourceUserPattern.FindStringSubmatch(resourceURI); m != nil {
		// Gmail addresses "me" generically; that cannot identify an owner.
		if m[1] != "me" {
			return m[1]
		}
	}
	return ""
}
