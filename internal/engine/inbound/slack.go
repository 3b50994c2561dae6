package inbound

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"beacon/internal/engine/signature"
	"beacon/internal/platform/config"
)

var ErrSigningSecretMissing = errors.New("slack signing secret not configured")

// UserResolver maps a Slack user id to an internal user id. Resolution is
// owned by the identity system; the adapter only needs the lookup.
type UserResolver func(slackUserID string) (string, bool)

type slackEnvelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	EventID   string          `json:"event_id"`
	TeamID    string          `json:"team_id"`
	Event     json.RawMessage `json:"event"`
}

type slackInnerEvent struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	BotID   string `json:"bot_id"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// SlackVerifier handles the Slack Events API. Signature verification runs
// before any parsing; the url_verification handshake is terminal and never
// dispatches.
type SlackVerifier struct {
	cfg         config.SlackConfig
	development bool
	resolve     UserResolver
}

func NewSlackVerifier(cfg config.SlackConfig, development bool, resolver UserResolver) *SlackVerifier {
	return &SlackVerifier{cfg: cfg, development: development, resolve: resolver}
}

func (v *SlackVerifier) Verify(headers http.Header, body []byte, now time.Time) (*Result, error) {
	if v.cfg.SigningSecret == "" {
		if !v.development {
			return nil, ErrSigningSecretMissing
		}
		log.Warn().Msg("SLACK SIGNATURE VERIFICATION SKIPPED: no signing secret configured (development mode only)")
	} else {
		timestamp := headers.Get("X-Slack-Request-Timestamp")
		sig := headers.Get("X-Slack-Signature")
		if err := signature.VerifySlack(v.cfg.SigningSecret, timestamp, sig, body, now); err != nil {
			return nil, err
		}
	}

	var envelope slackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed slack payload: %w", err)
	}

	switch envelope.Type {
	case "url_verification":
		return &Result{Response: map[string]string{"challenge": envelope.Challenge}}, nil
	case "event_callback":
		// handled below
	default:
		return &Result{Response: map[string]string{"status": "ok"}}, nil
	}

	var inner slackInnerEvent
	if len(envelope.Event) > 0 {
		if err := json.Unmarshal(envelope.Event, &inner); err != nil {
			return nil, fmt.Errorf("malformed slack inner event: %w", err)
		}
	}

	response := map[string]string{"status": "ok"}

	// The bot's own messages would feed back into the pipeline forever.
	if inner.BotID != "" || (v.cfg.BotUserID != "" && inner.User == v.cfg.BotUserID) {
		return &Result{Response: response}, nil
	}

	userID := v.cfg.DefaultUserID
	if v.resolve != nil {
		if resolved, ok := v.resolve(inner.User); ok {
			userID = resolved
		}
	}

	var data map[string]interface{}
	if len(envelope.Event) > 0 {
		json.Unmarshal(envelope.Event, &data)
	}

	event := &NormalizedEvent{
		Provider:  ProviderSlack,
		InnerType: inner.Type,
		UserID:    userID,
		DedupKey:  envelope.EventID,
		Data:      data,
	}
	return &Result{Event: event, Response: response}, nil
}
