package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ReplayWindow is the maximum age of a Slack request timestamp. Anything
// older is rejected even with a valid signature.
const ReplayWindow = 300 * time.Second

var (
	ErrMissingSignature = errors.New("signature header is required")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidTimestamp = errors.New("invalid signature timestamp")
	ErrTimestampExpired = errors.New("signature timestamp outside replay window")
)

// VerifySlack checks a Slack Events API request against the app's signing
// secret: v0:{timestamp}:{body} HMAC-SHA256, compared in constant time.
func VerifySlack(signingSecret, timestamp, slackSignature string, body []byte, now time.Time) error {
	if timestamp == "" || slackSignature == "" {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > ReplayWindow {
		return ErrTimestampExpired
	}

	base := fmt.Sprintf("v0:%s:%s", timestamp, body)
	h := hmac.New(sha256.New, []byte(signingSecret))
	h.Write([]byte(base))
	expected := "v0=" + hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(slackSignature)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyChannelToken compares a Gmail push channel token against the token
// stored when the watch was created.
func VerifyChannelToken(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
