package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const Prefix = "sha256="

// Sign computes the outbound webhook signature over the exact payload
// bytes. Receivers recompute it over the request body as received, so the
// payload is always the serialized envelope stored with the delivery.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return Prefix + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature in constant time. Both the bare hex digest and
// the sha256=-prefixed form are accepted.
func Verify(secret string, payload []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, Prefix)
	expected := strings.TrimPrefix(Sign(secret, payload), Prefix)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateSecret returns a new subscription signing secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
