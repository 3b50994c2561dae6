package middleware

import (
	"context"
	"net/http"

	apiContext "beacon/internal/api/context"
	"beacon/internal/pkg/errors"
	"beacon/internal/platform/repositories"
)

// APIKeyMiddleware guards the internal producer endpoint. Producers
// (indexer, agents, sync jobs) authenticate with an X-API-Key header.
type APIKeyMiddleware struct {
	keys *repositories.APIKeyRepository
}

func NewAPIKeyMiddleware(keys *repositories.APIKeyRepository) *APIKeyMiddleware {
	return &APIKeyMiddleware{keys: keys}
}

func (m *APIKeyMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get("X-API-Key")
		if rawKey == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing API key", nil)
			return
		}

		key, err := m.keys.FindByRawKey(rawKey)
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid API key", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.APIKey, key)
		next(w, r.WithContext(ctx))
	}
}
