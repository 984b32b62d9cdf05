package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"barrel-market-api/internal/logging"
	"barrel-market-api/pkg/apierror"
	"barrel-market-api/pkg/response"
)

// KeyChecker reports whether a key is an active intake credential.
type KeyChecker interface {
	IsActive(ctx context.Context, key string) (bool, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// APIKeys is the static allow-list.
	APIKeys []string
	// Keys is consulted when a key is not on the allow-list. Optional.
	Keys   KeyChecker
	Logger *slog.Logger
}

// NewAuthMiddleware rejects requests without a known API key. Keys are read
// from "Authorization: Bearer" and X-API-Key; either one matching is enough.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			allowed = append(allowed, []byte(k))
		}
	}
	log := logging.Component(cfg.Logger, "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys := credentials(r)
			if len(keys) == 0 {
				response.Error(w, apierror.Unauthorized("Authentication required. Use Authorization: Bearer or X-API-Key."))
				return
			}

			for _, apiKey := range keys {
				if isValidKey(apiKey, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.Keys != nil {
				for _, apiKey := range keys {
					active, err := cfg.Keys.IsActive(r.Context(), apiKey)
					if err != nil {
						log.Error("api key lookup failed", "error", err, "request_id", GetRequestID(r.Context()))
						response.Error(w, apierror.ServiceUnavailable("key store unavailable"))
						return
					}
					if active {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			response.Error(w, apierror.Unauthorized("Invalid API key"))
		})
	}
}

// credentials returns the presented keys, Bearer first. A malformed
// Authorization header contributes nothing.
func credentials(r *http.Request) []string {
	var keys []string

	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if token = strings.TrimSpace(token); found && strings.EqualFold(scheme, "Bearer") && token != "" {
		keys = append(keys, token)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" && (len(keys) == 0 || key != keys[0]) {
		keys = append(keys, key)
	}
	return keys
}

// isValidKey compares key against every allowed key in constant time.
func isValidKey(key string, allowed [][]byte) bool {
	k := []byte(key)
	match := 0
	for _, valid := range allowed {
		match |= subtle.ConstantTimeCompare(k, valid)
	}
	return match == 1
}
