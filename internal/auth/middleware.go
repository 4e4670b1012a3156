package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Authenticator resolves a raw X-API-Key value to an identity. Implemented by
// the credential service; the indirection keeps this package free of store
// imports.
type Authenticator interface {
	AuthenticateKey(ctx context.Context, rawKey string) (*Identity, error)
}

// Middleware authenticates every request via the X-API-Key header and stores
// the resulting Identity in the request context. Any failure — bad format,
// unknown key, revoked, expired, secret mismatch — is a plain 401 with no
// detail beyond the category.
func Middleware(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "missing API key")
				return
			}

			id, err := authn.AuthenticateKey(r.Context(), rawKey)
			if err != nil {
				logger.Warn("API key authentication failed", "error", err)
				respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}

			ctx := NewContext(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScopes returns middleware that rejects identities missing any of
// the listed scopes. Admin passes unconditionally. A scope mismatch is a 403
// indistinguishable from other forbidden responses.
func RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			for _, s := range scopes {
				if !id.HasScope(s) {
					respondErr(w, http.StatusForbidden, "forbidden", "insufficient scope")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
