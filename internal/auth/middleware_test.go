package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type fakeAuthenticator struct {
	identity *Identity
	err      error
}

func (f *fakeAuthenticator) AuthenticateKey(_ context.Context, _ string) (*Identity, error) {
	return f.identity, f.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	validID := &Identity{UserID: uuid.New(), KeyID: "abcdefghijklmnop", Scopes: []string{"env.read"}}

	tests := []struct {
		name       string
		header     string
		authn      Authenticator
		wantStatus int
	}{
		{
			name:       "missing header",
			header:     "",
			authn:      &fakeAuthenticator{identity: validID},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "authentication failure",
			header:     "rw_prod_bad.key",
			authn:      &fakeAuthenticator{err: errors.New("unknown key")},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "success",
			header:     "rw_prod_good.key",
			authn:      &fakeAuthenticator{identity: validID},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotIdentity *Identity
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotIdentity = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			h := Middleware(tt.authn, slog.Default())(inner)
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotIdentity == nil {
				t.Errorf("identity not attached to context")
			}
		})
	}
}

func TestRequireScopes(t *testing.T) {
	tests := []struct {
		name       string
		identity   *Identity
		required   []string
		wantStatus int
	}{
		{
			name:       "no identity",
			identity:   nil,
			required:   []string{"env.read"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "holds scope",
			identity:   &Identity{Scopes: []string{"env.read", "env.write"}},
			required:   []string{"env.write"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing scope",
			identity:   &Identity{Scopes: []string{"env.read"}},
			required:   []string{"deploy.write"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin passes everything",
			identity:   &Identity{Scopes: []string{"admin"}},
			required:   []string{"deploy.write", "logs.read"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "all required must be present",
			identity:   &Identity{Scopes: []string{"deploy.write"}},
			required:   []string{"deploy.write", "logs.read"},
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireScopes(tt.required...)(okHandler())
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				r = r.WithContext(NewContext(r.Context(), tt.identity))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
