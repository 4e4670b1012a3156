package environment

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runwhale/runwhale/internal/auth"
)

func testRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/environments", h.handleCreate)
	r.Get("/environments/{id}", h.handleGet)
	r.Delete("/environments/{id}", h.handleDelete)
	r.Post("/environments/{id}/public", h.handleMakePublic)
	return r
}

func authed(r *http.Request) *http.Request {
	return r.WithContext(auth.NewContext(r.Context(), &auth.Identity{
		UserID: uuid.New(),
		KeyID:  "abcdefghijklmnop",
		Scopes: []string{"admin"},
	}))
}

func TestCreateEnvironment_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing name", `{}`, http.StatusUnprocessableEntity},
		{"empty name", `{"name":""}`, http.StatusUnprocessableEntity},
		{"name too long", `{"name":"` + strings.Repeat("a", 40) + `"}`, http.StatusUnprocessableEntity},
		{"invalid JSON", `{bad}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}

	router := testRouter(NewHandler(slog.Default(), nil, nil))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := authed(httptest.NewRequest(http.MethodPost, "/environments", strings.NewReader(tt.body)))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestEnvironmentRoutes_InvalidID(t *testing.T) {
	router := testRouter(NewHandler(slog.Default(), nil, nil))

	for _, tc := range []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/environments/not-a-uuid", ""},
		{http.MethodDelete, "/environments/not-a-uuid", ""},
		{http.MethodPost, "/environments/not-a-uuid/public", `{"domain":"app.example.com"}`},
	} {
		var body *strings.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		} else {
			body = strings.NewReader("")
		}
		r := authed(httptest.NewRequest(tc.method, tc.path, body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: status = %d, want 400", tc.method, tc.path, w.Code)
		}
	}
}

func TestMakePublic_Validation(t *testing.T) {
	router := testRouter(NewHandler(slog.Default(), nil, nil))
	id := uuid.New()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing domain", `{}`, http.StatusUnprocessableEntity},
		{"domain too short", `{"domain":"a.b"}`, http.StatusUnprocessableEntity},
		{"invalid JSON", `{bad}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := authed(httptest.NewRequest(http.MethodPost, "/environments/"+id.String()+"/public", strings.NewReader(tt.body)))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
