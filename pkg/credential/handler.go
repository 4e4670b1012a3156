package credential

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/runwhale/runwhale/internal/auth"
	"github.com/runwhale/runwhale/internal/httpserver"
)

// Handler provides HTTP handlers for the auth surface.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a credential Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes returns the authenticated key-management routes. HandleVerify is
// registered separately, outside the authentication chain.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/keys", h.handleListKeys)
	r.Post("/revoke", h.handleRevoke)
	return r
}

// keyResponse is the JSON shape for one API key (never includes the secret).
type keyResponse struct {
	KeyID      string     `json:"keyId"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toKeyResponse(k APIKey) keyResponse {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return keyResponse{
		KeyID:      k.KeyID,
		Scopes:     scopes,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// HandleVerify redeems a magic link: GET /auth/verify?token=...
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}

	formatted, key, err := h.service.RedeemMagicLink(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, ErrLinkNotFound), errors.Is(err, ErrLinkUsed), errors.Is(err, ErrLinkExpired):
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		default:
			h.logger.Error("redeeming magic link", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to redeem token")
		}
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"apiKey":    formatted,
		"expiresAt": key.ExpiresAt,
	})
}

func (h *Handler) handleListKeys(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	keys, err := h.service.ListKeys(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("listing api keys", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list keys")
		return
	}

	items := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		items = append(items, toKeyResponse(k))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"keys":  items,
		"count": len(items),
	})
}

// revokeRequest is the JSON body for POST /auth/revoke.
type revokeRequest struct {
	KeyID string `json:"keyId" validate:"required,len=16"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing authentication")
		return
	}

	var req revokeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Revoke(r.Context(), id.UserID, req.KeyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "key not found")
			return
		}
		h.logger.Error("revoking api key", "error", err, "key_id", req.KeyID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to revoke key")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "key revoked"})
}
