package environment

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runwhale/runwhale/internal/auth"
	"github.com/runwhale/runwhale/internal/httpserver"
)

// Handler provides HTTP handlers for the environments API. Handlers are pure
// translation; all domain logic lives in the service.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	deployments DeploymentLister
}

// NewHandler creates an environment Handler.
func NewHandler(logger *slog.Logger, service *Service, deployments DeploymentLister) *Handler {
	return &Handler{logger: logger, service: service, deployments: deployments}
}

// Routes returns a chi.Router with all environment routes mounted. Scope
// middleware is applied per route.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireScopes("env.write")).Post("/", h.handleCreate)
	r.With(auth.RequireScopes("env.read")).Get("/", h.handleList)
	r.With(auth.RequireScopes("env.read")).Get("/{id}", h.handleGet)
	r.With(auth.RequireScopes("env.write")).Delete("/{id}", h.handleDelete)
	r.With(auth.RequireScopes("env.write")).Post("/{id}/public", h.handleMakePublic)
	return r
}

// createRequest is the JSON body for POST /environments.
type createRequest struct {
	Name string `json:"name" validate:"required,min=1,max=32"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	env, err := h.service.Create(r.Context(), id.UserID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidName):
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "name must match [A-Za-z0-9_-]+")
		case errors.Is(err, ErrNameTaken):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "environment name already in use")
		default:
			h.logger.Error("creating environment", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create environment")
		}
		return
	}

	httpserver.Respond(w, http.StatusCreated, env)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	envs, err := h.service.List(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("listing environments", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list environments")
		return
	}
	if envs == nil {
		envs = []Environment{}
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"environments": envs,
		"count":        len(envs),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	envID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid environment ID")
		return
	}

	id := auth.FromContext(r.Context())
	env, err := h.service.Get(r.Context(), id.UserID, envID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "environment not found")
			return
		}
		h.logger.Error("getting environment", "error", err, "env_id", envID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get environment")
		return
	}

	recent := []DeploymentSummary{}
	if h.deployments != nil {
		if items, err := h.deployments.RecentByEnvironment(r.Context(), envID, 10); err != nil {
			h.logger.Warn("listing recent deployments", "env_id", envID, "error", err)
		} else if items != nil {
			recent = items
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"environment": env,
		"deployments": recent,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	envID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid environment ID")
		return
	}

	id := auth.FromContext(r.Context())
	if err := h.service.Delete(r.Context(), id.UserID, envID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "environment not found")
		case errors.Is(err, ErrAlreadyDeleting):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "environment deletion already in progress")
		default:
			h.logger.Error("deleting environment", "error", err, "env_id", envID)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete environment")
		}
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "environment deletion started"})
}

// makePublicRequest is the JSON body for POST /environments/{id}/public.
type makePublicRequest struct {
	Domain string `json:"domain" validate:"required,min=4,max=253"`
}

func (h *Handler) handleMakePublic(w http.ResponseWriter, r *http.Request) {
	envID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid environment ID")
		return
	}

	var req makePublicRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	env, err := h.service.MakePublic(r.Context(), id.UserID, envID, req.Domain)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "environment not found")
		case errors.Is(err, ErrInvalidDomain):
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid domain")
		case errors.Is(err, ErrNotActive):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "environment is not active")
		case errors.Is(err, ErrAlreadyPublic):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "environment is already public")
		case errors.Is(err, ErrDomainTaken):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "domain already in use")
		default:
			h.logger.Error("making environment public", "error", err, "env_id", envID)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to make environment public")
		}
		return
	}

	httpserver.Respond(w, http.StatusOK, env)
}
