package deployment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runwhale/runwhale/internal/auth"
	"github.com/runwhale/runwhale/internal/httpserver"
)

// Rate budgets per credential per minute.
const (
	registryDeploysPerMinute = 5
	gitDeploysPerMinute      = 3
	defaultLogTail           = 100
)

// Handler provides HTTP handlers for the deployments API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	limiter *auth.RateLimiter
}

// NewHandler creates a deployment Handler.
func NewHandler(logger *slog.Logger, service *Service, limiter *auth.RateLimiter) *Handler {
	return &Handler{logger: logger, service: service, limiter: limiter}
}

// Routes returns a chi.Router with all deployment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(
		auth.RequireScopes("deploy.write"),
		h.limiter.Limit("deploy_registry", registryDeploysPerMinute, time.Minute),
	).Post("/", h.handleCreateRegistry)
	r.With(
		auth.RequireScopes("deploy.write"),
		h.limiter.Limit("deploy_git", gitDeploysPerMinute, time.Minute),
	).Post("/from-git", h.handleCreateGit)
	r.With(auth.RequireScopes("deploy.read")).Get("/job/{jobId}", h.handleGetStatus)
	r.With(auth.RequireScopes("deploy.read")).Get("/environment/{envId}", h.handleListByEnvironment)
	r.With(auth.RequireScopes("logs.read")).Get("/{id}/logs", h.handleGetLogs)
	r.With(auth.RequireScopes("deploy.write")).Delete("/{id}", h.handleDelete)
	return r
}

// createRegistryRequest is the JSON body for POST /deployments.
type createRegistryRequest struct {
	EnvironmentID string            `json:"environmentId" validate:"required,uuid"`
	Image         string            `json:"image" validate:"required,min=1,max=255"`
	Tag           string            `json:"tag" validate:"omitempty,max=128"`
	Replicas      int               `json:"replicas" validate:"omitempty,gte=1,lte=20"`
	Ports         []PortSpec        `json:"ports" validate:"omitempty,dive"`
	EnvVars       map[string]string `json:"envVars"`
	Volumes       []VolumeSpec      `json:"volumes" validate:"omitempty,dive"`
	VirtualPort   *int              `json:"virtualPort" validate:"omitempty,gte=1,lte=65535"`
	CPULimit      *float64          `json:"cpuLimit" validate:"omitempty,gt=0,lte=16"`
	MemoryLimitMB *int64            `json:"memoryLimitMb" validate:"omitempty,gte=4"`
	Healthcheck   *HealthcheckSpec  `json:"healthcheck"`
}

func (r *createRegistryRequest) toInput() RegistryInput {
	return RegistryInput{
		EnvironmentID: uuid.MustParse(r.EnvironmentID),
		Image:         r.Image,
		Tag:           r.Tag,
		Replicas:      r.Replicas,
		Ports:         r.Ports,
		EnvVars:       r.EnvVars,
		Volumes:       r.Volumes,
		VirtualPort:   r.VirtualPort,
		CPULimit:      r.CPULimit,
		MemoryLimitMB: r.MemoryLimitMB,
		Healthcheck:   r.Healthcheck,
	}
}

// createGitRequest is the JSON body for POST /deployments/from-git. The
// image name and tag are generated by the engine, never supplied.
type createGitRequest struct {
	EnvironmentID string            `json:"environmentId" validate:"required,uuid"`
	Replicas      int               `json:"replicas" validate:"omitempty,gte=1,lte=20"`
	Ports         []PortSpec        `json:"ports" validate:"omitempty,dive"`
	EnvVars       map[string]string `json:"envVars"`
	Volumes       []VolumeSpec      `json:"volumes" validate:"omitempty,dive"`
	VirtualPort   *int              `json:"virtualPort" validate:"omitempty,gte=1,lte=65535"`
	CPULimit      *float64          `json:"cpuLimit" validate:"omitempty,gt=0,lte=16"`
	MemoryLimitMB *int64            `json:"memoryLimitMb" validate:"omitempty,gte=4"`
	Healthcheck   *HealthcheckSpec  `json:"healthcheck"`

	GitURL         string `json:"gitUrl" validate:"required,url"`
	Branch         string `json:"branch" validate:"omitempty,max=128"`
	BaseImage      string `json:"baseImage" validate:"omitempty,max=255"`
	InstallCommand string `json:"installCommand" validate:"omitempty,max=512"`
	BuildCommand   string `json:"buildCommand" validate:"omitempty,max=512"`
	StartCommand   string `json:"startCommand" validate:"omitempty,max=512"`
}

func (h *Handler) handleCreateRegistry(w http.ResponseWriter, r *http.Request) {
	var req createRegistryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	result, err := h.service.CreateFromRegistry(r.Context(), id.UserID, req.toInput())
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, result)
}

func (h *Handler) handleCreateGit(w http.ResponseWriter, r *http.Request) {
	var req createGitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	in := GitInput{
		RegistryInput: RegistryInput{
			EnvironmentID: uuid.MustParse(req.EnvironmentID),
			Replicas:      req.Replicas,
			Ports:         req.Ports,
			EnvVars:       req.EnvVars,
			Volumes:       req.Volumes,
			VirtualPort:   req.VirtualPort,
			CPULimit:      req.CPULimit,
			MemoryLimitMB: req.MemoryLimitMB,
			Healthcheck:   req.Healthcheck,
		},
		GitURL:         req.GitURL,
		Branch:         req.Branch,
		BaseImage:      req.BaseImage,
		InstallCommand: req.InstallCommand,
		BuildCommand:   req.BuildCommand,
		StartCommand:   req.StartCommand,
	}

	result, err := h.service.CreateFromGit(r.Context(), id.UserID, in)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, result)
}

func (h *Handler) respondCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "environment not found")
	case errors.Is(err, ErrEnvNotActive):
		httpserver.RespondError(w, http.StatusConflict, "conflict", "environment is not active")
	case errors.Is(err, ErrWorkerBusy):
		httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "deployment queue is full, retry shortly")
	default:
		h.logger.Error("creating deployment", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create deployment")
	}
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	id := auth.FromContext(r.Context())

	view, err := h.service.GetStatus(r.Context(), id.UserID, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "deployment not found")
			return
		}
		h.logger.Error("getting deployment status", "error", err, "job_id", jobID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get deployment")
		return
	}

	httpserver.Respond(w, http.StatusOK, view)
}

func (h *Handler) handleListByEnvironment(w http.ResponseWriter, r *http.Request) {
	envID, err := uuid.Parse(chi.URLParam(r, "envId"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid environment ID")
		return
	}

	id := auth.FromContext(r.Context())
	items, err := h.service.ListByEnvironment(r.Context(), id.UserID, envID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "environment not found")
			return
		}
		h.logger.Error("listing deployments", "error", err, "env_id", envID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list deployments")
		return
	}
	if items == nil {
		items = []Deployment{}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"deployments": items,
		"count":       len(items),
	})
}

func (h *Handler) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	deploymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}

	tail := defaultLogTail
	if raw := r.URL.Query().Get("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 10000 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "tail must be between 1 and 10000")
			return
		}
		tail = n
	}

	id := auth.FromContext(r.Context())
	logs, err := h.service.GetLogs(r.Context(), id.UserID, deploymentID, tail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "deployment not found")
			return
		}
		h.logger.Error("getting deployment logs", "error", err, "deployment_id", deploymentID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get logs")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"logs": string(logs)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	deploymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}

	preserveVolumes := r.URL.Query().Get("preserveVolumes") == "true"

	id := auth.FromContext(r.Context())
	if err := h.service.Delete(r.Context(), id.UserID, deploymentID, preserveVolumes); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "deployment not found")
		case errors.Is(err, ErrNotDeletable):
			httpserver.RespondError(w, http.StatusConflict, "conflict", "deployment is still in progress")
		default:
			h.logger.Error("deleting deployment", "error", err, "deployment_id", deploymentID)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete deployment")
		}
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "deployment deleted"})
}
