package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/runwhale/runwhale/internal/events"
	"github.com/runwhale/runwhale/internal/random"
	"github.com/runwhale/runwhale/pkg/environment"
)

const jobIDLen = 16

// RegistryInput is the desired state for a registry-sourced deployment.
type RegistryInput struct {
	EnvironmentID uuid.UUID
	Image         string
	Tag           string
	Replicas      int
	Ports         []PortSpec
	EnvVars       map[string]string
	Volumes       []VolumeSpec
	VirtualPort   *int
	CPULimit      *float64
	MemoryLimitMB *int64
	Healthcheck   *HealthcheckSpec
}

// GitInput is the desired state for a Git-sourced deployment.
type GitInput struct {
	RegistryInput
	GitURL         string
	Branch         string
	BaseImage      string
	InstallCommand string
	BuildCommand   string
	StartCommand   string
}

// CreateResult is the immediate response of a create call; everything else
// arrives through polling.
type CreateResult struct {
	JobID        string    `json:"jobId"`
	DeploymentID uuid.UUID `json:"deploymentId"`
	Status       Status    `json:"status"`
}

// StatusView joins a deployment with its service projection and environment
// for the polling endpoint.
type StatusView struct {
	Deployment  Deployment  `json:"deployment"`
	Service     *ServiceRow `json:"service,omitempty"`
	Environment struct {
		ID     uuid.UUID          `json:"id"`
		Name   string             `json:"name"`
		Status environment.Status `json:"status"`
	} `json:"environment"`
}

// Service is the API-facing surface of the deployment engine.
type Service struct {
	store  *Store
	envs   *environment.Store
	driver Driver
	engine *Engine
	pool   *Pool
	bus    *events.Bus
	logger *slog.Logger
}

// NewService creates a deployment Service.
func NewService(store *Store, envs *environment.Store, driver Driver, engine *Engine, pool *Pool, bus *events.Bus, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		envs:   envs,
		driver: driver,
		engine: engine,
		pool:   pool,
		bus:    bus,
		logger: logger,
	}
}

// activeEnv verifies ownership and that the environment can take deployments.
func (s *Service) activeEnv(ctx context.Context, userID, envID uuid.UUID) (environment.Environment, error) {
	env, err := s.envs.Get(ctx, userID, envID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return environment.Environment{}, ErrNotFound
		}
		return environment.Environment{}, err
	}
	if env.Status != environment.StatusActive {
		return environment.Environment{}, ErrEnvNotActive
	}
	return env, nil
}

// CreateFromRegistry persists the desired state in PENDING, schedules the
// async worker, and returns immediately. No driver side effect happens
// before the response.
func (s *Service) CreateFromRegistry(ctx context.Context, userID uuid.UUID, in RegistryInput) (CreateResult, error) {
	env, err := s.activeEnv(ctx, userID, in.EnvironmentID)
	if err != nil {
		return CreateResult{}, err
	}

	d := s.newDeployment(env.ID, in)
	created, err := s.store.Create(ctx, d)
	if err != nil {
		return CreateResult{}, fmt.Errorf("persisting deployment: %w", err)
	}

	if err := s.pool.Enqueue(Job{DeploymentID: created.ID, Source: SourceRegistry}); err != nil {
		return CreateResult{}, err
	}

	return CreateResult{JobID: created.JobID, DeploymentID: created.ID, Status: created.Status}, nil
}

// CreateFromGit persists the desired state with a generated image name and a
// branch-derived tag, then schedules the build-and-deploy worker.
func (s *Service) CreateFromGit(ctx context.Context, userID uuid.UUID, in GitInput) (CreateResult, error) {
	env, err := s.activeEnv(ctx, userID, in.EnvironmentID)
	if err != nil {
		return CreateResult{}, err
	}

	in.Image = ImageName(env.Name, time.Now().UTC())
	in.Tag = ImageTag(in.Branch)

	d := s.newDeployment(env.ID, in.RegistryInput)
	d.GitURL = &in.GitURL
	branch := in.Branch
	if branch == "" {
		branch = defaultBranch
	}
	d.GitBranch = &branch

	created, err := s.store.Create(ctx, d)
	if err != nil {
		return CreateResult{}, fmt.Errorf("persisting deployment: %w", err)
	}

	build := &GitBuildOptions{
		GitURL:         in.GitURL,
		Branch:         branch,
		BaseImage:      in.BaseImage,
		InstallCommand: in.InstallCommand,
		BuildCommand:   in.BuildCommand,
		StartCommand:   in.StartCommand,
	}
	if err := s.pool.Enqueue(Job{DeploymentID: created.ID, Source: SourceGit, Build: build}); err != nil {
		return CreateResult{}, err
	}

	return CreateResult{JobID: created.JobID, DeploymentID: created.ID, Status: created.Status}, nil
}

func (s *Service) newDeployment(envID uuid.UUID, in RegistryInput) Deployment {
	tag := in.Tag
	if tag == "" {
		tag = "latest"
	}
	replicas := in.Replicas
	if replicas == 0 {
		replicas = 1
	}
	return Deployment{
		EnvironmentID: envID,
		JobID:         random.String(jobIDLen),
		Image:         in.Image,
		Tag:           tag,
		Replicas:      replicas,
		Ports:         in.Ports,
		EnvVars:       in.EnvVars,
		Volumes:       in.Volumes,
		VirtualPort:   in.VirtualPort,
		CPULimit:      in.CPULimit,
		MemoryLimitMB: in.MemoryLimitMB,
		Healthcheck:   in.Healthcheck,
		Status:        StatusPending,
	}
}

// GetStatus resolves a deployment by its job ID, joined with its service row
// and environment. Ownership is enforced through the environment join.
func (s *Service) GetStatus(ctx context.Context, userID uuid.UUID, jobID string) (StatusView, error) {
	d, err := s.store.GetByJobIDForUser(ctx, userID, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusView{}, ErrNotFound
		}
		return StatusView{}, err
	}

	view := StatusView{Deployment: d}

	if sr, err := s.store.GetServiceByDeployment(ctx, d.ID); err == nil {
		// Refresh health from live tasks, best-effort.
		s.refreshHealth(ctx, &sr)
		view.Service = &sr
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return StatusView{}, err
	}

	env, err := s.envs.GetByID(ctx, d.EnvironmentID)
	if err != nil {
		return StatusView{}, fmt.Errorf("loading environment: %w", err)
	}
	view.Environment.ID = env.ID
	view.Environment.Name = env.Name
	view.Environment.Status = env.Status

	return view, nil
}

// refreshHealth folds live task state into the service row, best-effort.
func (s *Service) refreshHealth(ctx context.Context, sr *ServiceRow) {
	summary, err := s.driver.GetServiceTasks(ctx, sr.Name)
	if err != nil || summary == nil {
		return
	}
	switch {
	case summary.Running >= int(summary.Desired) && summary.Desired > 0:
		sr.Health = HealthHealthy
	case summary.Failed > 0:
		sr.Health = HealthUnhealthy
	case summary.Starting > 0:
		sr.Health = HealthStarting
	default:
		sr.Health = HealthNone
	}
	sr.RestartCount = summary.Restarts
}

// ListByEnvironment returns an environment's deployments, newest first,
// after an ownership check.
func (s *Service) ListByEnvironment(ctx context.Context, userID, envID uuid.UUID) ([]Deployment, error) {
	if _, err := s.envs.Get(ctx, userID, envID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.store.ListByEnvironment(ctx, envID, 0)
}

// GetLogs returns up to tail lines of the deployment's combined service logs.
func (s *Service) GetLogs(ctx context.Context, userID, deploymentID uuid.UUID, tail int) ([]byte, error) {
	d, err := s.store.GetForUser(ctx, userID, deploymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	env, err := s.envs.GetByID(ctx, d.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return s.driver.GetServiceLogs(ctx, ServiceName(env.Name, d.JobID), tail)
}

// Delete stops the workload and hard-deletes the row. Only terminal rows may
// be deleted — removing a row mid-worker is undefined and rejected.
func (s *Service) Delete(ctx context.Context, userID, deploymentID uuid.UUID, preserveVolumes bool) error {
	d, err := s.store.GetForUser(ctx, userID, deploymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !d.Status.Terminal() {
		return ErrNotDeletable
	}

	env, err := s.envs.GetByID(ctx, d.EnvironmentID)
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	if d.Status == StatusRunning {
		s.bus.Publish(events.Event{
			Kind:          events.DeploymentStopped,
			UserID:        env.UserID,
			EnvironmentID: env.ID,
			DeploymentID:  d.ID,
			JobID:         d.JobID,
			Subject:       d.Image,
		})
	}

	// Missing services are success inside the driver.
	if err := s.driver.RemoveService(ctx, ServiceName(env.Name, d.JobID)); err != nil {
		return err
	}

	if !preserveVolumes {
		for _, v := range d.Volumes {
			// Absent and in-use volumes are tolerated inside the driver.
			if err := s.driver.DeleteVolume(ctx, v.Name); err != nil {
				s.logger.Warn("removing volume", "volume", v.Name, "error", err)
			}
		}
	}

	if err := s.store.Delete(ctx, d.ID); err != nil {
		return err
	}

	s.logger.Info("deleted deployment", "deployment_id", d.ID, "job_id", d.JobID)
	return nil
}

// RecentByEnvironment implements environment.DeploymentLister for the
// environment detail view.
func (s *Service) RecentByEnvironment(ctx context.Context, envID uuid.UUID, limit int) ([]environment.DeploymentSummary, error) {
	rows, err := s.store.ListByEnvironment(ctx, envID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]environment.DeploymentSummary, 0, len(rows))
	for _, d := range rows {
		out = append(out, environment.DeploymentSummary{
			ID:        d.ID,
			JobID:     d.JobID,
			Image:     d.Image,
			Status:    string(d.Status),
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

// RemoveAllInEnvironment implements environment.DeploymentCleaner: removes
// every driver service and deployment row in the environment. Called by the
// environment teardown; missing driver services are not errors.
func (s *Service) RemoveAllInEnvironment(ctx context.Context, envID uuid.UUID) error {
	env, err := s.envs.GetByID(ctx, envID)
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	rows, err := s.store.ListByEnvironment(ctx, envID, 0)
	if err != nil {
		return err
	}

	for _, d := range rows {
		if err := s.driver.RemoveService(ctx, ServiceName(env.Name, d.JobID)); err != nil {
			return err
		}
		if d.Status == StatusRunning {
			s.bus.Publish(events.Event{
				Kind:          events.DeploymentStopped,
				UserID:        env.UserID,
				EnvironmentID: env.ID,
				DeploymentID:  d.ID,
				JobID:         d.JobID,
				Subject:       d.Image,
			})
		}
		if err := s.store.Delete(ctx, d.ID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	return nil
}

// ApplyProxyEnv implements environment.DeploymentCleaner: patches the
// reverse-proxy env vars into every running service of the environment
// without replacing the task template.
func (s *Service) ApplyProxyEnv(ctx context.Context, envID uuid.UUID, domain string) error {
	env, err := s.envs.GetByID(ctx, envID)
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	rows, err := s.store.ListByEnvironment(ctx, envID, 0)
	if err != nil {
		return err
	}

	for _, d := range rows {
		if d.Status != StatusRunning {
			continue
		}
		name := ServiceName(env.Name, d.JobID)
		if err := s.driver.UpdateServiceEnv(ctx, name, s.engine.ProxyEnv(domain, d.VirtualPort)); err != nil {
			s.logger.Warn("patching proxy env", "service", name, "error", err)
			continue
		}
		if err := s.store.SetVirtualHost(ctx, d.ID, domain); err != nil {
			s.logger.Warn("recording virtual host", "deployment_id", d.ID, "error", err)
		}
	}
	return nil
}
