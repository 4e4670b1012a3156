package deployment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/runwhale/runwhale/internal/events"
	"github.com/runwhale/runwhale/internal/telemetry"
	"github.com/runwhale/runwhale/pkg/docker"
	"github.com/runwhale/runwhale/pkg/environment"
)

// Driver is the subset of the Docker driver the deployment pipeline uses.
type Driver interface {
	PullImage(ctx context.Context, ref, tag string) error
	BuildImageFromTar(ctx context.Context, buildContext io.Reader, tag string) error
	CreateVolume(ctx context.Context, name string, labels map[string]string) (string, error)
	DeleteVolume(ctx context.Context, name string) error
	CreateService(ctx context.Context, cfg docker.ServiceConfig) (string, error)
	GetService(ctx context.Context, name string) (*docker.ServiceInfo, error)
	GetServiceTasks(ctx context.Context, name string) (*docker.ServiceTaskSummary, error)
	RemoveService(ctx context.Context, nameOrID string) error
	UpdateServiceEnv(ctx context.Context, name string, env map[string]string) error
	GetServiceLogs(ctx context.Context, name string, tail int) ([]byte, error)
}

// ProxyConfig carries the reverse-proxy settings injected into public
// services.
type ProxyConfig struct {
	LetsEncryptEmail string
	Staging          bool
}

// Job is the unit of work handed to the worker pool. The worker's contract
// is "eventually writes a terminal row state", never a return value.
type Job struct {
	DeploymentID uuid.UUID
	Source       Source

	// Build carries the Git build recipe for git-sourced jobs. It is needed
	// only for the initial build; recovery reuses the already-built image.
	Build *GitBuildOptions
}

// Engine drives the deployment state machine. State transitions inside one
// job are serial; nothing is ordered across jobs.
type Engine struct {
	store  *Store
	envs   *environment.Store
	driver Driver
	bus    *events.Bus
	proxy  ProxyConfig
	logger *slog.Logger
}

// NewEngine creates a deployment Engine.
func NewEngine(store *Store, envs *environment.Store, driver Driver, bus *events.Bus, proxy ProxyConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		envs:   envs,
		driver: driver,
		bus:    bus,
		proxy:  proxy,
		logger: logger,
	}
}

// Run executes one deployment job to a terminal state. Errors never escape:
// every failure is captured into the row and the event stream.
func (e *Engine) Run(ctx context.Context, job Job) {
	began := time.Now()
	source := string(job.Source)
	telemetry.DeploymentsStartedTotal.WithLabelValues(source).Inc()

	d, err := e.store.Get(ctx, job.DeploymentID)
	if err != nil {
		e.logger.Error("worker could not load deployment", "deployment_id", job.DeploymentID, "error", err)
		return
	}

	env, err := e.envs.GetByID(ctx, d.EnvironmentID)
	if err != nil {
		e.fail(ctx, d, env.UserID, fmt.Errorf("loading environment: %w", err))
		return
	}

	if job.Source == SourceGit {
		err = e.runGit(ctx, d, env, job.Build)
	} else {
		err = e.runRegistry(ctx, d, env)
	}

	outcome := "success"
	if err != nil {
		outcome = "failed"
		e.fail(ctx, d, env.UserID, err)
	}
	telemetry.DeploymentsCompletedTotal.WithLabelValues(source, outcome).Inc()
	telemetry.DeploymentDuration.WithLabelValues(source).Observe(time.Since(began).Seconds())
}

// runRegistry drives PENDING → PULLING_IMAGE → CREATING_VOLUMES →
// STARTING_CONTAINERS → RUNNING for a registry-sourced deployment.
func (e *Engine) runRegistry(ctx context.Context, d Deployment, env environment.Environment) error {
	if err := e.store.SetStarted(ctx, d.ID, StatusPullingImage, time.Now().UTC()); err != nil {
		return fmt.Errorf("entering PULLING_IMAGE: %w", err)
	}
	e.publish(events.DeploymentStarted, d, env, "")

	if err := e.driver.PullImage(ctx, d.Image, d.Tag); err != nil {
		return err
	}

	return e.volumesAndService(ctx, d, env)
}

// runGit drives PENDING → BUILDING_IMAGE → CREATING_VOLUMES →
// STARTING_CONTAINERS → RUNNING, building the image in-engine first.
func (e *Engine) runGit(ctx context.Context, d Deployment, env environment.Environment, build *GitBuildOptions) error {
	if err := e.store.SetStarted(ctx, d.ID, StatusBuildingImage, time.Now().UTC()); err != nil {
		return fmt.Errorf("entering BUILDING_IMAGE: %w", err)
	}
	e.publish(events.DeploymentStarted, d, env, "")

	opts := GitBuildOptions{}
	if build != nil {
		opts = *build
	}
	if d.GitURL != nil {
		opts.GitURL = *d.GitURL
	}
	if d.GitBranch != nil {
		opts.Branch = *d.GitBranch
	}

	buildCtx, err := BuildContext(GenerateDockerfile(opts))
	if err != nil {
		return fmt.Errorf("assembling build context: %w", err)
	}

	tag := d.Image + ":" + d.Tag
	if err := e.driver.BuildImageFromTar(ctx, buildCtx, tag); err != nil {
		telemetry.ImageBuildFailuresTotal.Inc()
		return err
	}

	return e.volumesAndService(ctx, d, env)
}

// volumesAndService is the shared tail of both pipelines.
func (e *Engine) volumesAndService(ctx context.Context, d Deployment, env environment.Environment) error {
	if err := e.store.SetStatus(ctx, d.ID, StatusCreatingVolumes); err != nil {
		return fmt.Errorf("entering CREATING_VOLUMES: %w", err)
	}

	expanded := make([]VolumeSpec, len(d.Volumes))
	for i, v := range d.Volumes {
		name := v.Name
		// Names already carrying the managed prefix are kept as-is so the
		// step stays idempotent across recovery reruns.
		if !hasVolumePrefix(name, env.Name) {
			name = VolumeName(env.Name, v.Name)
		}
		if _, err := e.driver.CreateVolume(ctx, name, map[string]string{
			docker.EnvLabel:        env.ID.String(),
			docker.DeploymentLabel: d.ID.String(),
		}); err != nil {
			return err
		}
		expanded[i] = VolumeSpec{Name: name, MountPath: v.MountPath}
	}
	if len(expanded) > 0 {
		if err := e.store.UpdateVolumes(ctx, d.ID, expanded); err != nil {
			return fmt.Errorf("persisting expanded volume names: %w", err)
		}
		d.Volumes = expanded
	}

	if err := e.store.SetStatus(ctx, d.ID, StatusStartingContainers); err != nil {
		return fmt.Errorf("entering STARTING_CONTAINERS: %w", err)
	}

	cfg := e.ComposeServiceConfig(d, env)
	driverServiceID, err := e.driver.CreateService(ctx, cfg)
	if err != nil {
		return err
	}

	if env.IsPublic && env.PublicDomain != nil {
		if err := e.store.SetVirtualHost(ctx, d.ID, *env.PublicDomain); err != nil {
			e.logger.Warn("recording virtual host", "deployment_id", d.ID, "error", err)
		}
	}

	if _, err := e.store.UpsertService(ctx, ServiceRow{
		DeploymentID:    d.ID,
		DriverServiceID: &driverServiceID,
		Name:            cfg.Name,
		Status:          ServiceRunning,
		Health:          HealthStarting,
	}); err != nil {
		return fmt.Errorf("recording service row: %w", err)
	}

	if err := e.store.SetRunning(ctx, d.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("entering RUNNING: %w", err)
	}
	e.publish(events.DeploymentSuccess, d, env, "")

	e.logger.Info("deployment running",
		"deployment_id", d.ID, "job_id", d.JobID, "service", cfg.Name)
	return nil
}

// ComposeServiceConfig builds the Swarm service configuration from persisted
// state. Deterministic so the recovery supervisor can reproduce it.
func (e *Engine) ComposeServiceConfig(d Deployment, env environment.Environment) docker.ServiceConfig {
	image := d.Image
	if d.Tag != "" {
		image = d.Image + ":" + d.Tag
	}

	envVars := make(map[string]string, len(d.EnvVars)+4)
	for k, v := range d.EnvVars {
		envVars[k] = v
	}
	if env.IsPublic && env.PublicDomain != nil {
		for k, v := range e.ProxyEnv(*env.PublicDomain, d.VirtualPort) {
			envVars[k] = v
		}
	}

	cfg := docker.ServiceConfig{
		Name:        ServiceName(env.Name, d.JobID),
		Image:       image,
		Replicas:    uint64(d.Replicas),
		Env:         envVars,
		NetworkName: env.OverlayName,
		Labels: map[string]string{
			docker.EnvLabel:        env.ID.String(),
			docker.DeploymentLabel: d.ID.String(),
		},
	}

	for _, p := range d.Ports {
		cfg.Ports = append(cfg.Ports, docker.PortMapping{Container: p.Container, Host: p.Host})
	}
	for _, v := range d.Volumes {
		cfg.Mounts = append(cfg.Mounts, docker.VolumeMount{Source: v.Name, Target: v.MountPath})
	}
	if d.CPULimit != nil {
		cfg.CPULimit = *d.CPULimit
	}
	if d.MemoryLimitMB != nil {
		cfg.MemoryLimitBytes = *d.MemoryLimitMB << 20
	}
	if hc := d.Healthcheck; hc != nil {
		cfg.Healthcheck = &docker.HealthcheckConfig{
			Test:     hc.Test,
			Interval: time.Duration(hc.IntervalSeconds) * time.Second,
			Timeout:  time.Duration(hc.TimeoutSeconds) * time.Second,
			Retries:  hc.Retries,
		}
	}
	return cfg
}

// ProxyEnv composes the env vars the reverse proxy discovers routes from.
func (e *Engine) ProxyEnv(domain string, virtualPort *int) map[string]string {
	envVars := map[string]string{
		"VIRTUAL_HOST":     domain,
		"LETSENCRYPT_HOST": domain,
	}
	if e.proxy.LetsEncryptEmail != "" {
		envVars["LETSENCRYPT_EMAIL"] = e.proxy.LetsEncryptEmail
	}
	if e.proxy.Staging {
		envVars["LETSENCRYPT_TEST"] = "true"
	}
	if virtualPort != nil {
		envVars["VIRTUAL_PORT"] = fmt.Sprintf("%d", *virtualPort)
	}
	return envVars
}

// fail records the terminal failure and emits the failure event. No retry,
// no cleanup of partial volumes.
func (e *Engine) fail(ctx context.Context, d Deployment, userID uuid.UUID, cause error) {
	e.logger.Error("deployment failed",
		"deployment_id", d.ID, "job_id", d.JobID, "error", cause)

	if err := e.store.SetFailed(ctx, d.ID, cause.Error(), time.Now().UTC()); err != nil {
		e.logger.Error("recording deployment failure", "deployment_id", d.ID, "error", err)
	}

	e.bus.Publish(events.Event{
		Kind:          events.DeploymentFailed,
		UserID:        userID,
		EnvironmentID: d.EnvironmentID,
		DeploymentID:  d.ID,
		JobID:         d.JobID,
		Subject:       d.Image,
		Detail:        cause.Error(),
	})
}

func (e *Engine) publish(kind events.Kind, d Deployment, env environment.Environment, detail string) {
	e.bus.Publish(events.Event{
		Kind:          kind,
		UserID:        env.UserID,
		EnvironmentID: env.ID,
		DeploymentID:  d.ID,
		JobID:         d.JobID,
		Subject:       d.Image,
		Detail:        detail,
	})
}

func hasVolumePrefix(name, envName string) bool {
	return len(name) > len("vol__")+len(envName) && name[:4] == "vol_" &&
		name[4:4+len(envName)] == envName && name[4+len(envName)] == '_'
}
