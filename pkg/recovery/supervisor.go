// Package recovery reconciles persisted desired state against the live Swarm
// at process start, before the handler surface opens.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runwhale/runwhale/internal/events"
	"github.com/runwhale/runwhale/internal/telemetry"
	"github.com/runwhale/runwhale/pkg/deployment"
	"github.com/runwhale/runwhale/pkg/docker"
	"github.com/runwhale/runwhale/pkg/environment"
)

// Store-wait envelope: 1 s initial, 10 s cap, at most 10 attempts.
const (
	waitInitialInterval = 1 * time.Second
	waitMaxInterval     = 10 * time.Second
	waitMaxAttempts     = 10
)

// Driver is the subset of the Docker driver recovery uses.
type Driver interface {
	GetService(ctx context.Context, name string) (*docker.ServiceInfo, error)
	CreateService(ctx context.Context, cfg docker.ServiceConfig) (string, error)
	FindNetworkByName(ctx context.Context, name string) (string, error)
	CreateOverlayNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
}

// Supervisor relaunches services whose rows say RUNNING but whose driver
// services are missing. Per-row failures never block startup.
type Supervisor struct {
	pool        *pgxpool.Pool
	deployments *deployment.Store
	envs        *environment.Store
	driver      Driver
	engine      *deployment.Engine
	bus         *events.Bus
	logger      *slog.Logger
}

// New creates a recovery Supervisor.
func New(pool *pgxpool.Pool, deployments *deployment.Store, envs *environment.Store, driver Driver, engine *deployment.Engine, bus *events.Bus, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		pool:        pool,
		deployments: deployments,
		envs:        envs,
		driver:      driver,
		engine:      engine,
		bus:         bus,
		logger:      logger,
	}
}

// Run performs one full reconciliation pass. It returns an error only when
// the store never becomes reachable or the RUNNING rows cannot be listed;
// everything after that is per-row and logged, not propagated.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.waitForStore(ctx); err != nil {
		return fmt.Errorf("waiting for store: %w", err)
	}

	rows, err := s.deployments.ListByStatus(ctx, deployment.StatusRunning)
	if err != nil {
		return fmt.Errorf("loading running deployments: %w", err)
	}

	s.logger.Info("recovery scan started", "running_rows", len(rows))

	for _, d := range rows {
		s.reconcile(ctx, d)
	}

	s.logger.Info("recovery scan finished")
	return nil
}

// waitForStore pings the database with exponential backoff until it answers.
func (s *Supervisor) waitForStore(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = waitInitialInterval
	bo.MaxInterval = waitMaxInterval
	bo.MaxElapsedTime = 0

	attempts := 0
	op := func() error {
		attempts++
		if err := s.pool.Ping(ctx); err != nil {
			if attempts >= waitMaxAttempts {
				return backoff.Permanent(fmt.Errorf("store unreachable after %d attempts: %w", attempts, err))
			}
			return err
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// reconcile checks one RUNNING row against the live Swarm and relaunches the
// service when it is gone.
func (s *Supervisor) reconcile(ctx context.Context, d deployment.Deployment) {
	env, err := s.envs.GetByID(ctx, d.EnvironmentID)
	if err != nil {
		s.failRow(ctx, d, env, fmt.Errorf("loading environment: %w", err))
		return
	}

	name := deployment.ServiceName(env.Name, d.JobID)

	svc, err := s.driver.GetService(ctx, name)
	if err != nil {
		s.failRow(ctx, d, env, fmt.Errorf("inspecting service %s: %w", name, err))
		return
	}
	if svc != nil {
		// Desired and actual agree; nothing to do.
		return
	}

	s.logger.Warn("running deployment has no live service, relaunching",
		"deployment_id", d.ID, "service", name)

	// The overlay network may have died with the node; recreate if needed.
	networkID, err := s.driver.FindNetworkByName(ctx, env.OverlayName)
	if err == nil && networkID == "" {
		_, err = s.driver.CreateOverlayNetwork(ctx, env.OverlayName, map[string]string{
			docker.EnvLabel:   env.ID.String(),
			docker.OwnerLabel: env.UserID.String(),
		})
	}
	if err != nil {
		s.failRow(ctx, d, env, fmt.Errorf("ensuring overlay network: %w", err))
		return
	}

	cfg := s.engine.ComposeServiceConfig(d, env)
	driverServiceID, err := s.driver.CreateService(ctx, cfg)
	if err != nil {
		s.failRow(ctx, d, env, err)
		return
	}

	if _, err := s.deployments.UpsertService(ctx, deployment.ServiceRow{
		DeploymentID:    d.ID,
		DriverServiceID: &driverServiceID,
		Name:            name,
		Status:          deployment.ServiceRunning,
		Health:          deployment.HealthStarting,
	}); err != nil {
		s.logger.Error("recording relaunched service row", "deployment_id", d.ID, "error", err)
	}

	// Append a version snapshot and a recorded (never executed) update for
	// the relaunch.
	next := d.CurrentVersion + 1
	if err := s.deployments.InsertVersion(ctx, deployment.Version{
		DeploymentID: d.ID,
		Number:       next,
		Image:        d.Image,
		Tag:          d.Tag,
		Replicas:     d.Replicas,
	}); err != nil {
		s.logger.Warn("recording relaunch version", "deployment_id", d.ID, "error", err)
	} else {
		if err := s.deployments.InsertUpdate(ctx, d.ID, "recreate", d.CurrentVersion, next, nil); err != nil {
			s.logger.Warn("recording relaunch update", "deployment_id", d.ID, "error", err)
		}
		if err := s.deployments.SetCurrentVersion(ctx, d.ID, next); err != nil {
			s.logger.Warn("bumping deployment version", "deployment_id", d.ID, "error", err)
		}
	}

	telemetry.RecoveryResultsTotal.WithLabelValues("recovered").Inc()
	s.bus.Publish(events.Event{
		Kind:          events.DeploymentRecovered,
		UserID:        env.UserID,
		EnvironmentID: env.ID,
		DeploymentID:  d.ID,
		JobID:         d.JobID,
		Subject:       d.Image,
	})

	s.logger.Info("recovered deployment", "deployment_id", d.ID, "service", name)
}

// failRow flips the row to FAILED and emits the recovery-failed event, then
// lets the scan continue with other rows.
func (s *Supervisor) failRow(ctx context.Context, d deployment.Deployment, env environment.Environment, cause error) {
	s.logger.Error("recovery failed for deployment",
		"deployment_id", d.ID, "job_id", d.JobID, "error", cause)

	if err := s.deployments.SetFailed(ctx, d.ID, cause.Error(), time.Now().UTC()); err != nil {
		s.logger.Error("recording recovery failure", "deployment_id", d.ID, "error", err)
	}

	telemetry.RecoveryResultsTotal.WithLabelValues("failed").Inc()
	s.bus.Publish(events.Event{
		Kind:          events.DeploymentRecoveryFailed,
		UserID:        env.UserID,
		EnvironmentID: d.EnvironmentID,
		DeploymentID:  d.ID,
		JobID:         d.JobID,
		Subject:       d.Image,
		Detail:        cause.Error(),
	})
}
