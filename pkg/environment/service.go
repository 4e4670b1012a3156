package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runwhale/runwhale/internal/events"
	"github.com/runwhale/runwhale/pkg/docker"
)

// Domain errors mapped to HTTP codes at the handler boundary.
var (
	ErrInvalidName     = errors.New("environment: invalid name")
	ErrNameTaken       = errors.New("environment: name already in use")
	ErrNotFound        = errors.New("environment: not found")
	ErrNotActive       = errors.New("environment: not active")
	ErrAlreadyPublic   = errors.New("environment: already public")
	ErrInvalidDomain   = errors.New("environment: invalid domain")
	ErrDomainTaken     = errors.New("environment: domain already in use")
	ErrAlreadyDeleting = errors.New("environment: deletion already in progress")
)

// Driver is the subset of the Docker driver the environment service uses.
type Driver interface {
	CreateOverlayNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
	DeleteNetwork(ctx context.Context, idOrName string) error
	ConnectContainerToNetwork(ctx context.Context, networkIDOrName, containerName string) error
	ListManagedVolumes(ctx context.Context, labelFilter map[string]string) ([]string, error)
	DeleteVolume(ctx context.Context, name string) error
}

// DeploymentCleaner tears down and retouches the deployments that live inside
// an environment. Implemented by the deployment service; injected after
// construction to keep the package dependency one-directional.
type DeploymentCleaner interface {
	// RemoveAllInEnvironment removes every driver service and deployment row
	// belonging to the environment. Missing driver services are not errors.
	RemoveAllInEnvironment(ctx context.Context, envID uuid.UUID) error

	// ApplyProxyEnv patches reverse-proxy env vars into the environment's
	// running services without replacing their tasks.
	ApplyProxyEnv(ctx context.Context, envID uuid.UUID, domain string) error
}

// DeploymentSummary is the compact deployment projection embedded in the
// environment detail response.
type DeploymentSummary struct {
	ID        uuid.UUID `json:"id"`
	JobID     string    `json:"jobId"`
	Image     string    `json:"image"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeploymentLister lists recent deployments for the detail view.
type DeploymentLister interface {
	RecentByEnvironment(ctx context.Context, envID uuid.UUID, limit int) ([]DeploymentSummary, error)
}

// Service encapsulates the environment lifecycle.
type Service struct {
	store          *Store
	driver         Driver
	bus            *events.Bus
	logger         *slog.Logger
	nginxContainer string

	cleaner DeploymentCleaner
}

// NewService creates an environment Service.
func NewService(pool *pgxpool.Pool, driver Driver, bus *events.Bus, nginxContainer string, logger *slog.Logger) *Service {
	return &Service{
		store:          NewStore(pool),
		driver:         driver,
		bus:            bus,
		logger:         logger,
		nginxContainer: nginxContainer,
	}
}

// SetDeploymentCleaner wires the deployment service in after construction.
func (s *Service) SetDeploymentCleaner(c DeploymentCleaner) {
	s.cleaner = c
}

// Store exposes the store for sibling services (ownership checks).
func (s *Service) Store() *Store {
	return s.store
}

// Create validates the name, inserts a CREATING row, provisions the overlay
// network, and flips the row to ACTIVE. A driver failure leaves the row in
// ERROR and surfaces the cause.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string) (Environment, error) {
	if !ValidName(name) {
		return Environment{}, ErrInvalidName
	}

	taken, err := s.store.NameTaken(ctx, userID, name)
	if err != nil {
		return Environment{}, err
	}
	if taken {
		return Environment{}, ErrNameTaken
	}

	overlay := OverlayName(name, time.Now().UTC())
	env, err := s.store.Create(ctx, userID, name, overlay)
	if err != nil {
		return Environment{}, fmt.Errorf("persisting environment: %w", err)
	}

	networkID, err := s.driver.CreateOverlayNetwork(ctx, overlay, map[string]string{
		docker.EnvLabel:   env.ID.String(),
		docker.OwnerLabel: userID.String(),
	})
	if err != nil {
		if serr := s.store.SetError(ctx, env.ID, err.Error()); serr != nil {
			s.logger.Error("recording environment error", "env_id", env.ID, "error", serr)
		}
		s.bus.Publish(events.Event{
			Kind: events.EnvironmentError, UserID: userID,
			EnvironmentID: env.ID, Subject: name, Detail: err.Error(),
		})
		return Environment{}, fmt.Errorf("creating overlay network: %w", err)
	}

	if err := s.store.SetActive(ctx, env.ID, networkID); err != nil {
		return Environment{}, err
	}

	s.bus.Publish(events.Event{
		Kind: events.EnvironmentActive, UserID: userID,
		EnvironmentID: env.ID, Subject: name,
	})

	return s.store.Get(ctx, userID, env.ID)
}

// Get returns an environment owned by the user.
func (s *Service) Get(ctx context.Context, userID, envID uuid.UUID) (Environment, error) {
	env, err := s.store.Get(ctx, userID, envID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Environment{}, ErrNotFound
		}
		return Environment{}, err
	}
	if env.Status == StatusDeleted {
		return Environment{}, ErrNotFound
	}
	return env, nil
}

// List returns the user's environments, excluding DELETED.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Environment, error) {
	return s.store.ListByUser(ctx, userID)
}

// Delete flips the row to DELETING and tears down every owned resource in
// the background: child deployments, labelled volumes, then the overlay
// network. The shared reverse proxy detaches automatically when the network
// disappears.
func (s *Service) Delete(ctx context.Context, userID, envID uuid.UUID) error {
	env, err := s.store.Get(ctx, userID, envID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	// Repeated deletes are rejected rather than amplified.
	if env.Status == StatusDeleting || env.Status == StatusDeleted {
		return ErrAlreadyDeleting
	}

	if err := s.store.SetStatus(ctx, envID, StatusDeleting); err != nil {
		return err
	}

	go s.teardown(context.Background(), env)
	return nil
}

func (s *Service) teardown(ctx context.Context, env Environment) {
	fail := func(step string, err error) {
		s.logger.Error("environment teardown failed", "env_id", env.ID, "step", step, "error", err)
		if serr := s.store.SetError(ctx, env.ID, fmt.Sprintf("%s: %v", step, err)); serr != nil {
			s.logger.Error("recording teardown error", "env_id", env.ID, "error", serr)
		}
		s.bus.Publish(events.Event{
			Kind: events.EnvironmentError, UserID: env.UserID,
			EnvironmentID: env.ID, Subject: env.Name, Detail: err.Error(),
		})
	}

	if s.cleaner != nil {
		if err := s.cleaner.RemoveAllInEnvironment(ctx, env.ID); err != nil {
			fail("removing deployments", err)
			return
		}
	}

	volumes, err := s.driver.ListManagedVolumes(ctx, map[string]string{
		docker.EnvLabel: env.ID.String(),
	})
	if err != nil {
		fail("listing volumes", err)
		return
	}
	for _, name := range volumes {
		// In-use and missing volumes are tolerated inside the driver.
		if err := s.driver.DeleteVolume(ctx, name); err != nil {
			fail("removing volume "+name, err)
			return
		}
	}

	if err := s.driver.DeleteNetwork(ctx, env.OverlayName); err != nil {
		fail("removing overlay network", err)
		return
	}

	if err := s.store.SetStatus(ctx, env.ID, StatusDeleted); err != nil {
		s.logger.Error("marking environment deleted", "env_id", env.ID, "error", err)
		return
	}

	s.bus.Publish(events.Event{
		Kind: events.EnvironmentDeleted, UserID: env.UserID,
		EnvironmentID: env.ID, Subject: env.Name,
	})
}

// MakePublic attaches the reverse proxy to the environment's overlay network
// and records the public domain. The row update is atomic; proxy attachment
// and env patching of running services are best-effort.
func (s *Service) MakePublic(ctx context.Context, userID, envID uuid.UUID, domain string) (Environment, error) {
	env, err := s.Get(ctx, userID, envID)
	if err != nil {
		return Environment{}, err
	}
	if env.Status != StatusActive {
		return Environment{}, ErrNotActive
	}
	if env.IsPublic {
		return Environment{}, ErrAlreadyPublic
	}
	if !ValidDomain(domain) {
		return Environment{}, ErrInvalidDomain
	}

	taken, err := s.store.DomainTaken(ctx, domain)
	if err != nil {
		return Environment{}, err
	}
	if taken {
		return Environment{}, ErrDomainTaken
	}

	// Already-connected is success inside the driver.
	if err := s.driver.ConnectContainerToNetwork(ctx, env.OverlayName, s.nginxContainer); err != nil {
		s.logger.Warn("attaching reverse proxy", "env_id", envID, "error", err)
	}

	if err := s.store.SetPublic(ctx, envID, domain); err != nil {
		return Environment{}, err
	}

	if s.cleaner != nil {
		if err := s.cleaner.ApplyProxyEnv(ctx, envID, domain); err != nil {
			s.logger.Warn("patching proxy env into running services", "env_id", envID, "error", err)
		}
	}

	s.bus.Publish(events.Event{
		Kind: events.EnvironmentMadePublic, UserID: userID,
		EnvironmentID: envID, Subject: domain,
	})

	return s.store.Get(ctx, userID, envID)
}
