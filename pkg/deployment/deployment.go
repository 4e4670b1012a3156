// Package deployment turns deployment requests into running Swarm services
// through an asynchronous, crash-recoverable pipeline, and owns every naming
// rule the pipeline stamps onto engine resources.
package deployment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status values of the deployment state machine, sortable by lifecycle
// order. Transitions move strictly forward; FAILED is reachable from any
// pre-RUNNING state (and from RUNNING when boot recovery cannot relaunch the
// service), STOPPED only from RUNNING.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusBuildingImage      Status = "BUILDING_IMAGE"
	StatusPullingImage       Status = "PULLING_IMAGE"
	StatusCreatingVolumes    Status = "CREATING_VOLUMES"
	StatusStartingContainers Status = "STARTING_CONTAINERS"
	StatusRunning            Status = "RUNNING"
	StatusFailed             Status = "FAILED"
	StatusStopped            Status = "STOPPED"
)

// Terminal reports whether the worker pipeline is done with the row: RUNNING,
// FAILED or STOPPED. A RUNNING row can still be deleted or marked FAILED by
// boot recovery.
func (s Status) Terminal() bool {
	return s == StatusRunning || s == StatusFailed || s == StatusStopped
}

// Source identifies where the workload image comes from.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceGit      Source = "git"
)

// Service status and health projections of the backing Swarm service.
type ServiceStatus string

const (
	ServiceCreating ServiceStatus = "CREATING"
	ServiceRunning  ServiceStatus = "RUNNING"
	ServiceStopped  ServiceStatus = "STOPPED"
	ServiceFailed   ServiceStatus = "FAILED"
)

type Health string

const (
	HealthHealthy   Health = "HEALTHY"
	HealthUnhealthy Health = "UNHEALTHY"
	HealthStarting  Health = "STARTING"
	HealthNone      Health = "NONE"
)

// PortSpec publishes a container port on a host port.
type PortSpec struct {
	Container uint32 `json:"container" validate:"required,gte=1,lte=65535"`
	Host      uint32 `json:"host" validate:"required,gte=1,lte=65535"`
}

// VolumeSpec declares a named volume and its mount path. Name starts as the
// caller's logical name and is rewritten to the expanded managed name once
// the volume exists.
type VolumeSpec struct {
	Name      string `json:"name" validate:"required,min=1,max=48"`
	MountPath string `json:"mountPath" validate:"required,min=1"`
}

// HealthcheckSpec is an optional container health probe.
type HealthcheckSpec struct {
	Test            []string `json:"test" validate:"required,min=1"`
	IntervalSeconds int      `json:"intervalSeconds"`
	TimeoutSeconds  int      `json:"timeoutSeconds"`
	Retries         int      `json:"retries"`
}

// Deployment is the desired state of one workload.
type Deployment struct {
	ID            uuid.UUID `json:"id"`
	EnvironmentID uuid.UUID `json:"environmentId"`
	JobID         string    `json:"jobId"`

	Image    string            `json:"image"`
	Tag      string            `json:"tag"`
	Replicas int               `json:"replicas"`
	Ports    []PortSpec        `json:"ports"`
	EnvVars  map[string]string `json:"-"`
	Volumes  []VolumeSpec      `json:"volumes"`

	VirtualHost *string `json:"virtualHost,omitempty"`
	VirtualPort *int    `json:"virtualPort,omitempty"`

	CPULimit      *float64         `json:"cpuLimit,omitempty"`
	MemoryLimitMB *int64           `json:"memoryLimitMb,omitempty"`
	Healthcheck   *HealthcheckSpec `json:"healthcheck,omitempty"`

	Status         Status     `json:"status"`
	ErrorMessage   *string    `json:"errorMessage,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CurrentVersion int        `json:"currentVersion"`

	GitURL       *string `json:"gitUrl,omitempty"`
	GitBranch    *string `json:"gitBranch,omitempty"`
	GitCommitSHA *string `json:"gitCommitSha,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Source reports how the deployment's image is produced.
func (d *Deployment) Source() Source {
	if d.GitURL != nil && *d.GitURL != "" {
		return SourceGit
	}
	return SourceRegistry
}

// ServiceRow is the Swarm-service projection of a deployment (1:1).
type ServiceRow struct {
	ID              uuid.UUID     `json:"id"`
	DeploymentID    uuid.UUID     `json:"deploymentId"`
	DriverServiceID *string       `json:"driverServiceId,omitempty"`
	Name            string        `json:"name"`
	Status          ServiceStatus `json:"status"`
	Health          Health        `json:"health"`
	RestartCount    int           `json:"restartCount"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Version is one append-only snapshot of a deployment's desired state.
type Version struct {
	ID           uuid.UUID `json:"id"`
	DeploymentID uuid.UUID `json:"deploymentId"`
	Number       int       `json:"number"`
	Image        string    `json:"image"`
	Tag          string    `json:"tag"`
	Replicas     int       `json:"replicas"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Domain errors mapped to HTTP codes at the handler boundary.
var (
	ErrNotFound       = errors.New("deployment: not found")
	ErrEnvNotActive   = errors.New("deployment: environment not active")
	ErrWorkerBusy     = errors.New("deployment: worker queue full")
	ErrNotDeletable   = errors.New("deployment: only RUNNING or FAILED deployments can be deleted")
)
