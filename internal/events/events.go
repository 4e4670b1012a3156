// Package events is the in-process domain event bus. Publishing is
// asynchronous and best-effort: a slow subscriber never back-pressures the
// worker that emitted the event.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a domain event type.
type Kind string

const (
	EnvironmentActive     Kind = "environment.active"
	EnvironmentError      Kind = "environment.error"
	EnvironmentDeleted    Kind = "environment.deleted"
	EnvironmentMadePublic Kind = "environment.made_public"

	DeploymentStarted        Kind = "deployment.started"
	DeploymentSuccess        Kind = "deployment.success"
	DeploymentFailed         Kind = "deployment.failed"
	DeploymentStopped        Kind = "deployment.stopped"
	DeploymentRecovered      Kind = "deployment.recovered"
	DeploymentRecoveryFailed Kind = "deployment.recovery-failed"
)

// Event is a typed domain event addressed to the owning user.
type Event struct {
	Kind          Kind
	UserID        uuid.UUID
	EnvironmentID uuid.UUID
	DeploymentID  uuid.UUID
	JobID         string

	// Subject is the human-readable name of the thing the event is about
	// (environment name, image reference, domain).
	Subject string

	// Detail carries the error message for failure events.
	Detail string

	OccurredAt time.Time
}
