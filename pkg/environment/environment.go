// Package environment manages tenant-private overlay networks: creation,
// public exposure through the shared reverse proxy, and cascading teardown.
package environment

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status values, sortable by lifecycle order.
type Status string

const (
	StatusCreating Status = "CREATING"
	StatusActive   Status = "ACTIVE"
	StatusDeleting Status = "DELETING"
	StatusDeleted  Status = "DELETED"
	StatusError    Status = "ERROR"
)

// Environment is one tenant-private overlay network and its metadata.
type Environment struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"userId"`
	Name            string    `json:"name"`
	OverlayName     string    `json:"overlayName"`
	DriverNetworkID *string   `json:"driverNetworkId,omitempty"`
	Status          Status    `json:"status"`
	IsPublic        bool      `json:"isPublic"`
	PublicDomain    *string   `json:"publicDomain,omitempty"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	domainPattern = regexp.MustCompile(`^[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
)

// ValidName reports whether name is an acceptable environment name.
func ValidName(name string) bool {
	return name != "" && len(name) <= 32 && namePattern.MatchString(name)
}

// ValidDomain reports whether domain is an acceptable public domain.
func ValidDomain(domain string) bool {
	return len(domain) <= 253 && domainPattern.MatchString(domain)
}

// OverlayName derives the globally unique driver network name for an
// environment. The epoch-millisecond suffix keeps rapid recreations of the
// same logical name from colliding.
func OverlayName(name string, now time.Time) string {
	return fmt.Sprintf("overlay_env_%s_%d", name, now.UnixMilli())
}
