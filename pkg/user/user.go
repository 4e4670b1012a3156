// Package user manages chat-identified principals and their notification
// preferences.
package user

import (
	"time"

	"github.com/google/uuid"
)

// User is a chat-identified principal. Rows are created on first contact and
// never deleted in normal operation.
type User struct {
	ID        uuid.UUID `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Handle    *string   `json:"handle,omitempty"`
	Prefs     Prefs     `json:"preferences"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Prefs holds per-event notification booleans, stored as JSON on the user row.
type Prefs struct {
	DeployStarted   bool `json:"deploy_started"`
	DeploySucceeded bool `json:"deploy_succeeded"`
	DeployFailed    bool `json:"deploy_failed"`
	DeployStopped   bool `json:"deploy_stopped"`
	DeployRecovered bool `json:"deploy_recovered"`
	EnvironmentEvents bool `json:"environment_events"`
}

// DefaultPrefs enables the notifications a new user should get out of the box.
func DefaultPrefs() Prefs {
	return Prefs{
		DeploySucceeded: true,
		DeployFailed:    true,
		DeployRecovered: true,
		EnvironmentEvents: true,
	}
}
