// Package notifier fans domain events out to the chat channel, honoring each
// user's notification preferences. Delivery is best-effort: failures are
// logged and never reach the emitting worker.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/runwhale/runwhale/internal/events"
	"github.com/runwhale/runwhale/pkg/user"
)

// Sender delivers one chat message. Implemented by the chat bot.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
	Enabled() bool
}

// Notifier routes events to users.
type Notifier struct {
	users  *user.Service
	sender Sender
	logger *slog.Logger
}

// New creates a Notifier.
func New(users *user.Service, sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{users: users, sender: sender, logger: logger}
}

// Register subscribes the notifier to every event kind on the bus.
func (n *Notifier) Register(bus *events.Bus) {
	bus.SubscribeAll(n.handle)
}

func (n *Notifier) handle(ctx context.Context, ev events.Event) {
	if n.sender == nil || !n.sender.Enabled() {
		return
	}
	if ev.UserID == uuid.Nil {
		return
	}

	u, err := n.users.Get(ctx, ev.UserID)
	if err != nil {
		n.logger.Warn("notifier could not resolve user", "user_id", ev.UserID, "error", err)
		return
	}

	if !wants(u.Prefs, ev.Kind) {
		return
	}

	text := render(ev)
	if text == "" {
		return
	}

	if err := n.sender.Send(ctx, u.ChatID, text); err != nil {
		n.logger.Warn("notifier delivery failed", "chat_id", u.ChatID, "kind", ev.Kind, "error", err)
	}
}

// wants applies the per-event booleans.
func wants(p user.Prefs, kind events.Kind) bool {
	switch kind {
	case events.DeploymentStarted:
		return p.DeployStarted
	case events.DeploymentSuccess:
		return p.DeploySucceeded
	case events.DeploymentFailed, events.DeploymentRecoveryFailed:
		return p.DeployFailed
	case events.DeploymentStopped:
		return p.DeployStopped
	case events.DeploymentRecovered:
		return p.DeployRecovered
	case events.EnvironmentActive, events.EnvironmentError,
		events.EnvironmentDeleted, events.EnvironmentMadePublic:
		return p.EnvironmentEvents
	default:
		return false
	}
}

// render formats one event as a chat message.
func render(ev events.Event) string {
	switch ev.Kind {
	case events.DeploymentStarted:
		return fmt.Sprintf("🚀 Deployment %s started (%s)", ev.JobID, ev.Subject)
	case events.DeploymentSuccess:
		return fmt.Sprintf("✅ Deployment %s is running (%s)", ev.JobID, ev.Subject)
	case events.DeploymentFailed:
		return fmt.Sprintf("❌ Deployment %s failed: %s", ev.JobID, ev.Detail)
	case events.DeploymentStopped:
		return fmt.Sprintf("🛑 Deployment %s stopped (%s)", ev.JobID, ev.Subject)
	case events.DeploymentRecovered:
		return fmt.Sprintf("♻️ Deployment %s was recovered after a restart", ev.JobID)
	case events.DeploymentRecoveryFailed:
		return fmt.Sprintf("⚠️ Deployment %s could not be recovered: %s", ev.JobID, ev.Detail)
	case events.EnvironmentActive:
		return fmt.Sprintf("🌐 Environment %q is active", ev.Subject)
	case events.EnvironmentError:
		return fmt.Sprintf("⚠️ Environment %q hit an error: %s", ev.Subject, ev.Detail)
	case events.EnvironmentDeleted:
		return fmt.Sprintf("🗑 Environment %q was deleted", ev.Subject)
	case events.EnvironmentMadePublic:
		return fmt.Sprintf("🔓 Environment is now public at https://%s", ev.Subject)
	default:
		return ""
	}
}
