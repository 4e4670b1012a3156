package notifier

import (
	"strings"
	"testing"

	"github.com/runwhale/runwhale/internal/events"
	"github.com/runwhale/runwhale/pkg/user"
)

func TestWants(t *testing.T) {
	prefs := user.Prefs{
		DeploySucceeded:   true,
		DeployFailed:      true,
		EnvironmentEvents: false,
	}

	tests := []struct {
		kind events.Kind
		want bool
	}{
		{events.DeploymentSuccess, true},
		{events.DeploymentFailed, true},
		{events.DeploymentRecoveryFailed, true}, // rides the failure boolean
		{events.DeploymentStarted, false},
		{events.DeploymentStopped, false},
		{events.EnvironmentActive, false},
		{events.EnvironmentMadePublic, false},
		{events.Kind("unknown.kind"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := wants(prefs, tt.kind); got != tt.want {
				t.Errorf("wants(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		want string
	}{
		{
			name: "deployment failed includes detail",
			ev:   events.Event{Kind: events.DeploymentFailed, JobID: "abc123", Detail: "manifest unknown"},
			want: "manifest unknown",
		},
		{
			name: "success includes job id",
			ev:   events.Event{Kind: events.DeploymentSuccess, JobID: "abc123", Subject: "nginx"},
			want: "abc123",
		},
		{
			name: "made public includes domain",
			ev:   events.Event{Kind: events.EnvironmentMadePublic, Subject: "app.example.com"},
			want: "https://app.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := render(tt.ev)
			if !strings.Contains(got, tt.want) {
				t.Errorf("render() = %q, want substring %q", got, tt.want)
			}
		})
	}

	if got := render(events.Event{Kind: events.Kind("unknown")}); got != "" {
		t.Errorf("render(unknown) = %q, want empty", got)
	}
}
