package deployment

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestPoolEnqueue_RejectsWhenFull(t *testing.T) {
	// No workers started: the buffered queue is the only capacity.
	p := NewPool(nil, 1, slog.Default())

	for i := 0; i < queueDepth; i++ {
		if err := p.Enqueue(Job{DeploymentID: uuid.New(), Source: SourceRegistry}); err != nil {
			t.Fatalf("Enqueue(%d) = %v", i, err)
		}
	}

	err := p.Enqueue(Job{DeploymentID: uuid.New(), Source: SourceRegistry})
	if !errors.Is(err, ErrWorkerBusy) {
		t.Fatalf("Enqueue(full) = %v, want ErrWorkerBusy", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusBuildingImage, false},
		{StatusPullingImage, false},
		{StatusCreatingVolumes, false},
		{StatusStartingContainers, false},
		{StatusRunning, true},
		{StatusFailed, true},
		{StatusStopped, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
