// Package docker wraps the Docker Engine API with the typed, predictable
// operations the control plane needs: overlay networks, managed volumes,
// image pull and in-engine build, and Swarm services. The driver owns the
// label conventions and error normalization; services never see the raw
// client.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"
)

// Label keys stamped on every resource this process creates. Cleanup only
// ever touches resources carrying ManagedLabel.
const (
	ManagedLabel      = "managed"
	ManagedLabelValue = "true"

	OwnerLabel      = "runwhale.user_id"
	EnvLabel        = "runwhale.env_id"
	DeploymentLabel = "runwhale.deployment_id"
)

// Driver is a typed wrapper over one Docker Engine connection. A single
// instance is shared by all services; it is never exposed to handlers.
type Driver struct {
	cli    *client.Client
	logger *slog.Logger
}

// New connects to the Docker Engine at socketPath and verifies that the node
// is an active Swarm member.
func New(ctx context.Context, socketPath string, logger *slog.Logger) (*Driver, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+socketPath),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	infoCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info, err := cli.Info(infoCtx)
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("querying docker info: %w", err)
	}
	if info.Swarm.LocalNodeState != swarm.LocalNodeStateActive {
		_ = cli.Close()
		return nil, fmt.Errorf("docker swarm is not active (state: %s)", info.Swarm.LocalNodeState)
	}

	logger.Info("connected to docker engine",
		"socket", socketPath,
		"server_version", info.ServerVersion,
		"swarm_node", info.Swarm.NodeID,
	)

	return &Driver{cli: cli, logger: logger}, nil
}

// Close releases the engine connection.
func (d *Driver) Close() error {
	return d.cli.Close()
}

// managedLabels returns the base label set plus any extras.
func managedLabels(extra map[string]string) map[string]string {
	labels := map[string]string{ManagedLabel: ManagedLabelValue}
	for k, v := range extra {
		labels[k] = v
	}
	return labels
}
