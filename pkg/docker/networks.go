package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
)

// CreateOverlayNetwork creates an attachable overlay network carrying the
// managed label plus the given extra labels. Returns the engine network ID.
func (d *Driver) CreateOverlayNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	resp, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:     "overlay",
		Attachable: true,
		Labels:     managedLabels(labels),
	})
	if err != nil {
		return "", fmt.Errorf("creating overlay network %s: %w", name, err)
	}

	d.logger.Info("created overlay network", "name", name, "id", resp.ID)
	return resp.ID, nil
}

// DeleteNetwork removes a network by ID or name. A missing network is success.
func (d *Driver) DeleteNetwork(ctx context.Context, idOrName string) error {
	err := d.cli.NetworkRemove(ctx, idOrName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			d.logger.Debug("network already gone", "network", idOrName)
			return nil
		}
		return fmt.Errorf("removing network %s: %w", idOrName, err)
	}
	return nil
}

// FindNetworkByName returns the ID of the managed network with the exact
// given name, or "" when none exists.
func (d *Driver) FindNetworkByName(ctx context.Context, name string) (string, error) {
	nets, err := d.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("name", name),
			filters.Arg("label", ManagedLabel+"="+ManagedLabelValue),
		),
	})
	if err != nil {
		return "", fmt.Errorf("listing networks: %w", err)
	}
	// The name filter matches substrings; require an exact hit.
	for _, n := range nets {
		if n.Name == name {
			return n.ID, nil
		}
	}
	return "", nil
}

// ConnectContainerToNetwork attaches a container to a network. An
// already-connected container is success.
func (d *Driver) ConnectContainerToNetwork(ctx context.Context, networkIDOrName, containerName string) error {
	err := d.cli.NetworkConnect(ctx, networkIDOrName, containerName, &network.EndpointSettings{})
	if err != nil {
		if strings.Contains(err.Error(), "already exists in network") {
			d.logger.Debug("container already attached", "container", containerName, "network", networkIDOrName)
			return nil
		}
		return fmt.Errorf("connecting %s to network %s: %w", containerName, networkIDOrName, err)
	}
	return nil
}

// DisconnectContainerFromNetwork detaches a container from a network. A
// missing container or network is success.
func (d *Driver) DisconnectContainerFromNetwork(ctx context.Context, networkIDOrName, containerName string) error {
	err := d.cli.NetworkDisconnect(ctx, networkIDOrName, containerName, true)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("disconnecting %s from network %s: %w", containerName, networkIDOrName, err)
	}
	return nil
}
