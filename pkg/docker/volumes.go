package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/errdefs"
)

// CreateVolume creates a managed named volume. A name conflict returns the
// existing volume's name — already-exists is success.
func (d *Driver) CreateVolume(ctx context.Context, name string, labels map[string]string) (string, error) {
	vol, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: managedLabels(labels),
	})
	if err != nil {
		if errdefs.IsConflict(err) {
			d.logger.Debug("volume already exists", "name", name)
			return name, nil
		}
		return "", fmt.Errorf("creating volume %s: %w", name, err)
	}
	return vol.Name, nil
}

// DeleteVolume removes a volume by name. Missing is success; in-use is
// reported as a warning and swallowed.
func (d *Driver) DeleteVolume(ctx context.Context, name string) error {
	err := d.cli.VolumeRemove(ctx, name, false)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		if errdefs.IsConflict(err) {
			d.logger.Warn("volume in use, leaving in place", "name", name, "error", err)
			return nil
		}
		return fmt.Errorf("removing volume %s: %w", name, err)
	}
	return nil
}

// ListManagedVolumes returns the names of managed volumes whose labels match
// every entry of labelFilter.
func (d *Driver) ListManagedVolumes(ctx context.Context, labelFilter map[string]string) ([]string, error) {
	args := filters.NewArgs(filters.Arg("label", ManagedLabel+"="+ManagedLabelValue))
	for k, v := range labelFilter {
		args.Add("label", k+"="+v)
	}

	resp, err := d.cli.VolumeList(ctx, volume.ListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("listing volumes: %w", err)
	}

	names := make([]string, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		names = append(names, v.Name)
	}
	return names, nil
}
