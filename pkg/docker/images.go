package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
)

// PullImage pulls image:tag and follows the progress stream to completion.
// It returns only after the engine has finished (or failed) the pull.
func (d *Driver) PullImage(ctx context.Context, ref, tag string) error {
	full := ref
	if tag != "" {
		full = ref + ":" + tag
	}

	rc, err := d.cli.ImagePull(ctx, full, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", full, err)
	}
	defer rc.Close()

	if err := drainPullStream(rc); err != nil {
		return fmt.Errorf("pulling image %s: %w", full, err)
	}

	d.logger.Info("pulled image", "image", full)
	return nil
}

// BuildImageFromTar streams a tar build context to the engine build endpoint
// and follows the event stream. The context must contain a Dockerfile at its
// root. Success requires the engine to report a built image.
func (d *Driver) BuildImageFromTar(ctx context.Context, buildContext io.Reader, tag string) error {
	resp, err := d.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("starting image build for %s: %w", tag, err)
	}
	defer resp.Body.Close()

	result := followBuildStream(resp.Body)
	switch {
	case result.Err != "":
		return fmt.Errorf("building image %s: %s", tag, result.Err)
	case !result.Built:
		return fmt.Errorf("building image %s: build stream ended without a built image", tag)
	}

	if !result.Tagged {
		d.logger.Warn("build finished without tag confirmation", "tag", tag)
	}
	d.logger.Info("built image", "tag", tag)
	return nil
}
