package deployment

import (
	"fmt"
	"strings"
	"time"
)

// Naming rules for engine resources. All three are deterministic functions
// of persisted state so the recovery supervisor can recompute them.

// ServiceName composes the Swarm service name for a deployment. Environment
// names are capped at 32 chars and job IDs at 16, so the result stays under
// the engine's 63-char limit by construction.
func ServiceName(envName, jobID string) string {
	return fmt.Sprintf("job_%s_%s", envName, jobID)
}

// VolumeName expands a caller's logical volume name to the managed name.
func VolumeName(envName, logicalName string) string {
	return fmt.Sprintf("vol_%s_%s", envName, logicalName)
}

// ImageName generates the image name for a Git-sourced build.
func ImageName(envName string, now time.Time) string {
	return fmt.Sprintf("img_%s_%d", strings.ToLower(envName), now.Unix())
}

// ImageTag returns the tag for a Git-sourced build: the branch, or "latest"
// when no branch was given.
func ImageTag(branch string) string {
	if branch == "" {
		return "latest"
	}
	return branch
}
