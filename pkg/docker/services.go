package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/errdefs"
)

// Hardened defaults applied to every service this process creates.
const (
	restartMaxAttempts = 3
	restartDelay       = 5 * time.Second
)

// VolumeMount binds a managed volume into the container filesystem.
type VolumeMount struct {
	Source string
	Target string
}

// PortMapping publishes a container port on the host via the ingress mesh.
type PortMapping struct {
	Container uint32
	Host      uint32
}

// HealthcheckConfig is an optional container health probe.
type HealthcheckConfig struct {
	Test     []string
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
}

// ServiceConfig describes one Swarm service to create.
type ServiceConfig struct {
	Name     string
	Image    string
	Replicas uint64

	Env    map[string]string
	Labels map[string]string

	// NetworkName is the only network the service attaches to.
	NetworkName string

	Mounts []VolumeMount
	Ports  []PortMapping

	Healthcheck *HealthcheckConfig

	// CPULimit is in whole cores; zero means unlimited.
	CPULimit float64
	// MemoryLimitBytes is zero for unlimited.
	MemoryLimitBytes int64
}

// ServiceInfo is the driver's projection of a live Swarm service.
type ServiceInfo struct {
	ID       string
	Name     string
	Replicas uint64
	Env      []string
	Labels   map[string]string
}

// ServiceTaskSummary aggregates the task states backing one service.
type ServiceTaskSummary struct {
	Desired  uint64
	Running  int
	Failed   int
	Starting int
	// Restarts counts tasks that ended in a terminal failure state and were
	// replaced.
	Restarts int
}

// CreateService creates a Swarm service from cfg with the process-wide
// security defaults: all capabilities dropped, no-new-privileges, bounded
// on-failure restarts.
func (d *Driver) CreateService(ctx context.Context, cfg ServiceConfig) (string, error) {
	spec := buildServiceSpec(cfg)

	resp, err := d.cli.ServiceCreate(ctx, spec, types.ServiceCreateOptions{})
	if err != nil {
		return "", fmt.Errorf("creating service %s: %w", cfg.Name, err)
	}
	for _, w := range resp.Warnings {
		d.logger.Warn("service create warning", "service", cfg.Name, "warning", w)
	}

	d.logger.Info("created service", "name", cfg.Name, "id", resp.ID, "replicas", cfg.Replicas)
	return resp.ID, nil
}

// GetService returns the live service with the exact given name, or nil when
// it does not exist.
func (d *Driver) GetService(ctx context.Context, name string) (*ServiceInfo, error) {
	svc, _, err := d.cli.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("inspecting service %s: %w", name, err)
	}
	return serviceInfo(svc), nil
}

// GetServiceTasks summarizes the task states backing the named service.
func (d *Driver) GetServiceTasks(ctx context.Context, name string) (*ServiceTaskSummary, error) {
	svc, _, err := d.cli.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("inspecting service %s: %w", name, err)
	}

	tasks, err := d.cli.TaskList(ctx, types.TaskListOptions{
		Filters: filters.NewArgs(filters.Arg("service", svc.ID)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing tasks for service %s: %w", name, err)
	}

	summary := &ServiceTaskSummary{}
	if svc.Spec.Mode.Replicated != nil && svc.Spec.Mode.Replicated.Replicas != nil {
		summary.Desired = *svc.Spec.Mode.Replicated.Replicas
	}

	for _, t := range tasks {
		switch t.Status.State {
		case swarm.TaskStateRunning:
			summary.Running++
		case swarm.TaskStateFailed, swarm.TaskStateRejected:
			summary.Failed++
			if t.DesiredState == swarm.TaskStateShutdown {
				summary.Restarts++
			}
		case swarm.TaskStatePending, swarm.TaskStateAssigned, swarm.TaskStateAccepted,
			swarm.TaskStatePreparing, swarm.TaskStateReady, swarm.TaskStateStarting:
			summary.Starting++
		}
	}
	return summary, nil
}

// RemoveService deletes a service by name or ID. Missing is success.
func (d *Driver) RemoveService(ctx context.Context, nameOrID string) error {
	err := d.cli.ServiceRemove(ctx, nameOrID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			d.logger.Debug("service already gone", "service", nameOrID)
			return nil
		}
		return fmt.Errorf("removing service %s: %w", nameOrID, err)
	}
	return nil
}

// UpdateServiceEnv merges env into the named service's container spec and
// pushes the updated spec. The task template is otherwise untouched, so the
// scheduler replaces tasks in place rather than tearing the service down.
func (d *Driver) UpdateServiceEnv(ctx context.Context, name string, env map[string]string) error {
	svc, _, err := d.cli.ServiceInspectWithRaw(ctx, name, types.ServiceInspectOptions{})
	if err != nil {
		return fmt.Errorf("inspecting service %s: %w", name, err)
	}

	spec := svc.Spec
	if spec.TaskTemplate.ContainerSpec == nil {
		return fmt.Errorf("service %s has no container spec", name)
	}

	merged := make(map[string]string)
	for _, kv := range spec.TaskTemplate.ContainerSpec.Env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range env {
		merged[k] = v
	}
	spec.TaskTemplate.ContainerSpec.Env = envSlice(merged)

	resp, err := d.cli.ServiceUpdate(ctx, svc.ID, svc.Version, spec, types.ServiceUpdateOptions{})
	if err != nil {
		return fmt.Errorf("updating service %s: %w", name, err)
	}
	for _, w := range resp.Warnings {
		d.logger.Warn("service update warning", "service", name, "warning", w)
	}
	return nil
}

// GetServiceLogs returns up to tail lines of combined, timestamped
// stdout/stderr for the named service.
func (d *Driver) GetServiceLogs(ctx context.Context, name string, tail int) ([]byte, error) {
	rc, err := d.cli.ServiceLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       fmt.Sprintf("%d", tail),
	})
	if err != nil {
		return nil, fmt.Errorf("requesting logs for service %s: %w", name, err)
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading logs for service %s: %w", name, err)
	}
	return buf, nil
}

func buildServiceSpec(cfg ServiceConfig) swarm.ServiceSpec {
	replicas := cfg.Replicas
	if replicas == 0 {
		replicas = 1
	}

	containerSpec := &swarm.ContainerSpec{
		Image:          cfg.Image,
		Env:            envSlice(cfg.Env),
		Labels:         managedLabels(cfg.Labels),
		CapabilityDrop: []string{"ALL"},
		Privileges: &swarm.Privileges{
			NoNewPrivileges: true,
		},
	}

	for _, m := range cfg.Mounts {
		containerSpec.Mounts = append(containerSpec.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: m.Source,
			Target: m.Target,
		})
	}

	if hc := cfg.Healthcheck; hc != nil {
		containerSpec.Healthcheck = &container.HealthConfig{
			Test:     hc.Test,
			Interval: hc.Interval,
			Timeout:  hc.Timeout,
			Retries:  hc.Retries,
		}
	}

	maxAttempts := uint64(restartMaxAttempts)
	delay := restartDelay

	taskTemplate := swarm.TaskSpec{
		ContainerSpec: containerSpec,
		RestartPolicy: &swarm.RestartPolicy{
			Condition:   swarm.RestartPolicyConditionOnFailure,
			MaxAttempts: &maxAttempts,
			Delay:       &delay,
		},
		Networks: []swarm.NetworkAttachmentConfig{
			{Target: cfg.NetworkName},
		},
	}

	if cfg.CPULimit > 0 || cfg.MemoryLimitBytes > 0 {
		taskTemplate.Resources = &swarm.ResourceRequirements{
			Limits: &swarm.Limit{
				NanoCPUs:    int64(cfg.CPULimit * 1e9),
				MemoryBytes: cfg.MemoryLimitBytes,
			},
		}
	}

	spec := swarm.ServiceSpec{
		Annotations: swarm.Annotations{
			Name:   cfg.Name,
			Labels: managedLabels(cfg.Labels),
		},
		TaskTemplate: taskTemplate,
		Mode: swarm.ServiceMode{
			Replicated: &swarm.ReplicatedService{Replicas: &replicas},
		},
	}

	if len(cfg.Ports) > 0 {
		endpoint := &swarm.EndpointSpec{Mode: swarm.ResolutionModeVIP}
		for _, p := range cfg.Ports {
			endpoint.Ports = append(endpoint.Ports, swarm.PortConfig{
				Protocol:      swarm.PortConfigProtocolTCP,
				TargetPort:    p.Container,
				PublishedPort: p.Host,
				PublishMode:   swarm.PortConfigPublishModeIngress,
			})
		}
		spec.EndpointSpec = endpoint
	}

	return spec
}

func serviceInfo(svc swarm.Service) *ServiceInfo {
	info := &ServiceInfo{
		ID:   svc.ID,
		Name: svc.Spec.Name,
	}
	if svc.Spec.Mode.Replicated != nil && svc.Spec.Mode.Replicated.Replicas != nil {
		info.Replicas = *svc.Spec.Mode.Replicated.Replicas
	}
	if svc.Spec.TaskTemplate.ContainerSpec != nil {
		info.Env = svc.Spec.TaskTemplate.ContainerSpec.Env
	}
	info.Labels = svc.Spec.Labels
	return info
}

// envSlice renders an env map as sorted KEY=VALUE strings for stable specs.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
