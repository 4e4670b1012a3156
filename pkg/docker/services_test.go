package docker

import (
	"reflect"
	"testing"
	"time"

	"github.com/docker/docker/api/types/swarm"
)

func TestBuildServiceSpec_SecurityDefaults(t *testing.T) {
	spec := buildServiceSpec(ServiceConfig{
		Name:        "job_demo_abcdef1234567890",
		Image:       "nginx:alpine",
		Replicas:    2,
		NetworkName: "overlay_env_demo_1700000000000",
	})

	cs := spec.TaskTemplate.ContainerSpec
	if cs == nil {
		t.Fatal("no container spec")
	}
	if !reflect.DeepEqual(cs.CapabilityDrop, []string{"ALL"}) {
		t.Errorf("CapabilityDrop = %v, want [ALL]", cs.CapabilityDrop)
	}
	if cs.Privileges == nil || !cs.Privileges.NoNewPrivileges {
		t.Errorf("NoNewPrivileges not set")
	}

	rp := spec.TaskTemplate.RestartPolicy
	if rp == nil || rp.Condition != swarm.RestartPolicyConditionOnFailure {
		t.Errorf("restart condition = %v, want on-failure", rp)
	}
	if rp.MaxAttempts == nil || *rp.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %v, want 3", rp.MaxAttempts)
	}
	if rp.Delay == nil || *rp.Delay != 5*time.Second {
		t.Errorf("Delay = %v, want 5s", rp.Delay)
	}

	if spec.Mode.Replicated == nil || *spec.Mode.Replicated.Replicas != 2 {
		t.Errorf("replicas not carried through")
	}
	if len(spec.TaskTemplate.Networks) != 1 || spec.TaskTemplate.Networks[0].Target != "overlay_env_demo_1700000000000" {
		t.Errorf("networks = %v", spec.TaskTemplate.Networks)
	}
	if spec.Labels[ManagedLabel] != ManagedLabelValue {
		t.Errorf("managed label missing from service labels")
	}
}

func TestBuildServiceSpec_ZeroReplicasDefaultsToOne(t *testing.T) {
	spec := buildServiceSpec(ServiceConfig{Name: "s", Image: "i", NetworkName: "n"})
	if *spec.Mode.Replicated.Replicas != 1 {
		t.Errorf("replicas = %d, want 1", *spec.Mode.Replicated.Replicas)
	}
}

func TestBuildServiceSpec_PortsMountsLimits(t *testing.T) {
	spec := buildServiceSpec(ServiceConfig{
		Name:        "s",
		Image:       "i",
		NetworkName: "n",
		Ports:       []PortMapping{{Container: 80, Host: 8080}},
		Mounts:      []VolumeMount{{Source: "vol_demo_data", Target: "/data"}},
		CPULimit:    0.5,
		MemoryLimitBytes: 256 << 20,
	})

	if spec.EndpointSpec == nil || len(spec.EndpointSpec.Ports) != 1 {
		t.Fatalf("endpoint ports missing")
	}
	p := spec.EndpointSpec.Ports[0]
	if p.TargetPort != 80 || p.PublishedPort != 8080 {
		t.Errorf("port = %+v", p)
	}

	cs := spec.TaskTemplate.ContainerSpec
	if len(cs.Mounts) != 1 || cs.Mounts[0].Source != "vol_demo_data" || cs.Mounts[0].Target != "/data" {
		t.Errorf("mounts = %+v", cs.Mounts)
	}

	res := spec.TaskTemplate.Resources
	if res == nil || res.Limits == nil {
		t.Fatalf("limits missing")
	}
	if res.Limits.NanoCPUs != 5e8 {
		t.Errorf("NanoCPUs = %d, want 5e8", res.Limits.NanoCPUs)
	}
	if res.Limits.MemoryBytes != 256<<20 {
		t.Errorf("MemoryBytes = %d", res.Limits.MemoryBytes)
	}
}

func TestEnvSlice_SortedAndStable(t *testing.T) {
	got := envSlice(map[string]string{"B": "2", "A": "1", "VIRTUAL_HOST": "app.example.com"})
	want := []string{"A=1", "B=2", "VIRTUAL_HOST=app.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("envSlice = %v, want %v", got, want)
	}
	if envSlice(nil) != nil {
		t.Errorf("envSlice(nil) should be nil")
	}
}
