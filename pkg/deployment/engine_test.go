package deployment

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/runwhale/runwhale/pkg/environment"
)

func testEngine(proxy ProxyConfig) *Engine {
	return NewEngine(nil, nil, nil, nil, proxy, slog.Default())
}

func TestProxyEnv(t *testing.T) {
	e := testEngine(ProxyConfig{LetsEncryptEmail: "ops@example.com"})

	env := e.ProxyEnv("app.example.com", nil)
	if env["VIRTUAL_HOST"] != "app.example.com" {
		t.Errorf("VIRTUAL_HOST = %q", env["VIRTUAL_HOST"])
	}
	if env["LETSENCRYPT_HOST"] != "app.example.com" {
		t.Errorf("LETSENCRYPT_HOST = %q", env["LETSENCRYPT_HOST"])
	}
	if env["LETSENCRYPT_EMAIL"] != "ops@example.com" {
		t.Errorf("LETSENCRYPT_EMAIL = %q", env["LETSENCRYPT_EMAIL"])
	}
	if _, ok := env["VIRTUAL_PORT"]; ok {
		t.Errorf("VIRTUAL_PORT set without a virtual port")
	}
	if _, ok := env["LETSENCRYPT_TEST"]; ok {
		t.Errorf("LETSENCRYPT_TEST set without staging")
	}

	port := 8080
	env = testEngine(ProxyConfig{Staging: true}).ProxyEnv("app.example.com", &port)
	if env["VIRTUAL_PORT"] != "8080" {
		t.Errorf("VIRTUAL_PORT = %q", env["VIRTUAL_PORT"])
	}
	if env["LETSENCRYPT_TEST"] != "true" {
		t.Errorf("LETSENCRYPT_TEST = %q", env["LETSENCRYPT_TEST"])
	}
	if _, ok := env["LETSENCRYPT_EMAIL"]; ok {
		t.Errorf("LETSENCRYPT_EMAIL set without configured email")
	}
}

func TestComposeServiceConfig(t *testing.T) {
	e := testEngine(ProxyConfig{LetsEncryptEmail: "ops@example.com"})

	domain := "app.example.com"
	cpu := 0.5
	mem := int64(128)
	env := environment.Environment{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Name:         "demo",
		OverlayName:  "overlay_env_demo_1700000000000",
		Status:       environment.StatusActive,
		IsPublic:     true,
		PublicDomain: &domain,
	}
	d := Deployment{
		ID:            uuid.New(),
		EnvironmentID: env.ID,
		JobID:         "abcdefghijklmnop",
		Image:         "nginx",
		Tag:           "alpine",
		Replicas:      2,
		Ports:         []PortSpec{{Container: 80, Host: 8080}},
		EnvVars:       map[string]string{"APP_MODE": "prod"},
		Volumes:       []VolumeSpec{{Name: "vol_demo_data", MountPath: "/data"}},
		CPULimit:      &cpu,
		MemoryLimitMB: &mem,
	}

	cfg := e.ComposeServiceConfig(d, env)

	if cfg.Name != "job_demo_abcdefghijklmnop" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Image != "nginx:alpine" {
		t.Errorf("Image = %q", cfg.Image)
	}
	if cfg.Replicas != 2 {
		t.Errorf("Replicas = %d", cfg.Replicas)
	}
	if cfg.NetworkName != env.OverlayName {
		t.Errorf("NetworkName = %q", cfg.NetworkName)
	}
	if cfg.Env["APP_MODE"] != "prod" {
		t.Errorf("user env var lost: %v", cfg.Env)
	}
	if cfg.Env["VIRTUAL_HOST"] != domain || cfg.Env["LETSENCRYPT_HOST"] != domain {
		t.Errorf("proxy env not merged for public environment: %v", cfg.Env)
	}
	if len(cfg.Ports) != 1 || cfg.Ports[0].Host != 8080 {
		t.Errorf("Ports = %v", cfg.Ports)
	}
	if len(cfg.Mounts) != 1 || cfg.Mounts[0].Source != "vol_demo_data" {
		t.Errorf("Mounts = %v", cfg.Mounts)
	}
	if cfg.CPULimit != 0.5 || cfg.MemoryLimitBytes != 128<<20 {
		t.Errorf("limits = %v / %v", cfg.CPULimit, cfg.MemoryLimitBytes)
	}

	// Private environment gets no proxy env.
	env.IsPublic = false
	env.PublicDomain = nil
	cfg = e.ComposeServiceConfig(d, env)
	if _, ok := cfg.Env["VIRTUAL_HOST"]; ok {
		t.Errorf("VIRTUAL_HOST leaked into private environment")
	}
}

func TestHasVolumePrefix(t *testing.T) {
	tests := []struct {
		name    string
		volume  string
		envName string
		want    bool
	}{
		{"expanded", "vol_demo_data", "demo", true},
		{"logical", "data", "demo", false},
		{"other env", "vol_other_data", "demo", false},
		{"prefix only", "vol_demo_", "demo", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasVolumePrefix(tt.volume, tt.envName); got != tt.want {
				t.Errorf("hasVolumePrefix(%q, %q) = %v, want %v", tt.volume, tt.envName, got, tt.want)
			}
		})
	}
}
