package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 3000",
			check:  func(c *Config) bool { return c.Port == 3000 },
			expect: "3000",
		},
		{
			name:   "default docker socket",
			check:  func(c *Config) bool { return c.DockerSocketPath == "/var/run/docker.sock" },
			expect: "/var/run/docker.sock",
		},
		{
			name:   "default proxy container name",
			check:  func(c *Config) bool { return c.NginxContainerName == "nginx_proxy" },
			expect: "nginx_proxy",
		},
		{
			name:   "default throttle window",
			check:  func(c *Config) bool { return c.ThrottleTTLSeconds == 60 && c.ThrottleLimit == 100 },
			expect: "60s / 100 requests",
		},
		{
			name:   "recovery enabled by default",
			check:  func(c *Config) bool { return c.RecoveryEnabled },
			expect: "true",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:3000" },
			expect: "0.0.0.0:3000",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}
