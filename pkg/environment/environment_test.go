package environment

import (
	"strings"
	"testing"
	"time"
)

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"simple", "demo", true},
		{"with hyphen and underscore", "my-app_2", true},
		{"digits only", "123", true},
		{"empty", "", false},
		{"space", "my app", false},
		{"dot", "my.app", false},
		{"slash", "a/b", false},
		{"too long", strings.Repeat("a", 33), false},
		{"unicode", "café", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidName(tt.in); got != tt.want {
				t.Errorf("ValidName(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidDomain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"simple", "example.com", true},
		{"subdomain", "app.example.com", true},
		{"hyphenated", "my-app.example.co", true},
		{"single-char tld", "app.x", false},
		{"no tld", "localhost", false},
		{"scheme included", "https://app.example.com", false},
		{"space", "app .example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidDomain(tt.in); got != tt.want {
				t.Errorf("ValidDomain(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOverlayName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	got := OverlayName("demo", at)
	want := "overlay_env_demo_1700000000123"
	if got != want {
		t.Errorf("OverlayName = %q, want %q", got, want)
	}

	// Recreations of the same logical name at different instants must differ.
	other := OverlayName("demo", at.Add(time.Millisecond))
	if got == other {
		t.Errorf("overlay names collided across instants: %q", got)
	}
}
