package deployment

import (
	"strings"
	"testing"
	"time"
)

func TestServiceName(t *testing.T) {
	got := ServiceName("demo", "abcdefghijklmnop")
	if got != "job_demo_abcdefghijklmnop" {
		t.Errorf("ServiceName = %q", got)
	}

	// Longest legal inputs stay within the engine's 63-char name limit.
	longest := ServiceName(strings.Repeat("a", 32), strings.Repeat("b", 16))
	if len(longest) > 63 {
		t.Errorf("ServiceName length = %d, exceeds 63", len(longest))
	}
}

func TestVolumeName(t *testing.T) {
	if got := VolumeName("demo", "data"); got != "vol_demo_data" {
		t.Errorf("VolumeName = %q", got)
	}
}

func TestImageName(t *testing.T) {
	at := time.Unix(1700000000, 0)
	if got := ImageName("Demo", at); got != "img_demo_1700000000" {
		t.Errorf("ImageName = %q", got)
	}
}

func TestImageTag(t *testing.T) {
	if got := ImageTag(""); got != "latest" {
		t.Errorf("ImageTag(\"\") = %q, want latest", got)
	}
	if got := ImageTag("main"); got != "main" {
		t.Errorf("ImageTag(main) = %q", got)
	}
}
