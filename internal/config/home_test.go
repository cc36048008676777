package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestGetReflectorHomeWithEnvVar tests REFLECTOR_HOME takes precedence
func TestGetReflectorHomeWithEnvVar(t *testing.T) {
	customHome := filepath.Join(t.TempDir(), "custom")
	t.Setenv(HomeEnvVar, customHome)

	home, err := GetReflectorHomeWithRoot(t.TempDir())
	if err != nil {
		t.Fatalf("GetReflectorHomeWithRoot() error = %v", err)
	}
	if home != customHome {
		t.Errorf("GetReflectorHomeWithRoot() = %q, want %q", home, customHome)
	}
	if _, err := os.Stat(home); err != nil {
		t.Errorf("home directory not created: %v", err)
	}
}

// TestGetReflectorHomeWithRoot tests the default location under a root
func TestGetReflectorHomeWithRoot(t *testing.T) {
	t.Setenv(HomeEnvVar, "")

	root := t.TempDir()
	home, err := GetReflectorHomeWithRoot(root)
	if err != nil {
		t.Fatalf("GetReflectorHomeWithRoot() error = %v", err)
	}

	want := filepath.Join(root, ".reflector")
	if home != want {
		t.Errorf("GetReflectorHomeWithRoot() = %q, want %q", home, want)
	}
	if _, err := os.Stat(home); os.IsNotExist(err) {
		t.Errorf("Directory not created: %q", home)
	}
}

// TestHomePaths tests file locations inside home
func TestHomePaths(t *testing.T) {
	if got := ConfigPath("/h"); got != filepath.Join("/h", "config.yaml") {
		t.Errorf("ConfigPath() = %q", got)
	}
	if got := SchedulePath("/h"); got != filepath.Join("/h", "schedule.yaml") {
		t.Errorf("SchedulePath() = %q", got)
	}
}
