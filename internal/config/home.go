package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnvVar overrides the reflector home directory.
const HomeEnvVar = "REFLECTOR_HOME"

// Files and directories inside the home directory
const (
	ConfigFileName   = "config.yaml"
	ScheduleFileName = "schedule.yaml"
	LogsDirName      = "logs"
	ReportsDirName   = "reports"
	DaemonLockName   = "daemon.lock"
)

// GetReflectorHome returns the reflector home directory.
// Priority order:
//  1. REFLECTOR_HOME environment variable (if set)
//  2. ~/.reflector
//
// The directory is created if it doesn't exist
func GetReflectorHome() (string, error) {
	userHome, err := os.UserHomeDir()
	if err != nil {
		userHome = ""
	}
	return GetReflectorHomeWithRoot(userHome)
}

// GetReflectorHomeWithRoot is GetReflectorHome with an explicit root in place
// of the user's home directory. The env var still takes precedence.
func GetReflectorHomeWithRoot(root string) (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create reflector home directory: %w", err)
		}
		return home, nil
	}

	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		root = cwd
	}

	home := filepath.Join(root, ".reflector")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create reflector home directory: %w", err)
	}
	return home, nil
}

// ConfigPath returns the config file path inside home.
func ConfigPath(home string) string {
	return filepath.Join(home, ConfigFileName)
}

// SchedulePath returns the schedule state file path inside home.
func SchedulePath(home string) string {
	return filepath.Join(home, ScheduleFileName)
}

// DaemonLockPath returns the lock file held by a running daemon.
func DaemonLockPath(home string) string {
	return filepath.Join(home, DaemonLockName)
}
