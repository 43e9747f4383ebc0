// Package home resolves the pyforge home directory layout. Everything the
// tool persists (settings, toolchains, index cache, logs) lives under one
// per-user root so that state is easy to locate and easy to wipe.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvOverride names the environment variable that relocates the pyforge
// home directory, primarily for tests and sandboxed CI runs.
const EnvOverride = "PYFORGE_HOME"

// Dir returns the pyforge home directory (~/.pyforge unless overridden).
// The directory is not created; callers that write use the EnsureX helpers.
func Dir() (string, error) {
	if override, ok := os.LookupEnv(EnvOverride); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", EnvOverride, err)
		}
		return abs, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}
	return filepath.Join(home, ".pyforge"), nil
}

// SettingsFile returns the path of the durable settings document.
func SettingsFile() (string, error) {
	root, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "settings.toml"), nil
}

// ConfigFile returns the path of the optional tool configuration file.
func ConfigFile() (string, error) {
	root, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "config.yaml"), nil
}

// ToolchainsDir returns the root under which canonical toolchain
// directories are installed, creating it if needed.
func ToolchainsDir() (string, error) {
	return ensureSubdir("toolchains")
}

// CacheDir returns the directory holding the release index cache, creating
// it if needed.
func CacheDir() (string, error) {
	return ensureSubdir("cache")
}

// LogsDir returns the directory for invocation logs, creating it if needed.
func LogsDir() (string, error) {
	return ensureSubdir("logs")
}

// StagingDir returns the scratch directory used for downloads and archive
// extraction before an install is published, creating it if needed. It is
// kept on the same filesystem as ToolchainsDir so the final rename is
// atomic.
func StagingDir() (string, error) {
	return ensureSubdir("staging")
}

func ensureSubdir(name string) (string, error) {
	root, err := Dir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s dir: %w", name, err)
	}
	return dir, nil
}
