// Package toolchain installs and removes interpreter toolchains. The
// canonical directory name {kind}-{major}.{minor}.{patch}-{os}-{arch}
// doubles as the install registry: a toolchain is installed exactly when
// its canonical directory exists and holds the expected executables.
// There is no separate metadata database to drift out of sync.
package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pyforge/internal/channel"
	"pyforge/internal/index"
	"pyforge/internal/platform"
)

// ErrNotInstalled reports an uninstall or lookup against a toolchain
// whose canonical directory does not exist.
var ErrNotInstalled = errors.New("toolchain not installed")

// Key identifies one installed toolchain: a fully-qualified version of a
// kind for a platform.
type Key struct {
	Kind     string
	Version  channel.Version
	Platform platform.Platform
}

// KeyFor derives the install key of a release.
func KeyFor(release index.Release) Key {
	return Key{Kind: release.Kind, Version: release.Version, Platform: release.Platform}
}

// CanonicalName renders the key's on-disk directory name. The name is
// unique per key and reversible via ParseName.
func (k Key) CanonicalName() string {
	return fmt.Sprintf("%s-%s-%s", k.Kind, k.Version, k.Platform)
}

// ParseName recovers a Key from a canonical directory name. Directory
// names that do not follow the convention report an error so that stray
// entries under the toolchains root are surfaced, not misread.
func ParseName(name string) (Key, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("not a canonical toolchain name: %q", name)
	}

	version, err := channel.ParseVersion(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("canonical name %q: %w", name, err)
	}
	p, err := platform.Parse(parts[2] + "-" + parts[3])
	if err != nil {
		return Key{}, fmt.Errorf("canonical name %q: %w", name, err)
	}

	return Key{Kind: parts[0], Version: version, Platform: p}, nil
}

// Installed is the handle returned once a toolchain is materialized on
// disk: where it lives and where its executables are.
type Installed struct {
	Key   Key
	Path  string
	Tools map[string]string
}

// toolLayout returns the fixed executable locations relative to an
// install root for a platform.
func toolLayout(p platform.Platform) map[string]string {
	if p.OS == platform.Windows {
		return map[string]string{
			"python": "python.exe",
			"pip":    filepath.Join("Scripts", "pip.exe"),
		}
	}
	return map[string]string{
		"python": filepath.Join("bin", "python3"),
		"pip":    filepath.Join("bin", "pip3"),
	}
}

// locateTools resolves the tools map against an extracted tree and
// verifies the primary interpreter is present. Called against the staged
// tree before publish, so a bad archive never reaches the canonical path.
func locateTools(root string, p platform.Platform) (map[string]string, error) {
	tools := make(map[string]string)
	for name, rel := range toolLayout(p) {
		tools[name] = filepath.Join(root, rel)
	}

	info, err := os.Stat(tools["python"])
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("archive layout unexpected: interpreter missing at %s", tools["python"])
	}
	return tools, nil
}

// Inspect returns the Installed handle for a key if its canonical
// directory exists and passes the lightweight shape check.
func Inspect(root string, key Key) (Installed, bool) {
	path := filepath.Join(root, key.CanonicalName())
	tools, err := locateTools(path, key.Platform)
	if err != nil {
		return Installed{}, false
	}
	return Installed{Key: key, Path: path, Tools: tools}, true
}

// ListInstalled enumerates every toolchain under the given root by
// reading the canonical directory names. Entries that do not parse are
// skipped; they are not ours.
func ListInstalled(root string) ([]Installed, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read toolchains dir: %w", err)
	}

	var installed []Installed
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key, err := ParseName(entry.Name())
		if err != nil {
			continue
		}
		if inst, ok := Inspect(root, key); ok {
			installed = append(installed, inst)
		}
	}
	return installed, nil
}
