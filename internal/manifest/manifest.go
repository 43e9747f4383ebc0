// Package manifest reads the small slice of project metadata the
// toolchain engine consumes: the declared toolchain channel. Full
// manifest parsing (dependencies, build system, ...) is someone else's
// job; this package only looks at its own table.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Filename is the manifest file read for the toolchain table.
const Filename = "pyproject.toml"

type document struct {
	Tool struct {
		Pyforge struct {
			Toolchain struct {
				Channel string `toml:"channel"`
			} `toml:"toolchain"`
		} `toml:"pyforge"`
	} `toml:"tool"`
}

// Channel returns the channel string declared in the project manifest
// under [tool.pyforge.toolchain], or "" when the manifest or the table is
// absent. A manifest that exists but cannot be parsed is an error; a
// present-but-broken declaration should not be silently ignored.
func Channel(projectRoot string) (string, error) {
	data, err := os.ReadFile(filepath.Join(projectRoot, Filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read manifest: %w", err)
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", Filename, err)
	}
	return doc.Tool.Pyforge.Toolchain.Channel, nil
}

// Init writes a minimal manifest into dir, refusing to overwrite an
// existing one.
func Init(dir, projectName string) error {
	path := filepath.Join(dir, Filename)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists in %s", Filename, dir)
	}

	contents := fmt.Sprintf(`[project]
name = %q
version = "0.1.0"
requires-python = ">=3.9"
dependencies = []
`, projectName)

	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
