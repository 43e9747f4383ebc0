// Package workspace locates the logical project root for a working
// directory and enumerates nested project members. Resolution is pure
// filesystem inspection; nothing is written and results are never cached
// across invocations.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMarkers is the recognized project-descriptor filenames, in
// precedence order. Only existence is checked here; manifest content is
// the manifest package's concern.
var DefaultMarkers = []string{"pyproject.toml", "setup.py"}

// ErrNotFound reports that no ancestor of the starting path carries a
// marker file.
var ErrNotFound = errors.New("no enclosing project found")

// Workspace is a resolved project root plus any nested member projects.
// Members are descendants of Root that carry a marker themselves, in
// depth-first lexical discovery order.
type Workspace struct {
	Root    string
	Members []string
}

// Resolve walks upward from start until a directory containing any of the
// markers is found; the first hit becomes the root, so the closest
// enclosing project wins and nested sub-projects stay addressable. A
// second downward walk from the root collects members. Fails with
// ErrNotFound when no ancestor up to the filesystem root carries a marker.
func Resolve(start string, markers []string) (Workspace, error) {
	if len(markers) == 0 {
		return Workspace{}, errors.New("no marker filenames given")
	}

	abs, err := filepath.Abs(start)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve start path: %w", err)
	}

	dir := abs
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	root, ok := findRoot(dir, markers)
	if !ok {
		return Workspace{}, fmt.Errorf("%w (searched from %s)", ErrNotFound, abs)
	}

	return Workspace{Root: root, Members: collectMembers(root, markers)}, nil
}

func findRoot(dir string, markers []string) (string, bool) {
	for {
		if hasMarker(dir, markers) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func hasMarker(dir string, markers []string) bool {
	for _, name := range markers {
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

// collectMembers walks the tree below root depth-first in lexical order.
// Symlinked directories are followed, with visited canonical identities
// tracked so link cycles terminate. Dot-directories (.git, .venv, ...)
// are skipped, as are unreadable directories and broken symlinks: one
// permission-denied subtree must not break root resolution.
func collectMembers(root string, markers []string) []string {
	visited := map[string]bool{}
	if canon, err := filepath.EvalSymlinks(root); err == nil {
		visited[canon] = true
	}

	var members []string
	var walk func(dir string)
	walk = func(dir string) {
		// os.ReadDir returns entries sorted by name, which fixes the
		// discovery order.
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}

		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			child := filepath.Join(dir, entry.Name())

			isDir := entry.IsDir()
			if !isDir && entry.Type()&os.ModeSymlink != 0 {
				if info, err := os.Stat(child); err == nil && info.IsDir() {
					isDir = true
				}
			}
			if !isDir {
				continue
			}

			canon, err := filepath.EvalSymlinks(child)
			if err != nil {
				continue
			}
			if visited[canon] {
				continue
			}
			visited[canon] = true

			if hasMarker(child, markers) {
				members = append(members, child)
			}
			walk(child)
		}
	}

	walk(root)
	return members
}
