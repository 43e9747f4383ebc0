// Package settings persists the scope→channel bindings in a single
// human-editable TOML document. Top-level keys are absolute scope paths
// plus the "default" sentinel; values are channel strings. The document
// is always rewritten whole, atomically; callers serialize read-modify-
// write sequences with a lockfile lock keyed by the document path.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"pyforge/internal/channel"
)

// DefaultKey is the sentinel scope used when no project context applies.
const DefaultKey = "default"

// ErrCorrupt reports an unreadable or unparsable settings document. The
// document is never silently replaced; that would destroy user data.
var ErrCorrupt = errors.New("settings document corrupt")

// Store reads and writes the settings document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store for the document at path. The document need
// not exist yet; a missing file reads as empty.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location, used by callers to key the lock.
func (s *Store) Path() string {
	return s.path
}

// Get returns the channel bound to exactly the given scope key.
func (s *Store) Get(scope string) (channel.Spec, bool, error) {
	doc, err := s.load()
	if err != nil {
		return channel.Spec{}, false, err
	}
	return specFromDoc(doc, scope)
}

// Lookup resolves the channel for a scope: exact match first, then the
// nearest ancestor among the stored keys (walking the path upward, not
// the filesystem), then the default entry. The matched key is returned so
// callers can later remove the binding they actually used.
func (s *Store) Lookup(scope string) (spec channel.Spec, matched string, ok bool, err error) {
	doc, err := s.load()
	if err != nil {
		return channel.Spec{}, "", false, err
	}

	dir := scope
	for {
		if spec, found, err := specFromDoc(doc, dir); err != nil {
			return channel.Spec{}, "", false, err
		} else if found {
			return spec, dir, true, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if spec, found, err := specFromDoc(doc, DefaultKey); err != nil {
		return channel.Spec{}, "", false, err
	} else if found {
		return spec, DefaultKey, true, nil
	}
	return channel.Spec{}, "", false, nil
}

// Set binds a scope to a channel, replacing any existing entry for that
// scope (last write wins).
func (s *Store) Set(scope string, spec channel.Spec) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[scope] = spec.String()
	return s.save(doc)
}

// Remove deletes the entry for the given scope key. Removing an absent
// entry is a no-op.
func (s *Store) Remove(scope string) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[scope]; !ok {
		return nil
	}
	delete(doc, scope)
	return s.save(doc)
}

// Entries returns every scope→channel binding in the document. Keys whose
// values are not channel strings are skipped, keeping the document
// forward-readable.
func (s *Store) Entries() (map[string]channel.Spec, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]channel.Spec)
	for key := range doc {
		spec, ok, err := specFromDoc(doc, key)
		if err != nil || !ok {
			continue
		}
		entries[key] = spec
	}
	return entries, nil
}

// load reads the whole document. Unknown keys and non-string values are
// preserved as-is so future versions can add structure without breaking
// older binaries.
func (s *Store) load() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, s.path, err)
	}

	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCorrupt, s.path, err)
	}
	return doc, nil
}

func (s *Store) save(doc map[string]any) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("prepare settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "settings-*.toml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp settings: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp settings: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func specFromDoc(doc map[string]any, key string) (channel.Spec, bool, error) {
	raw, ok := doc[key]
	if !ok {
		return channel.Spec{}, false, nil
	}
	str, ok := raw.(string)
	if !ok {
		// Not a channel binding; some future key shape. Ignore it.
		return channel.Spec{}, false, nil
	}
	spec, err := channel.Parse(str)
	if err != nil {
		return channel.Spec{}, false, fmt.Errorf("%w: entry %q holds %q: %v", ErrCorrupt, key, str, err)
	}
	return spec, true, nil
}
