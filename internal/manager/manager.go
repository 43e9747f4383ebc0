// Package manager composes the workspace resolver, settings store,
// release index, and installer into the install/use/update/uninstall/
// list/info operations. Each operation is a straight-line state machine
// run once per invocation; there is no long-lived orchestrator state.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pyforge/internal/channel"
	"pyforge/internal/index"
	"pyforge/internal/lockfile"
	"pyforge/internal/manifest"
	"pyforge/internal/platform"
	"pyforge/internal/settings"
	"pyforge/internal/toolchain"
	"pyforge/internal/workspace"
)

// Manager wires the engine's components together.
type Manager struct {
	Settings    *settings.Store
	Index       *index.Index
	Installer   *toolchain.Installer
	Platform    platform.Platform
	Markers     []string
	LockTimeout time.Duration
	Logger      *log.Logger
}

// Request carries the per-invocation inputs shared by operations.
type Request struct {
	// Dir is the working directory the workspace is resolved from.
	Dir string
	// Channel is an explicit channel token. Takes precedence over the
	// manifest table and the settings store.
	Channel string
	// Floating stores the partial request instead of the fully-qualified
	// resolution, so the binding keeps floating to newer releases.
	Floating bool
	// Target overrides the platform for cross-installs. Cross-installed
	// toolchains are not bound to the scope; they cannot run here.
	Target *platform.Platform
}

// Result reports what an operation resolved and did.
type Result struct {
	Scope     string
	Workspace *workspace.Workspace
	Release   index.Release
	Installed toolchain.Installed
	Bound     channel.Spec
	// Source names where the channel came from: "cli", "manifest",
	// "settings", or "latest".
	Source string
}

// channelSource orders the places a channel request can come from.
const (
	sourceCLI      = "cli"
	sourceManifest = "manifest"
	sourceSettings = "settings"
	sourceLatest   = "latest"
)

// resolveScope determines the active scope. A directory outside any
// project falls back to the default scope rather than failing: toolchain
// management is meaningful without a project context.
func (m *Manager) resolveScope(dir string) (string, *workspace.Workspace, error) {
	ws, err := workspace.Resolve(dir, m.Markers)
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) {
			m.logf("no enclosing project from %s; using default scope", dir)
			return settings.DefaultKey, nil, nil
		}
		return "", nil, err
	}
	return ws.Root, &ws, nil
}

// resolveChannel applies the precedence policy: explicit CLI argument,
// then the manifest toolchain table, then the settings store (exact
// scope, nearest stored ancestor, default entry), then the built-in
// "latest" fallback, reported as a nil spec.
func (m *Manager) resolveChannel(req Request, scope string, ws *workspace.Workspace) (*channel.Spec, string, error) {
	if req.Channel != "" {
		spec, err := channel.Parse(req.Channel)
		if err != nil {
			return nil, "", err
		}
		return &spec, sourceCLI, nil
	}

	if ws != nil {
		declared, err := manifest.Channel(ws.Root)
		if err != nil {
			return nil, "", err
		}
		if declared != "" {
			spec, err := channel.Parse(declared)
			if err != nil {
				return nil, "", fmt.Errorf("manifest toolchain channel: %w", err)
			}
			return &spec, sourceManifest, nil
		}
	}

	spec, matched, ok, err := m.Settings.Lookup(scope)
	if err != nil {
		return nil, "", err
	}
	if ok {
		m.logf("scope %s resolved channel %s from settings entry %s", scope, spec, matched)
		return &spec, sourceSettings, nil
	}

	return nil, sourceLatest, nil
}

// match resolves a possibly-nil spec to a concrete release. nil means
// "newest release of the default kind".
func (m *Manager) match(ctx context.Context, spec *channel.Spec, p platform.Platform) (index.Release, error) {
	if spec != nil {
		return m.Index.Match(ctx, *spec, p)
	}

	releases, err := m.Index.List(ctx, p)
	if err != nil {
		return index.Release{}, err
	}
	for _, release := range releases {
		if release.Kind == channel.DefaultKind {
			return release, nil
		}
	}
	return index.Release{}, fmt.Errorf("%w: %s (latest) on %s", index.ErrNoMatchingRelease, channel.DefaultKind, p)
}

// Install resolves and installs a toolchain for the request's scope, then
// binds the scope to the resolution. The fully-qualified resolved spec is
// stored (not the original partial request) so repeated runs stay stable
// as newer releases appear; Floating opts back into storing the partial
// request.
func (m *Manager) Install(ctx context.Context, req Request) (Result, error) {
	scope, ws, err := m.resolveScope(req.Dir)
	if err != nil {
		return Result{}, err
	}

	spec, source, err := m.resolveChannel(req, scope, ws)
	if err != nil {
		return Result{}, err
	}

	target := m.Platform
	if req.Target != nil {
		target = *req.Target
	}

	release, err := m.match(ctx, spec, target)
	if err != nil {
		return Result{}, err
	}

	installed, err := m.Installer.Install(ctx, release)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Scope:     scope,
		Workspace: ws,
		Release:   release,
		Installed: installed,
		Source:    source,
	}

	if req.Target != nil && target != m.Platform {
		m.logf("cross-install for %s; scope %s left unbound", target, scope)
		return result, nil
	}

	bound := requestedOrExact(spec, release, req.Floating)
	if err := m.bind(ctx, scope, bound); err != nil {
		return Result{}, err
	}
	result.Bound = bound
	return result, nil
}

// Use resolves the scope's toolchain, installing only when absent
// ("use" implies "install if missing"), and binds the scope.
func (m *Manager) Use(ctx context.Context, req Request) (Result, error) {
	// Install is idempotent over an existing healthy toolchain, so the
	// resolution path is shared: present means no work, absent means
	// install as a side effect.
	return m.Install(ctx, req)
}

// Update re-resolves a partially-bound scope against a freshly fetched
// index and installs the result. The partial binding itself is left
// untouched so it keeps floating on later updates. A scope with no
// binding is a logged no-op, not an error: there is nothing to update.
func (m *Manager) Update(ctx context.Context, req Request) (Result, bool, error) {
	scope, ws, err := m.resolveScope(req.Dir)
	if err != nil {
		return Result{}, false, err
	}

	spec, matched, ok, err := m.Settings.Lookup(scope)
	if err != nil {
		return Result{}, false, err
	}
	if !ok {
		m.logf("update: no channel bound for scope %s; nothing to update", scope)
		return Result{}, false, nil
	}
	if spec.FullyQualified() {
		m.logf("update: scope %s pinned to %s; nothing to float", scope, spec)
		return Result{Scope: scope, Workspace: ws, Bound: spec, Source: sourceSettings}, false, nil
	}

	if err := m.Index.Fetch(ctx); err != nil {
		return Result{}, false, err
	}

	release, err := m.Index.Match(ctx, spec, m.Platform)
	if err != nil {
		return Result{}, false, err
	}

	installed, err := m.Installer.Install(ctx, release)
	if err != nil {
		return Result{}, false, err
	}

	// The binding stays as stored: a partial spec is a deliberate request
	// to keep floating, so the next update re-resolves it again. The key
	// that held it may be an ancestor of the resolved scope or the
	// default entry.
	return Result{
		Scope:     matched,
		Workspace: ws,
		Release:   release,
		Installed: installed,
		Bound:     spec,
		Source:    sourceSettings,
	}, true, nil
}

// Uninstall removes the toolchain bound to the scope (or named by an
// explicit channel) and drops the now-dangling settings entry when it
// pointed at the removed toolchain.
func (m *Manager) Uninstall(ctx context.Context, req Request) (toolchain.Key, error) {
	scope, _, err := m.resolveScope(req.Dir)
	if err != nil {
		return toolchain.Key{}, err
	}

	var spec channel.Spec
	matched := ""
	if req.Channel != "" {
		spec, err = channel.Parse(req.Channel)
		if err != nil {
			return toolchain.Key{}, err
		}
	} else {
		var ok bool
		spec, matched, ok, err = m.Settings.Lookup(scope)
		if err != nil {
			return toolchain.Key{}, err
		}
		if !ok {
			return toolchain.Key{}, fmt.Errorf("%w: no channel bound for scope %s", toolchain.ErrNotInstalled, scope)
		}
	}

	key, err := m.installedKeyFor(spec)
	if err != nil {
		return toolchain.Key{}, err
	}

	if err := m.Installer.Uninstall(ctx, key); err != nil {
		return toolchain.Key{}, err
	}

	// An explicit channel argument bypasses the settings lookup, but the
	// scope may still hold a binding for what was just removed. Find it so
	// it gets dropped too.
	if matched == "" {
		stored, storedKey, ok, err := m.Settings.Lookup(scope)
		if err != nil {
			return toolchain.Key{}, err
		}
		if ok {
			spec, matched = stored, storedKey
		}
	}

	// Drop the binding only if it pointed at what we just removed.
	if matched != "" && spec.Kind == key.Kind && spec.Matches(key.Version) {
		if err := m.unbind(ctx, matched); err != nil {
			return toolchain.Key{}, err
		}
	}
	return key, nil
}

// List enumerates installed toolchains and current bindings. Pure read
// path; the network is touched only when fetch is set.
func (m *Manager) List(ctx context.Context, fetch bool) ([]toolchain.Installed, map[string]channel.Spec, error) {
	if fetch {
		if err := m.Index.Fetch(ctx); err != nil {
			return nil, nil, err
		}
	}

	installed, err := toolchain.ListInstalled(m.Installer.Root)
	if err != nil {
		return nil, nil, err
	}
	bindings, err := m.Settings.Entries()
	if err != nil {
		return nil, nil, err
	}
	return installed, bindings, nil
}

// Info describes the resolution state for one scope without changing
// anything.
type Info struct {
	Scope     string
	Workspace *workspace.Workspace
	Channel   *channel.Spec
	Source    string
	Installed *toolchain.Installed
}

// Describe reports how the given directory would resolve. Never triggers
// network access unless fetch is set.
func (m *Manager) Describe(ctx context.Context, req Request, fetch bool) (Info, error) {
	if fetch {
		if err := m.Index.Fetch(ctx); err != nil {
			return Info{}, err
		}
	}

	scope, ws, err := m.resolveScope(req.Dir)
	if err != nil {
		return Info{}, err
	}

	spec, source, err := m.resolveChannel(req, scope, ws)
	if err != nil {
		return Info{}, err
	}

	info := Info{Scope: scope, Workspace: ws, Channel: spec, Source: source}

	if spec != nil {
		if key, err := m.installedKeyFor(*spec); err == nil {
			if inst, ok := toolchain.Inspect(m.Installer.Root, key); ok {
				info.Installed = &inst
			}
		}
	}
	return info, nil
}

// installedKeyFor resolves a spec to an installed toolchain key, using
// the on-disk canonical directories as the source of truth. A partial
// spec picks the newest installed match.
func (m *Manager) installedKeyFor(spec channel.Spec) (toolchain.Key, error) {
	if spec.FullyQualified() {
		return toolchain.Key{
			Kind:     spec.Kind,
			Version:  channel.Version{Major: spec.Major, Minor: *spec.Minor, Patch: *spec.Patch},
			Platform: m.Platform,
		}, nil
	}

	installed, err := toolchain.ListInstalled(m.Installer.Root)
	if err != nil {
		return toolchain.Key{}, err
	}

	var best *toolchain.Key
	for _, inst := range installed {
		key := inst.Key
		if key.Kind != spec.Kind || key.Platform != m.Platform || !spec.Matches(key.Version) {
			continue
		}
		if best == nil || key.Version.Compare(best.Version) > 0 {
			k := key
			best = &k
		}
	}
	if best == nil {
		return toolchain.Key{}, fmt.Errorf("%w: no installed toolchain matches %s-%s", toolchain.ErrNotInstalled, spec.Kind, spec)
	}
	return *best, nil
}

// bind writes a scope binding under the settings lock. The settings
// store is only ever written after the install it records has succeeded.
func (m *Manager) bind(ctx context.Context, scope string, spec channel.Spec) error {
	unlock, err := m.lockSettings(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return m.Settings.Set(scope, spec)
}

func (m *Manager) unbind(ctx context.Context, scope string) error {
	unlock, err := m.lockSettings(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return m.Settings.Remove(scope)
}

func (m *Manager) lockSettings(ctx context.Context) (func(), error) {
	timeout := m.LockTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return lockfile.Acquire(lockCtx, m.Settings.Path())
}

func requestedOrExact(spec *channel.Spec, release index.Release, floating bool) channel.Spec {
	if floating && spec != nil && !spec.FullyQualified() {
		return *spec
	}
	base := channel.Spec{Kind: release.Kind}
	if spec != nil {
		base = *spec
	}
	return base.Exact(release.Version)
}

func (m *Manager) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}
