package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"pyforge/internal/index"
	"pyforge/internal/lockfile"
)

// Installer materializes releases under the toolchains root. Staging must
// live on the same filesystem as Root so the final rename is atomic: an
// interrupted install leaves nothing at the canonical path.
type Installer struct {
	Client      *index.Client
	Root        string
	Staging     string
	LockTimeout time.Duration
	Logger      *log.Logger

	// Progress, when set, receives coarse stage updates (download,
	// verify, extract, publish) for display purposes.
	Progress func(stage string)
}

// Install downloads, verifies, extracts, and atomically publishes a
// release. Idempotent: an existing canonical directory that passes the
// shape check is returned as-is with no network access. Within one
// install, checksum verification strictly precedes extraction, and
// extraction strictly precedes the publish rename.
func (inst *Installer) Install(ctx context.Context, release index.Release) (Installed, error) {
	key := KeyFor(release)
	dest := filepath.Join(inst.Root, key.CanonicalName())

	if installed, ok := Inspect(inst.Root, key); ok {
		inst.logf("toolchain %s already installed at %s", key.CanonicalName(), dest)
		return installed, nil
	}

	unlock, err := inst.lock(ctx, dest)
	if err != nil {
		return Installed{}, err
	}
	defer unlock()

	// Another invocation may have finished while we waited on the lock.
	if installed, ok := Inspect(inst.Root, key); ok {
		return installed, nil
	}

	format, err := formatFromURL(release.URL)
	if err != nil {
		return Installed{}, err
	}

	inst.step("download")
	archivePath, err := inst.download(ctx, release)
	if err != nil {
		return Installed{}, err
	}
	defer func() { _ = os.Remove(archivePath) }()

	inst.step("verify")
	if err := verifyChecksum(archivePath, release); err != nil {
		return Installed{}, err
	}

	inst.step("extract")
	extractDir, err := os.MkdirTemp(inst.Staging, key.CanonicalName()+"-extract-")
	if err != nil {
		return Installed{}, fmt.Errorf("create extract dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(extractDir) }()

	if err := extractArchive(format, archivePath, extractDir); err != nil {
		return Installed{}, err
	}

	root, err := contentRoot(extractDir)
	if err != nil {
		return Installed{}, err
	}

	// The shape check runs against the staged tree so a bad archive
	// never reaches the canonical path.
	if _, err := locateTools(root, release.Platform); err != nil {
		return Installed{}, err
	}

	inst.step("publish")
	if err := os.MkdirAll(inst.Root, 0o755); err != nil {
		return Installed{}, fmt.Errorf("prepare toolchains dir: %w", err)
	}
	if err := os.Rename(root, dest); err != nil {
		return Installed{}, fmt.Errorf("publish toolchain: %w", err)
	}

	tools, err := locateTools(dest, release.Platform)
	if err != nil {
		return Installed{}, err
	}

	inst.logf("installed %s at %s", key.CanonicalName(), dest)
	return Installed{Key: key, Path: dest, Tools: tools}, nil
}

// Uninstall removes a toolchain's canonical directory. Removal is not
// atomic; a failure mid-delete is recoverable by rerunning uninstall or
// install (the next install republishes cleanly).
func (inst *Installer) Uninstall(ctx context.Context, key Key) error {
	dest := filepath.Join(inst.Root, key.CanonicalName())

	if _, err := os.Stat(dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotInstalled, key.CanonicalName())
		}
		return fmt.Errorf("stat toolchain: %w", err)
	}

	unlock, err := inst.lock(ctx, dest)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("remove toolchain %s: %w", key.CanonicalName(), err)
	}
	inst.logf("uninstalled %s", key.CanonicalName())
	return nil
}

// download streams the release archive into a staging temp file and
// returns its path. Nothing is written anywhere near the canonical path.
func (inst *Installer) download(ctx context.Context, release index.Release) (string, error) {
	if err := os.MkdirAll(inst.Staging, 0o755); err != nil {
		return "", fmt.Errorf("prepare staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(inst.Staging, "download-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := inst.Client.Download(ctx, release.URL, tmp); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	return tmpPath, nil
}

// lock serializes install/uninstall per canonical directory across
// processes. Acquisition blocks up to LockTimeout.
func (inst *Installer) lock(ctx context.Context, dest string) (func(), error) {
	timeout := inst.LockTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	unlock, err := lockfile.Acquire(lockCtx, dest)
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

func (inst *Installer) step(stage string) {
	if inst.Progress != nil {
		inst.Progress(stage)
	}
	inst.logf("install stage: %s", stage)
}

func (inst *Installer) logf(format string, args ...any) {
	if inst.Logger != nil {
		inst.Logger.Printf(format, args...)
	}
}
