package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pyforge/internal/config"
	"pyforge/internal/home"
	"pyforge/internal/index"
	"pyforge/internal/logx"
	"pyforge/internal/manager"
	"pyforge/internal/platform"
	"pyforge/internal/settings"
	"pyforge/internal/toolchain"
	"pyforge/internal/workspace"
)

var (
	projectDir string
	outputJSON bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pyforge",
		Short: "Python project and toolchain manager",
	}

	cmd.PersistentFlags().StringVar(&projectDir, "project", "", "Path to project directory")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newToolchainCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// workingDir resolves the directory commands operate from: the --project
// flag when given, the process working directory otherwise.
func workingDir() (string, error) {
	if projectDir != "" {
		abs, err := filepath.Abs(projectDir)
		if err != nil {
			return "", fmt.Errorf("resolve project dir: %w", err)
		}
		return abs, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return dir, nil
}

// buildManager assembles the engine from the home directory layout and
// tool configuration. The returned closer flushes the invocation log.
func buildManager() (*manager.Manager, io.Closer, error) {
	configPath, err := home.ConfigFile()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, closer, err := logx.New()
	if err != nil {
		// Logging is best-effort; a read-only home still works.
		logger = logx.Discard()
		closer = nil
	}

	current, err := platform.Current()
	if err != nil {
		return nil, nil, err
	}

	settingsPath, err := home.SettingsFile()
	if err != nil {
		return nil, nil, err
	}
	toolchainsDir, err := home.ToolchainsDir()
	if err != nil {
		return nil, nil, err
	}
	cacheDir, err := home.CacheDir()
	if err != nil {
		return nil, nil, err
	}
	stagingDir, err := home.StagingDir()
	if err != nil {
		return nil, nil, err
	}

	client := index.NewClient(index.ClientOptions{
		Timeout:    cfg.NetworkTimeout,
		MaxRetries: cfg.MaxRetries,
	})

	mgr := &manager.Manager{
		Settings: settings.NewStore(settingsPath),
		Index:    index.New(client, cfg.IndexURL, cacheDir),
		Installer: &toolchain.Installer{
			Client:      client,
			Root:        toolchainsDir,
			Staging:     stagingDir,
			LockTimeout: cfg.LockTimeout,
			Logger:      logger,
		},
		Platform:    current,
		Markers:     workspace.DefaultMarkers,
		LockTimeout: cfg.LockTimeout,
		Logger:      logger,
	}
	return mgr, closer, nil
}

func logClose(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
