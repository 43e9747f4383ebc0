package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pyforge/internal/manifest"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create a new project manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := resolveInitDir(projectDir, args)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	name := filepath.Base(dir)
	if err := manifest.Init(dir, name); err != nil {
		return err
	}

	cmd.Printf("initialized project %s in %s\n", name, dir)
	return nil
}

// resolveInitDir picks the target directory: the --project flag wins,
// then a path argument, then the working directory.
func resolveInitDir(flag string, args []string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if len(args) == 1 && args[0] != "." {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		if filepath.IsAbs(args[0]) {
			return filepath.Clean(args[0]), nil
		}
		return filepath.Join(cwd, args[0]), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return cwd, nil
}
