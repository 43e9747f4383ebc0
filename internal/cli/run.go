package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"pyforge/internal/manager"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <tool> [args...]",
		Short: "Run a tool from the scope's toolchain",
		Long: "Resolves the toolchain for the current scope (installing it if " +
			"missing) and runs the named tool with the toolchain's bin " +
			"directory prepended to PATH.",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: false,
		RunE:               runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	mgr, closer, err := buildManager()
	if err != nil {
		return err
	}
	defer logClose(closer)

	dir, err := workingDir()
	if err != nil {
		return err
	}

	result, err := mgr.Use(cmd.Context(), manager.Request{Dir: dir})
	if err != nil {
		return err
	}

	toolName := args[0]
	toolPath, ok := result.Installed.Tools[toolName]
	if !ok {
		return fmt.Errorf("tool %q is not part of toolchain %s", toolName, result.Installed.Key.CanonicalName())
	}

	run := exec.CommandContext(cmd.Context(), toolPath, args[1:]...)
	run.Stdin = os.Stdin
	run.Stdout = os.Stdout
	run.Stderr = os.Stderr
	run.Dir = dir
	run.Env = append(os.Environ(), "PATH="+filepath.Dir(toolPath)+string(os.PathListSeparator)+os.Getenv("PATH"))

	if err := run.Run(); err != nil {
		return fmt.Errorf("run %s: %w", toolName, err)
	}
	return nil
}
