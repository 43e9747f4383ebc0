package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"pyforge/internal/manager"
	"pyforge/internal/platform"
	"pyforge/internal/tui"
)

var (
	installFloating bool
	installTarget   string
	listFetch       bool
	infoFetch       bool
)

var installStages = []string{"download", "verify", "extract", "publish"}

func newToolchainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Manage interpreter toolchains",
	}

	cmd.AddCommand(newToolchainInstallCmd())
	cmd.AddCommand(newToolchainUseCmd())
	cmd.AddCommand(newToolchainUpdateCmd())
	cmd.AddCommand(newToolchainUninstallCmd())
	cmd.AddCommand(newToolchainListCmd())
	cmd.AddCommand(newToolchainInfoCmd())
	cmd.AddCommand(newToolchainFetchCmd())

	return cmd
}

func newToolchainInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [channel]",
		Short: "Install a toolchain and bind it to the current scope",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolveInstall(cmd, args, func(ctx context.Context, mgr *manager.Manager, req manager.Request) (manager.Result, error) {
				return mgr.Install(ctx, req)
			})
		},
	}
	cmd.Flags().BoolVar(&installFloating, "floating", false, "Bind the partial request instead of the resolved version")
	cmd.Flags().StringVar(&installTarget, "target", "", "Cross-install for another platform (os-arch)")
	return cmd
}

func newToolchainUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use [channel]",
		Short: "Bind the current scope to a channel, installing if missing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolveInstall(cmd, args, func(ctx context.Context, mgr *manager.Manager, req manager.Request) (manager.Result, error) {
				return mgr.Use(ctx, req)
			})
		},
	}
	cmd.Flags().BoolVar(&installFloating, "floating", false, "Bind the partial request instead of the resolved version")
	return cmd
}

func runResolveInstall(cmd *cobra.Command, args []string, op func(context.Context, *manager.Manager, manager.Request) (manager.Result, error)) error {
	mgr, closer, err := buildManager()
	if err != nil {
		return err
	}
	defer logClose(closer)

	dir, err := workingDir()
	if err != nil {
		return err
	}

	req := manager.Request{Dir: dir, Floating: installFloating}
	if len(args) == 1 {
		req.Channel = args[0]
	}
	if installTarget != "" {
		target, err := platform.Parse(installTarget)
		if err != nil {
			return err
		}
		req.Target = &target
	}

	var result manager.Result
	if isatty.IsTerminal(os.Stdout.Fd()) && !outputJSON {
		err = tui.RunInstall("Resolving toolchain", installStages, func(report func(string)) error {
			mgr.Installer.Progress = report
			var opErr error
			result, opErr = op(cmd.Context(), mgr, req)
			return opErr
		})
	} else {
		result, err = op(cmd.Context(), mgr, req)
	}
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd, installReport(result))
	}
	cmd.Printf("installed %s at %s\n", result.Installed.Key.CanonicalName(), result.Installed.Path)
	if result.Bound.Kind != "" {
		cmd.Printf("scope %s bound to %s (from %s)\n", result.Scope, result.Bound, result.Source)
	}
	return nil
}

func newToolchainUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Re-resolve a floating channel against a fresh release index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, closer, err := buildManager()
			if err != nil {
				return err
			}
			defer logClose(closer)

			dir, err := workingDir()
			if err != nil {
				return err
			}

			result, updated, err := mgr.Update(cmd.Context(), manager.Request{Dir: dir})
			if err != nil {
				return err
			}
			if !updated {
				cmd.Println("nothing to update")
				return nil
			}
			cmd.Printf("updated %s to %s\n", result.Scope, result.Installed.Key.CanonicalName())
			return nil
		},
	}
}

func newToolchainUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall [channel]",
		Short: "Remove an installed toolchain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closer, err := buildManager()
			if err != nil {
				return err
			}
			defer logClose(closer)

			dir, err := workingDir()
			if err != nil {
				return err
			}

			req := manager.Request{Dir: dir}
			if len(args) == 1 {
				req.Channel = args[0]
			}

			key, err := mgr.Uninstall(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("uninstalled %s\n", key.CanonicalName())
			return nil
		},
	}
}

func newToolchainListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed toolchains and scope bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, closer, err := buildManager()
			if err != nil {
				return err
			}
			defer logClose(closer)

			installed, bindings, err := mgr.List(cmd.Context(), listFetch)
			if err != nil {
				return err
			}

			if outputJSON {
				type entry struct {
					Name  string            `json:"name"`
					Path  string            `json:"path"`
					Tools map[string]string `json:"tools"`
				}
				report := struct {
					Installed []entry           `json:"installed"`
					Bindings  map[string]string `json:"bindings"`
				}{Bindings: map[string]string{}}
				for _, inst := range installed {
					report.Installed = append(report.Installed, entry{
						Name:  inst.Key.CanonicalName(),
						Path:  inst.Path,
						Tools: inst.Tools,
					})
				}
				for scope, spec := range bindings {
					report.Bindings[scope] = spec.String()
				}
				return printJSON(cmd, report)
			}

			if len(installed) == 0 {
				cmd.Println("no toolchains installed")
			}
			for _, inst := range installed {
				cmd.Printf("%s\t%s\n", inst.Key.CanonicalName(), inst.Path)
			}
			if len(bindings) > 0 {
				cmd.Println()
				scopes := make([]string, 0, len(bindings))
				for scope := range bindings {
					scopes = append(scopes, scope)
				}
				sort.Strings(scopes)
				for _, scope := range scopes {
					cmd.Printf("%s -> %s\n", scope, bindings[scope])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&listFetch, "fetch", false, "Refresh the release index first")
	return cmd
}

func newToolchainInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show how the current scope resolves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, closer, err := buildManager()
			if err != nil {
				return err
			}
			defer logClose(closer)

			dir, err := workingDir()
			if err != nil {
				return err
			}

			info, err := mgr.Describe(cmd.Context(), manager.Request{Dir: dir}, infoFetch)
			if err != nil {
				return err
			}

			if outputJSON {
				report := map[string]any{
					"scope":  info.Scope,
					"source": info.Source,
				}
				if info.Channel != nil {
					report["channel"] = info.Channel.String()
				}
				if info.Workspace != nil {
					report["root"] = info.Workspace.Root
					report["members"] = info.Workspace.Members
				}
				if info.Installed != nil {
					report["installed"] = info.Installed.Path
				}
				return printJSON(cmd, report)
			}

			cmd.Printf("scope: %s\n", info.Scope)
			if info.Workspace != nil && len(info.Workspace.Members) > 0 {
				cmd.Printf("members: %d\n", len(info.Workspace.Members))
			}
			if info.Channel != nil {
				cmd.Printf("channel: %s (from %s)\n", info.Channel, info.Source)
			} else {
				cmd.Printf("channel: latest (no binding)\n")
			}
			if info.Installed != nil {
				cmd.Printf("installed: %s\n", info.Installed.Path)
			} else {
				cmd.Println("installed: no")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&infoFetch, "fetch", false, "Refresh the release index first")
	return cmd
}

func newToolchainFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Refresh the cached release index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, closer, err := buildManager()
			if err != nil {
				return err
			}
			defer logClose(closer)

			if err := mgr.Index.Fetch(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("release index refreshed")
			return nil
		},
	}
}

func installReport(result manager.Result) map[string]any {
	report := map[string]any{
		"name":  result.Installed.Key.CanonicalName(),
		"path":  result.Installed.Path,
		"tools": result.Installed.Tools,
		"scope": result.Scope,
	}
	if result.Bound.Kind != "" {
		report["channel"] = result.Bound.String()
		report["source"] = result.Source
	}
	return report
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
