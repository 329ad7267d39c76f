package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tailor/internal/config"
	"tailor/internal/services"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigShowCommand(ctx),
		newConfigValidateCommand(ctx),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return services.Wrap(services.ErrConflict, "", "config init",
						fmt.Sprintf("%s already exists; pass --overwrite to replace it", target), nil)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Point paths.workspace_root at the directory your agent reads, then run `tailor start`.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Where to write the configuration (default: user config dir)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveInitTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(raw)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after defaults and overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.emit(cmd, cfg, func(w io.Writer) error {
				rendered, err := cfg.Render()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "# effective configuration from %s\n%s", ctx.configPath, rendered)
				return err
			})
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and create its directories",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var explicit string
			if ctx.configFlag != nil {
				explicit = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(explicit)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "", "load config", resolved, err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return services.Wrap(services.ErrConfiguration, "", "ensure directories", "", err)
			}

			source := resolved
			if !exists {
				source += " (not found, defaults used)"
			}
			w := cmd.OutOrStdout()
			fmt.Fprint(w, renderDetails([][2]string{
				{"Config", source},
				{"Workspace", cfg.Paths.WorkspaceRoot},
				{"Database", cfg.DatabasePath()},
				{"Socket", cfg.SocketPath()},
				{"Logs", cfg.Paths.LogDir},
			}))
			fmt.Fprintln(w, "Configuration valid")
			return nil
		},
	}
}
