package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. This is
// called by the main package with values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the wheelhouse CLI and returns an error if any command fails.
// The context controls cancellation of long-running commands (Ctrl-C).
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var (
		verbose    bool
		configPath string
	)
	cfg := defaultConfig()

	root := &cobra.Command{
		Use:          "wheelhouse",
		Short:        "Wheelhouse resolves PyPI dependency graphs without installing",
		Long:         `Wheelhouse walks the transitive dependencies of a PyPI package by reading wheel and sdist metadata straight from the index, and shows the result as a tree, JSON, or a rendered graph.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)

			loaded, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("wheelhouse %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/wheelhouse/config.toml)")

	root.AddCommand(newDepsCmd(cfg))
	root.AddCommand(newVersionsCmd(cfg))
	root.AddCommand(newCacheCmd(cfg))
	root.AddCommand(newServeCmd(cfg))

	return root.ExecuteContext(ctx)
}
