package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-dev/wheelhouse/pkg/cache"
	"github.com/wheelhouse-dev/wheelhouse/pkg/deps"
	"github.com/wheelhouse-dev/wheelhouse/pkg/pypi"
	"github.com/wheelhouse-dev/wheelhouse/pkg/render"
)

// resolver bundles the pieces a dependency walk needs. Close releases the
// cache backend.
type resolver struct {
	walker  *deps.Walker
	index   *pypi.Client
	backend cache.Cache
}

func (r *resolver) Close() {
	_ = r.backend.Close()
}

// newResolver wires the configured cache backend, index client, and
// artifact store into a walker.
func newResolver(ctx context.Context, cfg *Config, opts deps.Options) (*resolver, error) {
	backend, err := cfg.openCache(ctx)
	if err != nil {
		return nil, err
	}

	var index *pypi.Client
	if cfg.IndexURL != "" {
		index = pypi.NewClientWithBaseURL(backend, cfg.cacheTTL(), cfg.IndexURL)
	} else {
		index = pypi.NewClient(backend, cfg.cacheTTL())
	}

	dir, err := cfg.cacheDir()
	if err != nil {
		backend.Close()
		return nil, err
	}
	store, err := cache.NewArtifacts(filepath.Join(dir, "artifacts"))
	if err != nil {
		backend.Close()
		return nil, err
	}

	if opts.PythonVersion == "" {
		opts.PythonVersion = cfg.PythonVersion
	}
	if opts.Workers == 0 {
		opts.Workers = cfg.Workers
	}
	if opts.Environment == nil {
		env, err := cfg.buildEnvironment(opts.PythonVersion)
		if err != nil {
			backend.Close()
			return nil, err
		}
		opts.Environment = env
	}

	return &resolver{
		walker:  deps.NewWalker(index, store, opts),
		index:   index,
		backend: backend,
	}, nil
}

// newDepsCmd creates the "deps" command: resolve a requirement and print its
// dependency graph.
func newDepsCmd(cfg *Config) *cobra.Command {
	var (
		pythonVersion string
		includeExtras bool
		refresh       bool
		workers       int
		asJSON        bool
		asDOT         bool
		svgPath       string
	)

	cmd := &cobra.Command{
		Use:   "deps <requirement>",
		Short: "Resolve a package's transitive dependency graph",
		Long: `Resolve the transitive dependencies of a PyPI requirement such as
"requests", "requests[socks]", or "flask>=2.0,<3", reading metadata from
wheels and sdists without installing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			logger := loggerFromContext(ctx)

			opts := deps.Options{
				PythonVersion: pythonVersion,
				IncludeExtras: includeExtras,
				Refresh:       refresh,
				Workers:       workers,
				Logger:        logger.Debugf,
			}

			// On a terminal, show live progress while the walk runs.
			var prog *tea.Program
			if isatty.IsTerminal(os.Stderr.Fd()) {
				prog = tea.NewProgram(
					newResolveProgress(fmt.Sprintf("Resolving %s", args[0])),
					tea.WithOutput(os.Stderr),
				)
				opts.OnResolve = func(name, version string) {
					prog.Send(resolvedMsg{label: name + "==" + version})
				}
			}

			res, err := newResolver(ctx, cfg, opts)
			if err != nil {
				return err
			}
			defer res.Close()

			timer := newProgress(logger)
			var (
				root    *deps.DepNode
				walkErr error
			)
			if prog != nil {
				go func() {
					root, walkErr = res.walker.Walk(ctx, args[0])
					prog.Send(walkDoneMsg{err: walkErr})
				}()
				finalModel, err := prog.Run()
				if err != nil {
					return err
				}
				if m, ok := finalModel.(resolveProgress); ok && m.aborted {
					return context.Canceled
				}
			} else {
				root, walkErr = res.walker.Walk(ctx, args[0])
			}
			if walkErr != nil {
				return walkErr
			}

			g := deps.Export(root)
			timer.done(fmt.Sprintf("Resolved %d packages", len(g.Nodes)))

			switch {
			case asJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(g)
			case asDOT:
				fmt.Fprint(cmd.OutOrStdout(), render.ToDOT(root))
				return nil
			case svgPath != "":
				svg, err := render.RenderSVG(render.ToDOT(root))
				if err != nil {
					return err
				}
				if err := os.WriteFile(svgPath, svg, 0o644); err != nil {
					return err
				}
				printSuccess("Wrote %s", svgPath)
				return nil
			default:
				fmt.Fprint(cmd.OutOrStdout(), render.Tree(root))
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&pythonVersion, "python-version", "", "target python version (default from config)")
	cmd.Flags().BoolVar(&includeExtras, "include-extras", false, "follow extra-gated dependencies even when inactive")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the index response cache")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent resolution workers (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the graph as JSON")
	cmd.Flags().BoolVar(&asDOT, "dot", false, "emit the graph as Graphviz DOT")
	cmd.Flags().StringVar(&svgPath, "svg", "", "render the graph to an SVG file")
	cmd.MarkFlagsMutuallyExclusive("json", "dot", "svg")

	return cmd
}
