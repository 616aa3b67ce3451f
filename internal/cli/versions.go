package cli

import (
	"fmt"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/wheelhouse-dev/wheelhouse/pkg/pypi"
)

// newVersionsCmd creates the "versions" command: list a package's published
// releases, newest first.
func newVersionsCmd(cfg *Config) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "versions <package>",
		Short: "List the published versions of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			backend, err := cfg.openCache(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			var index *pypi.Client
			if cfg.IndexURL != "" {
				index = pypi.NewClientWithBaseURL(backend, cfg.cacheTTL(), cfg.IndexURL)
			} else {
				index = pypi.NewClient(backend, cfg.cacheTTL())
			}

			spin := newSpinnerWithContext(ctx, "Fetching "+args[0])
			spin.Start()
			pkg, err := index.FetchPackage(ctx, args[0], refresh)
			spin.Stop()
			if err != nil {
				return err
			}

			type entry struct {
				raw    string
				parsed *goversion.Version
			}
			var parsed, odd []entry
			for raw := range pkg.Releases {
				if v, err := goversion.NewVersion(raw); err == nil {
					parsed = append(parsed, entry{raw, v})
				} else {
					odd = append(odd, entry{raw: raw})
				}
			}
			sort.Slice(parsed, func(i, j int) bool { return parsed[j].parsed.LessThan(parsed[i].parsed) })
			sort.Slice(odd, func(i, j int) bool { return odd[i].raw < odd[j].raw })

			fmt.Fprintln(cmd.OutOrStdout(), StyleTitle.Render(pkg.Name))
			for _, e := range append(parsed, odd...) {
				rel := pkg.Releases[e.raw]
				var kinds []string
				for _, f := range rel.Files {
					switch f.FileType {
					case pypi.Wheel:
						kinds = append(kinds, "whl")
					case pypi.SDist:
						kinds = append(kinds, "sdist")
					}
				}
				line := "  " + StyleHighlight.Render(e.raw)
				if len(kinds) > 0 {
					line += " " + StyleDim.Render("("+strings.Join(uniq(kinds), ", ")+")")
				} else {
					line += " " + StyleWarning.Render("(no files)")
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the index response cache")
	return cmd
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
