package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gobeaver/storekit"
)

type findOptions struct {
	pattern   string
	maxDepth  int
	filesOnly bool
	long      bool
	human     bool
}

func newFindCmd(opts *globalOptions) *cobra.Command {
	fo := &findOptions{}

	cmd := &cobra.Command{
		Use:   "find [path]",
		Short: "Search a directory tree",
		Long: `Find walks a directory tree one level at a time and prints the entries
that match. A --name pattern without "/" matches entry names; with "/" it
matches the full path, and "**" crosses directories.

Examples:
  storekit find --name '*.log' logs/
  storekit find --name 'photos/**/*.{jpg,png}' --files
  storekit find --max-depth 1 -l backups/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = storekit.EnsureDir(args[0])
			}

			sel, err := fo.selector(dir)
			if err != nil {
				return err
			}

			op, _, err := newOperator(opts)
			if err != nil {
				return err
			}
			defer op.Close()

			ctx, cancel := signalContext()
			defer cancel()

			entries, err := op.Find(ctx, dir, sel)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !fo.long {
				for _, e := range entries {
					fmt.Fprintln(out, e.Path)
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, e := range entries {
				printLongEntry(tw, e, fo.human)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&fo.pattern, "name", "", "Glob pattern entries must match")
	cmd.Flags().IntVar(&fo.maxDepth, "max-depth", 0, "Descend at most this many levels (0 for no limit)")
	cmd.Flags().BoolVarP(&fo.filesOnly, "files", "f", false, "Print files only")
	cmd.Flags().BoolVarP(&fo.long, "long", "l", false, "Use long listing format")
	cmd.Flags().BoolVarP(&fo.human, "human-readable", "H", false, "Print sizes in human-readable format")
	return cmd
}

// selector combines the enabled filters.
func (fo *findOptions) selector(dir string) (storekit.Selector, error) {
	var selectors []storekit.Selector
	if fo.pattern != "" {
		g, err := storekit.Glob(fo.pattern)
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, g)
	}
	if fo.maxDepth > 0 {
		selectors = append(selectors, storekit.Depth(fo.maxDepth, dir))
	}
	if fo.filesOnly {
		selectors = append(selectors, storekit.Files())
	}
	if len(selectors) == 0 {
		return storekit.All(), nil
	}
	return storekit.And(selectors...), nil
}
