package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gobeaver/storekit"
)

type listOptions struct {
	recursive bool
	long      bool
	human     bool
	limit     int
}

func newListCmd(opts *globalOptions) *cobra.Command {
	lo := &listOptions{}

	cmd := &cobra.Command{
		Use:     "ls [path]",
		Aliases: []string{"list"},
		Short:   "List a directory",
		Long: `Ls lists the entries of a directory, streaming them as the backend returns
pages. Directories are printed with a trailing "/".

Examples:
  storekit ls
  storekit ls -r photos/
  storekit ls -lH backups/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = storekit.EnsureDir(args[0])
			}

			op, _, err := newOperator(opts)
			if err != nil {
				return err
			}
			defer op.Close()

			ctx, cancel := signalContext()
			defer cancel()

			listOpts := []storekit.ListOption{storekit.WithRecursive(lo.recursive)}
			if lo.limit > 0 {
				listOpts = append(listOpts, storekit.WithLimit(lo.limit))
			}
			lister, err := op.List(ctx, dir, listOpts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !lo.long {
				for {
					entry, err := lister.Next(ctx)
					if err != nil {
						return err
					}
					if entry == nil {
						return nil
					}
					fmt.Fprintln(out, entry.Path)
				}
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer tw.Flush()
			for {
				entry, err := lister.Next(ctx)
				if err != nil {
					return err
				}
				if entry == nil {
					return nil
				}
				printLongEntry(tw, entry, lo.human)
			}
		},
	}

	cmd.Flags().BoolVarP(&lo.recursive, "recursive", "r", false, "List all descendants")
	cmd.Flags().BoolVarP(&lo.long, "long", "l", false, "Use long listing format")
	cmd.Flags().BoolVarP(&lo.human, "human-readable", "H", false, "Print sizes in human-readable format")
	cmd.Flags().IntVar(&lo.limit, "page-size", 0, "Entries requested per backend page")
	return cmd
}

// printLongEntry prints mode, size, modification time and path.
func printLongEntry(w io.Writer, entry *storekit.Entry, human bool) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		formatMode(entry.Mode()),
		formatSize(entry, human),
		formatTime(entry),
		entry.Path)
}

func formatMode(mode storekit.EntryMode) string {
	switch mode {
	case storekit.ModeDir:
		return "d"
	case storekit.ModeFile:
		return "-"
	default:
		return "?"
	}
}

// formatSize formats file size for display.
func formatSize(entry *storekit.Entry, human bool) string {
	if entry.Mode() != storekit.ModeFile {
		return "-"
	}
	size := entry.Metadata.ContentLength
	if human {
		return humanize.IBytes(uint64(max(size, 0)))
	}
	return strconv.FormatInt(size, 10)
}

func formatTime(entry *storekit.Entry) string {
	if entry.Metadata == nil || entry.Metadata.LastModified.IsZero() {
		return "-"
	}
	return entry.Metadata.LastModified.Local().Format(time.DateTime)
}
