package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gobeaver/storekit"
)

func newStatCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show metadata of a file or directory",
		Long: `Stat prints the metadata the backend reports for a path.

Paths ending with "/" name directories.

Examples:
  storekit stat reports/2024.csv
  storekit stat --driver memory photos/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, _, err := newOperator(opts)
			if err != nil {
				return err
			}
			defer op.Close()

			ctx, cancel := signalContext()
			defer cancel()

			meta, err := op.Stat(ctx, args[0])
			if err != nil {
				return err
			}
			printMetadata(cmd.OutOrStdout(), args[0], meta)
			return nil
		},
	}
}

// printMetadata prints one "field: value" line per populated field.
func printMetadata(w io.Writer, path string, meta *storekit.Metadata) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Path:\t%s\n", path)
	fmt.Fprintf(tw, "Mode:\t%s\n", meta.Mode)
	if meta.IsDir() {
		return
	}
	fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", humanize.IBytes(uint64(max(meta.ContentLength, 0))), meta.ContentLength)
	if meta.ContentType != "" {
		fmt.Fprintf(tw, "Content-Type:\t%s\n", meta.ContentType)
	}
	if meta.ETag != "" {
		fmt.Fprintf(tw, "ETag:\t%s\n", meta.ETag)
	}
	if meta.Version != "" {
		fmt.Fprintf(tw, "Version:\t%s\n", meta.Version)
	}
	if !meta.LastModified.IsZero() {
		fmt.Fprintf(tw, "Modified:\t%s (%s)\n", meta.LastModified.Format(time.RFC3339), humanize.Time(meta.LastModified))
	}

	keys := make([]string, 0, len(meta.UserMetadata))
	for k := range meta.UserMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "Meta %s:\t%s\n", k, meta.UserMetadata[k])
	}
}
