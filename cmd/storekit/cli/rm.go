package cli

import (
	"github.com/spf13/cobra"
)

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or directory",
		Long: `Rm deletes a file, or an empty directory when path ends with "/".

With -r every descendant of the directory is removed first.

Examples:
  storekit rm tmp/report.csv
  storekit rm -r tmp/`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			op, _, err := newOperator(opts)
			if err != nil {
				return err
			}
			defer op.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if recursive {
				return op.RemoveAll(ctx, args[0])
			}
			return op.Delete(ctx, args[0])
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Remove directories and their contents")
	return cmd
}
