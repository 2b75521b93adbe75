package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/gobeaver/storekit"
)

func newCatCmd(opts *globalOptions) *cobra.Command {
	var offset, length int64

	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Output a file",
		Long: `Cat streams the content of a file to standard output.

Examples:
  storekit cat config/app.yaml
  storekit cat --offset 1024 --length 512 logs/app.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, _, err := newOperator(opts)
			if err != nil {
				return err
			}
			defer op.Close()

			ctx, cancel := signalContext()
			defer cancel()

			var readOpts []storekit.ReadOption
			if offset > 0 || length >= 0 {
				readOpts = append(readOpts, storekit.WithRange(offset, length))
			}

			rc, err := op.Read(ctx, args[0], readOpts...)
			if err != nil {
				return err
			}
			defer rc.Close()

			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "Byte offset to start reading at")
	cmd.Flags().Int64Var(&length, "length", -1, "Number of bytes to read (-1 reads to the end)")
	return cmd
}
