package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPresignCmd(opts *globalOptions) *cobra.Command {
	var (
		write   bool
		expires time.Duration
	)

	cmd := &cobra.Command{
		Use:   "presign <path>",
		Short: "Print a presigned URL",
		Long: `Presign prints a URL granting temporary access to path without credentials.

Only backends that support presigning (s3, gcs, azure) can serve it. The
default lifetime comes from presign_expiry_seconds.

Examples:
  storekit presign downloads/app.tar.gz
  storekit presign --write --expires 10m uploads/incoming.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, cfg, err := newOperator(opts)
			if err != nil {
				return err
			}
			defer op.Close()

			ctx, cancel := signalContext()
			defer cancel()

			ttl := expires
			if ttl <= 0 {
				ttl = cfg.PresignExpiry()
			}

			var url string
			if write {
				url, err = op.PresignWrite(ctx, args[0], ttl)
			} else {
				url, err = op.PresignRead(ctx, args[0], ttl)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Sign an upload URL instead of a download URL")
	cmd.Flags().DurationVar(&expires, "expires", 0, "URL lifetime (defaults to the configured expiry)")
	return cmd
}
