package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gobeaver/storekit"
)

func newPutCmd(opts *globalOptions) *cobra.Command {
	var (
		contentType string
		ifNotExists bool
		progress    bool
	)

	cmd := &cobra.Command{
		Use:   "put <path> [file]",
		Short: "Upload a file",
		Long: `Put writes a local file, or standard input when no file is given, to path.

Examples:
  storekit put reports/2024.csv ./2024.csv
  echo hello | storekit put greetings/hello.txt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			size := int64(-1)
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				if fi, err := f.Stat(); err == nil {
					size = fi.Size()
				}
				src = f
			}

			op, _, err := newOperator(opts)
			if err != nil {
				return err
			}
			defer op.Close()

			ctx, cancel := signalContext()
			defer cancel()

			uploadOpts := &storekit.UploadOptions{
				ContentType: contentType,
				IfNotExists: ifNotExists,
			}
			if progress {
				uploadOpts.Progress = printProgress(cmd.ErrOrStderr())
				uploadOpts.ReportEvery = 1 << 20
			}

			res, err := op.Upload(ctx, args[0], src, size, uploadOpts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s to %s\n", humanize.IBytes(uint64(max(res.BytesWritten, 0))), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type to store with the file (guessed when empty)")
	cmd.Flags().BoolVar(&ifNotExists, "if-not-exists", false, "Fail when the path already exists")
	cmd.Flags().BoolVarP(&progress, "progress", "p", false, "Report upload progress on stderr")
	return cmd
}

// printProgress returns a progress callback that rewrites one line on w.
func printProgress(w io.Writer) storekit.ProgressFunc {
	return func(done, total int64) {
		if total < 0 {
			fmt.Fprintf(w, "\r%s", humanize.IBytes(uint64(done)))
			return
		}
		fmt.Fprintf(w, "\r%s / %s", humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
		if done >= total {
			fmt.Fprintln(w)
		}
	}
}
