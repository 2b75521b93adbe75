// Package cli implements the storekit command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gobeaver/storekit"

	// Register every driver with the factory.
	_ "github.com/gobeaver/storekit/driver/azure"
	_ "github.com/gobeaver/storekit/driver/consul"
	_ "github.com/gobeaver/storekit/driver/gcs"
	_ "github.com/gobeaver/storekit/driver/local"
	_ "github.com/gobeaver/storekit/driver/memory"
	_ "github.com/gobeaver/storekit/driver/s3"
	_ "github.com/gobeaver/storekit/driver/sftp"
	_ "github.com/gobeaver/storekit/driver/sqlite"
	_ "github.com/gobeaver/storekit/driver/zip"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	driver     string
	verbose    bool
	noSanity   bool
	readOnly   bool
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "storekit",
		Short: "Inspect and edit files on any storekit backend",
		Long: `Storekit talks to local disks, object stores, SFTP servers, Consul KV,
SQLite and ZIP archives through one accessor interface.

Settings come from BEAVER_STOREKIT_* environment variables, optionally
overlaid by a YAML, JSON or TOML file passed with --config.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Configuration file overlaid on environment settings")
	flags.StringVarP(&opts.driver, "driver", "d", "", "Storage driver, overriding the configuration")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose debug logging")
	flags.BoolVar(&opts.noSanity, "no-sanity-check", false, "Disable validation of backend responses")
	flags.BoolVar(&opts.readOnly, "read-only", false, "Refuse every mutating operation")

	rootCmd.AddCommand(
		newStatCmd(opts),
		newListCmd(opts),
		newFindCmd(opts),
		newCatCmd(opts),
		newPutCmd(opts),
		newRemoveCmd(opts),
		newPresignCmd(opts),
		newDriversCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// loadConfig reads the environment, overlays the config file and applies
// flag overrides.
func loadConfig(opts *globalOptions) (*storekit.Config, error) {
	cfg, err := storekit.GetConfig()
	if err != nil {
		return nil, err
	}

	if opts.configFile != "" {
		v := viper.New()
		v.SetConfigFile(opts.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, storekit.NewError(storekit.KindConfigInvalid, "failed to read config file").
				WithContext("path", opts.configFile).
				WithSource(err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, storekit.NewError(storekit.KindConfigInvalid, "failed to decode config file").
				WithContext("path", opts.configFile).
				WithSource(err)
		}
	}

	if opts.driver != "" {
		cfg.Driver = opts.driver
	}
	if opts.noSanity {
		cfg.SanityCheck = false
	}
	if opts.readOnly {
		cfg.ReadOnly = true
	}
	if opts.verbose {
		cfg.LogEnabled = true
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newOperator creates an operator from the resolved configuration.
func newOperator(opts *globalOptions) (*storekit.Operator, *storekit.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	op, err := storekit.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return op, cfg, nil
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// formatError converts storekit errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	kind, _ := storekit.KindOf(err)
	switch {
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	case storekit.IsNotExist(err):
		return fmt.Sprintf("Error: not found: %v", err)
	case storekit.IsPermission(err):
		return fmt.Sprintf("Error: permission denied: %v", err)
	case storekit.IsReadOnlyError(err):
		return "Error: storage is read-only"
	case storekit.IsNotSupported(err):
		return fmt.Sprintf("Error: operation not supported by this backend: %v", err)
	case kind == storekit.KindConfigInvalid:
		return fmt.Sprintf("Error: invalid configuration: %v", err)
	case storekit.IsUnexpected(err):
		return fmt.Sprintf("Error: backend returned malformed metadata: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
