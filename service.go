package storekit

import (
	"fmt"
	"os"
	"sync"

	"github.com/gobeaver/beaver-kit/config"
)

// Global instance
var (
	defaultOp   *Operator
	defaultOnce sync.Once
	defaultErr  error
)

// Builder provides a way to create Operator instances with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Init initializes the global Operator instance using the builder's prefix
func (b *Builder) Init() error {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return err
	}
	return Init(cfg)
}

// New creates a new Operator instance using the builder's prefix
func (b *Builder) New() (*Operator, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return New(cfg)
}

// Init initializes the global instance
func Init(configs ...*Config) error {
	defaultOnce.Do(func() {
		var cfg *Config
		if len(configs) > 0 {
			cfg = configs[0]
		} else {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}

		defaultOp, defaultErr = New(cfg)
	})

	return defaultErr
}

// New creates the driver named by cfg and stacks the configured layers on
// top of it: sanity check first, then read-only, then logging outermost.
func New(cfg *Config) (*Operator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	acc, err := CreateDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	return NewOperator(acc, Layers(cfg)...), nil
}

// Layers returns the layers enabled by cfg, innermost first.
func Layers(cfg *Config) []Layer {
	var layers []Layer
	if cfg.SanityCheck {
		layers = append(layers, SanityCheckLayer{})
	}
	if cfg.ReadOnly {
		layers = append(layers, ReadOnlyLayer{})
	}
	if cfg.LogEnabled {
		layers = append(layers, LoggingLayer{Logger: NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)})
	}
	return layers
}

func invalidConfig(msg string) error {
	return NewError(KindConfigInvalid, msg)
}

// validateConfig checks configuration validity
func validateConfig(cfg *Config) error {
	if cfg == nil {
		return invalidConfig("config is required")
	}
	if cfg.Driver == "" {
		return invalidConfig("driver is required")
	}

	switch cfg.Driver {
	case "memory":
		if cfg.MemoryMaxSize < 0 {
			return invalidConfig("memory max size must not be negative")
		}
	case "local":
		if cfg.LocalBasePath == "" {
			return invalidConfig("local base path is required for local driver")
		}
	case "s3":
		// Access keys can be provided via IAM roles, so not always required
		if cfg.S3Bucket == "" {
			return invalidConfig("S3 bucket is required for S3 driver")
		}
	case "gcs":
		if cfg.GCSBucket == "" {
			return invalidConfig("GCS bucket is required for GCS driver")
		}
	case "azure":
		if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" || cfg.AzureContainerName == "" {
			return invalidConfig("Azure account name, account key and container name are required for Azure driver")
		}
	case "sftp":
		if cfg.SFTPHost == "" || cfg.SFTPUsername == "" {
			return invalidConfig("SFTP host and username are required for SFTP driver")
		}
		if cfg.SFTPPassword == "" && cfg.SFTPPrivateKey == "" {
			return invalidConfig("SFTP password or private key is required for SFTP driver")
		}
	case "consul":
		if cfg.ConsulAddress == "" {
			return invalidConfig("Consul address is required for Consul driver")
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			return invalidConfig("SQLite path is required for SQLite driver")
		}
	case "zip":
		if cfg.ZipPath == "" {
			return invalidConfig("ZIP path is required for ZIP driver")
		}
	default:
		return NewError(KindConfigInvalid, fmt.Sprintf("unknown driver: %s", cfg.Driver)).
			WithContext("driver", cfg.Driver)
	}

	return nil
}

// Default returns the global instance, initializing if needed with error handling
func Default() (*Operator, error) {
	if defaultOp == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}
	return defaultOp, nil
}

// NewFromEnv creates instance from environment variables (convenience constructor)
func NewFromEnv() (*Operator, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultOp = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}
