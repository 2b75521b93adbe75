package storekit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/driver/local"
	"github.com/gobeaver/storekit/driver/memory"
	"github.com/gobeaver/storekit/driver/zip"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *storekit.Config
		errMsg string
	}{
		{"nil config", nil, "config is required"},
		{"empty driver", &storekit.Config{}, "driver is required"},
		{"invalid driver", &storekit.Config{Driver: "invalid"}, "unknown driver: invalid"},
		{"negative memory size", &storekit.Config{Driver: "memory", MemoryMaxSize: -1}, "must not be negative"},
		{"local without base path", &storekit.Config{Driver: "local"}, "local base path is required"},
		{"s3 without bucket", &storekit.Config{Driver: "s3"}, "S3 bucket is required"},
		{"gcs without bucket", &storekit.Config{Driver: "gcs"}, "GCS bucket is required"},
		{"azure without key", &storekit.Config{Driver: "azure", AzureAccountName: "acct", AzureContainerName: "c"}, "Azure account name"},
		{"sftp without host", &storekit.Config{Driver: "sftp", SFTPUsername: "u", SFTPPassword: "p"}, "SFTP host and username"},
		{"sftp without credentials", &storekit.Config{Driver: "sftp", SFTPHost: "h", SFTPUsername: "u"}, "password or private key"},
		{"consul without address", &storekit.Config{Driver: "consul"}, "Consul address is required"},
		{"sqlite without path", &storekit.Config{Driver: "sqlite"}, "SQLite path is required"},
		{"zip without path", &storekit.Config{Driver: "zip"}, "ZIP path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := storekit.New(tt.config)
			if err == nil {
				op.Close()
				t.Fatal("New() expected error")
			}
			if !errors.Is(err, storekit.ErrConfigInvalid) {
				t.Errorf("New() error kind = %v, want ConfigInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("New() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	tests := []struct {
		name   string
		config storekit.Config
		scheme string
	}{
		{"memory", storekit.Config{Driver: "memory", SanityCheck: true}, memory.Scheme},
		{"local", storekit.Config{Driver: "local", LocalBasePath: tmpDir, SanityCheck: true}, local.Scheme},
		{"zip", storekit.Config{Driver: "zip", ZipPath: filepath.Join(tmpDir, "bundle.zip")}, zip.Scheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := storekit.New(&tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer op.Close()

			if got := op.Info().Scheme(); got != tt.scheme {
				t.Errorf("scheme = %q, want %q", got, tt.scheme)
			}
			if _, err := op.WriteBytes(ctx, "a/b.txt", []byte("hi")); err != nil {
				t.Fatalf("WriteBytes() error = %v", err)
			}
			data, err := op.ReadAll(ctx, "a/b.txt")
			if err != nil || string(data) != "hi" {
				t.Errorf("ReadAll() = %q, %v", data, err)
			}
		})
	}
}

func TestLayers(t *testing.T) {
	tests := []struct {
		name   string
		config storekit.Config
		want   int
	}{
		{"none", storekit.Config{}, 0},
		{"sanity", storekit.Config{SanityCheck: true}, 1},
		{"sanity and read-only", storekit.Config{SanityCheck: true, ReadOnly: true}, 2},
		{"all", storekit.Config{SanityCheck: true, ReadOnly: true, LogEnabled: true}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(storekit.Layers(&tt.config)); got != tt.want {
				t.Errorf("Layers() returned %d layers, want %d", got, tt.want)
			}
		})
	}
}

func TestNewReadOnly(t *testing.T) {
	ctx := context.Background()
	op, err := storekit.New(&storekit.Config{Driver: "memory", SanityCheck: true, ReadOnly: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer op.Close()

	if _, err := op.WriteBytes(ctx, "x.txt", []byte("x")); !storekit.IsReadOnlyError(err) {
		t.Errorf("WriteBytes() error = %v, want read-only", err)
	}
	if _, ok := storekit.Innermost(op.Accessor).(*memory.Adapter); !ok {
		t.Errorf("Innermost() = %T, want *memory.Adapter", storekit.Innermost(op.Accessor))
	}
}

func TestGlobalInstance(t *testing.T) {
	storekit.Reset()
	t.Cleanup(storekit.Reset)

	os.Setenv("BEAVER_STOREKIT_DRIVER", "memory")
	defer os.Unsetenv("BEAVER_STOREKIT_DRIVER")

	if err := storekit.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	op1, err := storekit.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	op2, err := storekit.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if op1 != op2 {
		t.Error("Default() returned different instances")
	}
	if op1.Info().Scheme() != "memory" {
		t.Errorf("scheme = %q, want memory", op1.Info().Scheme())
	}

	storekit.Reset()
	op3, err := storekit.Default()
	if err != nil {
		t.Fatalf("Default() after Reset error = %v", err)
	}
	if op3 == op1 {
		t.Error("Default() after Reset returned the old instance")
	}
}

func TestInitWithConfig(t *testing.T) {
	storekit.Reset()
	t.Cleanup(storekit.Reset)

	err := storekit.Init(&storekit.Config{Driver: "memory"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Later calls keep the first instance
	if err := storekit.Init(&storekit.Config{Driver: "invalid"}); err != nil {
		t.Errorf("second Init() error = %v", err)
	}
}

func TestBuilder(t *testing.T) {
	os.Setenv("APP_STOREKIT_DRIVER", "memory")
	defer os.Unsetenv("APP_STOREKIT_DRIVER")

	op, err := storekit.WithPrefix("APP_").New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer op.Close()

	if op.Info().Scheme() != "memory" {
		t.Errorf("scheme = %q, want memory", op.Info().Scheme())
	}
}

func TestNewFromEnv(t *testing.T) {
	os.Setenv("BEAVER_STOREKIT_DRIVER", "local")
	os.Setenv("BEAVER_STOREKIT_LOCAL_BASE_PATH", t.TempDir())
	defer os.Unsetenv("BEAVER_STOREKIT_DRIVER")
	defer os.Unsetenv("BEAVER_STOREKIT_LOCAL_BASE_PATH")

	op, err := storekit.NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv() error = %v", err)
	}
	defer op.Close()

	if op.Info().Scheme() != local.Scheme {
		t.Errorf("scheme = %q, want %q", op.Info().Scheme(), local.Scheme)
	}
}
