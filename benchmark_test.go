package storekit_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/driver/memory"
)

func BenchmarkOperator(b *testing.B) {
	content := strings.Repeat("Hello, World! ", 100) // ~1.4KB of content

	stacks := map[string][]storekit.Layer{
		"bare":    nil,
		"sanity":  {storekit.SanityCheckLayer{}},
		"logging": {storekit.SanityCheckLayer{}, storekit.LoggingLayer{Logger: storekit.NewLogger("error", "text", io.Discard)}},
	}

	for name, layers := range stacks {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			op := storekit.NewOperator(memory.New(), layers...)

			b.Run("write", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, err := op.Write(ctx, "bench.txt", strings.NewReader(content)); err != nil {
						b.Fatalf("Write failed: %v", err)
					}
				}
			})

			b.Run("read", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					rc, err := op.Read(ctx, "bench.txt")
					if err != nil {
						b.Fatalf("Read failed: %v", err)
					}
					rc.Close()
				}
			})

			b.Run("stat", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, err := op.Stat(ctx, "bench.txt"); err != nil {
						b.Fatalf("Stat failed: %v", err)
					}
				}
			})
		})
	}
}

func BenchmarkSanityCheckList(b *testing.B) {
	ctx := context.Background()
	drv := memory.New()
	for i := 0; i < 1000; i++ {
		if _, err := drv.Write(ctx, fmt.Sprintf("dir/file-%04d.txt", i), strings.NewReader("x")); err != nil {
			b.Fatal(err)
		}
	}

	for _, bc := range []struct {
		name   string
		layers []storekit.Layer
	}{
		{"bare", nil},
		{"sanity", []storekit.Layer{storekit.SanityCheckLayer{}}},
	} {
		b.Run(bc.name, func(b *testing.B) {
			op := storekit.NewOperator(drv, bc.layers...)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				entries, err := op.ListAll(ctx, "dir/")
				if err != nil {
					b.Fatalf("List failed: %v", err)
				}
				if len(entries) != 1000 {
					b.Fatalf("expected 1000 entries, got %d", len(entries))
				}
			}
		})
	}
}

func BenchmarkConfigCreation(b *testing.B) {
	os.Setenv("BEAVER_STOREKIT_DRIVER", "s3")
	os.Setenv("BEAVER_STOREKIT_S3_BUCKET", "test-bucket")
	os.Setenv("BEAVER_STOREKIT_S3_REGION", "us-west-2")
	defer func() {
		os.Unsetenv("BEAVER_STOREKIT_DRIVER")
		os.Unsetenv("BEAVER_STOREKIT_S3_BUCKET")
		os.Unsetenv("BEAVER_STOREKIT_S3_REGION")
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := storekit.GetConfig(); err != nil {
			b.Fatalf("GetConfig failed: %v", err)
		}
	}
}
