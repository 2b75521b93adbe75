// Package storekit provides one storage interface over many backends, plus
// stackable layers that wrap it.
//
// Every backend implements [Accessor]. A path ending with "/" names a
// directory and anything else names a file. Backends do not always keep
// that promise, so the [SanityCheckLayer] checks every Stat result and every
// listed entry against the path it was returned for, and turns a mismatch
// into an error of kind [KindUnexpected] instead of passing it on.
//
// # Storage Backends
//
// Drivers live in their own modules, so the core never pulls in a cloud
// SDK, and register themselves with the factory when imported:
//
//   - In-memory (github.com/gobeaver/storekit/driver/memory)
//   - Local filesystem (github.com/gobeaver/storekit/driver/local)
//   - Amazon S3 and compatible stores (github.com/gobeaver/storekit/driver/s3)
//   - Google Cloud Storage (github.com/gobeaver/storekit/driver/gcs)
//   - Azure Blob Storage (github.com/gobeaver/storekit/driver/azure)
//   - SFTP (github.com/gobeaver/storekit/driver/sftp)
//   - Consul KV (github.com/gobeaver/storekit/driver/consul)
//   - SQLite (github.com/gobeaver/storekit/driver/sqlite)
//   - ZIP archives (github.com/gobeaver/storekit/driver/zip)
//
// # Basic Usage
//
//	import "github.com/gobeaver/storekit/driver/local"
//
//	drv, err := local.New("./storage")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	op := storekit.NewOperator(drv, storekit.SanityCheckLayer{})
//	defer op.Close()
//
//	_, err = op.WriteBytes(ctx, "hello.txt", []byte("Hello, World!"))
//	data, err := op.ReadAll(ctx, "hello.txt")
//	entries, err := op.ListAll(ctx, "/")
//
// # Layers
//
// A [Layer] wraps an accessor and returns another one. [NewOperator] applies
// layers innermost first:
//
//	op := storekit.NewOperator(drv,
//	    storekit.SanityCheckLayer{},
//	    storekit.ReadOnlyLayer{},
//	    storekit.LoggingLayer{Logger: slog.Default()},
//	)
//
// Layers forward the optional capabilities of the accessor they wrap
// ([CanCopy], [CanMove], [CanSignURL], io.Closer). Call [Innermost] to reach
// the driver underneath.
//
// # Capabilities
//
// [AccessorInfo] declares what a backend supports. [Operator] consults it
// before using native copy, move or presigning and falls back to streaming
// where it can:
//
//	if op.Info().Capability().Presign {
//	    url, err := op.PresignRead(ctx, "file.pdf", 15*time.Minute)
//	}
//
// # Mounts
//
// [MountAccessor] combines several accessors under one namespace:
//
//	mounts := storekit.NewMountAccessor()
//	mounts.Mount("local", localDrv)
//	mounts.Mount("cloud", s3Drv)
//
//	op := storekit.NewOperator(mounts, storekit.SanityCheckLayer{})
//	op.Copy(ctx, "local/file.txt", "cloud/backup/file.txt")
//
// # Finding Files
//
// [Operator.Find] walks a tree and returns the entries a [Selector] matches.
// Selectors can prune whole subtrees:
//
//	entries, err := op.Find(ctx, "photos/", storekit.And(
//	    storekit.MustGlob("*.{jpg,png}"),
//	    storekit.Depth(2, "photos/"),
//	))
//
// # Error Handling
//
// Every error returned by this package and its drivers is an [*Error] with
// a [ErrorKind]. errors.Is matches it against the sentinel of its kind:
//
//	_, err := op.Read(ctx, "nonexistent.txt")
//	if storekit.IsNotExist(err) {
//	    // File does not exist
//	}
//
//	var se *storekit.Error
//	if errors.As(err, &se) {
//	    path, _ := se.Context("path")
//	    fmt.Println(se.Operation, path)
//	}
//
// # Configuration
//
// [New] builds an operator from a [Config], which [GetConfig] loads from
// BEAVER_STOREKIT_* environment variables:
//
//	cfg := &storekit.Config{
//	    Driver:      "s3",
//	    S3Bucket:    "my-bucket",
//	    S3Region:    "us-west-2",
//	    SanityCheck: true,
//	}
//	op, err := storekit.New(cfg)
package storekit
