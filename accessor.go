package storekit

import (
	"context"
	"io"
	"time"
)

// ============================================================================
// Accessor Info
// ============================================================================

// Capability declares which operations an accessor supports. Layers must not
// change the capability set of the accessor they wrap.
type Capability struct {
	Stat          bool
	Read          bool
	Write         bool
	Delete        bool
	CreateDir     bool
	List          bool
	ListRecursive bool
	Copy          bool
	Move          bool
	Presign       bool
}

// AccessorInfo is the read-only descriptor of an accessor. It is created once
// by the driver and shared by pointer with every layer stacked on top.
type AccessorInfo struct {
	scheme     string
	root       string
	name       string
	capability Capability
}

// InfoOption configures an AccessorInfo.
type InfoOption func(*AccessorInfo)

// WithRoot sets the root the accessor is scoped to.
func WithRoot(root string) InfoOption {
	return func(i *AccessorInfo) {
		i.root = root
	}
}

// WithName sets the bucket, container or instance name.
func WithName(name string) InfoOption {
	return func(i *AccessorInfo) {
		i.name = name
	}
}

// WithCapability sets the declared capability set.
func WithCapability(c Capability) InfoOption {
	return func(i *AccessorInfo) {
		i.capability = c
	}
}

// NewAccessorInfo creates an AccessorInfo for scheme.
func NewAccessorInfo(scheme string, opts ...InfoOption) *AccessorInfo {
	info := &AccessorInfo{scheme: scheme, root: "/"}
	for _, opt := range opts {
		opt(info)
	}
	return info
}

// Scheme returns the backend identifier used in error messages.
func (i *AccessorInfo) Scheme() string { return i.scheme }

// Root returns the root the accessor is scoped to.
func (i *AccessorInfo) Root() string { return i.root }

// Name returns the bucket, container or instance name.
func (i *AccessorInfo) Name() string { return i.name }

// Capability returns the declared capability set.
func (i *AccessorInfo) Capability() Capability { return i.capability }

// ============================================================================
// Core Interface
// ============================================================================

// WriteResult describes an object after a successful write.
type WriteResult struct {
	Path         string
	BytesWritten int64
	ETag         string
	Version      string
}

// Accessor is the capability surface every backend implements and every
// layer wraps.
//
// Paths are relative to the accessor root. A path ending with "/" (or "/"
// itself) names a directory; anything else names a file.
type Accessor interface {
	// Info returns the shared descriptor of this accessor.
	Info() *AccessorInfo

	// Stat returns metadata for one path.
	Stat(ctx context.Context, path string, opts ...StatOption) (*Metadata, error)

	// List returns a lazy stream of the entries under a directory path.
	List(ctx context.Context, path string, opts ...ListOption) (Lister, error)

	// Read returns a stream for reading file content.
	Read(ctx context.Context, path string, opts ...ReadOption) (io.ReadCloser, error)

	// Write writes content from reader to path.
	Write(ctx context.Context, path string, r io.Reader, opts ...Option) (*WriteResult, error)

	// Delete removes a file or an empty directory.
	Delete(ctx context.Context, path string) error

	// CreateDir creates a directory (and parents if needed).
	CreateDir(ctx context.Context, path string) error
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// These interfaces allow drivers to expose optional capabilities.
// Use type assertion to check if a driver supports a capability:
//
//	if copier, ok := acc.(CanCopy); ok {
//	    copier.Copy(ctx, src, dst)
//	}

// CanCopy indicates the accessor supports native copy operations.
type CanCopy interface {
	Copy(ctx context.Context, src, dst string) error
}

// CanMove indicates the accessor supports native move/rename operations.
type CanMove interface {
	Move(ctx context.Context, src, dst string) error
}

// CanSignURL indicates the accessor can generate pre-signed URLs.
// Useful for S3, GCS, Azure - allows direct client access without proxying.
type CanSignURL interface {
	// SignedURL creates a pre-signed URL for downloading a file.
	SignedURL(ctx context.Context, path string, expires time.Duration) (string, error)

	// SignedUploadURL creates a pre-signed URL for uploading a file.
	SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error)
}
