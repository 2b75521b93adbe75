package storekit

import (
	"context"
	"errors"
	"io"
	"time"
)

// ============================================================================
// ReadOnlyLayer
// ============================================================================

// ReadOnlyLayer blocks every mutating call on the accessor it wraps.
//
// Example:
//
//	acc := storekit.Apply(drv, storekit.ReadOnlyLayer{})
//
//	// Read operations work normally
//	rc, _ := acc.Read(ctx, "file.txt")
//
//	// Write operations fail with KindReadOnly
//	_, err := acc.Write(ctx, "file.txt", rc)
//	// errors.Is(err, storekit.ErrReadOnly) == true
type ReadOnlyLayer struct {
	Options []ReadOnlyOption
}

// Layer implements Layer
func (l ReadOnlyLayer) Layer(inner Accessor) Accessor {
	return NewReadOnlyAccessor(inner, l.Options...)
}

// ReadOnlyAccessor wraps an Accessor to prevent write operations.
type ReadOnlyAccessor struct {
	inner Accessor
	opts  ReadOnlyOptions
}

// ReadOnlyOptions configures the ReadOnlyAccessor behavior.
type ReadOnlyOptions struct {
	// AllowCreateDir permits directory creation even in read-only mode.
	// Default: false
	AllowCreateDir bool

	// AllowDelete permits deletion in read-only mode.
	// Default: false
	AllowDelete bool

	// OnWriteAttempt is called when a write operation is attempted.
	// If this function returns nil, the write is allowed (use carefully).
	OnWriteAttempt func(op Operation, path string) error
}

// ReadOnlyOption is a functional option for configuring ReadOnlyAccessor.
type ReadOnlyOption func(*ReadOnlyOptions)

// WithAllowCreateDir allows directory creation in read-only mode.
func WithAllowCreateDir(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowCreateDir = allow
	}
}

// WithAllowDelete allows deletion in read-only mode.
func WithAllowDelete(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowDelete = allow
	}
}

// WithWriteAttemptHandler sets a custom handler for write attempts.
func WithWriteAttemptHandler(handler func(op Operation, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.OnWriteAttempt = handler
	}
}

// NewReadOnlyAccessor creates a read-only wrapper around inner.
func NewReadOnlyAccessor(inner Accessor, opts ...ReadOnlyOption) *ReadOnlyAccessor {
	options := ReadOnlyOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &ReadOnlyAccessor{
		inner: inner,
		opts:  options,
	}
}

// Unwrap returns the underlying Accessor.
func (r *ReadOnlyAccessor) Unwrap() Accessor {
	return r.inner
}

// IsReadOnly returns true, indicating this is a read-only accessor.
func (r *ReadOnlyAccessor) IsReadOnly() bool {
	return true
}

func (r *ReadOnlyAccessor) readOnlyError(op Operation, path string) error {
	if r.opts.OnWriteAttempt != nil {
		if err := r.opts.OnWriteAttempt(op, path); err != nil {
			return PathErr(KindReadOnly, op, path, err)
		}
		return nil
	}
	return PathErr(KindReadOnly, op, path, nil)
}

// ============================================================================
// Read Operations (Delegated)
// ============================================================================

// Info returns the inner accessor's info.
func (r *ReadOnlyAccessor) Info() *AccessorInfo {
	return r.inner.Info()
}

// Stat delegates to the underlying accessor.
func (r *ReadOnlyAccessor) Stat(ctx context.Context, path string, opts ...StatOption) (*Metadata, error) {
	return r.inner.Stat(ctx, path, opts...)
}

// List delegates to the underlying accessor.
func (r *ReadOnlyAccessor) List(ctx context.Context, path string, opts ...ListOption) (Lister, error) {
	return r.inner.List(ctx, path, opts...)
}

// Read delegates to the underlying accessor.
func (r *ReadOnlyAccessor) Read(ctx context.Context, path string, opts ...ReadOption) (io.ReadCloser, error) {
	return r.inner.Read(ctx, path, opts...)
}

// SignedURL delegates to the underlying accessor if supported.
func (r *ReadOnlyAccessor) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	return delegateSignedURL(ctx, r.inner, path, expires, false)
}

// Close delegates to the underlying accessor.
func (r *ReadOnlyAccessor) Close() error {
	return delegateClose(r.inner)
}

// ============================================================================
// Write Operations (Blocked)
// ============================================================================

// Write returns ErrReadOnly.
func (r *ReadOnlyAccessor) Write(ctx context.Context, path string, content io.Reader, opts ...Option) (*WriteResult, error) {
	if err := r.readOnlyError(OpWrite, path); err != nil {
		return nil, err
	}
	return r.inner.Write(ctx, path, content, opts...)
}

// Delete returns ErrReadOnly unless AllowDelete is enabled.
func (r *ReadOnlyAccessor) Delete(ctx context.Context, path string) error {
	if !r.opts.AllowDelete {
		if err := r.readOnlyError(OpDelete, path); err != nil {
			return err
		}
	}
	return r.inner.Delete(ctx, path)
}

// CreateDir returns ErrReadOnly unless AllowCreateDir is enabled.
func (r *ReadOnlyAccessor) CreateDir(ctx context.Context, path string) error {
	if !r.opts.AllowCreateDir {
		if err := r.readOnlyError(OpCreateDir, path); err != nil {
			return err
		}
	}
	return r.inner.CreateDir(ctx, path)
}

// Copy returns ErrReadOnly.
func (r *ReadOnlyAccessor) Copy(ctx context.Context, src, dst string) error {
	if err := r.readOnlyError(OpCopy, dst); err != nil {
		return err
	}
	return delegateCopy(ctx, r.inner, src, dst)
}

// Move returns ErrReadOnly.
func (r *ReadOnlyAccessor) Move(ctx context.Context, src, dst string) error {
	if err := r.readOnlyError(OpMove, dst); err != nil {
		return err
	}
	return delegateMove(ctx, r.inner, src, dst)
}

// SignedUploadURL returns ErrReadOnly (upload URLs enable writes).
func (r *ReadOnlyAccessor) SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	if err := r.readOnlyError(OpPresign, path); err != nil {
		return "", err
	}
	return delegateSignedURL(ctx, r.inner, path, expires, true)
}

// ============================================================================
// Interface Assertions
// ============================================================================

var (
	_ Accessor   = (*ReadOnlyAccessor)(nil)
	_ CanCopy    = (*ReadOnlyAccessor)(nil)
	_ CanMove    = (*ReadOnlyAccessor)(nil)
	_ CanSignURL = (*ReadOnlyAccessor)(nil)
	_ io.Closer  = (*ReadOnlyAccessor)(nil)
	_ Unwrapper  = (*ReadOnlyAccessor)(nil)
	_ Layer      = ReadOnlyLayer{}
)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
