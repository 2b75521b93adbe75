package storekit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ============================================================================
// SanityCheckLayer
// ============================================================================

// SanityCheckLayer rejects Stat results and List entries whose declared mode
// disagrees with the shape of their path.
//
// A directory must end with "/", a file must not, and every entry must carry
// a mode. Violations surface as KindUnexpected errors naming the backend
// scheme, the operation and the offending path. Nothing is repaired.
//
// Example:
//
//	acc := storekit.Apply(memory.New(), storekit.SanityCheckLayer{})
//	meta, err := acc.Stat(ctx, "photos")
//	// err is KindUnexpected if the backend claims "photos" is a directory
type SanityCheckLayer struct{}

// Layer implements Layer
func (SanityCheckLayer) Layer(inner Accessor) Accessor {
	return NewSanityCheckAccessor(inner)
}

// SanityCheckAccessor validates metadata returned by the wrapped accessor.
// All operations other than Stat and List pass through unchanged.
type SanityCheckAccessor[A Accessor] struct {
	info  *AccessorInfo
	inner A
}

// NewSanityCheckAccessor wraps inner. The inner accessor's info is captured
// once here and shared from then on.
func NewSanityCheckAccessor[A Accessor](inner A) *SanityCheckAccessor[A] {
	return &SanityCheckAccessor[A]{
		info:  inner.Info(),
		inner: inner,
	}
}

// Inner returns the wrapped accessor with its concrete type.
func (s *SanityCheckAccessor[A]) Inner() A {
	return s.inner
}

// Unwrap returns the wrapped accessor.
func (s *SanityCheckAccessor[A]) Unwrap() Accessor {
	return s.inner
}

// Info returns the inner accessor's info.
func (s *SanityCheckAccessor[A]) Info() *AccessorInfo {
	return s.info
}

// Stat checks the mode of the returned metadata against path.
func (s *SanityCheckAccessor[A]) Stat(ctx context.Context, path string, opts ...StatOption) (*Metadata, error) {
	meta, err := s.inner.Stat(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	mode := ModeUnknown
	if meta != nil {
		mode = meta.Mode
	}
	if err := checkPathMode(s.info, OpStat, path, path, mode); err != nil {
		return nil, err
	}
	return meta, nil
}

// List wraps the inner lister so every entry is checked as it is pulled.
func (s *SanityCheckAccessor[A]) List(ctx context.Context, path string, opts ...ListOption) (Lister, error) {
	l, err := s.inner.List(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return &sanityCheckLister{
		info:     s.info,
		listPath: path,
		inner:    l,
	}, nil
}

// ============================================================================
// Pass-through Operations
// ============================================================================

// Read delegates to the underlying accessor.
func (s *SanityCheckAccessor[A]) Read(ctx context.Context, path string, opts ...ReadOption) (io.ReadCloser, error) {
	return s.inner.Read(ctx, path, opts...)
}

// Write delegates to the underlying accessor.
func (s *SanityCheckAccessor[A]) Write(ctx context.Context, path string, r io.Reader, opts ...Option) (*WriteResult, error) {
	return s.inner.Write(ctx, path, r, opts...)
}

// Delete delegates to the underlying accessor.
func (s *SanityCheckAccessor[A]) Delete(ctx context.Context, path string) error {
	return s.inner.Delete(ctx, path)
}

// CreateDir delegates to the underlying accessor.
func (s *SanityCheckAccessor[A]) CreateDir(ctx context.Context, path string) error {
	return s.inner.CreateDir(ctx, path)
}

// Copy delegates to the underlying accessor if it supports CanCopy.
func (s *SanityCheckAccessor[A]) Copy(ctx context.Context, src, dst string) error {
	return delegateCopy(ctx, s.inner, src, dst)
}

// Move delegates to the underlying accessor if it supports CanMove.
func (s *SanityCheckAccessor[A]) Move(ctx context.Context, src, dst string) error {
	return delegateMove(ctx, s.inner, src, dst)
}

// SignedURL delegates to the underlying accessor if it supports CanSignURL.
func (s *SanityCheckAccessor[A]) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	return delegateSignedURL(ctx, s.inner, path, expires, false)
}

// SignedUploadURL delegates to the underlying accessor if it supports CanSignURL.
func (s *SanityCheckAccessor[A]) SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	return delegateSignedURL(ctx, s.inner, path, expires, true)
}

// Close closes the underlying accessor if it holds resources.
func (s *SanityCheckAccessor[A]) Close() error {
	return delegateClose(s.inner)
}

// ============================================================================
// Lister
// ============================================================================

type listState uint8

const (
	listActive listState = iota
	listExhausted
	listFailed
)

// sanityCheckLister checks each entry of a listing before handing it out.
// Once exhausted or failed it stays that way without touching the inner
// lister again; a failed stream keeps returning its error.
type sanityCheckLister struct {
	info     *AccessorInfo
	listPath string
	inner    Lister
	state    listState
	err      error
}

// Next implements Lister
func (l *sanityCheckLister) Next(ctx context.Context) (*Entry, error) {
	switch l.state {
	case listExhausted:
		return nil, nil
	case listFailed:
		return nil, l.err
	}

	entry, err := l.inner.Next(ctx)
	if err != nil {
		l.fail(err)
		return nil, err
	}
	if entry == nil {
		l.state = listExhausted
		return nil, nil
	}
	if err := checkPathMode(l.info, OpList, l.listPath, entry.Path, entry.Mode()); err != nil {
		l.fail(err)
		return nil, err
	}
	return entry, nil
}

func (l *sanityCheckLister) fail(err error) {
	l.state = listFailed
	l.err = err
}

// ============================================================================
// Checks
// ============================================================================

// checkPathMode verifies that mode agrees with the shape of targetPath.
func checkPathMode(info *AccessorInfo, op Operation, contextPath, targetPath string, mode EntryMode) error {
	isDir := IsDirectoryPath(targetPath)

	switch mode {
	case ModeDir:
		if !isDir {
			return unexpectedResponse(info, op, targetPath, contextPath,
				fmt.Sprintf("path `%s` was reported as a directory but does not end with `/`", targetPath))
		}
	case ModeFile:
		if isDir {
			return unexpectedResponse(info, op, targetPath, contextPath,
				fmt.Sprintf("path `%s` was reported as a file but ends with `/`", targetPath))
		}
	default:
		return unexpectedResponse(info, op, targetPath, contextPath, "metadata is missing an entry mode")
	}
	return nil
}

// unexpectedResponse builds the error for a malformed backend response.
// List failures record the listed directory as list_path, others as
// context_path.
func unexpectedResponse(info *AccessorInfo, op Operation, targetPath, contextPath, detail string) *Error {
	err := NewError(KindUnexpected,
		fmt.Sprintf("service %s returned an unexpected %s response: %s", info.Scheme(), op, detail)).
		WithOperation(op).
		WithContext("path", targetPath)

	if op == OpList {
		return err.WithContext("list_path", contextPath)
	}
	return err.WithContext("context_path", contextPath)
}

var (
	_ Accessor   = (*SanityCheckAccessor[Accessor])(nil)
	_ CanCopy    = (*SanityCheckAccessor[Accessor])(nil)
	_ CanMove    = (*SanityCheckAccessor[Accessor])(nil)
	_ CanSignURL = (*SanityCheckAccessor[Accessor])(nil)
	_ io.Closer  = (*SanityCheckAccessor[Accessor])(nil)
	_ Unwrapper  = (*SanityCheckAccessor[Accessor])(nil)
	_ Layer      = SanityCheckLayer{}
)
