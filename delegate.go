package storekit

import (
	"context"
	"io"
	"time"
)

// Helpers shared by layers to forward optional capabilities. When the inner
// accessor lacks one, an Unsupported error is returned.

func unsupported(op Operation, path string) *Error {
	return PathErr(KindUnsupported, op, path, nil)
}

func delegateCopy(ctx context.Context, inner Accessor, src, dst string) error {
	if c, ok := inner.(CanCopy); ok {
		return c.Copy(ctx, src, dst)
	}
	return unsupported(OpCopy, src).WithContext("to", dst)
}

func delegateMove(ctx context.Context, inner Accessor, src, dst string) error {
	if m, ok := inner.(CanMove); ok {
		return m.Move(ctx, src, dst)
	}
	return unsupported(OpMove, src).WithContext("to", dst)
}

func delegateSignedURL(ctx context.Context, inner Accessor, path string, expires time.Duration, upload bool) (string, error) {
	s, ok := inner.(CanSignURL)
	if !ok {
		return "", unsupported(OpPresign, path)
	}
	if upload {
		return s.SignedUploadURL(ctx, path, expires)
	}
	return s.SignedURL(ctx, path, expires)
}

func delegateClose(inner Accessor) error {
	if c, ok := inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
