package storekit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewLogger builds a slog.Logger writing to w. format is "json" or "text";
// level is one of debug, info, warn, error.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoggingLayer logs every call on the wrapped accessor. Successful calls are
// logged at debug, failures at warn, and unexpected backend responses at
// error.
type LoggingLayer struct {
	Logger *slog.Logger
}

// Layer implements Layer
func (l LoggingLayer) Layer(inner Accessor) Accessor {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	info := inner.Info()
	return &LoggingAccessor{
		inner:  inner,
		logger: logger.With("scheme", info.Scheme(), "name", info.Name()),
	}
}

// LoggingAccessor is the accessor produced by LoggingLayer.
type LoggingAccessor struct {
	inner  Accessor
	logger *slog.Logger
}

// Unwrap returns the underlying Accessor.
func (a *LoggingAccessor) Unwrap() Accessor {
	return a.inner
}

func (a *LoggingAccessor) log(ctx context.Context, op Operation, path string, start time.Time, err error, attrs ...any) {
	attrs = append(attrs, "operation", op.String(), "path", path, "duration", time.Since(start))
	if err == nil {
		a.logger.DebugContext(ctx, "storage call finished", attrs...)
		return
	}
	attrs = append(attrs, "error", err)
	if IsUnexpected(err) {
		a.logger.ErrorContext(ctx, "storage backend returned unexpected response", attrs...)
		return
	}
	if errors.Is(err, ErrNotExist) {
		a.logger.DebugContext(ctx, "storage call failed", attrs...)
		return
	}
	a.logger.WarnContext(ctx, "storage call failed", attrs...)
}

// Info implements Accessor
func (a *LoggingAccessor) Info() *AccessorInfo {
	return a.inner.Info()
}

// Stat implements Accessor
func (a *LoggingAccessor) Stat(ctx context.Context, path string, opts ...StatOption) (*Metadata, error) {
	start := time.Now()
	meta, err := a.inner.Stat(ctx, path, opts...)
	if err == nil && meta != nil {
		a.log(ctx, OpStat, path, start, nil, "mode", meta.Mode.String())
	} else {
		a.log(ctx, OpStat, path, start, err)
	}
	return meta, err
}

// List implements Accessor
func (a *LoggingAccessor) List(ctx context.Context, path string, opts ...ListOption) (Lister, error) {
	start := time.Now()
	l, err := a.inner.List(ctx, path, opts...)
	a.log(ctx, OpList, path, start, err)
	if err != nil {
		return nil, err
	}
	return &loggingLister{acc: a, path: path, inner: l, start: start}, nil
}

// Read implements Accessor
func (a *LoggingAccessor) Read(ctx context.Context, path string, opts ...ReadOption) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := a.inner.Read(ctx, path, opts...)
	a.log(ctx, OpRead, path, start, err)
	return rc, err
}

// Write implements Accessor
func (a *LoggingAccessor) Write(ctx context.Context, path string, r io.Reader, opts ...Option) (*WriteResult, error) {
	start := time.Now()
	res, err := a.inner.Write(ctx, path, r, opts...)
	if res != nil {
		a.log(ctx, OpWrite, path, start, err, "bytes", res.BytesWritten)
	} else {
		a.log(ctx, OpWrite, path, start, err)
	}
	return res, err
}

// Delete implements Accessor
func (a *LoggingAccessor) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := a.inner.Delete(ctx, path)
	a.log(ctx, OpDelete, path, start, err)
	return err
}

// CreateDir implements Accessor
func (a *LoggingAccessor) CreateDir(ctx context.Context, path string) error {
	start := time.Now()
	err := a.inner.CreateDir(ctx, path)
	a.log(ctx, OpCreateDir, path, start, err)
	return err
}

// Copy implements CanCopy
func (a *LoggingAccessor) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := delegateCopy(ctx, a.inner, src, dst)
	a.log(ctx, OpCopy, src, start, err, "to", dst)
	return err
}

// Move implements CanMove
func (a *LoggingAccessor) Move(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := delegateMove(ctx, a.inner, src, dst)
	a.log(ctx, OpMove, src, start, err, "to", dst)
	return err
}

// SignedURL implements CanSignURL
func (a *LoggingAccessor) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	start := time.Now()
	u, err := delegateSignedURL(ctx, a.inner, path, expires, false)
	a.log(ctx, OpPresign, path, start, err, "expires", expires)
	return u, err
}

// SignedUploadURL implements CanSignURL
func (a *LoggingAccessor) SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	start := time.Now()
	u, err := delegateSignedURL(ctx, a.inner, path, expires, true)
	a.log(ctx, OpPresign, path, start, err, "expires", expires, "upload", true)
	return u, err
}

// Close implements io.Closer
func (a *LoggingAccessor) Close() error {
	return delegateClose(a.inner)
}

type loggingLister struct {
	acc   *LoggingAccessor
	path  string
	inner Lister
	start time.Time
	count int
	done  bool
}

func (l *loggingLister) Next(ctx context.Context) (*Entry, error) {
	e, err := l.inner.Next(ctx)
	if l.done {
		return e, err
	}
	switch {
	case err != nil:
		l.done = true
		l.acc.log(ctx, OpListerNext, l.path, l.start, err, "entries", l.count)
	case e == nil:
		l.done = true
		l.acc.log(ctx, OpListerNext, l.path, l.start, nil, "entries", l.count)
	default:
		l.count++
	}
	return e, err
}

var (
	_ Accessor   = (*LoggingAccessor)(nil)
	_ CanCopy    = (*LoggingAccessor)(nil)
	_ CanMove    = (*LoggingAccessor)(nil)
	_ CanSignURL = (*LoggingAccessor)(nil)
	_ io.Closer  = (*LoggingAccessor)(nil)
	_ Layer      = LoggingLayer{}
)
