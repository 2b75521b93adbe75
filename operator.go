package storekit

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"time"
)

// Operator is the user-facing handle to a layered accessor. It embeds the
// accessor, so every Accessor method is available directly, and adds
// convenience calls built on top of them.
type Operator struct {
	Accessor
}

// NewOperator applies layers to acc (innermost first) and wraps the result.
func NewOperator(acc Accessor, layers ...Layer) *Operator {
	return &Operator{Accessor: Apply(acc, layers...)}
}

// rootPath maps the empty path to "/" so layers never see a root without
// its directory shape.
func rootPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// ============================================================================
// Accessor Methods
// ============================================================================

// Stat implements Accessor. An empty path stats the root.
func (o *Operator) Stat(ctx context.Context, path string, opts ...StatOption) (*Metadata, error) {
	return o.Accessor.Stat(ctx, rootPath(path), opts...)
}

// List implements Accessor. An empty path lists the root.
func (o *Operator) List(ctx context.Context, path string, opts ...ListOption) (Lister, error) {
	return o.Accessor.List(ctx, rootPath(path), opts...)
}

// Read implements Accessor
func (o *Operator) Read(ctx context.Context, path string, opts ...ReadOption) (io.ReadCloser, error) {
	return o.Accessor.Read(ctx, rootPath(path), opts...)
}

// Write implements Accessor
func (o *Operator) Write(ctx context.Context, path string, r io.Reader, opts ...Option) (*WriteResult, error) {
	return o.Accessor.Write(ctx, rootPath(path), r, opts...)
}

// Delete implements Accessor
func (o *Operator) Delete(ctx context.Context, path string) error {
	return o.Accessor.Delete(ctx, rootPath(path))
}

// CreateDir implements Accessor
func (o *Operator) CreateDir(ctx context.Context, path string) error {
	return o.Accessor.CreateDir(ctx, rootPath(path))
}

// ============================================================================
// Read Helpers
// ============================================================================

// ReadAll reads entire file into memory. Use for small files only.
func (o *Operator) ReadAll(ctx context.Context, path string, opts ...ReadOption) ([]byte, error) {
	rc, err := o.Read(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Exists reports whether anything exists at path.
func (o *Operator) Exists(ctx context.Context, path string) (bool, error) {
	_, err := o.Stat(ctx, path)
	if err != nil {
		if IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FileExists checks if a file exists at path.
func (o *Operator) FileExists(ctx context.Context, path string) (bool, error) {
	if IsDirectoryPath(path) {
		return false, nil
	}
	meta, err := o.Stat(ctx, path)
	if err != nil {
		if IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return meta.IsFile(), nil
}

// DirExists checks if a directory exists at path. A trailing "/" is added
// when missing.
func (o *Operator) DirExists(ctx context.Context, path string) (bool, error) {
	meta, err := o.Stat(ctx, EnsureDir(path))
	if err != nil {
		if IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return meta.IsDir(), nil
}

// ListAll collects every entry under path.
func (o *Operator) ListAll(ctx context.Context, path string, opts ...ListOption) ([]*Entry, error) {
	l, err := o.List(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return ListAll(ctx, l)
}

// Walk calls fn for every entry below dir, depth first. Backends without
// native recursive listing are walked one level at a time.
func (o *Operator) Walk(ctx context.Context, dir string, fn func(*Entry) error) error {
	dir = rootPath(dir)
	if o.Info().Capability().ListRecursive {
		l, err := o.List(ctx, dir, WithRecursive(true))
		if err != nil {
			return err
		}
		return drain(ctx, l, fn)
	}

	l, err := o.List(ctx, dir)
	if err != nil {
		return err
	}
	return drain(ctx, l, func(e *Entry) error {
		if err := fn(e); err != nil {
			return err
		}
		if e.Mode() == ModeDir && e.Path != dir {
			return o.Walk(ctx, e.Path, fn)
		}
		return nil
	})
}

func drain(ctx context.Context, l Lister, fn func(*Entry) error) error {
	for {
		e, err := l.Next(ctx)
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// Checksum computes a checksum of the file at path.
func (o *Operator) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	return Checksum(ctx, o, path, algorithm)
}

// Checksums computes several checksums of the file at path in one pass.
func (o *Operator) Checksums(ctx context.Context, path string, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	return Checksums(ctx, o, path, algorithms)
}

// ============================================================================
// Write Helpers
// ============================================================================

// WriteBytes writes data to path.
func (o *Operator) WriteBytes(ctx context.Context, path string, data []byte, opts ...Option) (*WriteResult, error) {
	return o.Write(ctx, path, bytes.NewReader(data), opts...)
}

// RemoveAll deletes path. For a directory every descendant is deleted
// first: files, then directories from the deepest up. Missing entries are
// ignored.
func (o *Operator) RemoveAll(ctx context.Context, path string) error {
	path = rootPath(path)
	if !IsDirectoryPath(path) {
		return ignoreNotExist(o.Delete(ctx, path))
	}

	var files, dirs []string
	err := o.Walk(ctx, path, func(e *Entry) error {
		if e.Path == path {
			return nil
		}
		if e.Mode() == ModeDir {
			dirs = append(dirs, e.Path)
		} else {
			files = append(files, e.Path)
		}
		return nil
	})
	if err != nil {
		return ignoreNotExist(err)
	}

	for _, f := range files {
		if err := ignoreNotExist(o.Delete(ctx, f)); err != nil {
			return err
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], "/") > strings.Count(dirs[j], "/")
	})
	for _, d := range dirs {
		if err := ignoreNotExist(o.Delete(ctx, d)); err != nil {
			return err
		}
	}

	if path == "/" {
		return nil
	}
	return ignoreNotExist(o.Delete(ctx, path))
}

func ignoreNotExist(err error) error {
	if err != nil && IsNotExist(err) {
		return nil
	}
	return err
}

// Copy copies a file. Backends that declare native copy are used directly;
// otherwise the content is streamed through this process.
func (o *Operator) Copy(ctx context.Context, src, dst string) error {
	if o.Info().Capability().Copy {
		if c, ok := o.Accessor.(CanCopy); ok {
			return c.Copy(ctx, src, dst)
		}
	}

	rc, err := o.Read(ctx, src)
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = o.Write(ctx, dst, rc)
	return err
}

// Move moves a file, falling back to copy and delete.
func (o *Operator) Move(ctx context.Context, src, dst string) error {
	if o.Info().Capability().Move {
		if m, ok := o.Accessor.(CanMove); ok {
			return m.Move(ctx, src, dst)
		}
	}

	if err := o.Copy(ctx, src, dst); err != nil {
		return err
	}
	return o.Delete(ctx, src)
}

// ============================================================================
// Presign
// ============================================================================

// PresignRead returns a URL that allows downloading path until expires.
func (o *Operator) PresignRead(ctx context.Context, path string, expires time.Duration) (string, error) {
	if !o.Info().Capability().Presign {
		return "", unsupported(OpPresign, path)
	}
	return delegateSignedURL(ctx, o.Accessor, path, expires, false)
}

// PresignWrite returns a URL that allows uploading to path until expires.
func (o *Operator) PresignWrite(ctx context.Context, path string, expires time.Duration) (string, error) {
	if !o.Info().Capability().Presign {
		return "", unsupported(OpPresign, path)
	}
	return delegateSignedURL(ctx, o.Accessor, path, expires, true)
}

// Close releases resources held by the driver.
func (o *Operator) Close() error {
	return delegateClose(o.Accessor)
}

var (
	_ Accessor  = (*Operator)(nil)
	_ CanCopy   = (*Operator)(nil)
	_ CanMove   = (*Operator)(nil)
	_ io.Closer = (*Operator)(nil)
)
