// Package local provides a storekit accessor backed by a directory on the
// local filesystem. All paths are resolved under the root and may not
// escape it.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "fs"

// listBatch is how many directory entries are read from disk at a time.
const listBatch = 256

// Adapter provides a local filesystem implementation of storekit.Accessor
type Adapter struct {
	root string
	info *storekit.AccessorInfo
}

// New creates a new local filesystem adapter
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	return &Adapter{
		root: absRoot,
		info: storekit.NewAccessorInfo(Scheme,
			storekit.WithRoot(absRoot),
			storekit.WithCapability(storekit.Capability{
				Stat:          true,
				Read:          true,
				Write:         true,
				Delete:        true,
				CreateDir:     true,
				List:          true,
				ListRecursive: true,
				Copy:          true,
				Move:          true,
			})),
	}, nil
}

// Info implements storekit.Accessor
func (a *Adapter) Info() *storekit.AccessorInfo {
	return a.info
}

// Root returns the absolute root directory.
func (a *Adapter) Root() string {
	return a.root
}

// resolve maps a storekit path to an absolute filesystem path under root.
func (a *Adapter) resolve(op storekit.Operation, path string) (string, error) {
	key := storekit.RelPath(path)
	if err := storekit.CheckPath(op, key); err != nil {
		return "", err
	}
	full := filepath.Join(a.root, filepath.FromSlash(key))
	if !isPathUnderRoot(a.root, full) {
		return "", storekit.PathErr(storekit.KindPermissionDenied, op, path, nil)
	}
	return full, nil
}

// Stat implements storekit.Accessor. A directory on disk is only reported
// when the path is directory shaped, and a file only when it is not.
func (a *Adapter) Stat(ctx context.Context, path string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve(storekit.OpStat, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, mapOSError(storekit.OpStat, path, err)
	}

	wantDir := storekit.RelPath(path) == "" || storekit.IsDirectoryPath(path)
	switch {
	case wantDir && !info.IsDir():
		return nil, storekit.PathErr(storekit.KindNotADirectory, storekit.OpStat, path, nil)
	case !wantDir && info.IsDir():
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpStat, path, nil)
	}

	meta := toMetadata(info, full)
	if !info.IsDir() {
		meta.ContentType = getContentType(full)
	}
	if !storekit.ApplyStatOptions(opts...).CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, path, nil)
	}
	return meta, nil
}

// Read implements storekit.Accessor
func (a *Adapter) Read(ctx context.Context, path string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if storekit.IsDirectoryPath(path) || storekit.RelPath(path) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, path, nil)
	}

	full, err := a.resolve(storekit.OpRead, path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, mapOSError(storekit.OpRead, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapOSError(storekit.OpRead, path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, path, nil)
	}

	ro := storekit.ApplyReadOptions(opts...)
	if !ro.IsRange() {
		return f, nil
	}
	if _, err := f.Seek(ro.Offset, io.SeekStart); err != nil {
		f.Close()
		return nil, mapOSError(storekit.OpRead, path, err)
	}
	var r io.Reader = f
	if ro.Length >= 0 {
		r = io.LimitReader(f, ro.Length)
	}
	return struct {
		io.Reader
		io.Closer
	}{r, f}, nil
}

// Write implements storekit.Accessor
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if storekit.IsDirectoryPath(path) || storekit.RelPath(path) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, path, nil)
	}

	full, err := a.resolve(storekit.OpWrite, path)
	if err != nil {
		return nil, err
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, mapOSError(storekit.OpWrite, path, err)
	}

	opts := storekit.ApplyOptions(options...)
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.IfNotExists {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(full, flags, 0644)
	if err != nil {
		return nil, mapOSError(storekit.OpWrite, path, err)
	}
	defer f.Close()

	n, err := io.Copy(f, content)
	if err != nil {
		return nil, mapOSError(storekit.OpWrite, path, err)
	}
	if err := f.Sync(); err != nil {
		return nil, mapOSError(storekit.OpWrite, path, err)
	}

	return &storekit.WriteResult{
		Path:         storekit.RelPath(path),
		BytesWritten: n,
	}, nil
}

// Delete implements storekit.Accessor. Directories must be empty.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if storekit.RelPath(path) == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, path, nil)
	}

	full, err := a.resolve(storekit.OpDelete, path)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil {
		return mapOSError(storekit.OpDelete, path, err)
	}
	if info.IsDir() {
		if !storekit.IsDirectoryPath(path) {
			return storekit.PathErr(storekit.KindIsADirectory, storekit.OpDelete, path, nil)
		}
		empty, err := isEmptyDir(full)
		if err != nil {
			return mapOSError(storekit.OpDelete, path, err)
		}
		if !empty {
			return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, path, nil)
		}
	}

	if err := os.Remove(full); err != nil {
		return mapOSError(storekit.OpDelete, path, err)
	}
	return nil
}

// CreateDir implements storekit.Accessor
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := a.resolve(storekit.OpCreateDir, path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(full, 0755); err != nil {
		return mapOSError(storekit.OpCreateDir, path, err)
	}
	return nil
}

// List implements storekit.Accessor. Directory entries are read lazily in
// batches; recursive listings walk depth first without buffering the tree.
func (a *Adapter) List(ctx context.Context, path string, opts ...storekit.ListOption) (storekit.Lister, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve(storekit.OpList, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, mapOSError(storekit.OpList, path, err)
	}
	if !info.IsDir() {
		return nil, storekit.PathErr(storekit.KindNotADirectory, storekit.OpList, path, nil)
	}

	key := storekit.RelPath(path)
	if key != "" {
		key = storekit.EnsureDir(key)
	}

	lo := storekit.ApplyListOptions(opts...)
	return &lister{
		root:       a.root,
		recursive:  lo.Recursive,
		startAfter: lo.StartAfter,
		pending:    []string{key},
	}, nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storekit.CanCopy for native file copying.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath, err := a.resolve(storekit.OpCopy, src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolve(storekit.OpCopy, dst)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		return mapOSError(storekit.OpCopy, src, err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return mapOSError(storekit.OpCopy, src, err)
	}
	if srcInfo.IsDir() {
		return storekit.PathErr(storekit.KindIsADirectory, storekit.OpCopy, src, nil)
	}

	// Create destination directory if needed
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return mapOSError(storekit.OpCopy, dst, err)
	}

	dstFile, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return mapOSError(storekit.OpCopy, dst, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return mapOSError(storekit.OpCopy, dst, err)
	}
	return nil
}

// Move implements storekit.CanMove for native file moving/renaming.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath, err := a.resolve(storekit.OpMove, src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolve(storekit.OpMove, dst)
	if err != nil {
		return err
	}

	if _, err := os.Stat(srcPath); err != nil {
		return mapOSError(storekit.OpMove, src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return mapOSError(storekit.OpMove, dst, err)
	}

	// Try rename first (works if same filesystem)
	if err := os.Rename(srcPath, dstPath); err != nil {
		// If rename fails (cross-device), fall back to copy+delete
		if err := a.Copy(ctx, src, dst); err != nil {
			return err
		}
		if err := os.Remove(srcPath); err != nil {
			return mapOSError(storekit.OpMove, src, err)
		}
	}
	return nil
}

// ============================================================================
// Lister
// ============================================================================

// lister reads one directory at a time. pending holds directory keys (with a
// trailing "/", root as "") still to be opened.
type lister struct {
	root       string
	recursive  bool
	startAfter string

	pending []string
	dir     string
	f       *os.File
	buf     []os.DirEntry
	done    bool
}

func (l *lister) Next(ctx context.Context) (*storekit.Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			l.close()
			return nil, err
		}
		if l.done {
			return nil, nil
		}

		if len(l.buf) == 0 {
			if err := l.fill(); err != nil {
				l.close()
				l.done = true
				return nil, err
			}
			continue
		}

		de := l.buf[0]
		l.buf = l.buf[1:]

		full := filepath.Join(l.root, filepath.FromSlash(l.dir), de.Name())
		info, err := os.Stat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Removed since the directory was read, or a dangling link
				continue
			}
			l.close()
			l.done = true
			return nil, mapOSError(storekit.OpListerNext, l.dir+de.Name(), err)
		}

		key := l.dir + de.Name()
		if info.IsDir() {
			key += "/"
			if l.recursive {
				l.pending = append(l.pending, key)
			}
		}
		if l.startAfter != "" && key <= l.startAfter {
			continue
		}

		meta := toMetadata(info, full)
		if !info.IsDir() {
			meta.ContentType = mime.TypeByExtension(filepath.Ext(de.Name()))
		}
		return storekit.NewEntry(key, meta), nil
	}
}

// fill loads the next batch of entries, opening the next pending directory
// when the current one is drained.
func (l *lister) fill() error {
	for {
		if l.f == nil {
			if len(l.pending) == 0 {
				l.done = true
				return nil
			}
			// Depth first: take the most recently discovered directory
			l.dir = l.pending[len(l.pending)-1]
			l.pending = l.pending[:len(l.pending)-1]

			f, err := os.Open(filepath.Join(l.root, filepath.FromSlash(l.dir)))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return mapOSError(storekit.OpList, l.dir, err)
			}
			l.f = f
		}

		entries, err := l.f.ReadDir(listBatch)
		if len(entries) > 0 {
			l.buf = entries
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return mapOSError(storekit.OpList, l.dir, err)
		}
		l.close()
	}
}

func (l *lister) close() {
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
}

// ============================================================================
// Helpers
// ============================================================================

func toMetadata(info os.FileInfo, full string) *storekit.Metadata {
	meta := &storekit.Metadata{
		LastModified: info.ModTime(),
		UserMetadata: platformMetadata(info),
	}
	if info.IsDir() {
		meta.Mode = storekit.ModeDir
		return meta
	}
	meta.Mode = storekit.ModeFile
	meta.ContentLength = info.Size()
	return meta
}

func isEmptyDir(full string) (bool, error) {
	f, err := os.Open(full)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

func mapOSError(op storekit.Operation, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return storekit.PathErr(storekit.KindNotFound, op, path, err)
	case errors.Is(err, fs.ErrExist):
		return storekit.PathErr(storekit.KindAlreadyExists, op, path, err)
	case errors.Is(err, fs.ErrPermission):
		return storekit.PathErr(storekit.KindPermissionDenied, op, path, err)
	default:
		return storekit.PathErr(storekit.KindUnexpected, op, path, err)
	}
}

func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// getContentType tries to determine the content type of a file
func getContentType(path string) string {
	// Try to determine content type from extension
	ext := filepath.Ext(path)
	if ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	// Try to determine content type by reading file header
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	// Read a small slice of the file to detect content type
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}

	return http.DetectContentType(buffer[:n])
}

var (
	_ storekit.Accessor = (*Adapter)(nil)
	_ storekit.CanCopy  = (*Adapter)(nil)
	_ storekit.CanMove  = (*Adapter)(nil)
	_ storekit.Lister   = (*lister)(nil)
)
