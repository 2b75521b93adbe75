// Package zip provides a storekit accessor over a ZIP archive. Directory
// entries in ZIP files already end with "/", so archive names map directly
// onto storekit paths.
package zip

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "zip"

// entry is a file or directory in the archive index. Archive files opened
// read-only keep a reference to their zip.File and are decompressed on read;
// everything else lives in content.
type entry struct {
	dir     bool
	file    *zip.File
	content []byte
	size    int64
	crc     uint32
	modTime time.Time
}

func (e *entry) toMetadata(key string) *storekit.Metadata {
	if e.dir {
		return &storekit.Metadata{Mode: storekit.ModeDir, LastModified: e.modTime}
	}
	meta := &storekit.Metadata{
		Mode:          storekit.ModeFile,
		ContentLength: e.size,
		ETag:          fmt.Sprintf("%08x", e.crc),
		LastModified:  e.modTime,
		ContentType:   mime.TypeByExtension(path.Ext(key)),
	}
	if meta.ContentType == "" && e.content != nil {
		meta.ContentType = http.DetectContentType(e.content)
	}
	return meta
}

func (e *entry) open() (io.ReadCloser, error) {
	if e.file != nil {
		return e.file.Open()
	}
	return io.NopCloser(bytes.NewReader(e.content)), nil
}

// Adapter provides a ZIP archive implementation of storekit.Accessor.
// Changes are kept in memory and written back atomically by Close.
type Adapter struct {
	mu       sync.RWMutex
	path     string
	writable bool
	reader   *zip.ReadCloser
	tree     *btree.Map[string, *entry]
	modified bool
	closed   bool
	info     *storekit.AccessorInfo
}

func newAdapter(zipPath string, writable bool) *Adapter {
	return &Adapter{
		path:     zipPath,
		writable: writable,
		tree:     btree.NewMap[string, *entry](0),
		info: storekit.NewAccessorInfo(Scheme,
			storekit.WithRoot(zipPath),
			storekit.WithName(filepath.Base(zipPath)),
			storekit.WithCapability(storekit.Capability{
				Stat:          true,
				Read:          true,
				Write:         writable,
				Delete:        writable,
				CreateDir:     writable,
				List:          true,
				ListRecursive: true,
				Copy:          writable,
				Move:          writable,
			})),
	}
}

// Open opens an existing archive read-only. File content is decompressed
// lazily on each read.
func Open(zipPath string) (*Adapter, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, openError(zipPath, err)
	}

	a := newAdapter(zipPath, false)
	a.reader = reader
	for _, f := range reader.File {
		if err := a.index(f, nil); err != nil {
			reader.Close()
			return nil, err
		}
	}
	return a, nil
}

// OpenOrCreate opens an archive for reading and writing, creating it on
// Close if it does not exist yet. Existing content is loaded into memory.
func OpenOrCreate(zipPath string) (*Adapter, error) {
	a := newAdapter(zipPath, true)

	reader, err := zip.OpenReader(zipPath)
	if errors.Is(err, fs.ErrNotExist) {
		a.modified = true
		return a, nil
	}
	if err != nil {
		return nil, openError(zipPath, err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		var content []byte
		if !f.FileInfo().IsDir() {
			rc, err := f.Open()
			if err != nil {
				return nil, openError(zipPath, err)
			}
			content, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, openError(zipPath, err)
			}
		}
		if err := a.index(f, content); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func openError(zipPath string, err error) error {
	kind := storekit.KindUnexpected
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = storekit.KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = storekit.KindPermissionDenied
	case errors.Is(err, zip.ErrFormat):
		kind = storekit.KindConfigInvalid
	}
	return storekit.NewError(kind, "failed to open zip archive").
		WithContext("archive", zipPath).
		WithSource(err)
}

// index adds one archive member. content is nil for lazily read members.
func (a *Adapter) index(f *zip.File, content []byte) error {
	name := strings.TrimLeft(f.Name, "/")
	if name == "" || storekit.CheckPath(storekit.OpUnknown, name) != nil {
		// Members that would escape the archive root are ignored
		return nil
	}

	e := &entry{modTime: f.Modified, dir: f.FileInfo().IsDir()}
	if e.dir {
		name = storekit.EnsureDir(name)
	} else {
		e.size = int64(f.UncompressedSize64)
		e.crc = f.CRC32
		if content != nil {
			e.content = content
		} else {
			e.file = f
		}
	}

	if err := a.ensureParentDirs(storekit.OpUnknown, name, e.modTime); err != nil {
		return storekit.NewError(storekit.KindUnexpected, "archive member conflicts with a file").
			WithContext("archive", a.path).
			WithContext("member", f.Name)
	}
	a.tree.Set(name, e)
	return nil
}

// Info implements storekit.Accessor
func (a *Adapter) Info() *storekit.AccessorInfo {
	return a.info
}

func (a *Adapter) checkWritable(op storekit.Operation, p string) error {
	if !a.writable {
		return storekit.PathErr(storekit.KindReadOnly, op, p, nil).WithContext("archive", a.path)
	}
	if a.closed {
		return storekit.PathErr(storekit.KindUnexpected, op, p, errors.New("archive is closed"))
	}
	return nil
}

// Stat implements storekit.Accessor
func (a *Adapter) Stat(ctx context.Context, p string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpStat, key); err != nil {
		return nil, err
	}
	if key == "" {
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	a.mu.RLock()
	e, ok := a.tree.Get(key)
	a.mu.RUnlock()
	if !ok {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpStat, p, nil)
	}

	meta := e.toMetadata(key)
	if !storekit.ApplyStatOptions(opts...).CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, p, nil).
			WithContext("etag", meta.ETag)
	}
	return meta, nil
}

// Read implements storekit.Accessor
func (a *Adapter) Read(ctx context.Context, p string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpRead, key); err != nil {
		return nil, err
	}
	if key == "" || storekit.IsDirectoryPath(key) {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, p, nil)
	}

	a.mu.RLock()
	e, ok := a.tree.Get(key)
	a.mu.RUnlock()
	if !ok {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpRead, p, nil)
	}

	ro := storekit.ApplyReadOptions(opts...)
	if e.file == nil {
		data := e.content
		if ro.Offset >= int64(len(data)) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		data = data[ro.Offset:]
		if ro.Length >= 0 && ro.Length < int64(len(data)) {
			data = data[:ro.Length]
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	rc, err := e.open()
	if err != nil {
		return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpRead, p, err)
	}
	if !ro.IsRange() {
		return rc, nil
	}

	// Deflate streams cannot seek, so skip to the offset
	if _, err := io.CopyN(io.Discard, rc, ro.Offset); err != nil && err != io.EOF {
		rc.Close()
		return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpRead, p, err)
	}
	var r io.Reader = rc
	if ro.Length >= 0 {
		r = io.LimitReader(rc, ro.Length)
	}
	return struct {
		io.Reader
		io.Closer
	}{r, rc}, nil
}

// Write implements storekit.Accessor
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpWrite, key); err != nil {
		return nil, err
	}
	if key == "" || storekit.IsDirectoryPath(key) {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, p, nil)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpWrite, p, err)
	}
	opts := storekit.ApplyOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkWritable(storekit.OpWrite, p); err != nil {
		return nil, err
	}
	if _, isDir := a.tree.Get(key + "/"); isDir {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, p, nil)
	}
	if _, exists := a.tree.Get(key); exists && opts.IfNotExists {
		return nil, storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, p, nil)
	}

	now := time.Now()
	if err := a.ensureParentDirs(storekit.OpWrite, key, now); err != nil {
		return nil, err
	}

	e := &entry{
		content: data,
		size:    int64(len(data)),
		crc:     crc32.ChecksumIEEE(data),
		modTime: now,
	}
	a.tree.Set(key, e)
	a.modified = true

	return &storekit.WriteResult{
		Path:         key,
		BytesWritten: e.size,
		ETag:         fmt.Sprintf("%08x", e.crc),
	}, nil
}

// Delete implements storekit.Accessor. Directories must be empty.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpDelete, key); err != nil {
		return err
	}
	if key == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, p, nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkWritable(storekit.OpDelete, p); err != nil {
		return err
	}
	e, exists := a.tree.Get(key)
	if !exists {
		return storekit.PathErr(storekit.KindNotFound, storekit.OpDelete, p, nil)
	}
	if e.dir && a.hasChildren(key) {
		return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, p, nil)
	}

	a.tree.Delete(key)
	a.modified = true
	return nil
}

// CreateDir implements storekit.Accessor
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpCreateDir, key); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkWritable(storekit.OpCreateDir, p); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	key = storekit.EnsureDir(key)

	if _, exists := a.tree.Get(strings.TrimSuffix(key, "/")); exists {
		return storekit.PathErr(storekit.KindNotADirectory, storekit.OpCreateDir, p, nil)
	}
	now := time.Now()
	if err := a.ensureParentDirs(storekit.OpCreateDir, key, now); err != nil {
		return err
	}
	if _, exists := a.tree.Get(key); !exists {
		a.tree.Set(key, &entry{dir: true, modTime: now})
		a.modified = true
	}
	return nil
}

// List implements storekit.Accessor
func (a *Adapter) List(ctx context.Context, p string, opts ...storekit.ListOption) (storekit.Lister, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(p)
	if err := storekit.CheckPath(storekit.OpList, key); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if key != "" {
		if !storekit.IsDirectoryPath(key) {
			if _, isFile := a.tree.Get(key); isFile {
				return nil, storekit.PathErr(storekit.KindNotADirectory, storekit.OpList, p, nil)
			}
			key += "/"
		}
		if _, exists := a.tree.Get(key); !exists {
			return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpList, p, nil)
		}
	}

	lo := storekit.ApplyListOptions(opts...)
	return &lister{
		adapter:   a,
		prefix:    key,
		recursive: lo.Recursive,
		last:      lo.StartAfter,
	}, nil
}

// Copy implements storekit.CanCopy
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked(storekit.OpCopy, src, dst)
}

// Move implements storekit.CanMove
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if storekit.RelPath(src) == storekit.RelPath(dst) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.copyLocked(storekit.OpMove, src, dst); err != nil {
		return err
	}
	a.tree.Delete(storekit.RelPath(src))
	return nil
}

func (a *Adapter) copyLocked(op storekit.Operation, src, dst string) error {
	if err := a.checkWritable(op, src); err != nil {
		return err
	}

	srcKey, dstKey := storekit.RelPath(src), storekit.RelPath(dst)
	for _, k := range []string{srcKey, dstKey} {
		if err := storekit.CheckPath(op, k); err != nil {
			return err
		}
		if k == "" || storekit.IsDirectoryPath(k) {
			return storekit.PathErr(storekit.KindIsADirectory, op, k, nil)
		}
	}

	e, exists := a.tree.Get(srcKey)
	if !exists {
		return storekit.PathErr(storekit.KindNotFound, op, src, nil)
	}

	now := time.Now()
	if err := a.ensureParentDirs(op, dstKey, now); err != nil {
		return err
	}

	cp := *e
	cp.modTime = now
	a.tree.Set(dstKey, &cp)
	a.modified = true
	return nil
}

// Close writes pending changes back to the archive and releases it.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.writable && a.modified {
		if err := a.rewrite(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.reader != nil {
		if err := a.reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rewrite writes every indexed entry to a temporary file next to the
// archive and renames it into place.
func (a *Adapter) rewrite() (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(a.path), filepath.Base(a.path)+".*.tmp")
	if err != nil {
		return storekit.NewError(storekit.KindUnexpected, "failed to create temp archive").
			WithContext("archive", a.path).
			WithSource(err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := zip.NewWriter(tmp)
	a.tree.Scan(func(name string, e *entry) bool {
		err = writeMember(w, name, e)
		return err == nil
	})
	if err != nil {
		return storekit.NewError(storekit.KindUnexpected, "failed to write archive member").
			WithContext("archive", a.path).
			WithSource(err)
	}

	if err = w.Close(); err != nil {
		return storekit.NewError(storekit.KindUnexpected, "failed to finalize archive").
			WithContext("archive", a.path).
			WithSource(err)
	}
	if err = tmp.Close(); err != nil {
		return storekit.NewError(storekit.KindUnexpected, "failed to finalize archive").
			WithContext("archive", a.path).
			WithSource(err)
	}
	if err = os.Rename(tmp.Name(), a.path); err != nil {
		return storekit.NewError(storekit.KindUnexpected, "failed to replace archive").
			WithContext("archive", a.path).
			WithSource(err)
	}
	a.modified = false
	return nil
}

func writeMember(w *zip.Writer, name string, e *entry) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: e.modTime,
	}
	if e.dir {
		header.Method = zip.Store
		header.SetMode(fs.ModeDir | 0o755)
		_, err := w.CreateHeader(header)
		return err
	}

	header.SetMode(0o644)
	fw, err := w.CreateHeader(header)
	if err != nil {
		return err
	}
	rc, err := e.open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(fw, rc)
	return err
}

// ensureParentDirs creates a directory entry for every ancestor of key.
// It fails if an ancestor is already a file.
func (a *Adapter) ensureParentDirs(op storekit.Operation, key string, modTime time.Time) error {
	trimmed := strings.TrimSuffix(key, "/")
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != '/' {
			continue
		}
		parent := trimmed[:i]
		if _, isFile := a.tree.Get(parent); isFile {
			return storekit.PathErr(storekit.KindNotADirectory, op, parent, nil)
		}
		if _, exists := a.tree.Get(parent + "/"); !exists {
			a.tree.Set(parent+"/", &entry{dir: true, modTime: modTime})
		}
	}
	return nil
}

func (a *Adapter) hasChildren(dirKey string) bool {
	found := false
	a.tree.Ascend(dirKey, func(k string, _ *entry) bool {
		if k == dirKey {
			return true
		}
		found = strings.HasPrefix(k, dirKey)
		return false
	})
	return found
}

// lister walks the index one key at a time, re-seeking from the last key it
// returned.
type lister struct {
	adapter   *Adapter
	prefix    string
	recursive bool
	last      string
	done      bool
}

func (l *lister) Next(ctx context.Context) (*storekit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.done {
		return nil, nil
	}

	pivot := l.prefix
	if l.last > pivot {
		pivot = l.last
	}

	var next *storekit.Entry
	l.adapter.mu.RLock()
	l.adapter.tree.Ascend(pivot, func(k string, e *entry) bool {
		if !strings.HasPrefix(k, l.prefix) {
			return false
		}
		if k == l.prefix || (l.last != "" && k <= l.last) {
			return true
		}
		if !l.recursive {
			rest := k[len(l.prefix):]
			if i := strings.IndexByte(rest, '/'); i >= 0 && i != len(rest)-1 {
				return true
			}
		}
		next = storekit.NewEntry(k, e.toMetadata(k))
		return false
	})
	l.adapter.mu.RUnlock()

	if next == nil {
		l.done = true
		return nil, nil
	}
	l.last = next.Path
	return next, nil
}

var (
	_ storekit.Accessor = (*Adapter)(nil)
	_ storekit.CanCopy  = (*Adapter)(nil)
	_ storekit.CanMove  = (*Adapter)(nil)
	_ io.Closer         = (*Adapter)(nil)
	_ storekit.Lister   = (*lister)(nil)
)
