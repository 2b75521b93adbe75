// Package memory provides an in-memory storekit accessor. Keys are kept in a
// B-tree so listings come out sorted and resume cheaply from any key.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/btree"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "memory"

// object is a stored file or directory marker
type object struct {
	dir          bool
	content      []byte
	contentType  string
	cacheControl string
	metadata     map[string]string
	etag         string
	modTime      time.Time
}

func (o *object) toMetadata() *storekit.Metadata {
	if o.dir {
		return &storekit.Metadata{Mode: storekit.ModeDir, LastModified: o.modTime}
	}
	return &storekit.Metadata{
		Mode:          storekit.ModeFile,
		ContentLength: int64(len(o.content)),
		ContentType:   o.contentType,
		ETag:          o.etag,
		LastModified:  o.modTime,
		CacheControl:  o.cacheControl,
		UserMetadata:  o.metadata,
	}
}

// Adapter provides an in-memory implementation of storekit.Accessor.
// Useful for testing and caching scenarios
type Adapter struct {
	mu      sync.RWMutex
	tree    *btree.Map[string, *object]
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size
	info    *storekit.AccessorInfo
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	return &Adapter{
		tree:    btree.NewMap[string, *object](0),
		maxSize: maxSize,
		info: storekit.NewAccessorInfo(Scheme, storekit.WithCapability(storekit.Capability{
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
	}
}

// Info implements storekit.Accessor
func (a *Adapter) Info() *storekit.AccessorInfo {
	return a.info
}

// Size returns the total number of content bytes stored.
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// Stat implements storekit.Accessor
func (a *Adapter) Stat(ctx context.Context, path string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(path)
	if err := storekit.CheckPath(storekit.OpStat, key); err != nil {
		return nil, err
	}
	if key == "" {
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	a.mu.RLock()
	obj, ok := a.tree.Get(key)
	a.mu.RUnlock()
	if !ok {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpStat, path, nil)
	}

	meta := obj.toMetadata()
	if !storekit.ApplyStatOptions(opts...).CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, path, nil).
			WithContext("etag", meta.ETag)
	}
	return meta, nil
}

// Read implements storekit.Accessor
func (a *Adapter) Read(ctx context.Context, path string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(path)
	if err := storekit.CheckPath(storekit.OpRead, key); err != nil {
		return nil, err
	}
	if key == "" || storekit.IsDirectoryPath(key) {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, path, nil)
	}

	a.mu.RLock()
	obj, ok := a.tree.Get(key)
	a.mu.RUnlock()
	if !ok {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpRead, path, nil)
	}

	data := obj.content
	ro := storekit.ApplyReadOptions(opts...)
	if ro.IsRange() {
		if ro.Offset > int64(len(data)) {
			return nil, storekit.NewError(storekit.KindConditionNotMatch, "range start beyond end of file").
				WithOperation(storekit.OpRead).
				WithContext("path", path)
		}
		data = data[ro.Offset:]
		if ro.Length >= 0 && ro.Length < int64(len(data)) {
			data = data[:ro.Length]
		}
	}

	// Stored content is never mutated in place, so no copy is needed
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Write implements storekit.Accessor
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(path)
	if err := storekit.CheckPath(storekit.OpWrite, key); err != nil {
		return nil, err
	}
	if key == "" || storekit.IsDirectoryPath(key) {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, path, nil)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpWrite, path, err)
	}

	opts := storekit.ApplyOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.tree.Get(key + "/"); isDir {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, path, nil)
	}

	var oldSize int64
	if existing, exists := a.tree.Get(key); exists {
		if opts.IfNotExists {
			return nil, storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, path, nil)
		}
		oldSize = int64(len(existing.content))
	}

	newSize := a.size - oldSize + int64(len(data))
	if a.maxSize > 0 && newSize > a.maxSize {
		return nil, storekit.PathErr(storekit.KindNoSpace, storekit.OpWrite, path, nil).
			WithContext("max_size", fmt.Sprint(a.maxSize))
	}

	if err := a.ensureParentDirs(storekit.OpWrite, key); err != nil {
		return nil, err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = detectContentType(key, data)
	}

	obj := &object{
		content:      data,
		contentType:  contentType,
		cacheControl: opts.CacheControl,
		metadata:     opts.Metadata,
		etag:         etagOf(data),
		modTime:      time.Now(),
	}
	a.tree.Set(key, obj)
	a.size = newSize

	return &storekit.WriteResult{
		Path:         key,
		BytesWritten: int64(len(data)),
		ETag:         obj.etag,
	}, nil
}

// Delete implements storekit.Accessor. Directories must be empty.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := storekit.RelPath(path)
	if err := storekit.CheckPath(storekit.OpDelete, key); err != nil {
		return err
	}
	if key == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, path, nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	obj, exists := a.tree.Get(key)
	if !exists {
		return storekit.PathErr(storekit.KindNotFound, storekit.OpDelete, path, nil)
	}

	if obj.dir && a.hasChildren(key) {
		return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, path, nil)
	}

	a.size -= int64(len(obj.content))
	a.tree.Delete(key)
	return nil
}

// CreateDir implements storekit.Accessor
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := storekit.RelPath(path)
	if err := storekit.CheckPath(storekit.OpCreateDir, key); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	key = storekit.EnsureDir(key)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.tree.Get(strings.TrimSuffix(key, "/")); exists {
		return storekit.PathErr(storekit.KindNotADirectory, storekit.OpCreateDir, path, nil)
	}
	if err := a.ensureParentDirs(storekit.OpCreateDir, key); err != nil {
		return err
	}
	if _, exists := a.tree.Get(key); !exists {
		a.tree.Set(key, &object{dir: true, modTime: time.Now()})
	}
	return nil
}

// List implements storekit.Accessor
func (a *Adapter) List(ctx context.Context, path string, opts ...storekit.ListOption) (storekit.Lister, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := storekit.RelPath(path)
	if err := storekit.CheckPath(storekit.OpList, key); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if key != "" {
		if !storekit.IsDirectoryPath(key) {
			if _, isFile := a.tree.Get(key); isFile {
				return nil, storekit.PathErr(storekit.KindNotADirectory, storekit.OpList, path, nil)
			}
			key += "/"
		}
		if _, exists := a.tree.Get(key); !exists {
			return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpList, path, nil)
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
	obj, _ := a.tree.Delete(storekit.RelPath(src))
	if obj != nil {
		a.size -= int64(len(obj.content))
	}
	return nil
}

func (a *Adapter) copyLocked(op storekit.Operation, src, dst string) error {
	srcKey, dstKey := storekit.RelPath(src), storekit.RelPath(dst)
	for _, k := range []string{srcKey, dstKey} {
		if err := storekit.CheckPath(op, k); err != nil {
			return err
		}
		if k == "" || storekit.IsDirectoryPath(k) {
			return storekit.PathErr(storekit.KindIsADirectory, op, k, nil)
		}
	}

	obj, exists := a.tree.Get(srcKey)
	if !exists {
		return storekit.PathErr(storekit.KindNotFound, op, src, nil)
	}

	var oldSize int64
	if existing, ok := a.tree.Get(dstKey); ok {
		oldSize = int64(len(existing.content))
	}
	newSize := a.size - oldSize + int64(len(obj.content))
	if a.maxSize > 0 && newSize > a.maxSize {
		return storekit.PathErr(storekit.KindNoSpace, op, dst, nil)
	}
	if err := a.ensureParentDirs(op, dstKey); err != nil {
		return err
	}

	cp := *obj
	cp.modTime = time.Now()
	a.tree.Set(dstKey, &cp)
	a.size = newSize
	return nil
}

// ensureParentDirs creates a directory marker for every ancestor of key.
// It fails if an ancestor is already a file.
func (a *Adapter) ensureParentDirs(op storekit.Operation, key string) error {
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
			a.tree.Set(parent+"/", &object{dir: true, modTime: time.Now()})
		}
	}
	return nil
}

func (a *Adapter) hasChildren(dirKey string) bool {
	found := false
	a.tree.Ascend(dirKey, func(k string, _ *object) bool {
		if k == dirKey {
			return true
		}
		found = strings.HasPrefix(k, dirKey)
		return false
	})
	return found
}

// lister walks the tree one key at a time, re-seeking from the last key it
// returned. Writes made during a listing are visible if they sort later.
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

	var entry *storekit.Entry
	l.adapter.mu.RLock()
	l.adapter.tree.Ascend(pivot, func(k string, o *object) bool {
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
		entry = storekit.NewEntry(k, o.toMetadata())
		return false
	})
	l.adapter.mu.RUnlock()

	if entry == nil {
		l.done = true
		return nil, nil
	}
	l.last = entry.Path
	return entry, nil
}

func etagOf(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// detectContentType determines the content type of a file
func detectContentType(path string, data []byte) string {
	// Try extension first
	ext := filepath.Ext(path)
	if ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	// Fall back to content detection
	if len(data) > 0 {
		return http.DetectContentType(data)
	}

	return "application/octet-stream"
}

var (
	_ storekit.Accessor = (*Adapter)(nil)
	_ storekit.CanCopy  = (*Adapter)(nil)
	_ storekit.CanMove  = (*Adapter)(nil)
	_ storekit.Lister   = (*lister)(nil)
)
