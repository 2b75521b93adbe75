package storekit

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MountScheme identifies a MountAccessor in errors and logs.
const MountScheme = "mount"

// MountAccessor provides virtual path namespacing for multiple accessors.
// It routes each path to the accessor mounted at its longest matching
// prefix, so nested mounts work. Directories above mount points exist only
// virtually: they can be listed and stat'ed but not written to.
//
//	mounts := storekit.NewMountAccessor()
//	mounts.Mount("local", localDriver)
//	mounts.Mount("cloud", s3Driver)
//	mounts.Mount("cloud/archive", glacierDriver)
//	op := storekit.NewOperator(mounts, storekit.SanityCheckLayer{})
type MountAccessor struct {
	mu     sync.RWMutex
	mounts map[string]Accessor
	// sorted mount paths for longest-prefix matching
	sortedPaths []string
	info        *AccessorInfo
}

// NewMountAccessor creates an empty mount table.
func NewMountAccessor() *MountAccessor {
	return &MountAccessor{
		mounts: make(map[string]Accessor),
		info: NewAccessorInfo(MountScheme, WithCapability(Capability{
			Stat:          true,
			Read:          true,
			Write:         true,
			Delete:        true,
			CreateDir:     true,
			List:          true,
			ListRecursive: true,
			Copy:          true,
			Move:          true,
			Presign:       true,
		})),
	}
}

// Mount attaches acc at mountPath. Leading and trailing slashes are ignored;
// the root itself cannot be a mount point.
func (m *MountAccessor) Mount(mountPath string, acc Accessor) error {
	if acc == nil {
		return NewError(KindConfigInvalid, "accessor cannot be nil").WithContext("mount", mountPath)
	}

	mountPath = normalizeMountPath(mountPath)
	if mountPath == "" {
		return NewError(KindConfigInvalid, "mount path cannot be empty")
	}
	if err := CheckPath(OpUnknown, mountPath); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; exists {
		return NewError(KindAlreadyExists, "mount point already exists").WithContext("mount", mountPath)
	}

	m.mounts[mountPath] = acc
	m.updateSortedPaths()
	return nil
}

// Unmount detaches the accessor at mountPath and returns it. The accessor is
// not closed.
func (m *MountAccessor) Unmount(mountPath string) (Accessor, error) {
	mountPath = normalizeMountPath(mountPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, exists := m.mounts[mountPath]
	if !exists {
		return nil, NewError(KindNotFound, "mount point not found").WithContext("mount", mountPath)
	}

	delete(m.mounts, mountPath)
	m.updateSortedPaths()
	return acc, nil
}

// MountPaths returns all mount paths, longest first.
func (m *MountAccessor) MountPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, len(m.sortedPaths))
	copy(result, m.sortedPaths)
	return result
}

// resolve finds the mount serving p and the path inside it. ok is false when
// p lies above or beside every mount point.
func (m *MountAccessor) resolve(p string) (acc Accessor, mountPath, inner string, ok bool) {
	rel := RelPath(p)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mp := range m.sortedPaths {
		if strings.HasPrefix(rel, mp+"/") {
			inner = rel[len(mp)+1:]
			if inner == "" {
				inner = "/"
			}
			return m.mounts[mp], mp, inner, true
		}
	}
	return nil, "", "", false
}

// updateSortedPaths must be called with the lock held.
func (m *MountAccessor) updateSortedPaths() {
	paths := make([]string, 0, len(m.mounts))
	for p := range m.mounts {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
	m.sortedPaths = paths
}

// normalizeMountPath cleans p and strips its leading and trailing slashes.
func normalizeMountPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return strings.Trim(path.Clean(p), "/")
}

// virtualDirs returns the virtual directories strictly below dir that lead
// to a mount point. With recursive unset only the direct children are
// returned. dir is "" for the root or ends with "/".
func (m *MountAccessor) virtualDirs(dir string, recursive bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var dirs []string
	for mp := range m.mounts {
		full := mp + "/"
		if !strings.HasPrefix(full, dir) || full == dir {
			continue
		}
		remaining := strings.TrimPrefix(full, dir)
		parts := strings.Split(strings.TrimSuffix(remaining, "/"), "/")
		if !recursive {
			parts = parts[:1]
		}
		current := dir
		for _, part := range parts {
			current += part + "/"
			if !seen[current] {
				seen[current] = true
				dirs = append(dirs, current)
			}
		}
	}
	sort.Strings(dirs)
	return dirs
}

type mountPoint struct {
	path string
	acc  Accessor
}

// mountsBelow returns the mount points at or below dir, sorted by path.
func (m *MountAccessor) mountsBelow(dir string) []mountPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []mountPoint
	for mp, acc := range m.mounts {
		if strings.HasPrefix(mp+"/", dir) {
			out = append(out, mountPoint{path: mp, acc: acc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (m *MountAccessor) isVirtualDir(dir string) bool {
	return dir == "" || len(m.virtualDirs(dir, false)) > 0
}

func noMount(op Operation, p string) *Error {
	return NewError(KindNotFound, "no mount point found for path").
		WithOperation(op).
		WithContext("path", p)
}

// ============================================================================
// Accessor Implementation
// ============================================================================

// Info implements Accessor
func (m *MountAccessor) Info() *AccessorInfo {
	return m.info
}

// Stat routes to the mount, or reports a virtual directory.
func (m *MountAccessor) Stat(ctx context.Context, p string, opts ...StatOption) (*Metadata, error) {
	if acc, _, inner, ok := m.resolve(p); ok {
		return acc.Stat(ctx, inner, opts...)
	}

	rel := RelPath(p)
	if IsDirectoryPath(p) {
		if m.isVirtualDir(rel) {
			return NewMetadata(ModeDir), nil
		}
		return nil, noMount(OpStat, p)
	}
	if m.isVirtualDir(EnsureDir(rel)) || m.isMountPoint(rel) {
		return nil, PathErr(KindIsADirectory, OpStat, p, nil)
	}
	return nil, noMount(OpStat, p)
}

func (m *MountAccessor) isMountPoint(rel string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mounts[normalizeMountPath(rel)]
	return ok
}

// List lists inside a mount, prefixing every entry with its mount path.
// Above the mounts it yields the virtual directories; a recursive listing
// there also descends into every mount below.
func (m *MountAccessor) List(ctx context.Context, p string, opts ...ListOption) (Lister, error) {
	o := ApplyListOptions(opts...)

	// StartAfter is an absolute path, so it is applied after the prefix is
	// restored rather than handed to the mount.
	if acc, mp, inner, ok := m.resolve(EnsureDir(p)); ok {
		l, err := acc.List(ctx, inner, WithRecursive(o.Recursive), WithLimit(o.Limit))
		if err != nil {
			return nil, err
		}
		return &mountLister{inner: l, mountPath: mp, startAfter: o.StartAfter}, nil
	}

	dir := RelPath(EnsureDir(p))
	if !m.isVirtualDir(dir) {
		return nil, noMount(OpList, p)
	}

	var entries []*Entry
	for _, d := range m.virtualDirs(dir, o.Recursive) {
		if o.StartAfter != "" && d <= o.StartAfter {
			continue
		}
		entries = append(entries, NewEntry(d, NewMetadata(ModeDir)))
	}

	chain := &chainLister{current: NewSliceLister(entries)}
	if o.Recursive {
		for _, mp := range m.mountsBelow(dir) {
			chain.pending = append(chain.pending, func(ctx context.Context) (Lister, error) {
				l, err := mp.acc.List(ctx, "/", WithRecursive(true), WithLimit(o.Limit))
				if err != nil {
					return nil, err
				}
				return &mountLister{inner: l, mountPath: mp.path, startAfter: o.StartAfter}, nil
			})
		}
	}
	return chain, nil
}

// Read routes to the mount.
func (m *MountAccessor) Read(ctx context.Context, p string, opts ...ReadOption) (io.ReadCloser, error) {
	acc, _, inner, ok := m.resolve(p)
	if !ok {
		return nil, noMount(OpRead, p)
	}
	return acc.Read(ctx, inner, opts...)
}

// Write routes to the mount. The reported path carries the mount prefix.
func (m *MountAccessor) Write(ctx context.Context, p string, r io.Reader, opts ...Option) (*WriteResult, error) {
	acc, mp, inner, ok := m.resolve(p)
	if !ok {
		return nil, noMount(OpWrite, p)
	}
	res, err := acc.Write(ctx, inner, r, opts...)
	if err != nil {
		return nil, err
	}
	if res != nil {
		out := *res
		out.Path = Join(mp, res.Path)
		res = &out
	}
	return res, nil
}

// Delete routes to the mount. Virtual directories cannot be deleted.
func (m *MountAccessor) Delete(ctx context.Context, p string) error {
	acc, _, inner, ok := m.resolve(p)
	if !ok {
		if IsDirectoryPath(p) && m.isVirtualDir(RelPath(p)) {
			return NewError(KindPermissionDenied, "cannot delete a mount point").
				WithOperation(OpDelete).
				WithContext("path", p)
		}
		return noMount(OpDelete, p)
	}
	return acc.Delete(ctx, inner)
}

// CreateDir routes to the mount. Virtual directories already exist.
func (m *MountAccessor) CreateDir(ctx context.Context, p string) error {
	acc, _, inner, ok := m.resolve(p)
	if !ok {
		if m.isVirtualDir(RelPath(EnsureDir(p))) {
			return nil
		}
		return noMount(OpCreateDir, p)
	}
	return acc.CreateDir(ctx, inner)
}

// ============================================================================
// Cross-Mount Operations
// ============================================================================

// Copy uses the backend's native copy within one mount and streams the
// content across mounts, carrying content type and user metadata.
func (m *MountAccessor) Copy(ctx context.Context, src, dst string) error {
	srcAcc, _, srcInner, ok := m.resolve(src)
	if !ok {
		return noMount(OpCopy, src)
	}
	dstAcc, _, dstInner, ok := m.resolve(dst)
	if !ok {
		return noMount(OpCopy, dst)
	}

	if srcAcc == dstAcc && srcAcc.Info().Capability().Copy {
		if c, ok := srcAcc.(CanCopy); ok {
			return c.Copy(ctx, srcInner, dstInner)
		}
	}

	meta, err := srcAcc.Stat(ctx, srcInner)
	if err != nil {
		return err
	}

	rc, err := srcAcc.Read(ctx, srcInner)
	if err != nil {
		return err
	}
	defer rc.Close()

	var opts []Option
	if meta.ContentType != "" {
		opts = append(opts, WithContentType(meta.ContentType))
	}
	if len(meta.UserMetadata) > 0 {
		opts = append(opts, WithMetadata(meta.UserMetadata))
	}
	if meta.CacheControl != "" {
		opts = append(opts, WithCacheControl(meta.CacheControl))
	}

	_, err = dstAcc.Write(ctx, dstInner, rc, opts...)
	return err
}

// Move uses the backend's native move within one mount and falls back to
// copy and delete otherwise.
func (m *MountAccessor) Move(ctx context.Context, src, dst string) error {
	srcAcc, _, srcInner, ok := m.resolve(src)
	if !ok {
		return noMount(OpMove, src)
	}
	dstAcc, _, dstInner, ok := m.resolve(dst)
	if !ok {
		return noMount(OpMove, dst)
	}

	if srcAcc == dstAcc && srcAcc.Info().Capability().Move {
		if mv, ok := srcAcc.(CanMove); ok {
			return mv.Move(ctx, srcInner, dstInner)
		}
	}

	if err := m.Copy(ctx, src, dst); err != nil {
		return err
	}
	return srcAcc.Delete(ctx, srcInner)
}

// SignedURL delegates to the mount if it can presign.
func (m *MountAccessor) SignedURL(ctx context.Context, p string, expires time.Duration) (string, error) {
	acc, _, inner, ok := m.resolve(p)
	if !ok {
		return "", noMount(OpPresign, p)
	}
	return delegateSignedURL(ctx, acc, inner, expires, false)
}

// SignedUploadURL delegates to the mount if it can presign.
func (m *MountAccessor) SignedUploadURL(ctx context.Context, p string, expires time.Duration) (string, error) {
	acc, _, inner, ok := m.resolve(p)
	if !ok {
		return "", noMount(OpPresign, p)
	}
	return delegateSignedURL(ctx, acc, inner, expires, true)
}

// Close closes every mounted accessor.
func (m *MountAccessor) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, mp := range m.sortedPaths {
		if err := delegateClose(m.mounts[mp]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ============================================================================
// Listers
// ============================================================================

// mountLister rewrites entry paths from mount-relative to absolute and
// drops entries at or before startAfter.
type mountLister struct {
	inner      Lister
	mountPath  string
	startAfter string
}

// Next implements Lister
func (l *mountLister) Next(ctx context.Context) (*Entry, error) {
	for {
		e, err := l.inner.Next(ctx)
		if err != nil || e == nil {
			return nil, err
		}
		p := Join(l.mountPath, RelPath(e.Path))
		if l.startAfter != "" && p <= l.startAfter {
			continue
		}
		return NewEntry(p, e.Metadata), nil
	}
}

// chainLister drains current, then opens each pending lister in turn.
type chainLister struct {
	current Lister
	pending []func(ctx context.Context) (Lister, error)
}

// Next implements Lister
func (l *chainLister) Next(ctx context.Context) (*Entry, error) {
	for {
		if l.current != nil {
			e, err := l.current.Next(ctx)
			if err != nil || e != nil {
				return e, err
			}
			l.current = nil
		}
		if len(l.pending) == 0 {
			return nil, nil
		}
		open := l.pending[0]
		l.pending = l.pending[1:]
		next, err := open(ctx)
		if err != nil {
			return nil, err
		}
		l.current = next
	}
}

var (
	_ Accessor   = (*MountAccessor)(nil)
	_ CanCopy    = (*MountAccessor)(nil)
	_ CanMove    = (*MountAccessor)(nil)
	_ CanSignURL = (*MountAccessor)(nil)
	_ io.Closer  = (*MountAccessor)(nil)
	_ Lister     = (*mountLister)(nil)
	_ Lister     = (*chainLister)(nil)
)
