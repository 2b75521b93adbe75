// Package consul stores objects as values in the HashiCorp Consul KV store.
//
// Each file is one key holding its content. Directories are key prefixes;
// CreateDir writes an empty "dir/" key so empty directories survive. Consul
// caps values at 512KB, so this backend suits configuration and other small
// objects.
package consul

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/hashicorp/consul/api"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "consul"

// MaxValueSize is the largest value Consul accepts by default.
const MaxValueSize = 512 * 1024

// KV is the subset of *api.KV used by the adapter.
type KV interface {
	Get(key string, q *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
	Keys(prefix, separator string, q *api.QueryOptions) ([]string, *api.QueryMeta, error)
	Put(p *api.KVPair, q *api.WriteOptions) (*api.WriteMeta, error)
	CAS(p *api.KVPair, q *api.WriteOptions) (bool, *api.WriteMeta, error)
	Delete(key string, w *api.WriteOptions) (*api.WriteMeta, error)
}

// Adapter provides a Consul KV implementation of storekit.Accessor
type Adapter struct {
	kv     KV
	prefix string
	info   *storekit.AccessorInfo
}

// AdapterOption is a function that configures Consul Adapter
type AdapterOption func(*Adapter)

// WithPrefix roots the adapter at prefix inside the KV store
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		a.prefix = strings.Trim(prefix, "/")
		if a.prefix != "" {
			a.prefix += "/"
		}
	}
}

// New creates a new Consul adapter on top of kv, usually client.KV().
func New(kv KV, options ...AdapterOption) *Adapter {
	adapter := &Adapter{kv: kv}
	for _, option := range options {
		option(adapter)
	}

	adapter.info = storekit.NewAccessorInfo(Scheme,
		storekit.WithRoot("/"+adapter.prefix),
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
		}))
	return adapter
}

func (a *Adapter) key(p string) string {
	return a.prefix + storekit.RelPath(p)
}

func (a *Adapter) check(ctx context.Context, op storekit.Operation, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return storekit.CheckPath(op, storekit.RelPath(p))
}

// Info implements storekit.Accessor
func (a *Adapter) Info() *storekit.AccessorInfo {
	return a.info
}

// Stat implements storekit.Accessor
func (a *Adapter) Stat(ctx context.Context, p string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	if err := a.check(ctx, storekit.OpStat, p); err != nil {
		return nil, err
	}
	rel := storekit.RelPath(p)
	if rel == "" {
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	q := (&api.QueryOptions{}).WithContext(ctx)
	pair, _, err := a.kv.Get(a.key(p), q)
	if err != nil {
		return nil, mapConsulError(storekit.OpStat, p, err)
	}

	if storekit.IsDirectoryPath(p) {
		if pair == nil {
			keys, _, err := a.kv.Keys(a.key(p), "/", q)
			if err != nil {
				return nil, mapConsulError(storekit.OpStat, p, err)
			}
			if len(keys) == 0 {
				return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpStat, p, nil)
			}
		}
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	if pair == nil {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpStat, p, nil)
	}

	meta := pairMetadata(pair)
	if !storekit.ApplyStatOptions(opts...).CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, p, nil)
	}
	return meta, nil
}

// Read implements storekit.Accessor
func (a *Adapter) Read(ctx context.Context, p string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	if storekit.IsDirectoryPath(p) || storekit.RelPath(p) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, p, nil)
	}
	if err := a.check(ctx, storekit.OpRead, p); err != nil {
		return nil, err
	}

	pair, _, err := a.kv.Get(a.key(p), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, mapConsulError(storekit.OpRead, p, err)
	}
	if pair == nil {
		return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpRead, p, nil)
	}

	value := pair.Value
	ro := storekit.ApplyReadOptions(opts...)
	if ro.Offset >= int64(len(value)) {
		value = nil
	} else {
		value = value[ro.Offset:]
		if ro.Length >= 0 && ro.Length < int64(len(value)) {
			value = value[:ro.Length]
		}
	}
	return io.NopCloser(bytes.NewReader(value)), nil
}

// Write implements storekit.Accessor. The whole value is buffered because
// Consul stores it in a single request.
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	if storekit.IsDirectoryPath(p) || storekit.RelPath(p) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, p, nil)
	}
	if err := a.check(ctx, storekit.OpWrite, p); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxValueSize+1))
	if err != nil {
		return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpWrite, p, err)
	}
	if len(data) > MaxValueSize {
		return nil, storekit.NewError(storekit.KindNoSpace, "value exceeds the Consul size limit").
			WithOperation(storekit.OpWrite).
			WithContext("path", p).
			WithContext("limit", strconv.Itoa(MaxValueSize))
	}

	pair := &api.KVPair{Key: a.key(p), Value: data}
	w := (&api.WriteOptions{}).WithContext(ctx)

	if storekit.ApplyOptions(options...).IfNotExists {
		// ModifyIndex 0 only succeeds when the key is absent
		ok, _, err := a.kv.CAS(pair, w)
		if err != nil {
			return nil, mapConsulError(storekit.OpWrite, p, err)
		}
		if !ok {
			return nil, storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, p, nil)
		}
	} else if _, err := a.kv.Put(pair, w); err != nil {
		return nil, mapConsulError(storekit.OpWrite, p, err)
	}

	return &storekit.WriteResult{
		Path:         storekit.RelPath(p),
		BytesWritten: int64(len(data)),
	}, nil
}

// Delete implements storekit.Accessor. Deleting a missing key succeeds;
// directories must have no children.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if storekit.RelPath(p) == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, p, nil)
	}
	if err := a.check(ctx, storekit.OpDelete, p); err != nil {
		return err
	}

	key := a.key(p)
	if storekit.IsDirectoryPath(p) {
		keys, _, err := a.kv.Keys(key, "", (&api.QueryOptions{}).WithContext(ctx))
		if err != nil {
			return mapConsulError(storekit.OpDelete, p, err)
		}
		for _, k := range keys {
			if k != key {
				return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, p, nil)
			}
		}
	}

	if _, err := a.kv.Delete(key, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return mapConsulError(storekit.OpDelete, p, err)
	}
	return nil
}

// CreateDir implements storekit.Accessor
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	if err := a.check(ctx, storekit.OpCreateDir, p); err != nil {
		return err
	}
	rel := storekit.RelPath(p)
	if rel == "" {
		return nil
	}

	pair := &api.KVPair{Key: a.prefix + storekit.EnsureDir(rel)}
	if _, err := a.kv.Put(pair, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return mapConsulError(storekit.OpCreateDir, p, err)
	}
	return nil
}

// List implements storekit.Accessor. Consul returns every matching key in
// one response, fetched on the first call to Next.
func (a *Adapter) List(ctx context.Context, p string, opts ...storekit.ListOption) (storekit.Lister, error) {
	if err := a.check(ctx, storekit.OpList, p); err != nil {
		return nil, err
	}

	dirKey := storekit.RelPath(p)
	if dirKey != "" {
		dirKey = storekit.EnsureDir(dirKey)
	}
	lo := storekit.ApplyListOptions(opts...)

	separator := "/"
	if lo.Recursive {
		separator = ""
	}

	return storekit.NewPageLister(func(ctx context.Context, token string) ([]*storekit.Entry, string, error) {
		keys, _, err := a.kv.Keys(a.prefix+dirKey, separator, (&api.QueryOptions{}).WithContext(ctx))
		if err != nil {
			return nil, "", mapConsulError(storekit.OpList, p, err)
		}

		seen := make(map[string]bool, len(keys))
		entries := make([]*storekit.Entry, 0, len(keys))
		add := func(rel string) {
			if rel == dirKey || seen[rel] {
				return
			}
			if lo.StartAfter != "" && rel <= lo.StartAfter {
				return
			}
			seen[rel] = true
			entries = append(entries, keyEntry(rel))
		}

		for _, k := range keys {
			rel := strings.TrimPrefix(k, a.prefix)
			if lo.Recursive {
				// Synthesize the directories implied by deep keys
				for dir := storekit.ParentDir(rel); dir != "/" && dir != dirKey && strings.HasPrefix(dir, dirKey); dir = storekit.ParentDir(dir) {
					add(dir)
				}
			}
			add(rel)
		}
		return entries, "", nil
	}), nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storekit.CanCopy by reading the source value and
// writing it under the destination key.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if storekit.IsDirectoryPath(src) || storekit.IsDirectoryPath(dst) {
		return storekit.PathErr(storekit.KindIsADirectory, storekit.OpCopy, src, nil)
	}
	if err := a.check(ctx, storekit.OpCopy, src); err != nil {
		return err
	}
	if err := a.check(ctx, storekit.OpCopy, dst); err != nil {
		return err
	}

	pair, _, err := a.kv.Get(a.key(src), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return mapConsulError(storekit.OpCopy, src, err)
	}
	if pair == nil {
		return storekit.PathErr(storekit.KindNotFound, storekit.OpCopy, src, nil)
	}

	out := &api.KVPair{Key: a.key(dst), Value: pair.Value, Flags: pair.Flags}
	if _, err := a.kv.Put(out, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return mapConsulError(storekit.OpCopy, dst, err)
	}
	return nil
}

// Move implements storekit.CanMove as copy followed by delete.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := a.Copy(ctx, src, dst); err != nil {
		return err
	}
	if _, err := a.kv.Delete(a.key(src), (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return mapConsulError(storekit.OpMove, src, err)
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func keyEntry(rel string) *storekit.Entry {
	if strings.HasSuffix(rel, "/") {
		return storekit.NewEntry(rel, storekit.NewMetadata(storekit.ModeDir))
	}
	return storekit.NewEntry(rel, storekit.NewMetadata(storekit.ModeFile))
}

func pairMetadata(pair *api.KVPair) *storekit.Metadata {
	index := strconv.FormatUint(pair.ModifyIndex, 10)
	meta := storekit.NewMetadata(storekit.ModeFile)
	meta.ContentLength = int64(len(pair.Value))
	meta.ContentType = mime.TypeByExtension(path.Ext(pair.Key))
	meta.ETag = index
	meta.Version = index
	if pair.Flags != 0 {
		meta.UserMetadata = map[string]string{"flags": strconv.FormatUint(pair.Flags, 10)}
	}
	return meta
}

// mapConsulError maps Consul API errors to storekit errors
func mapConsulError(op storekit.Operation, p string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var status api.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusNotFound:
			return storekit.PathErr(storekit.KindNotFound, op, p, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return storekit.PathErr(storekit.KindPermissionDenied, op, p, err)
		case http.StatusRequestEntityTooLarge:
			return storekit.PathErr(storekit.KindNoSpace, op, p, err)
		}
	}
	return storekit.PathErr(storekit.KindUnexpected, op, p, err)
}

var (
	_ storekit.Accessor = (*Adapter)(nil)
	_ storekit.CanCopy  = (*Adapter)(nil)
	_ storekit.CanMove  = (*Adapter)(nil)
	_ KV                = (*api.KV)(nil)
)
