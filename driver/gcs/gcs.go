// Package gcs provides a storekit accessor for Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "gcs"

// defaultPageSize is the number of objects requested per listing page.
const defaultPageSize = 1000

// dirContentType marks zero byte directory placeholder objects.
const dirContentType = "application/x-directory"

// Adapter provides a Google Cloud Storage implementation of storekit.Accessor
type Adapter struct {
	client *storage.Client
	bucket string
	prefix string

	// Signing identity for SignedURL. Empty means the client's own
	// credentials are used.
	accessID   string
	privateKey []byte

	info *storekit.AccessorInfo
}

// AdapterOption configures the GCS adapter
type AdapterOption func(*Adapter)

// WithPrefix sets a prefix for all object keys
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithSigner sets the service account used to sign URLs.
func WithSigner(accessID string, privateKey []byte) AdapterOption {
	return func(a *Adapter) {
		a.accessID = accessID
		a.privateKey = privateKey
	}
}

// New creates a new GCS adapter
func New(client *storage.Client, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
	}

	for _, option := range options {
		option(adapter)
	}

	adapter.info = storekit.NewAccessorInfo(Scheme,
		storekit.WithName(bucket),
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
			Presign:       true,
		}))

	return adapter
}

// Info implements storekit.Accessor
func (a *Adapter) Info() *storekit.AccessorInfo {
	return a.info
}

func (a *Adapter) key(op storekit.Operation, path string) (string, error) {
	rel := storekit.RelPath(path)
	if err := storekit.CheckPath(op, rel); err != nil {
		return "", err
	}
	return a.prefix + rel, nil
}

func (a *Adapter) object(key string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(key)
}

// Stat implements storekit.Accessor
func (a *Adapter) Stat(ctx context.Context, path string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	key, err := a.key(storekit.OpStat, path)
	if err != nil {
		return nil, err
	}
	if storekit.RelPath(path) == "" {
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	so := storekit.ApplyStatOptions(opts...)
	obj := a.object(key)
	if so.Version != "" {
		gen, err := strconv.ParseInt(so.Version, 10, 64)
		if err != nil {
			return nil, storekit.PathErr(storekit.KindConfigInvalid, storekit.OpStat, path, err).
				WithContext("version", so.Version)
		}
		obj = obj.Generation(gen)
	}

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		mapped := mapGCSError(storekit.OpStat, path, err)
		if !storekit.IsDirectoryPath(path) || !storekit.IsNotExist(mapped) {
			return nil, mapped
		}
		// No placeholder object; the directory exists if anything is under it
		it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: key})
		if _, err := it.Next(); err != nil {
			if errors.Is(err, iterator.Done) {
				return nil, mapped
			}
			return nil, mapGCSError(storekit.OpStat, path, err)
		}
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	meta := attrsToMetadata(attrs)
	if !so.CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, path, nil)
	}
	return meta, nil
}

// Read implements storekit.Accessor
func (a *Adapter) Read(ctx context.Context, path string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	if storekit.IsDirectoryPath(path) || storekit.RelPath(path) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, path, nil)
	}
	key, err := a.key(storekit.OpRead, path)
	if err != nil {
		return nil, err
	}

	ro := storekit.ApplyReadOptions(opts...)
	reader, err := a.object(key).NewRangeReader(ctx, ro.Offset, ro.Length)
	if err != nil {
		return nil, mapGCSError(storekit.OpRead, path, err)
	}
	return reader, nil
}

// Write implements storekit.Accessor
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	if storekit.IsDirectoryPath(path) || storekit.RelPath(path) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, path, nil)
	}
	key, err := a.key(storekit.OpWrite, path)
	if err != nil {
		return nil, err
	}

	opts := storekit.ApplyOptions(options...)

	obj := a.object(key)
	if opts.IfNotExists {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	writer := obj.NewWriter(ctx)
	if opts.ContentType != "" {
		writer.ContentType = opts.ContentType
	} else {
		writer.ContentType = detectContentType(key)
	}
	writer.CacheControl = opts.CacheControl
	writer.ContentDisposition = opts.ContentDisposition
	if len(opts.Metadata) > 0 {
		writer.Metadata = opts.Metadata
	}

	written, err := io.Copy(writer, content)
	if err != nil {
		writer.Close()
		return nil, mapGCSError(storekit.OpWrite, path, err)
	}

	if err := writer.Close(); err != nil {
		if opts.IfNotExists && isPreconditionFailed(err) {
			return nil, storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, path, err)
		}
		return nil, mapGCSError(storekit.OpWrite, path, err)
	}

	res := &storekit.WriteResult{
		Path:         storekit.RelPath(path),
		BytesWritten: written,
	}
	if attrs := writer.Attrs(); attrs != nil {
		res.ETag = attrs.Etag
		res.Version = strconv.FormatInt(attrs.Generation, 10)
	}
	return res, nil
}

// Delete implements storekit.Accessor. A missing object is not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if storekit.RelPath(path) == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, path, nil)
	}
	key, err := a.key(storekit.OpDelete, path)
	if err != nil {
		return err
	}

	if storekit.IsDirectoryPath(path) {
		it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: key})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return mapGCSError(storekit.OpDelete, path, err)
			}
			if attrs.Name != key {
				return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, path, nil)
			}
		}
	}

	if err := a.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return mapGCSError(storekit.OpDelete, path, err)
	}
	return nil
}

// CreateDir implements storekit.Accessor. GCS has no directories, so an
// empty object with a trailing slash stands in for one.
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if storekit.RelPath(path) == "" {
		return nil
	}
	key, err := a.key(storekit.OpCreateDir, storekit.EnsureDir(path))
	if err != nil {
		return err
	}

	writer := a.object(key).NewWriter(ctx)
	writer.ContentType = dirContentType
	if err := writer.Close(); err != nil {
		return mapGCSError(storekit.OpCreateDir, path, err)
	}
	return nil
}

// List implements storekit.Accessor. Each page is fetched with a fresh
// pager resumed from the previous page token.
func (a *Adapter) List(ctx context.Context, path string, opts ...storekit.ListOption) (storekit.Lister, error) {
	dirKey, err := a.key(storekit.OpList, path)
	if err != nil {
		return nil, err
	}
	if dirKey != "" && !strings.HasSuffix(dirKey, "/") {
		dirKey += "/"
	}

	lo := storekit.ApplyListOptions(opts...)
	pageSize := defaultPageSize
	if lo.Limit > 0 {
		pageSize = lo.Limit
	}

	query := &storage.Query{Prefix: dirKey}
	if !lo.Recursive {
		query.Delimiter = "/"
	}
	if lo.StartAfter != "" {
		// StartOffset is inclusive
		query.StartOffset = a.prefix + storekit.RelPath(lo.StartAfter) + "\x00"
	}

	return storekit.NewPageLister(func(ctx context.Context, token string) ([]*storekit.Entry, string, error) {
		pager := iterator.NewPager(a.client.Bucket(a.bucket).Objects(ctx, query), pageSize, token)

		var page []*storage.ObjectAttrs
		next, err := pager.NextPage(&page)
		if err != nil {
			return nil, "", mapGCSError(storekit.OpListerNext, path, err)
		}

		entries := make([]*storekit.Entry, 0, len(page))
		for _, attrs := range page {
			if e := a.toEntry(dirKey, attrs); e != nil {
				entries = append(entries, e)
			}
		}
		return entries, next, nil
	}), nil
}

// toEntry converts one listing result. It returns nil for the directory's
// own placeholder.
func (a *Adapter) toEntry(dirKey string, attrs *storage.ObjectAttrs) *storekit.Entry {
	if attrs.Prefix != "" {
		if attrs.Prefix == dirKey {
			return nil
		}
		return storekit.NewEntry(strings.TrimPrefix(attrs.Prefix, a.prefix), storekit.NewMetadata(storekit.ModeDir))
	}
	if attrs.Name == dirKey {
		return nil
	}
	return storekit.NewEntry(strings.TrimPrefix(attrs.Name, a.prefix), attrsToMetadata(attrs))
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storekit.CanCopy using GCS's native CopierFrom.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	srcKey, err := a.key(storekit.OpCopy, src)
	if err != nil {
		return err
	}
	dstKey, err := a.key(storekit.OpCopy, dst)
	if err != nil {
		return err
	}

	if _, err := a.object(dstKey).CopierFrom(a.object(srcKey)).Run(ctx); err != nil {
		return mapGCSError(storekit.OpCopy, src, err)
	}
	return nil
}

// Move implements storekit.CanMove using copy + delete.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := a.Copy(ctx, src, dst); err != nil {
		return err
	}

	srcKey, err := a.key(storekit.OpMove, src)
	if err != nil {
		return err
	}
	if err := a.object(srcKey).Delete(ctx); err != nil {
		return mapGCSError(storekit.OpMove, src, err)
	}
	return nil
}

// SignedURL implements storekit.CanSignURL
func (a *Adapter) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	return a.signedURL(path, http.MethodGet, "", expires)
}

// SignedUploadURL implements storekit.CanSignURL
func (a *Adapter) SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	return a.signedURL(path, http.MethodPut, "application/octet-stream", expires)
}

func (a *Adapter) signedURL(path, method, contentType string, expires time.Duration) (string, error) {
	key, err := a.key(storekit.OpPresign, path)
	if err != nil {
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Method:         method,
		Expires:        time.Now().Add(expires),
		ContentType:    contentType,
		Scheme:         storage.SigningSchemeV4,
		GoogleAccessID: a.accessID,
		PrivateKey:     a.privateKey,
	}

	url, err := a.client.Bucket(a.bucket).SignedURL(key, opts)
	if err != nil {
		return "", mapGCSError(storekit.OpPresign, path, err)
	}
	return url, nil
}

// ============================================================================
// Helpers
// ============================================================================

func attrsToMetadata(attrs *storage.ObjectAttrs) *storekit.Metadata {
	meta := &storekit.Metadata{
		Mode:          storekit.ModeFile,
		ContentLength: attrs.Size,
		ContentType:   attrs.ContentType,
		ETag:          attrs.Etag,
		LastModified:  attrs.Updated,
		CacheControl:  attrs.CacheControl,
		UserMetadata:  attrs.Metadata,
	}
	if attrs.Generation != 0 {
		meta.Version = strconv.FormatInt(attrs.Generation, 10)
	}
	if strings.HasSuffix(attrs.Name, "/") {
		meta.Mode = storekit.ModeDir
		meta.ContentLength = 0
	}
	return meta
}

// detectContentType determines the content type from file extension
func detectContentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// mapGCSError maps GCS errors to storekit errors
func mapGCSError(op storekit.Operation, path string, err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return storekit.PathErr(storekit.KindNotFound, op, path, err)
	case errors.Is(err, storage.ErrBucketNotExist):
		return storekit.PathErr(storekit.KindConfigInvalid, op, path, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return storekit.PathErr(storekit.KindNotFound, op, path, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return storekit.PathErr(storekit.KindPermissionDenied, op, path, err)
		case http.StatusPreconditionFailed, http.StatusNotModified:
			return storekit.PathErr(storekit.KindConditionNotMatch, op, path, err)
		}
	}

	return storekit.PathErr(storekit.KindUnexpected, op, path, err)
}

var (
	_ storekit.Accessor   = (*Adapter)(nil)
	_ storekit.CanCopy    = (*Adapter)(nil)
	_ storekit.CanMove    = (*Adapter)(nil)
	_ storekit.CanSignURL = (*Adapter)(nil)
)
