// Package azure provides a storekit accessor for Azure Blob Storage.
package azure

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "azblob"

const dirContentType = "application/x-directory"

// copyPollInterval is how often a pending server side copy is checked.
var copyPollInterval = 200 * time.Millisecond

// Adapter provides an Azure Blob Storage implementation of storekit.Accessor
type Adapter struct {
	client        *azblob.Client
	containerName string
	prefix        string
	accountName   string
	accountKey    string
	info          *storekit.AccessorInfo
}

// AdapterOption is a function that configures Azure Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for Azure blobs
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates a new Azure Blob Storage adapter. The account key is only
// needed for SAS URLs; without it Presign is not advertised.
func New(client *azblob.Client, containerName string, accountName, accountKey string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client:        client,
		containerName: containerName,
		accountName:   accountName,
		accountKey:    accountKey,
	}

	for _, option := range options {
		option(adapter)
	}

	adapter.info = storekit.NewAccessorInfo(Scheme,
		storekit.WithName(containerName),
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
			Presign:       accountKey != "",
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

func (a *Adapter) container() *container.Client {
	return a.client.ServiceClient().NewContainerClient(a.containerName)
}

func (a *Adapter) blob(name string) *blob.Client {
	return a.container().NewBlobClient(name)
}

// Stat implements storekit.Accessor
func (a *Adapter) Stat(ctx context.Context, path string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	name, err := a.key(storekit.OpStat, path)
	if err != nil {
		return nil, err
	}
	if storekit.RelPath(path) == "" {
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	so := storekit.ApplyStatOptions(opts...)
	bc := a.blob(name)
	if so.Version != "" {
		if bc, err = bc.WithVersionID(so.Version); err != nil {
			return nil, storekit.PathErr(storekit.KindConfigInvalid, storekit.OpStat, path, err)
		}
	}

	props, err := bc.GetProperties(ctx, nil)
	if err != nil {
		mapped := mapAzureError(storekit.OpStat, path, err)
		if !storekit.IsDirectoryPath(path) || !storekit.IsNotExist(mapped) {
			return nil, mapped
		}
		ok, lerr := a.hasChildren(ctx, name)
		if lerr != nil {
			return nil, mapAzureError(storekit.OpStat, path, lerr)
		}
		if !ok {
			return nil, mapped
		}
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	meta := &storekit.Metadata{
		Mode:          storekit.ModeFile,
		ContentLength: deref(props.ContentLength),
		ContentType:   deref(props.ContentType),
		LastModified:  deref(props.LastModified),
		CacheControl:  deref(props.CacheControl),
		Version:       deref(props.VersionID),
		UserMetadata:  flattenMetadata(props.Metadata),
	}
	if props.ETag != nil {
		meta.ETag = string(*props.ETag)
	}
	if strings.HasSuffix(name, "/") {
		meta.Mode = storekit.ModeDir
		meta.ContentLength = 0
	}

	if !so.CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, path, nil)
	}
	return meta, nil
}

func (a *Adapter) hasChildren(ctx context.Context, prefix string) (bool, error) {
	pager := a.container().NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     &prefix,
		MaxResults: ptr(int32(1)),
	})
	if !pager.More() {
		return false, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return false, err
	}
	return len(resp.Segment.BlobItems) > 0, nil
}

// Read implements storekit.Accessor
func (a *Adapter) Read(ctx context.Context, path string, opts ...storekit.ReadOption) (io.ReadCloser, error) {
	if storekit.IsDirectoryPath(path) || storekit.RelPath(path) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpRead, path, nil)
	}
	name, err := a.key(storekit.OpRead, path)
	if err != nil {
		return nil, err
	}

	ro := storekit.ApplyReadOptions(opts...)
	if ro.Length == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}

	var dlOpts *azblob.DownloadStreamOptions
	if ro.IsRange() {
		// Count zero reads to the end
		dlOpts = &azblob.DownloadStreamOptions{
			Range: azblob.HTTPRange{Offset: ro.Offset, Count: max(ro.Length, 0)},
		}
	}

	resp, err := a.client.DownloadStream(ctx, a.containerName, name, dlOpts)
	if err != nil {
		return nil, mapAzureError(storekit.OpRead, path, err)
	}
	return resp.Body, nil
}

// Write implements storekit.Accessor. Content is streamed in blocks without
// buffering the whole body.
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...storekit.Option) (*storekit.WriteResult, error) {
	if storekit.IsDirectoryPath(path) || storekit.RelPath(path) == "" {
		return nil, storekit.PathErr(storekit.KindIsADirectory, storekit.OpWrite, path, nil)
	}
	name, err := a.key(storekit.OpWrite, path)
	if err != nil {
		return nil, err
	}

	opts := storekit.ApplyOptions(options...)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = detectContentType(name)
	}

	uploadOpts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}
	if opts.CacheControl != "" {
		uploadOpts.HTTPHeaders.BlobCacheControl = &opts.CacheControl
	}
	if opts.ContentDisposition != "" {
		uploadOpts.HTTPHeaders.BlobContentDisposition = &opts.ContentDisposition
	}
	if len(opts.Metadata) > 0 {
		metadata := make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			metadata[k] = ptr(v)
		}
		uploadOpts.Metadata = metadata
	}
	if opts.IfNotExists {
		uploadOpts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: ptr(azcore.ETagAny)},
		}
	}

	counter := &countingReader{r: content}
	resp, err := a.client.UploadStream(ctx, a.containerName, name, counter, uploadOpts)
	if err != nil {
		if opts.IfNotExists && (bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) || statusCode(err) == http.StatusPreconditionFailed) {
			return nil, storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, path, err)
		}
		return nil, mapAzureError(storekit.OpWrite, path, err)
	}

	res := &storekit.WriteResult{
		Path:         storekit.RelPath(path),
		BytesWritten: counter.n,
		Version:      deref(resp.VersionID),
	}
	if resp.ETag != nil {
		res.ETag = string(*resp.ETag)
	}
	return res, nil
}

// Delete implements storekit.Accessor. A missing blob is not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if storekit.RelPath(path) == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, path, nil)
	}
	name, err := a.key(storekit.OpDelete, path)
	if err != nil {
		return err
	}

	if storekit.IsDirectoryPath(path) {
		pager := a.container().NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
			Prefix:     &name,
			MaxResults: ptr(int32(2)),
		})
		if pager.More() {
			resp, err := pager.NextPage(ctx)
			if err != nil {
				return mapAzureError(storekit.OpDelete, path, err)
			}
			for _, item := range resp.Segment.BlobItems {
				if deref(item.Name) != name {
					return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, path, nil)
				}
			}
		}
	}

	_, err = a.client.DeleteBlob(ctx, a.containerName, name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return mapAzureError(storekit.OpDelete, path, err)
	}
	return nil
}

// CreateDir implements storekit.Accessor. Azure Blob Storage has no real
// directories, so an empty blob with a trailing slash stands in for one.
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if storekit.RelPath(path) == "" {
		return nil
	}
	name, err := a.key(storekit.OpCreateDir, storekit.EnsureDir(path))
	if err != nil {
		return err
	}

	_, err = a.client.UploadBuffer(ctx, a.containerName, name, nil, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: ptr(dirContentType)},
	})
	if err != nil {
		return mapAzureError(storekit.OpCreateDir, path, err)
	}
	return nil
}

// List implements storekit.Accessor. One level uses the hierarchy listing
// with "/" as delimiter; recursive listing uses the flat listing. Azure has
// no start-after parameter, so StartAfter is applied to each page.
func (a *Adapter) List(ctx context.Context, path string, opts ...storekit.ListOption) (storekit.Lister, error) {
	dirKey, err := a.key(storekit.OpList, path)
	if err != nil {
		return nil, err
	}
	if dirKey != "" && !strings.HasSuffix(dirKey, "/") {
		dirKey += "/"
	}

	lo := storekit.ApplyListOptions(opts...)
	var maxResults *int32
	if lo.Limit > 0 {
		maxResults = ptr(int32(min(lo.Limit, 5000))) //nolint:gosec // bounded above
	}

	return storekit.NewPageLister(func(ctx context.Context, token string) ([]*storekit.Entry, string, error) {
		var marker *string
		if token != "" {
			marker = &token
		}

		var (
			entries []*storekit.Entry
			next    *string
		)
		if lo.Recursive {
			pager := a.container().NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
				Prefix:     &dirKey,
				Marker:     marker,
				MaxResults: maxResults,
			})
			resp, err := pager.NextPage(ctx)
			if err != nil {
				return nil, "", mapAzureError(storekit.OpListerNext, path, err)
			}
			for _, item := range resp.Segment.BlobItems {
				if e := a.itemEntry(dirKey, item); e != nil {
					entries = append(entries, e)
				}
			}
			next = resp.NextMarker
		} else {
			pager := a.container().NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
				Prefix:     &dirKey,
				Marker:     marker,
				MaxResults: maxResults,
			})
			resp, err := pager.NextPage(ctx)
			if err != nil {
				return nil, "", mapAzureError(storekit.OpListerNext, path, err)
			}
			for _, p := range resp.Segment.BlobPrefixes {
				if name := deref(p.Name); name != "" && name != dirKey {
					entries = append(entries, storekit.NewEntry(strings.TrimPrefix(name, a.prefix), storekit.NewMetadata(storekit.ModeDir)))
				}
			}
			for _, item := range resp.Segment.BlobItems {
				if e := a.itemEntry(dirKey, item); e != nil {
					entries = append(entries, e)
				}
			}
			next = resp.NextMarker
		}

		if lo.StartAfter != "" {
			after := storekit.RelPath(lo.StartAfter)
			kept := entries[:0]
			for _, e := range entries {
				if e.Path > after {
					kept = append(kept, e)
				}
			}
			entries = kept
		}
		return entries, deref(next), nil
	}), nil
}

// itemEntry converts one blob listing item. It returns nil for the
// directory's own placeholder.
func (a *Adapter) itemEntry(dirKey string, item *container.BlobItem) *storekit.Entry {
	name := deref(item.Name)
	if name == "" || name == dirKey {
		return nil
	}
	if strings.HasSuffix(name, "/") {
		return storekit.NewEntry(strings.TrimPrefix(name, a.prefix), storekit.NewMetadata(storekit.ModeDir))
	}

	meta := storekit.NewMetadata(storekit.ModeFile)
	if p := item.Properties; p != nil {
		meta.ContentLength = deref(p.ContentLength)
		meta.ContentType = deref(p.ContentType)
		meta.LastModified = deref(p.LastModified)
		if p.ETag != nil {
			meta.ETag = string(*p.ETag)
		}
	}
	meta.Version = deref(item.VersionID)
	return storekit.NewEntry(strings.TrimPrefix(name, a.prefix), meta)
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storekit.CanCopy using Azure's native StartCopyFromURL and
// waits for the copy to leave the pending state.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	srcKey, err := a.key(storekit.OpCopy, src)
	if err != nil {
		return err
	}
	dstKey, err := a.key(storekit.OpCopy, dst)
	if err != nil {
		return err
	}

	// The source needs a SAS unless the container is public
	srcURL := a.blob(srcKey).URL()
	if a.accountKey != "" {
		if srcURL, err = a.sasURL(srcKey, time.Now().Add(15*time.Minute), sas.BlobPermissions{Read: true}); err != nil {
			return mapAzureError(storekit.OpCopy, src, err)
		}
	}

	dstBlob := a.blob(dstKey)
	resp, err := dstBlob.StartCopyFromURL(ctx, srcURL, nil)
	if err != nil {
		return mapAzureError(storekit.OpCopy, src, err)
	}

	status := deref(resp.CopyStatus)
	for status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(copyPollInterval):
		}
		props, err := dstBlob.GetProperties(ctx, nil)
		if err != nil {
			return mapAzureError(storekit.OpCopy, dst, err)
		}
		status = deref(props.CopyStatus)
	}
	if status != "" && status != blob.CopyStatusTypeSuccess {
		return storekit.PathErr(storekit.KindUnexpected, storekit.OpCopy, src, nil).
			WithContext("copy_status", string(status))
	}
	return nil
}

// Move implements storekit.CanMove using Azure's copy + delete.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := a.Copy(ctx, src, dst); err != nil {
		return err
	}
	return a.Delete(ctx, src)
}

// SignedURL implements storekit.CanSignURL with a read-only SAS.
func (a *Adapter) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	return a.signedURL(path, expires, sas.BlobPermissions{Read: true})
}

// SignedUploadURL implements storekit.CanSignURL with a create/write SAS.
func (a *Adapter) SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	return a.signedURL(path, expires, sas.BlobPermissions{Write: true, Create: true})
}

func (a *Adapter) signedURL(path string, expires time.Duration, perms sas.BlobPermissions) (string, error) {
	if a.accountKey == "" {
		return "", storekit.PathErr(storekit.KindUnsupported, storekit.OpPresign, path, nil).
			WithContext("reason", "account key required for SAS URL generation")
	}
	name, err := a.key(storekit.OpPresign, path)
	if err != nil {
		return "", err
	}

	u, err := a.sasURL(name, time.Now().Add(expires), perms)
	if err != nil {
		return "", mapAzureError(storekit.OpPresign, path, err)
	}
	return u, nil
}

func (a *Adapter) sasURL(name string, expiry time.Time, perms sas.BlobPermissions) (string, error) {
	cred, err := azblob.NewSharedKeyCredential(a.accountName, a.accountKey)
	if err != nil {
		return "", err
	}

	qp, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPSandHTTP,
		StartTime:     time.Now().UTC().Add(-time.Minute),
		ExpiryTime:    expiry.UTC(),
		Permissions:   perms.String(),
		ContainerName: a.containerName,
		BlobName:      name,
	}.SignWithSharedKey(cred)
	if err != nil {
		return "", err
	}

	return a.blob(name).URL() + "?" + qp.Encode(), nil
}

// ============================================================================
// Helpers
// ============================================================================

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func flattenMetadata(md map[string]*string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func detectContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// mapAzureError maps Azure errors to storekit errors
func mapAzureError(op storekit.Operation, path string, err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return storekit.PathErr(storekit.KindNotFound, op, path, err)
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return storekit.PathErr(storekit.KindConfigInvalid, op, path, err)
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		return storekit.PathErr(storekit.KindPermissionDenied, op, path, err)
	case bloberror.HasCode(err, bloberror.ConditionNotMet):
		return storekit.PathErr(storekit.KindConditionNotMatch, op, path, err)
	}

	switch statusCode(err) {
	case http.StatusNotFound:
		return storekit.PathErr(storekit.KindNotFound, op, path, err)
	case http.StatusForbidden:
		return storekit.PathErr(storekit.KindPermissionDenied, op, path, err)
	case http.StatusPreconditionFailed, http.StatusNotModified:
		return storekit.PathErr(storekit.KindConditionNotMatch, op, path, err)
	}

	return storekit.PathErr(storekit.KindUnexpected, op, path, err)
}

var (
	_ storekit.Accessor   = (*Adapter)(nil)
	_ storekit.CanCopy    = (*Adapter)(nil)
	_ storekit.CanMove    = (*Adapter)(nil)
	_ storekit.CanSignURL = (*Adapter)(nil)
)
