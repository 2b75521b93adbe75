// Package s3 provides a storekit accessor for Amazon S3 and S3 compatible
// object stores. Directories are key prefixes; CreateDir writes a zero byte
// marker object whose key ends with "/".
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/storekit"
)

// Scheme is the identifier reported by AccessorInfo.
const Scheme = "s3"

// API is the subset of *s3.Client used by the adapter.
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner is the subset of *s3.PresignClient used for signed URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Adapter provides an S3 implementation of storekit.Accessor
type Adapter struct {
	client    API
	presigner Presigner
	bucket    string
	prefix    string
	info      *storekit.AccessorInfo
}

// AdapterOption is a function that configures Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for S3 objects
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithPresigner sets the client used for SignedURL and SignedUploadURL.
func WithPresigner(p Presigner) AdapterOption {
	return func(a *Adapter) {
		a.presigner = p
	}
}

// New creates a new S3 adapter. A *s3.Client also gets a presign client
// unless WithPresigner is given.
func New(client API, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
	}
	if c, ok := client.(*s3.Client); ok {
		adapter.presigner = s3.NewPresignClient(c)
	}

	// Apply options
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
			Presign:       adapter.presigner != nil,
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

// rel turns an object key back into an accessor path.
func (a *Adapter) rel(key string) string {
	return strings.TrimPrefix(key, a.prefix)
}

// Stat implements storekit.Accessor. A directory exists when its marker
// object exists or any key starts with its prefix.
func (a *Adapter) Stat(ctx context.Context, path string, opts ...storekit.StatOption) (*storekit.Metadata, error) {
	key, err := a.key(storekit.OpStat, path)
	if err != nil {
		return nil, err
	}
	so := storekit.ApplyStatOptions(opts...)

	if storekit.RelPath(path) == "" {
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}
	if so.Version != "" {
		input.VersionId = aws.String(so.Version)
	}

	resp, err := a.client.HeadObject(ctx, input)
	if err != nil {
		mapped := mapS3Error(storekit.OpStat, path, err)
		if !storekit.IsDirectoryPath(path) || !storekit.IsNotExist(mapped) {
			return nil, mapped
		}
		ok, lerr := a.hasChildren(ctx, key)
		if lerr != nil {
			return nil, mapS3Error(storekit.OpStat, path, lerr)
		}
		if !ok {
			return nil, mapped
		}
		return storekit.NewMetadata(storekit.ModeDir), nil
	}

	meta := &storekit.Metadata{
		Mode:          storekit.ModeFile,
		ContentLength: aws.ToInt64(resp.ContentLength),
		ContentType:   aws.ToString(resp.ContentType),
		ETag:          trimETag(aws.ToString(resp.ETag)),
		LastModified:  aws.ToTime(resp.LastModified),
		CacheControl:  aws.ToString(resp.CacheControl),
		Version:       aws.ToString(resp.VersionId),
		UserMetadata:  resp.Metadata,
	}
	if storekit.IsDirectoryPath(key) {
		meta.Mode = storekit.ModeDir
		meta.ContentLength = 0
	}

	if !so.CheckETag(meta.ETag) {
		return nil, storekit.PathErr(storekit.KindConditionNotMatch, storekit.OpStat, path, nil)
	}
	return meta, nil
}

func (a *Adapter) hasChildren(ctx context.Context, dirKey string) (bool, error) {
	resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(dirKey),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0, nil
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

	input := &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}
	ro := storekit.ApplyReadOptions(opts...)
	if ro.Length == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	if ro.IsRange() {
		input.Range = aws.String(httpRange(ro.Offset, ro.Length))
	}

	resp, err := a.client.GetObject(ctx, input)
	if err != nil {
		return nil, mapS3Error(storekit.OpRead, path, err)
	}

	return resp.Body, nil
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

	body, contentLength, err := sizedBody(content)
	if err != nil {
		return nil, storekit.PathErr(storekit.KindUnexpected, storekit.OpWrite, path, err)
	}

	// Prepare upload input
	input := &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(key),
		Body:              body,
		ContentLength:     aws.Int64(contentLength),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if opts.ContentDisposition != "" {
		input.ContentDisposition = aws.String(opts.ContentDisposition)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			input.Metadata[k] = v
		}
	}
	if opts.IfNotExists {
		input.IfNoneMatch = aws.String("*")
	}

	result, err := a.client.PutObject(ctx, input)
	if err != nil {
		mapped := mapS3Error(storekit.OpWrite, path, err)
		if opts.IfNotExists {
			if kind, _ := storekit.KindOf(mapped); kind == storekit.KindConditionNotMatch {
				return nil, storekit.PathErr(storekit.KindAlreadyExists, storekit.OpWrite, path, err)
			}
		}
		return nil, mapped
	}

	return &storekit.WriteResult{
		Path:         storekit.RelPath(path),
		BytesWritten: contentLength,
		ETag:         trimETag(aws.ToString(result.ETag)),
		Version:      aws.ToString(result.VersionId),
	}, nil
}

// sizedBody returns a body with a known length. PutObject needs one, so
// readers that cannot report their size are buffered.
func sizedBody(content io.Reader) (io.Reader, int64, error) {
	switch r := content.(type) {
	case *bytes.Reader:
		return r, int64(r.Len()), nil
	case *bytes.Buffer:
		return r, int64(r.Len()), nil
	case *strings.Reader:
		return r, int64(r.Len()), nil
	case *os.File:
		if info, err := r.Stat(); err == nil {
			pos, _ := r.Seek(0, io.SeekCurrent)
			return r, info.Size() - pos, nil
		}
	case io.ReadSeeker:
		pos, err := r.Seek(0, io.SeekCurrent)
		if err == nil {
			end, err := r.Seek(0, io.SeekEnd)
			if err == nil {
				if _, err := r.Seek(pos, io.SeekStart); err != nil {
					return nil, 0, err
				}
				return r, end - pos, nil
			}
		}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// Delete implements storekit.Accessor. Deleting a missing object succeeds,
// as it does on S3. A directory is deleted only when nothing is under it.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if storekit.RelPath(path) == "" {
		return storekit.PathErr(storekit.KindPermissionDenied, storekit.OpDelete, path, nil)
	}
	key, err := a.key(storekit.OpDelete, path)
	if err != nil {
		return err
	}

	if storekit.IsDirectoryPath(path) {
		resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(a.bucket),
			Prefix:  aws.String(key),
			MaxKeys: aws.Int32(2),
		})
		if err != nil {
			return mapS3Error(storekit.OpDelete, path, err)
		}
		for _, obj := range resp.Contents {
			if aws.ToString(obj.Key) != key {
				return storekit.PathErr(storekit.KindNotEmpty, storekit.OpDelete, path, nil)
			}
		}
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error(storekit.OpDelete, path, err)
	}
	return nil
}

// CreateDir implements storekit.Accessor
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	if storekit.RelPath(path) == "" {
		return nil
	}
	key, err := a.key(storekit.OpCreateDir, storekit.EnsureDir(path))
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String("application/x-directory"),
	})
	if err != nil {
		return mapS3Error(storekit.OpCreateDir, path, err)
	}
	return nil
}

// List implements storekit.Accessor. Pages are requested from S3 only as
// the lister is drained. A prefix with no keys lists as empty.
func (a *Adapter) List(ctx context.Context, path string, opts ...storekit.ListOption) (storekit.Lister, error) {
	dirKey, err := a.key(storekit.OpList, path)
	if err != nil {
		return nil, err
	}
	if dirKey != "" && !strings.HasSuffix(dirKey, "/") {
		dirKey += "/"
	}

	lo := storekit.ApplyListOptions(opts...)

	return storekit.NewPageLister(func(ctx context.Context, token string) ([]*storekit.Entry, string, error) {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(a.bucket),
			Prefix: aws.String(dirKey),
		}
		if !lo.Recursive {
			input.Delimiter = aws.String("/")
		}
		if token != "" {
			input.ContinuationToken = aws.String(token)
		} else if lo.StartAfter != "" {
			input.StartAfter = aws.String(a.prefix + storekit.RelPath(lo.StartAfter))
		}
		if lo.Limit > 0 {
			input.MaxKeys = aws.Int32(int32(min(lo.Limit, 1000))) //nolint:gosec // bounded above
		}

		page, err := a.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, "", mapS3Error(storekit.OpListerNext, path, err)
		}

		entries := make([]*storekit.Entry, 0, len(page.CommonPrefixes)+len(page.Contents))
		for _, p := range page.CommonPrefixes {
			prefix := aws.ToString(p.Prefix)
			if prefix == dirKey {
				continue
			}
			entries = append(entries, storekit.NewEntry(a.rel(prefix), storekit.NewMetadata(storekit.ModeDir)))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == dirKey {
				// The directory's own marker
				continue
			}
			if strings.HasSuffix(key, "/") {
				entries = append(entries, storekit.NewEntry(a.rel(key), storekit.NewMetadata(storekit.ModeDir)))
				continue
			}
			entries = append(entries, storekit.NewEntry(a.rel(key), &storekit.Metadata{
				Mode:          storekit.ModeFile,
				ContentLength: aws.ToInt64(obj.Size),
				ETag:          trimETag(aws.ToString(obj.ETag)),
				LastModified:  aws.ToTime(obj.LastModified),
			}))
		}

		next := ""
		if aws.ToBool(page.IsTruncated) {
			next = aws.ToString(page.NextContinuationToken)
		}
		return entries, next, nil
	}), nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storekit.CanCopy using CopyObject.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	srcKey, err := a.key(storekit.OpCopy, src)
	if err != nil {
		return err
	}
	dstKey, err := a.key(storekit.OpCopy, dst)
	if err != nil {
		return err
	}

	_, err = a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(a.bucket + "/" + url.PathEscape(srcKey)),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return mapS3Error(storekit.OpCopy, src, err)
	}
	return nil
}

// Move implements storekit.CanMove as copy then delete.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := a.Copy(ctx, src, dst); err != nil {
		return err
	}

	srcKey, err := a.key(storekit.OpMove, src)
	if err != nil {
		return err
	}
	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(srcKey),
	})
	if err != nil {
		return mapS3Error(storekit.OpMove, src, err)
	}
	return nil
}

// SignedURL implements storekit.CanSignURL
func (a *Adapter) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	if a.presigner == nil {
		return "", storekit.PathErr(storekit.KindUnsupported, storekit.OpPresign, path, nil)
	}
	key, err := a.key(storekit.OpPresign, path)
	if err != nil {
		return "", err
	}

	request, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", mapS3Error(storekit.OpPresign, path, err)
	}
	return request.URL, nil
}

// SignedUploadURL implements storekit.CanSignURL
func (a *Adapter) SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	if a.presigner == nil {
		return "", storekit.PathErr(storekit.KindUnsupported, storekit.OpPresign, path, nil)
	}
	key, err := a.key(storekit.OpPresign, path)
	if err != nil {
		return "", err
	}

	request, err := a.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", mapS3Error(storekit.OpPresign, path, err)
	}
	return request.URL, nil
}

// ============================================================================
// Helpers
// ============================================================================

func httpRange(offset, length int64) string {
	if length < 0 {
		return fmt.Sprintf("bytes=%d-", offset)
	}
	return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func mapS3Error(op storekit.Operation, path string, err error) error {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return storekit.PathErr(storekit.KindNotFound, op, path, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return storekit.PathErr(storekit.KindNotFound, op, path, err)
		case "NoSuchBucket":
			return storekit.PathErr(storekit.KindConfigInvalid, op, path, err)
		case "AccessDenied", "Forbidden":
			return storekit.PathErr(storekit.KindPermissionDenied, op, path, err)
		case "PreconditionFailed", "NotModified":
			return storekit.PathErr(storekit.KindConditionNotMatch, op, path, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 404:
			return storekit.PathErr(storekit.KindNotFound, op, path, err)
		case 403:
			return storekit.PathErr(storekit.KindPermissionDenied, op, path, err)
		case 304, 412:
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
	_ API                 = (*s3.Client)(nil)
	_ Presigner           = (*s3.PresignClient)(nil)
)
