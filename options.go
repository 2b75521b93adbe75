package storekit

// ============================================================================
// Write Options
// ============================================================================

// Option represents a write option
type Option func(*Options)

// Options contains all possible options for write operations
type Options struct {
	// ContentType specifies the MIME type of the file
	ContentType string

	// Metadata contains additional metadata for the file
	Metadata map[string]string

	// CacheControl sets the Cache-Control header for the file
	CacheControl string

	// ContentDisposition sets the Content-Disposition header
	ContentDisposition string

	// IfNotExists fails the write when the path already exists
	IfNotExists bool
}

// WithContentType sets the content type of the file
func WithContentType(contentType string) Option {
	return func(o *Options) {
		o.ContentType = contentType
	}
}

// WithMetadata sets additional metadata for the file
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithCacheControl sets the Cache-Control header
func WithCacheControl(cacheControl string) Option {
	return func(o *Options) {
		o.CacheControl = cacheControl
	}
}

// WithContentDisposition sets the Content-Disposition header
func WithContentDisposition(disposition string) Option {
	return func(o *Options) {
		o.ContentDisposition = disposition
	}
}

// WithIfNotExists makes the write fail with ErrExist when path is taken.
func WithIfNotExists(v bool) Option {
	return func(o *Options) {
		o.IfNotExists = v
	}
}

// ApplyOptions folds opts into an Options value.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ============================================================================
// Stat Options
// ============================================================================

// StatOption configures a Stat call.
type StatOption func(*StatOptions)

// StatOptions holds conditional stat parameters.
type StatOptions struct {
	IfMatch     string
	IfNoneMatch string
	Version     string
}

// WithIfMatch fails the stat with ErrConditionNotMatch unless the ETag matches.
func WithIfMatch(etag string) StatOption {
	return func(o *StatOptions) {
		o.IfMatch = etag
	}
}

// WithIfNoneMatch fails the stat with ErrConditionNotMatch if the ETag matches.
func WithIfNoneMatch(etag string) StatOption {
	return func(o *StatOptions) {
		o.IfNoneMatch = etag
	}
}

// WithStatVersion selects an object version on versioned backends.
func WithStatVersion(version string) StatOption {
	return func(o *StatOptions) {
		o.Version = version
	}
}

// ApplyStatOptions folds opts into a StatOptions value.
func ApplyStatOptions(opts ...StatOption) *StatOptions {
	o := &StatOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CheckETag evaluates IfMatch and IfNoneMatch against etag.
func (o *StatOptions) CheckETag(etag string) bool {
	if o.IfMatch != "" && o.IfMatch != etag {
		return false
	}
	if o.IfNoneMatch != "" && o.IfNoneMatch == etag {
		return false
	}
	return true
}

// ============================================================================
// List Options
// ============================================================================

// ListOption configures a List call.
type ListOption func(*ListOptions)

// ListOptions holds listing parameters.
type ListOptions struct {
	// Recursive lists every descendant instead of one level.
	Recursive bool
	// StartAfter skips entries whose path sorts at or before this value.
	StartAfter string
	// Limit is a page size hint for paginated backends. Zero means the
	// backend default.
	Limit int
}

// WithRecursive lists all descendants.
func WithRecursive(recursive bool) ListOption {
	return func(o *ListOptions) {
		o.Recursive = recursive
	}
}

// WithStartAfter resumes a listing after the given path.
func WithStartAfter(p string) ListOption {
	return func(o *ListOptions) {
		o.StartAfter = p
	}
}

// WithLimit sets the page size hint.
func WithLimit(n int) ListOption {
	return func(o *ListOptions) {
		o.Limit = n
	}
}

// ApplyListOptions folds opts into a ListOptions value.
func ApplyListOptions(opts ...ListOption) *ListOptions {
	o := &ListOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ============================================================================
// Read Options
// ============================================================================

// ReadOption configures a Read call.
type ReadOption func(*ReadOptions)

// ReadOptions selects a byte range. Length < 0 reads to the end.
type ReadOptions struct {
	Offset int64
	Length int64
}

// WithRange reads length bytes starting at offset.
func WithRange(offset, length int64) ReadOption {
	return func(o *ReadOptions) {
		o.Offset = offset
		o.Length = length
	}
}

// ApplyReadOptions folds opts into a ReadOptions value.
func ApplyReadOptions(opts ...ReadOption) *ReadOptions {
	o := &ReadOptions{Length: -1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsRange reports whether a sub-range was requested.
func (o *ReadOptions) IsRange() bool {
	return o.Offset > 0 || o.Length >= 0
}
