package storekit

import (
	"bufio"
	"context"
	"io"
)

// ProgressFunc is called while an upload streams. totalBytes is -1 when the
// size is unknown.
type ProgressFunc func(bytesTransferred int64, totalBytes int64)

// UploadOptions contains options for Upload.
type UploadOptions struct {
	// ContentType specifies the MIME type. When empty it is guessed from the
	// path and the first bytes of the content.
	ContentType string

	// Metadata contains additional metadata for the file
	Metadata map[string]string

	// IfNotExists fails the upload when the path already exists
	IfNotExists bool

	// Progress is called as content is consumed
	Progress ProgressFunc

	// ReportEvery throttles Progress to one call per this many bytes.
	// Zero reports on every read.
	ReportEvery int64
}

// sniffLen matches the amount of data http.DetectContentType considers.
const sniffLen = 512

// Upload writes r to path, filling in the content type and reporting
// progress. size is only used for progress reporting; pass -1 if unknown.
func (o *Operator) Upload(ctx context.Context, path string, r io.Reader, size int64, opts *UploadOptions) (*WriteResult, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	contentType := opts.ContentType
	if contentType == "" {
		br := bufio.NewReaderSize(r, sniffLen)
		head, err := br.Peek(sniffLen)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, PathErr(KindUnexpected, OpWrite, path, err)
		}
		contentType = GuessContentType(path, head)
		r = br
	}

	options := []Option{
		WithContentType(contentType),
		WithIfNotExists(opts.IfNotExists),
	}
	if opts.Metadata != nil {
		options = append(options, WithMetadata(opts.Metadata))
	}

	if opts.Progress != nil {
		r = &progressReader{
			reader:        r,
			progress:      opts.Progress,
			size:          size,
			reportingStep: opts.ReportEvery,
		}
	}

	return o.Write(ctx, path, r, options...)
}

// progressReader is a reader that reports progress
type progressReader struct {
	reader        io.Reader
	progress      ProgressFunc
	size          int64
	bytesRead     int64
	lastReported  int64
	reportingStep int64
	finished      bool
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.bytesRead += int64(n)
	}

	// Report when enough has been read since the last report, and once at the end
	if err == io.EOF && !r.finished {
		r.finished = true
		r.progress(r.bytesRead, r.size)
		r.lastReported = r.bytesRead
	} else if n > 0 && r.bytesRead-r.lastReported >= r.reportingStep {
		r.progress(r.bytesRead, r.size)
		r.lastReported = r.bytesRead
	}
	return n, err
}
