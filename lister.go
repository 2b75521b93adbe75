package storekit

import (
	"context"
)

// Lister is a lazy, single-consumer stream of entries.
//
// Next returns the next entry, or (nil, nil) once the stream is exhausted.
type Lister interface {
	Next(ctx context.Context) (*Entry, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context) (*Entry, error)

// Next calls f(ctx).
func (f ListerFunc) Next(ctx context.Context) (*Entry, error) {
	return f(ctx)
}

// SliceLister yields a fixed slice of entries.
type SliceLister struct {
	entries []*Entry
	pos     int
}

// NewSliceLister returns a lister over entries.
func NewSliceLister(entries []*Entry) *SliceLister {
	return &SliceLister{entries: entries}
}

// Next implements Lister
func (l *SliceLister) Next(ctx context.Context) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.pos >= len(l.entries) {
		return nil, nil
	}
	e := l.entries[l.pos]
	l.pos++
	return e, nil
}

// PageFunc fetches one page. token is empty for the first page. An empty
// next token ends the listing after the returned entries.
type PageFunc func(ctx context.Context, token string) (entries []*Entry, next string, err error)

// PageLister turns a paginated backend API into a Lister. Pages are fetched
// only when the previous one has been consumed.
type PageLister struct {
	fetch   PageFunc
	buf     []*Entry
	token   string
	started bool
	done    bool
}

// NewPageLister returns a lister driven by fetch.
func NewPageLister(fetch PageFunc) *PageLister {
	return &PageLister{fetch: fetch}
}

// Next implements Lister
func (l *PageLister) Next(ctx context.Context) (*Entry, error) {
	for len(l.buf) == 0 {
		if l.done {
			return nil, nil
		}
		if l.started && l.token == "" {
			l.done = true
			return nil, nil
		}
		entries, next, err := l.fetch(ctx, l.token)
		if err != nil {
			return nil, err
		}
		l.started = true
		l.token = next
		l.buf = entries
	}
	e := l.buf[0]
	l.buf = l.buf[1:]
	return e, nil
}

// ListAll drains l into a slice.
func ListAll(ctx context.Context, l Lister) ([]*Entry, error) {
	var out []*Entry
	for {
		e, err := l.Next(ctx)
		if err != nil {
			return out, err
		}
		if e == nil {
			return out, nil
		}
		out = append(out, e)
	}
}

var (
	_ Lister = (*SliceLister)(nil)
	_ Lister = (*PageLister)(nil)
	_ Lister = ListerFunc(nil)
)
