// Package storekittest provides test doubles and a conformance suite for
// storekit accessors.
package storekittest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gobeaver/storekit"
)

// Step is one scripted result of a StubLister.
type Step struct {
	Entry *storekit.Entry
	Err   error
}

// StubLister replays a fixed script, then reports exhaustion.
type StubLister struct {
	mu    sync.Mutex
	steps []Step
	pulls int
}

// NewStubLister returns a lister that replays steps in order.
func NewStubLister(steps ...Step) *StubLister {
	return &StubLister{steps: steps}
}

// Entries is a shorthand for a script made only of entries.
func Entries(entries ...*storekit.Entry) *StubLister {
	steps := make([]Step, len(entries))
	for i, e := range entries {
		steps[i] = Step{Entry: e}
	}
	return NewStubLister(steps...)
}

// Next implements storekit.Lister
func (l *StubLister) Next(_ context.Context) (*storekit.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pulls++
	if len(l.steps) == 0 {
		return nil, nil
	}
	s := l.steps[0]
	l.steps = l.steps[1:]
	return s.Entry, s.Err
}

// Pulls returns how many times Next was called.
func (l *StubLister) Pulls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pulls
}

// File returns a file entry for path.
func File(path string) *storekit.Entry {
	return storekit.NewEntry(path, storekit.NewMetadata(storekit.ModeFile))
}

// Dir returns a directory entry for path.
func Dir(path string) *storekit.Entry {
	return storekit.NewEntry(path, storekit.NewMetadata(storekit.ModeDir))
}

// Unknown returns an entry for path with no mode.
func Unknown(path string) *storekit.Entry {
	return storekit.NewEntry(path, storekit.NewMetadata(storekit.ModeUnknown))
}

// StubAccessor is a scriptable accessor. Unset funcs fail with an
// Unsupported error. Every call is recorded.
type StubAccessor struct {
	InfoValue *storekit.AccessorInfo

	StatFunc      func(ctx context.Context, path string) (*storekit.Metadata, error)
	ListFunc      func(ctx context.Context, path string) (storekit.Lister, error)
	ReadFunc      func(ctx context.Context, path string) (io.ReadCloser, error)
	WriteFunc     func(ctx context.Context, path string, r io.Reader) (*storekit.WriteResult, error)
	DeleteFunc    func(ctx context.Context, path string) error
	CreateDirFunc func(ctx context.Context, path string) error
	CopyFunc      func(ctx context.Context, src, dst string) error
	MoveFunc      func(ctx context.Context, src, dst string) error
	SignFunc      func(ctx context.Context, path string, expires time.Duration, upload bool) (string, error)

	mu     sync.Mutex
	calls  []string
	closed bool
}

// NewStubAccessor returns a stub whose info reports scheme.
func NewStubAccessor(scheme string) *StubAccessor {
	return &StubAccessor{
		InfoValue: storekit.NewAccessorInfo(scheme, storekit.WithCapability(storekit.Capability{
			Stat: true, List: true, Read: true, Write: true, Delete: true, CreateDir: true,
		})),
	}
}

func (s *StubAccessor) record(op storekit.Operation) {
	s.mu.Lock()
	s.calls = append(s.calls, op.String())
	s.mu.Unlock()
}

// Calls returns the recorded operation names in call order.
func (s *StubAccessor) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Closed reports whether Close was called.
func (s *StubAccessor) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func notScripted(op storekit.Operation, path string) error {
	return storekit.PathErr(storekit.KindUnsupported, op, path, nil)
}

// Info implements storekit.Accessor
func (s *StubAccessor) Info() *storekit.AccessorInfo {
	return s.InfoValue
}

// Stat implements storekit.Accessor
func (s *StubAccessor) Stat(ctx context.Context, path string, _ ...storekit.StatOption) (*storekit.Metadata, error) {
	s.record(storekit.OpStat)
	if s.StatFunc == nil {
		return nil, notScripted(storekit.OpStat, path)
	}
	return s.StatFunc(ctx, path)
}

// List implements storekit.Accessor
func (s *StubAccessor) List(ctx context.Context, path string, _ ...storekit.ListOption) (storekit.Lister, error) {
	s.record(storekit.OpList)
	if s.ListFunc == nil {
		return nil, notScripted(storekit.OpList, path)
	}
	return s.ListFunc(ctx, path)
}

// Read implements storekit.Accessor
func (s *StubAccessor) Read(ctx context.Context, path string, _ ...storekit.ReadOption) (io.ReadCloser, error) {
	s.record(storekit.OpRead)
	if s.ReadFunc == nil {
		return nil, notScripted(storekit.OpRead, path)
	}
	return s.ReadFunc(ctx, path)
}

// Write implements storekit.Accessor
func (s *StubAccessor) Write(ctx context.Context, path string, r io.Reader, _ ...storekit.Option) (*storekit.WriteResult, error) {
	s.record(storekit.OpWrite)
	if s.WriteFunc == nil {
		return nil, notScripted(storekit.OpWrite, path)
	}
	return s.WriteFunc(ctx, path, r)
}

// Delete implements storekit.Accessor
func (s *StubAccessor) Delete(ctx context.Context, path string) error {
	s.record(storekit.OpDelete)
	if s.DeleteFunc == nil {
		return notScripted(storekit.OpDelete, path)
	}
	return s.DeleteFunc(ctx, path)
}

// CreateDir implements storekit.Accessor
func (s *StubAccessor) CreateDir(ctx context.Context, path string) error {
	s.record(storekit.OpCreateDir)
	if s.CreateDirFunc == nil {
		return notScripted(storekit.OpCreateDir, path)
	}
	return s.CreateDirFunc(ctx, path)
}

// Copy implements storekit.CanCopy
func (s *StubAccessor) Copy(ctx context.Context, src, dst string) error {
	s.record(storekit.OpCopy)
	if s.CopyFunc == nil {
		return notScripted(storekit.OpCopy, src)
	}
	return s.CopyFunc(ctx, src, dst)
}

// Move implements storekit.CanMove
func (s *StubAccessor) Move(ctx context.Context, src, dst string) error {
	s.record(storekit.OpMove)
	if s.MoveFunc == nil {
		return notScripted(storekit.OpMove, src)
	}
	return s.MoveFunc(ctx, src, dst)
}

// SignedURL implements storekit.CanSignURL
func (s *StubAccessor) SignedURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	s.record(storekit.OpPresign)
	if s.SignFunc == nil {
		return "", notScripted(storekit.OpPresign, path)
	}
	return s.SignFunc(ctx, path, expires, false)
}

// SignedUploadURL implements storekit.CanSignURL
func (s *StubAccessor) SignedUploadURL(ctx context.Context, path string, expires time.Duration) (string, error) {
	s.record(storekit.OpPresign)
	if s.SignFunc == nil {
		return "", notScripted(storekit.OpPresign, path)
	}
	return s.SignFunc(ctx, path, expires, true)
}

// Close implements io.Closer
func (s *StubAccessor) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var (
	_ storekit.Accessor   = (*StubAccessor)(nil)
	_ storekit.CanCopy    = (*StubAccessor)(nil)
	_ storekit.CanMove    = (*StubAccessor)(nil)
	_ storekit.CanSignURL = (*StubAccessor)(nil)
	_ storekit.Lister     = (*StubLister)(nil)
)
