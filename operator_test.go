package storekit_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/driver/memory"
	"github.com/gobeaver/storekit/storekittest"
)

func TestOperatorExists(t *testing.T) {
	ctx := context.Background()
	op := storekit.NewOperator(memory.New(), storekit.SanityCheckLayer{})
	_, err := op.WriteBytes(ctx, "dir/file.txt", []byte("x"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		check func(context.Context, string) (bool, error)
		path  string
		want  bool
	}{
		{"exists file", op.Exists, "dir/file.txt", true},
		{"exists dir", op.Exists, "dir/", true},
		{"exists missing", op.Exists, "nope", false},
		{"file exists", op.FileExists, "dir/file.txt", true},
		{"file exists on dir path", op.FileExists, "dir/", false},
		{"file exists missing", op.FileExists, "dir/nope.txt", false},
		{"dir exists", op.DirExists, "dir", true},
		{"dir exists with slash", op.DirExists, "dir/", true},
		{"dir exists missing", op.DirExists, "other", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.check(ctx, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperatorEmptyPathIsRoot(t *testing.T) {
	ctx := context.Background()

	t.Run("sanity layer accepts the root", func(t *testing.T) {
		op := storekit.NewOperator(memory.New(), storekit.SanityCheckLayer{})
		_, err := op.WriteBytes(ctx, "a.txt", []byte("x"))
		require.NoError(t, err)

		meta, err := op.Stat(ctx, "")
		require.NoError(t, err)
		assert.True(t, meta.IsDir())

		ok, err := op.DirExists(ctx, "")
		require.NoError(t, err)
		assert.True(t, ok)

		entries, err := op.ListAll(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, entryPaths(entries))
	})

	t.Run("layers receive a slash", func(t *testing.T) {
		var seen []string
		stub := storekittest.NewStubAccessor("stub")
		stub.StatFunc = func(ctx context.Context, path string) (*storekit.Metadata, error) {
			seen = append(seen, path)
			return storekit.NewMetadata(storekit.ModeDir), nil
		}
		stub.ListFunc = func(ctx context.Context, path string) (storekit.Lister, error) {
			seen = append(seen, path)
			return storekit.NewSliceLister(nil), nil
		}
		op := storekit.NewOperator(stub, storekit.SanityCheckLayer{})

		_, err := op.Stat(ctx, "")
		require.NoError(t, err)
		_, err = op.List(ctx, "")
		require.NoError(t, err)
		_, err = op.Stat(ctx, "dir/")
		require.NoError(t, err)
		assert.Equal(t, []string{"/", "/", "dir/"}, seen)
	})
}

func TestOperatorExistsPropagatesErrors(t *testing.T) {
	stub := storekittest.NewStubAccessor("stub")
	stub.StatFunc = func(ctx context.Context, path string) (*storekit.Metadata, error) {
		return nil, storekit.PathErr(storekit.KindPermissionDenied, storekit.OpStat, path, nil)
	}
	op := storekit.NewOperator(stub)

	_, err := op.Exists(context.Background(), "a")
	assert.True(t, storekit.IsPermission(err))
}

// treeStub serves a fixed directory tree one level at a time.
func treeStub(tree map[string][]*storekit.Entry) *storekittest.StubAccessor {
	stub := storekittest.NewStubAccessor("tree")
	stub.ListFunc = func(ctx context.Context, path string) (storekit.Lister, error) {
		entries, ok := tree[path]
		if !ok {
			return nil, storekit.PathErr(storekit.KindNotFound, storekit.OpList, path, nil)
		}
		return storekit.NewSliceLister(entries), nil
	}
	return stub
}

func TestOperatorWalkWithoutRecursiveListing(t *testing.T) {
	stub := treeStub(map[string][]*storekit.Entry{
		"root/":     {storekittest.File("root/a"), storekittest.Dir("root/x/")},
		"root/x/":   {storekittest.File("root/x/b"), storekittest.Dir("root/x/y/")},
		"root/x/y/": {storekittest.File("root/x/y/c")},
	})
	op := storekit.NewOperator(stub, storekit.SanityCheckLayer{})

	var visited []string
	err := op.Walk(context.Background(), "root/", func(e *storekit.Entry) error {
		visited = append(visited, e.Path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"root/a", "root/x/", "root/x/b", "root/x/y/", "root/x/y/c"}, visited)
}

func TestOperatorWalkStopsOnError(t *testing.T) {
	stub := treeStub(map[string][]*storekit.Entry{
		"/": {storekittest.File("a"), storekittest.File("b")},
	})
	op := storekit.NewOperator(stub)

	stop := storekit.NewError(storekit.KindUnexpected, "stop")
	var visited []string
	err := op.Walk(context.Background(), "/", func(e *storekit.Entry) error {
		visited = append(visited, e.Path)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a"}, visited)
}

func TestOperatorRemoveAll(t *testing.T) {
	ctx := context.Background()
	op := storekit.NewOperator(memory.New())

	for _, p := range []string{"rm/a.txt", "rm/x/b.txt", "rm/x/y/c.txt", "keep/d.txt"} {
		_, err := op.WriteBytes(ctx, p, []byte("x"))
		require.NoError(t, err)
	}

	require.NoError(t, op.RemoveAll(ctx, "rm/"))
	ok, err := op.DirExists(ctx, "rm")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, op.RemoveAll(ctx, "missing.txt"), "missing files are ignored")
	require.NoError(t, op.RemoveAll(ctx, "missing/"), "missing dirs are ignored")

	require.NoError(t, op.RemoveAll(ctx, "/"))
	entries, err := op.ListAll(ctx, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOperatorCopyFallback(t *testing.T) {
	ctx := context.Background()

	var written string
	stub := storekittest.NewStubAccessor("stub")
	stub.ReadFunc = func(ctx context.Context, path string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("payload of " + path)), nil
	}
	stub.WriteFunc = func(ctx context.Context, path string, r io.Reader) (*storekit.WriteResult, error) {
		data, _ := io.ReadAll(r)
		written = path + "=" + string(data)
		return &storekit.WriteResult{Path: path, BytesWritten: int64(len(data))}, nil
	}
	stub.DeleteFunc = func(ctx context.Context, path string) error { return nil }
	op := storekit.NewOperator(stub)

	// The stub has a Copy method but does not declare the capability
	require.NoError(t, op.Copy(ctx, "a.txt", "b.txt"))
	assert.Equal(t, "b.txt=payload of a.txt", written)
	assert.Equal(t, []string{"read", "write"}, stub.Calls())

	require.NoError(t, op.Move(ctx, "c.txt", "d.txt"))
	assert.Equal(t, "d.txt=payload of c.txt", written)
	assert.Equal(t, []string{"read", "write", "read", "write", "delete"}, stub.Calls())
}

func TestOperatorCopyNative(t *testing.T) {
	ctx := context.Background()
	stub := storekittest.NewStubAccessor("native")
	stub.InfoValue = storekit.NewAccessorInfo("native", storekit.WithCapability(storekit.Capability{
		Read: true, Write: true, Copy: true, Move: true,
	}))
	stub.CopyFunc = func(ctx context.Context, src, dst string) error { return nil }
	stub.MoveFunc = func(ctx context.Context, src, dst string) error { return nil }
	op := storekit.NewOperator(stub, storekit.SanityCheckLayer{})

	require.NoError(t, op.Copy(ctx, "a", "b"))
	require.NoError(t, op.Move(ctx, "b", "c"))
	assert.Equal(t, []string{"copy", "move"}, stub.Calls())
}

func TestOperatorPresign(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported", func(t *testing.T) {
		stub := storekittest.NewStubAccessor("stub")
		op := storekit.NewOperator(stub)

		_, err := op.PresignRead(ctx, "a", time.Minute)
		assert.True(t, storekit.IsNotSupported(err))
		_, err = op.PresignWrite(ctx, "a", time.Minute)
		assert.True(t, storekit.IsNotSupported(err))
		assert.Empty(t, stub.Calls(), "capability is checked before calling the backend")
	})

	t.Run("supported", func(t *testing.T) {
		stub := storekittest.NewStubAccessor("signer")
		stub.InfoValue = storekit.NewAccessorInfo("signer", storekit.WithCapability(storekit.Capability{Presign: true}))
		stub.SignFunc = func(ctx context.Context, path string, expires time.Duration, upload bool) (string, error) {
			if upload {
				return "https://example.test/put/" + path, nil
			}
			return "https://example.test/get/" + path, nil
		}
		op := storekit.NewOperator(stub, storekit.SanityCheckLayer{}, storekit.LoggingLayer{})

		u, err := op.PresignRead(ctx, "a.txt", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "https://example.test/get/a.txt", u)

		u, err = op.PresignWrite(ctx, "a.txt", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "https://example.test/put/a.txt", u)
	})
}

func TestOperatorChecksums(t *testing.T) {
	ctx := context.Background()
	op := storekit.NewOperator(memory.New())
	_, err := op.WriteBytes(ctx, "data.txt", []byte("Hello, World!"))
	require.NoError(t, err)

	sums, err := op.Checksums(ctx, "data.txt", []storekit.ChecksumAlgorithm{storekit.ChecksumSHA1, storekit.ChecksumXXHash})
	require.NoError(t, err)
	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"sha1", "xxhash"}, keys)
	assert.Equal(t, "0a0a9f2a6772942557ab5355d76af442f8f65e01", sums[storekit.ChecksumSHA1])

	ok, err := storekit.VerifyChecksum(ctx, op, "data.txt", sums[storekit.ChecksumSHA1], storekit.ChecksumSHA1)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = op.Checksum(ctx, "dir/", storekit.ChecksumMD5)
	assert.ErrorIs(t, err, storekit.ErrIsDir)

	_, err = op.Checksum(ctx, "data.txt", storekit.ChecksumAlgorithm("whirlpool"))
	assert.True(t, storekit.IsNotSupported(err))
}

func TestOperatorClose(t *testing.T) {
	stub := storekittest.NewStubAccessor("stub")
	op := storekit.NewOperator(stub, storekit.SanityCheckLayer{}, storekit.ReadOnlyLayer{}, storekit.LoggingLayer{})

	require.NoError(t, op.Close())
	assert.True(t, stub.Closed(), "Close reaches the driver through every layer")
	assert.Same(t, stub, storekit.Innermost(op.Accessor))
}
