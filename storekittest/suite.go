package storekittest

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/storekit"
)

// RunAccessorSuite exercises an accessor through the sanity check layer, so
// any entry whose mode disagrees with its path fails the suite. newAccessor
// must return an empty accessor for each call.
func RunAccessorSuite(t *testing.T, newAccessor func(t *testing.T) storekit.Accessor) {
	t.Helper()

	setup := func(t *testing.T) (*storekit.Operator, context.Context) {
		acc := newAccessor(t)
		return storekit.NewOperator(acc, storekit.SanityCheckLayer{}), context.Background()
	}

	t.Run("write and read", func(t *testing.T) {
		op, ctx := setup(t)

		res, err := op.WriteBytes(ctx, "hello.txt", []byte("hello world"))
		require.NoError(t, err)
		assert.EqualValues(t, 11, res.BytesWritten)

		data, err := op.ReadAll(ctx, "hello.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	})

	t.Run("ranged read", func(t *testing.T) {
		op, ctx := setup(t)

		_, err := op.WriteBytes(ctx, "range.txt", []byte("0123456789"))
		require.NoError(t, err)

		data, err := op.ReadAll(ctx, "range.txt", storekit.WithRange(2, 3))
		require.NoError(t, err)
		assert.Equal(t, "234", string(data))
	})

	t.Run("stat file", func(t *testing.T) {
		op, ctx := setup(t)

		_, err := op.WriteBytes(ctx, "docs/readme.md", []byte("# hi"))
		require.NoError(t, err)

		meta, err := op.Stat(ctx, "docs/readme.md")
		require.NoError(t, err)
		assert.Equal(t, storekit.ModeFile, meta.Mode)
		assert.EqualValues(t, 4, meta.ContentLength)
	})

	t.Run("stat dir", func(t *testing.T) {
		op, ctx := setup(t)

		require.NoError(t, op.CreateDir(ctx, "photos/"))

		meta, err := op.Stat(ctx, "photos/")
		require.NoError(t, err)
		assert.Equal(t, storekit.ModeDir, meta.Mode)

		ok, err := op.DirExists(ctx, "photos")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stat root", func(t *testing.T) {
		op, ctx := setup(t)

		meta, err := op.Stat(ctx, "/")
		require.NoError(t, err)
		assert.Equal(t, storekit.ModeDir, meta.Mode)
	})

	t.Run("empty path is the root", func(t *testing.T) {
		op, ctx := setup(t)
		seed(t, op, "top.txt")

		meta, err := op.Stat(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, storekit.ModeDir, meta.Mode)

		ok, err := op.DirExists(ctx, "")
		require.NoError(t, err)
		assert.True(t, ok)

		entries, err := op.ListAll(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, paths(entries), "top.txt")
	})

	t.Run("stat missing", func(t *testing.T) {
		op, ctx := setup(t)

		_, err := op.Stat(ctx, "nope.txt")
		require.Error(t, err)
		assert.True(t, storekit.IsNotExist(err), "got %v", err)

		ok, err := op.FileExists(ctx, "nope.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list one level", func(t *testing.T) {
		op, ctx := setup(t)
		seed(t, op, "dir/a.txt", "dir/b.txt", "dir/sub/c.txt")

		entries, err := op.ListAll(ctx, "dir/")
		require.NoError(t, err)

		got := paths(entries)
		assert.Equal(t, []string{"dir/a.txt", "dir/b.txt", "dir/sub/"}, got)
		for _, e := range entries {
			assert.Equal(t, storekit.IsDirectoryPath(e.Path), e.Mode() == storekit.ModeDir, e.Path)
		}
	})

	t.Run("list recursive", func(t *testing.T) {
		op, ctx := setup(t)
		if !op.Info().Capability().ListRecursive {
			t.Skip("recursive listing not supported")
		}
		seed(t, op, "tree/a.txt", "tree/x/b.txt", "tree/x/y/c.txt")

		entries, err := op.ListAll(ctx, "tree/", storekit.WithRecursive(true))
		require.NoError(t, err)

		got := paths(entries)
		for _, want := range []string{"tree/a.txt", "tree/x/b.txt", "tree/x/y/c.txt"} {
			assert.Contains(t, got, want)
		}
	})

	t.Run("walk", func(t *testing.T) {
		op, ctx := setup(t)
		seed(t, op, "w/a.txt", "w/x/b.txt")

		var files []string
		err := op.Walk(ctx, "w/", func(e *storekit.Entry) error {
			if e.Mode() == storekit.ModeFile {
				files = append(files, e.Path)
			}
			return nil
		})
		require.NoError(t, err)
		sort.Strings(files)
		assert.Equal(t, []string{"w/a.txt", "w/x/b.txt"}, files)
	})

	t.Run("list missing dir", func(t *testing.T) {
		op, ctx := setup(t)

		_, err := op.ListAll(ctx, "missing/")
		if err != nil {
			assert.True(t, storekit.IsNotExist(err), "got %v", err)
		}
	})

	t.Run("delete file", func(t *testing.T) {
		op, ctx := setup(t)
		seed(t, op, "gone.txt")

		require.NoError(t, op.Delete(ctx, "gone.txt"))

		_, err := op.Stat(ctx, "gone.txt")
		assert.True(t, storekit.IsNotExist(err), "got %v", err)
	})

	t.Run("remove all", func(t *testing.T) {
		op, ctx := setup(t)
		seed(t, op, "rm/a.txt", "rm/x/b.txt", "rm/x/y/c.txt", "keep.txt")

		require.NoError(t, op.RemoveAll(ctx, "rm/"))

		for _, p := range []string{"rm/a.txt", "rm/x/b.txt", "rm/x/y/c.txt"} {
			ok, err := op.FileExists(ctx, p)
			require.NoError(t, err)
			assert.False(t, ok, p)
		}
		ok, err := op.FileExists(ctx, "keep.txt")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("copy and move", func(t *testing.T) {
		op, ctx := setup(t)
		seed(t, op, "src.txt")

		require.NoError(t, op.Copy(ctx, "src.txt", "copy/dst.txt"))
		data, err := op.ReadAll(ctx, "copy/dst.txt")
		require.NoError(t, err)
		assert.Equal(t, "content of src.txt", string(data))

		require.NoError(t, op.Move(ctx, "copy/dst.txt", "moved.txt"))
		ok, err := op.FileExists(ctx, "copy/dst.txt")
		require.NoError(t, err)
		assert.False(t, ok)

		data, err = op.ReadAll(ctx, "moved.txt")
		require.NoError(t, err)
		assert.Equal(t, "content of src.txt", string(data))
	})

	t.Run("checksum", func(t *testing.T) {
		op, ctx := setup(t)
		seed(t, op, "sum.txt")

		want, err := storekit.CalculateChecksum(strings.NewReader("content of sum.txt"), storekit.ChecksumSHA256)
		require.NoError(t, err)

		got, err := op.Checksum(ctx, "sum.txt", storekit.ChecksumSHA256)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("read directory fails", func(t *testing.T) {
		op, ctx := setup(t)
		require.NoError(t, op.CreateDir(ctx, "d/"))

		_, err := op.Read(ctx, "d/")
		assert.Error(t, err)
	})
}

// seed writes "content of <path>" to each path.
func seed(t *testing.T, op *storekit.Operator, files ...string) {
	t.Helper()
	for _, f := range files {
		_, err := op.WriteBytes(context.Background(), f, []byte("content of "+f))
		require.NoError(t, err, f)
	}
}

func paths(entries []*storekit.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	sort.Strings(out)
	return out
}
