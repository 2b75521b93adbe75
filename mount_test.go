package storekit_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/driver/memory"
	"github.com/gobeaver/storekit/storekittest"
)

func newMounts(t *testing.T) (*storekit.MountAccessor, map[string]*memory.Adapter) {
	t.Helper()
	backends := map[string]*memory.Adapter{
		"local":         memory.New(),
		"cloud":         memory.New(),
		"cloud/archive": memory.New(),
	}
	mounts := storekit.NewMountAccessor()
	for p, acc := range backends {
		require.NoError(t, mounts.Mount(p, acc))
	}
	return mounts, backends
}

func entryPaths(entries []*storekit.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestMount(t *testing.T) {
	mounts := storekit.NewMountAccessor()

	require.NoError(t, mounts.Mount("/files/", memory.New()))

	err := mounts.Mount("files", memory.New())
	assert.True(t, storekit.IsExist(err), "got %v", err)

	err = mounts.Mount("/", memory.New())
	kind, _ := storekit.KindOf(err)
	assert.Equal(t, storekit.KindConfigInvalid, kind)

	err = mounts.Mount("other", nil)
	kind, _ = storekit.KindOf(err)
	assert.Equal(t, storekit.KindConfigInvalid, kind)

	err = mounts.Mount("../escape", memory.New())
	assert.True(t, storekit.IsPermission(err), "got %v", err)

	assert.Equal(t, []string{"files"}, mounts.MountPaths())
}

func TestUnmount(t *testing.T) {
	mounts := storekit.NewMountAccessor()
	backend := memory.New()
	require.NoError(t, mounts.Mount("files", backend))

	acc, err := mounts.Unmount("/files")
	require.NoError(t, err)
	assert.Same(t, backend, acc)
	assert.Empty(t, mounts.MountPaths())

	_, err = mounts.Unmount("files")
	assert.True(t, storekit.IsNotExist(err), "got %v", err)
}

func TestMountPathsLongestFirst(t *testing.T) {
	mounts, _ := newMounts(t)
	assert.Equal(t, []string{"cloud/archive", "cloud", "local"}, mounts.MountPaths())
}

func TestMountRouting(t *testing.T) {
	ctx := context.Background()
	mounts, backends := newMounts(t)
	op := storekit.NewOperator(mounts, storekit.SanityCheckLayer{})

	res, err := op.WriteBytes(ctx, "local/notes.txt", []byte("local"))
	require.NoError(t, err)
	assert.Equal(t, "local/notes.txt", res.Path)

	_, err = op.WriteBytes(ctx, "/cloud/report.csv", []byte("cloud"))
	require.NoError(t, err)
	_, err = op.WriteBytes(ctx, "cloud/archive/2023.tar", []byte("old"))
	require.NoError(t, err)

	_, err = backends["local"].Stat(ctx, "notes.txt")
	require.NoError(t, err)
	_, err = backends["cloud"].Stat(ctx, "report.csv")
	require.NoError(t, err)
	_, err = backends["cloud/archive"].Stat(ctx, "2023.tar")
	require.NoError(t, err)
	_, err = backends["cloud"].Stat(ctx, "archive/2023.tar")
	assert.True(t, storekit.IsNotExist(err), "nested mount must win")

	data, err := op.ReadAll(ctx, "cloud/archive/2023.tar")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	_, err = op.WriteBytes(ctx, "nowhere/file.txt", []byte("x"))
	assert.True(t, storekit.IsNotExist(err), "got %v", err)
}

func TestMountStatVirtualDirs(t *testing.T) {
	ctx := context.Background()
	mounts, _ := newMounts(t)
	op := storekit.NewOperator(mounts, storekit.SanityCheckLayer{})

	for _, p := range []string{"/", "cloud/", "local/", "cloud/archive/"} {
		meta, err := op.Stat(ctx, p)
		require.NoError(t, err, p)
		assert.True(t, meta.IsDir(), p)
	}

	_, err := op.Stat(ctx, "cloud")
	kind, _ := storekit.KindOf(err)
	assert.Equal(t, storekit.KindIsADirectory, kind)

	_, err = op.Stat(ctx, "missing/")
	assert.True(t, storekit.IsNotExist(err), "got %v", err)
}

func TestMountListRoot(t *testing.T) {
	ctx := context.Background()
	mounts, _ := newMounts(t)
	op := storekit.NewOperator(mounts, storekit.SanityCheckLayer{})

	entries, err := op.ListAll(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"cloud/", "local/"}, entryPaths(entries))
	for _, e := range entries {
		assert.Equal(t, storekit.ModeDir, e.Mode())
	}

	entries, err = op.ListAll(ctx, "/", storekit.WithStartAfter("cloud/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"local/"}, entryPaths(entries))
}

func TestMountListInsideMount(t *testing.T) {
	ctx := context.Background()
	mounts, _ := newMounts(t)
	op := storekit.NewOperator(mounts, storekit.SanityCheckLayer{})

	for _, p := range []string{"local/a.txt", "local/sub/b.txt"} {
		_, err := op.WriteBytes(ctx, p, []byte(p))
		require.NoError(t, err)
	}

	entries, err := op.ListAll(ctx, "local/")
	require.NoError(t, err)
	assert.Equal(t, []string{"local/a.txt", "local/sub/"}, entryPaths(entries))

	entries, err = op.ListAll(ctx, "local", storekit.WithRecursive(true), storekit.WithStartAfter("local/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"local/sub/", "local/sub/b.txt"}, entryPaths(entries))
}

func TestMountListRecursiveAcrossMounts(t *testing.T) {
	ctx := context.Background()
	mounts, _ := newMounts(t)
	op := storekit.NewOperator(mounts, storekit.SanityCheckLayer{})

	for _, p := range []string{"local/a.txt", "cloud/b.txt", "cloud/archive/c.txt"} {
		_, err := op.WriteBytes(ctx, p, []byte(p))
		require.NoError(t, err)
	}

	entries, err := op.ListAll(ctx, "/", storekit.WithRecursive(true))
	require.NoError(t, err)
	got := entryPaths(entries)
	for _, want := range []string{"cloud/", "cloud/archive/", "local/", "local/a.txt", "cloud/b.txt", "cloud/archive/c.txt"} {
		assert.Contains(t, got, want)
	}

	_, err = op.List(ctx, "missing/")
	assert.True(t, storekit.IsNotExist(err), "got %v", err)
}

func TestMountDeleteAndCreateDir(t *testing.T) {
	ctx := context.Background()
	mounts, _ := newMounts(t)
	op := storekit.NewOperator(mounts)

	require.NoError(t, op.CreateDir(ctx, "local/sub/"))
	ok, err := op.DirExists(ctx, "local/sub/")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, op.CreateDir(ctx, "cloud/"), "virtual and mount dirs already exist")
	require.NoError(t, op.CreateDir(ctx, "/"))

	require.NoError(t, op.Delete(ctx, "local/sub/"))

	err = op.Delete(ctx, "/")
	assert.True(t, storekit.IsPermission(err), "got %v", err)

	err = op.Delete(ctx, "nowhere/x")
	assert.True(t, storekit.IsNotExist(err), "got %v", err)
}

func TestMountCopyMove(t *testing.T) {
	ctx := context.Background()
	mounts, backends := newMounts(t)
	op := storekit.NewOperator(mounts)

	_, err := op.WriteBytes(ctx, "local/doc.json", []byte(`{"a":1}`),
		storekit.WithContentType("application/json"),
		storekit.WithMetadata(map[string]string{"owner": "ops"}))
	require.NoError(t, err)

	t.Run("same mount", func(t *testing.T) {
		require.NoError(t, op.Copy(ctx, "local/doc.json", "local/copy.json"))
		_, err := backends["local"].Stat(ctx, "copy.json")
		require.NoError(t, err)
	})

	t.Run("cross mount keeps metadata", func(t *testing.T) {
		require.NoError(t, op.Copy(ctx, "local/doc.json", "cloud/doc.json"))
		meta, err := backends["cloud"].Stat(ctx, "doc.json")
		require.NoError(t, err)
		assert.Equal(t, "application/json", meta.ContentType)
		assert.Equal(t, "ops", meta.UserMetadata["owner"])
	})

	t.Run("cross mount move", func(t *testing.T) {
		require.NoError(t, op.Move(ctx, "local/copy.json", "cloud/archive/copy.json"))
		_, err := backends["local"].Stat(ctx, "copy.json")
		assert.True(t, storekit.IsNotExist(err))
		data, err := op.ReadAll(ctx, "cloud/archive/copy.json")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(data))
	})

	t.Run("unresolved", func(t *testing.T) {
		err := op.Copy(ctx, "local/doc.json", "nowhere/doc.json")
		assert.True(t, storekit.IsNotExist(err), "got %v", err)
	})
}

func TestMountPresign(t *testing.T) {
	ctx := context.Background()
	stub := storekittest.NewStubAccessor("s3")
	stub.SignFunc = func(_ context.Context, p string, _ time.Duration, _ bool) (string, error) {
		return "https://signed.example/" + p, nil
	}

	mounts, _ := newMounts(t)
	require.NoError(t, mounts.Mount("signed", stub))
	op := storekit.NewOperator(mounts)

	url, err := op.PresignRead(ctx, "signed/a.txt", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/a.txt", url)

	_, err = op.PresignRead(ctx, "local/a.txt", time.Minute)
	assert.True(t, storekit.IsNotSupported(err), "got %v", err)
}

func TestMountClose(t *testing.T) {
	a := storekittest.NewStubAccessor("a")
	b := storekittest.NewStubAccessor("b")
	mounts := storekit.NewMountAccessor()
	require.NoError(t, mounts.Mount("a", a))
	require.NoError(t, mounts.Mount("b", b))

	require.NoError(t, mounts.Close())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestMountConcurrency(t *testing.T) {
	ctx := context.Background()
	mounts, _ := newMounts(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "local/f" + strings.Repeat("x", i)
			_, err := mounts.Write(ctx, name, strings.NewReader("x"))
			assert.NoError(t, err)
			_, err = mounts.Stat(ctx, name)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}
