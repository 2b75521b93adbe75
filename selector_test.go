package storekit_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/driver/memory"
)

func newSelectorTree(t *testing.T) *storekit.Operator {
	t.Helper()
	ctx := context.Background()
	op := storekit.NewOperator(memory.New(), storekit.SanityCheckLayer{})
	for _, p := range []string{
		"docs/a.txt",
		"docs/b.md",
		"docs/sub/c.txt",
		"docs/sub/deep/d.txt",
		"img/x.jpg",
	} {
		_, err := op.WriteBytes(ctx, p, []byte(p))
		require.NoError(t, err)
	}
	return op
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	op := newSelectorTree(t)

	tests := []struct {
		name string
		dir  string
		sel  storekit.Selector
		want []string
	}{
		{
			name: "all",
			dir:  "img/",
			sel:  storekit.All(),
			want: []string{"img/x.jpg"},
		},
		{
			name: "name glob",
			dir:  "/",
			sel:  storekit.MustGlob("*.txt"),
			want: []string{"docs/a.txt", "docs/sub/c.txt", "docs/sub/deep/d.txt"},
		},
		{
			name: "path glob",
			dir:  "/",
			sel:  storekit.MustGlob("docs/*/*.txt"),
			want: []string{"docs/sub/c.txt"},
		},
		{
			name: "double star",
			dir:  "/",
			sel:  storekit.MustGlob("docs/**/*.txt"),
			want: []string{"docs/sub/c.txt", "docs/sub/deep/d.txt"},
		},
		{
			name: "alternation",
			dir:  "/",
			sel:  storekit.MustGlob("*.{md,jpg}"),
			want: []string{"docs/b.md", "img/x.jpg"},
		},
		{
			name: "depth",
			dir:  "docs/",
			sel:  storekit.Depth(1, "docs/"),
			want: []string{"docs/a.txt", "docs/b.md", "docs/sub/"},
		},
		{
			name: "and not",
			dir:  "docs/",
			sel:  storekit.And(storekit.Files(), storekit.Not(storekit.MustGlob("*.md"))),
			want: []string{"docs/a.txt", "docs/sub/c.txt", "docs/sub/deep/d.txt"},
		},
		{
			name: "or",
			dir:  "/",
			sel:  storekit.Or(storekit.MustGlob("*.md"), storekit.MustGlob("*.jpg")),
			want: []string{"docs/b.md", "img/x.jpg"},
		},
		{
			name: "func",
			dir:  "/",
			sel: storekit.FuncSelector(func(e *storekit.Entry) bool {
				return e.Mode() == storekit.ModeDir && strings.Count(e.Path, "/") == 1
			}),
			want: []string{"docs/", "img/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := op.Find(ctx, tt.dir, tt.sel)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, entryPaths(got))
		})
	}
}

func TestFindPrunesSubtrees(t *testing.T) {
	ctx := context.Background()
	op := newSelectorTree(t)

	var visited []string
	sel := storekit.FuncSelectorFull(
		func(e *storekit.Entry) bool {
			visited = append(visited, e.Path)
			return e.Mode() == storekit.ModeFile
		},
		func(e *storekit.Entry) bool { return e.Path != "docs/sub/" },
	)

	got, err := op.Find(ctx, "docs/", sel)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/a.txt", "docs/b.md"}, entryPaths(got))
	assert.NotContains(t, visited, "docs/sub/c.txt")
}

func TestFindVisitsInListingOrder(t *testing.T) {
	op := newSelectorTree(t)

	got, err := op.Find(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"docs/",
		"img/",
		"docs/a.txt",
		"docs/b.md",
		"docs/sub/",
		"docs/sub/c.txt",
		"docs/sub/deep/",
		"docs/sub/deep/d.txt",
		"img/x.jpg",
	}, entryPaths(got))
}

func TestFindMissingDir(t *testing.T) {
	op := newSelectorTree(t)

	_, err := op.Find(context.Background(), "missing/", storekit.All())
	assert.True(t, storekit.IsNotExist(err), "got %v", err)
}

func TestGlobInvalid(t *testing.T) {
	_, err := storekit.Glob("[")
	kind, ok := storekit.KindOf(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, storekit.KindConfigInvalid, kind)

	assert.Panics(t, func() { storekit.MustGlob("[") })
}

func TestDepthSelector(t *testing.T) {
	sel := storekit.Depth(2, "/")

	assert.True(t, sel.Match(storekit.NewEntry("a/", storekit.NewMetadata(storekit.ModeDir))))
	assert.True(t, sel.TraverseDescendants(storekit.NewEntry("a/", storekit.NewMetadata(storekit.ModeDir))))
	assert.True(t, sel.Match(storekit.NewEntry("a/b/", storekit.NewMetadata(storekit.ModeDir))))
	assert.False(t, sel.TraverseDescendants(storekit.NewEntry("a/b/", storekit.NewMetadata(storekit.ModeDir))))
	assert.False(t, sel.Match(storekit.NewEntry("a/b/c", storekit.NewMetadata(storekit.ModeFile))))
}
