package storekit_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/storekittest"
)

func TestSliceLister(t *testing.T) {
	ctx := context.Background()
	l := storekit.NewSliceLister([]*storekit.Entry{storekittest.File("a"), storekittest.Dir("b/")})

	entries, err := storekit.ListAll(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b/"}, entryPaths(entries))

	// Exhausted listers keep returning nil
	e, err := l.Next(ctx)
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestSliceListerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storekit.NewSliceLister([]*storekit.Entry{storekittest.File("a")}).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPageLister(t *testing.T) {
	ctx := context.Background()

	var fetched []string
	pages := map[string][]*storekit.Entry{
		"":  {storekittest.File("p0-a"), storekittest.File("p0-b")},
		"1": {},
		"2": {storekittest.File("p2-a")},
	}
	l := storekit.NewPageLister(func(ctx context.Context, token string) ([]*storekit.Entry, string, error) {
		fetched = append(fetched, token)
		next := ""
		if n, err := strconv.Atoi(token); err == nil && n < 2 {
			next = strconv.Itoa(n + 1)
		} else if token == "" {
			next = "1"
		}
		return pages[token], next, nil
	})

	e, err := l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p0-a", e.Path)
	assert.Equal(t, []string{""}, fetched, "pages are fetched lazily")

	rest, err := storekit.ListAll(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0-b", "p2-a"}, entryPaths(rest))
	assert.Equal(t, []string{"", "1", "2"}, fetched, "empty pages are skipped")
}

func TestPageListerError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	l := storekit.NewPageLister(func(ctx context.Context, token string) ([]*storekit.Entry, string, error) {
		if token == "" {
			return []*storekit.Entry{storekittest.File("a")}, "next", nil
		}
		return nil, "", boom
	})

	entries, err := storekit.ListAll(ctx, l)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, entryPaths(entries), "entries before the error are returned")
}

func TestListerFunc(t *testing.T) {
	n := 0
	l := storekit.ListerFunc(func(ctx context.Context) (*storekit.Entry, error) {
		if n == 2 {
			return nil, nil
		}
		n++
		return storekittest.File("f" + strconv.Itoa(n)), nil
	})

	entries, err := storekit.ListAll(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, entryPaths(entries))
}
