package memory

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/storekittest"
)

func TestAccessorSuite(t *testing.T) {
	storekittest.RunAccessorSuite(t, func(t *testing.T) storekit.Accessor {
		return New()
	})
}

func TestNew(t *testing.T) {
	t.Run("creates adapter with default config", func(t *testing.T) {
		a := New()
		if a == nil {
			t.Fatal("expected adapter to be created")
		}
		if a.maxSize != 0 {
			t.Errorf("expected maxSize=0, got %d", a.maxSize)
		}
		if a.Info().Scheme() != "memory" {
			t.Errorf("expected scheme memory, got %s", a.Info().Scheme())
		}
	})

	t.Run("creates adapter with max size", func(t *testing.T) {
		a := New(Config{MaxSize: 1024})
		if a.maxSize != 1024 {
			t.Errorf("expected maxSize=1024, got %d", a.maxSize)
		}
	})
}

func TestWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("tracks size", func(t *testing.T) {
		a := New()
		content := "hello world"

		if _, err := a.Write(ctx, "test.txt", strings.NewReader(content)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Size() != int64(len(content)) {
			t.Errorf("expected size=%d, got %d", len(content), a.Size())
		}

		// Overwrite replaces the old size
		if _, err := a.Write(ctx, "test.txt", strings.NewReader("hi")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Size() != 2 {
			t.Errorf("expected size=2, got %d", a.Size())
		}
	})

	t.Run("fails on path traversal", func(t *testing.T) {
		a := New()

		_, err := a.Write(ctx, "../etc/passwd", strings.NewReader("malicious"))
		if !storekit.IsPermission(err) {
			t.Errorf("expected permission error, got: %v", err)
		}
	})

	t.Run("respects max size limit", func(t *testing.T) {
		a := New(Config{MaxSize: 10})

		_, err := a.Write(ctx, "large.txt", strings.NewReader("this is too large"))
		if kind, _ := storekit.KindOf(err); kind != storekit.KindNoSpace {
			t.Fatalf("expected NoSpace, got %v", err)
		}
	})

	t.Run("if not exists", func(t *testing.T) {
		a := New()

		if _, err := a.Write(ctx, "test.txt", strings.NewReader("first")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := a.Write(ctx, "test.txt", strings.NewReader("second"), storekit.WithIfNotExists(true))
		if !storekit.IsExist(err) {
			t.Fatalf("expected exist error, got %v", err)
		}
	})

	t.Run("rejects directory path", func(t *testing.T) {
		a := New()

		_, err := a.Write(ctx, "dir/", strings.NewReader("x"))
		if kind, _ := storekit.KindOf(err); kind != storekit.KindIsADirectory {
			t.Fatalf("expected IsADirectory, got %v", err)
		}
	})

	t.Run("rejects file under file", func(t *testing.T) {
		a := New()

		if _, err := a.Write(ctx, "a", strings.NewReader("x")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := a.Write(ctx, "a/b", strings.NewReader("x"))
		if kind, _ := storekit.KindOf(err); kind != storekit.KindNotADirectory {
			t.Fatalf("expected NotADirectory, got %v", err)
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		a := New()

		if _, err := a.Write(ctx, "a/b/c/file.txt", strings.NewReader("content")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, dir := range []string{"a/", "a/b/", "a/b/c/"} {
			meta, err := a.Stat(ctx, dir)
			if err != nil {
				t.Fatalf("expected %s to exist: %v", dir, err)
			}
			if !meta.IsDir() {
				t.Errorf("expected %s to be a directory", dir)
			}
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		a := New()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := a.Write(cctx, "test.txt", strings.NewReader("content")); err == nil {
			t.Fatal("expected error for cancelled context")
		}
	})

	t.Run("detects content type from extension", func(t *testing.T) {
		a := New()

		if _, err := a.Write(ctx, "page.html", strings.NewReader("<html></html>")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		meta, _ := a.Stat(ctx, "page.html")
		if !strings.HasPrefix(meta.ContentType, "text/html") {
			t.Errorf("expected text/html, got %s", meta.ContentType)
		}
	})
}

func TestStat(t *testing.T) {
	ctx := context.Background()

	t.Run("etag conditions", func(t *testing.T) {
		a := New()
		res, err := a.Write(ctx, "e.txt", strings.NewReader("etag me"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ETag == "" {
			t.Fatal("expected etag")
		}

		if _, err := a.Stat(ctx, "e.txt", storekit.WithIfMatch(res.ETag)); err != nil {
			t.Errorf("if-match should pass: %v", err)
		}
		_, err = a.Stat(ctx, "e.txt", storekit.WithIfNoneMatch(res.ETag))
		if kind, _ := storekit.KindOf(err); kind != storekit.KindConditionNotMatch {
			t.Errorf("expected ConditionNotMatch, got %v", err)
		}
	})

	t.Run("file path without slash does not match directory", func(t *testing.T) {
		a := New()
		if err := a.CreateDir(ctx, "dir/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := a.Stat(ctx, "dir"); !storekit.IsNotExist(err) {
			t.Errorf("expected not exist, got %v", err)
		}
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()

	a := New()
	for _, p := range []string{"b.txt", "a.txt", "dir/x.txt", "dir/sub/y.txt", "dirz.txt"} {
		if _, err := a.Write(ctx, p, strings.NewReader(p)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	collect := func(path string, opts ...storekit.ListOption) []string {
		t.Helper()
		l, err := a.List(ctx, path, opts...)
		if err != nil {
			t.Fatalf("list %s: %v", path, err)
		}
		entries, err := storekit.ListAll(ctx, l)
		if err != nil {
			t.Fatalf("list %s: %v", path, err)
		}
		var out []string
		for _, e := range entries {
			out = append(out, e.Path)
		}
		return out
	}

	t.Run("root is sorted and one level", func(t *testing.T) {
		got := strings.Join(collect("/"), ",")
		want := "a.txt,b.txt,dir/,dirz.txt"
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("directory without trailing slash", func(t *testing.T) {
		got := strings.Join(collect("dir"), ",")
		want := "dir/sub/,dir/x.txt"
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("recursive", func(t *testing.T) {
		got := strings.Join(collect("dir/", storekit.WithRecursive(true)), ",")
		want := "dir/sub/,dir/sub/y.txt,dir/x.txt"
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("start after", func(t *testing.T) {
		got := strings.Join(collect("/", storekit.WithStartAfter("b.txt")), ",")
		want := "dir/,dirz.txt"
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("fails for file path", func(t *testing.T) {
		_, err := a.List(ctx, "a.txt")
		if kind, _ := storekit.KindOf(err); kind != storekit.KindNotADirectory {
			t.Errorf("expected NotADirectory, got %v", err)
		}
	})

	t.Run("fails for missing dir", func(t *testing.T) {
		if _, err := a.List(ctx, "missing/"); !storekit.IsNotExist(err) {
			t.Errorf("expected not exist, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses non-empty directory", func(t *testing.T) {
		a := New()
		if _, err := a.Write(ctx, "d/f.txt", strings.NewReader("x")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err := a.Delete(ctx, "d/")
		if kind, _ := storekit.KindOf(err); kind != storekit.KindNotEmpty {
			t.Fatalf("expected NotEmpty, got %v", err)
		}
	})

	t.Run("updates size tracking", func(t *testing.T) {
		a := New()
		if _, err := a.Write(ctx, "f.txt", strings.NewReader("12345")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := a.Delete(ctx, "f.txt"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Size() != 0 {
			t.Errorf("expected size=0, got %d", a.Size())
		}
	})

	t.Run("fails for non-existent file", func(t *testing.T) {
		a := New()
		if err := a.Delete(ctx, "nope"); !storekit.IsNotExist(err) {
			t.Errorf("expected not exist, got %v", err)
		}
	})
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	a := New()

	if _, err := a.Write(ctx, "from.txt", strings.NewReader("abc")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Move(ctx, "from.txt", "to/to.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Size() != 3 {
		t.Errorf("expected size=3 after move, got %d", a.Size())
	}

	rc, err := a.Read(ctx, "to/to.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "abc" {
		t.Errorf("expected abc, got %s", data)
	}
}

func TestConcurrency(t *testing.T) {
	ctx := context.Background()
	a := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "c/" + string(rune('a'+i%26)) + ".txt"
			_, _ = a.Write(ctx, path, strings.NewReader("data"))
			_, _ = a.Stat(ctx, path)
			if l, err := a.List(ctx, "c/"); err == nil {
				_, _ = storekit.ListAll(ctx, l)
			}
		}(i)
	}
	wg.Wait()

	l, err := a.List(ctx, "c/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := storekit.ListAll(ctx, l)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 26 {
		t.Errorf("expected 26 entries, got %d", len(entries))
	}
}
