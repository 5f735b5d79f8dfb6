package mirror

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/webmirror/internal/model"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	t.Run("creates layout", func(t *testing.T) {
		t.Parallel()

		root := filepath.Join(t.TempDir(), "mirror")
		store, err := NewStore(root, false)
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		if store.Root() != root {
			t.Errorf("unexpected root: %q", store.Root())
		}
		for _, dir := range []string{"pages", "assets"} {
			if _, err := os.Stat(filepath.Join(root, dir)); err != nil {
				t.Errorf("expected %s directory: %v", dir, err)
			}
		}
	})

	t.Run("unwritable root fails", func(t *testing.T) {
		t.Parallel()

		if os.Geteuid() == 0 {
			t.Skip("root ignores file permissions")
		}

		parent := t.TempDir()
		if err := os.Chmod(parent, 0500); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chmod(parent, 0700) })

		if _, err := NewStore(filepath.Join(parent, "mirror"), false); err == nil {
			t.Error("expected error for unwritable root")
		}
	})
}

func TestWritePage(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		url     string
		wantRel string
	}{
		{
			name:    "root page gets index.html",
			url:     "http://example.com/",
			wantRel: filepath.Join("pages", "example.com", "index.html"),
		},
		{
			name:    "nested path",
			url:     "http://example.com/docs/guide.html",
			wantRel: filepath.Join("pages", "example.com", "docs", "guide.html"),
		},
		{
			name:    "extensionless path gets .html",
			url:     "http://example.com/about",
			wantRel: filepath.Join("pages", "example.com", "about.html"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, err := store.WritePage(tt.url, []byte("<html></html>"))
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if rel != tt.wantRel {
				t.Errorf("got path %q, want %q", rel, tt.wantRel)
			}
			if _, err := os.Stat(filepath.Join(store.Root(), rel)); err != nil {
				t.Errorf("file not written: %v", err)
			}
		})
	}
}

func TestWritePageQueryVariants(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	a, err := store.WritePage("http://example.com/search?q=one", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.WritePage("http://example.com/search?q=two", []byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("query variants should map to different files: %q", a)
	}
}

func TestCollisionSuffix(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	// /about and /about.html both map to about.html.
	first, err := store.WritePage("http://example.com/about.html", []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.WritePage("http://example.com/about", []byte("2"))
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatalf("colliding URLs must not share a file: %q", first)
	}
	if !strings.Contains(second, "_1") {
		t.Errorf("expected disambiguating suffix, got %q", second)
	}

	one, _ := os.ReadFile(filepath.Join(store.Root(), first))
	two, _ := os.ReadFile(filepath.Join(store.Root(), second))
	if string(one) != "1" || string(two) != "2" {
		t.Errorf("contents mixed up: %q %q", one, two)
	}
}

func TestCollisionSuffixConcurrent(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	const writers = 16
	paths := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// All distinct URLs, all mapping to the same base path.
			url := "http://example.com/shared"
			if i%2 == 0 {
				url = "http://example.com/shared.html"
			}
			rel, err := store.WritePage(url, []byte("x"))
			if err != nil {
				t.Errorf("write failed: %v", err)
				return
			}
			paths[i] = rel
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			t.Errorf("path %q claimed twice", p)
		}
		seen[p] = true
	}
}

func TestWriteAsset(t *testing.T) {
	t.Parallel()

	t.Run("path mirrored", func(t *testing.T) {
		t.Parallel()

		store, err := NewStore(t.TempDir(), false)
		if err != nil {
			t.Fatal(err)
		}

		rel, err := store.WriteAsset("http://example.com/css/style.css", model.AssetCSS, []byte("body{}"))
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join("assets", "example.com", "css", "style.css")
		if rel != want {
			t.Errorf("got %q, want %q", rel, want)
		}
	})

	t.Run("kind extension fallback", func(t *testing.T) {
		t.Parallel()

		store, err := NewStore(t.TempDir(), false)
		if err != nil {
			t.Fatal(err)
		}

		rel, err := store.WriteAsset("http://example.com/bundle", model.AssetJavaScript, []byte(";"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(rel, ".js") {
			t.Errorf("expected .js suffix, got %q", rel)
		}
	})

	t.Run("content addressed", func(t *testing.T) {
		t.Parallel()

		store, err := NewStore(t.TempDir(), true)
		if err != nil {
			t.Fatal(err)
		}

		rel, err := store.WriteAsset("http://example.com/a/very/deep/path/img.png", model.AssetImage, []byte{1, 2, 3})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(rel, "assets"+string(filepath.Separator)) {
			t.Errorf("content-addressed path should live under assets/: %q", rel)
		}
		if strings.Contains(rel, "example.com") {
			t.Errorf("content-addressed path should not mirror the URL: %q", rel)
		}
		if !strings.HasSuffix(rel, ".png") {
			t.Errorf("URL extension should be preserved: %q", rel)
		}
	})
}

func TestSanitizeTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	rel, err := store.WritePage("http://example.com/../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	full := filepath.Join(store.Root(), rel)
	cleanRoot := filepath.Clean(store.Root()) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(full), cleanRoot) {
		t.Errorf("path escaped the output root: %q", full)
	}
}
