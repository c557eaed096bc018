package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRelativeTo(t *testing.T) {
	tests := []struct {
		target string
		base   string
		want   string
	}{
		{"/a/b/c", "/a/b", "c"},
		{"/a/b/c", "/a/x/y", "../../b/c"},
		{"/a/b", "/a/b", "."},
		{"/x", "/a/b", "../../x"},
	}
	for _, tt := range tests {
		if got := relativeTo(tt.target, tt.base); got != tt.want {
			t.Errorf("relativeTo(%q, %q) = %q, want %q", tt.target, tt.base, got, tt.want)
		}
	}
}

func TestLinkPath(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "store", "answer", "1")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(root, "out", "deep", "answer-1")

	t.Run("relative link", func(t *testing.T) {
		if err := LinkPath(src, dest, true); err != nil {
			t.Fatalf("LinkPath() error = %v", err)
		}
		target, err := os.Readlink(dest)
		if err != nil {
			t.Fatal(err)
		}
		if target != filepath.Join("..", "..", "store", "answer", "1") {
			t.Errorf("link target = %q", target)
		}
	})

	t.Run("existing correct link is kept", func(t *testing.T) {
		if err := LinkPath(src, dest, true); err != nil {
			t.Errorf("LinkPath() again error = %v", err)
		}
		if err := LinkPath(src, dest, false); err != nil {
			t.Errorf("LinkPath() absolute over equivalent link error = %v", err)
		}
	})

	t.Run("absolute link", func(t *testing.T) {
		abs := filepath.Join(root, "abs")
		if err := LinkPath(src, abs, false); err != nil {
			t.Fatalf("LinkPath() error = %v", err)
		}
		target, err := os.Readlink(abs)
		if err != nil {
			t.Fatal(err)
		}
		if !filepath.IsAbs(target) {
			t.Errorf("link target %q should be absolute", target)
		}
	})

	t.Run("occupied destination", func(t *testing.T) {
		occupied := filepath.Join(root, "file")
		if err := os.WriteFile(occupied, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		err := LinkPath(src, occupied, true)
		var le *LinkError
		if !errors.As(err, &le) {
			t.Errorf("LinkPath() error = %v, want *LinkError", err)
		}
	})

	t.Run("same path is a no-op", func(t *testing.T) {
		if err := LinkPath(src, src, true); err != nil {
			t.Errorf("LinkPath(src, src) error = %v", err)
		}
	})
}
