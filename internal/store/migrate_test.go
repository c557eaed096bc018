package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"webdl/internal/media"
)

func writeLegacyStore(t *testing.T, root string, data []byte) media.HashDigest {
	t.Helper()
	d := media.SHA256.Sum(data)
	files := map[string]string{
		"version.yaml": "major: 1\nminor: 0\n",
		"objects.yaml": "note:\n  \"1\":\n    in_store: true\n    on_server: true\n  \"2\":\n    in_store: false\n    on_server: true\n",
		"note/1/info/version.yaml": "major: 1\nminor: 2\n",
		"note/1/info/info.yaml":    "id: \"1\"\ntitle: old\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	images := filepath.Join(root, "note", "1", "info", "images")
	if err := os.MkdirAll(images, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(images, d.Name()+".jpg"), data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(images, "cover.png"), data, 0644); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestMigrate(t *testing.T) {
	root := t.TempDir()
	data := []byte("legacy image")
	d := writeLegacyStore(t, root, data)

	if _, err := Open(root, Options{}); err == nil {
		t.Fatal("Open() of a 1.x store should fail before migration")
	}

	stats, err := Migrate(root, Options{}, media.SHA256)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if stats.Items != 1 || stats.Images != 2 {
		t.Errorf("Migrate() stats = %+v, want 1 item and 2 images", stats)
	}

	s, err := Open(root, Options{})
	if err != nil {
		t.Fatalf("Open() after migration error = %v", err)
	}
	defer s.Close()
	if s.Version() != StoreVersion {
		t.Errorf("Version() = %s, want %s", s.Version(), StoreVersion)
	}

	for _, ext := range []string{"jpg", "png"} {
		got, err := os.ReadFile(d.StorePath(s.MediaDir(), ext))
		if err != nil {
			t.Fatalf("pool alias %s missing: %v", ext, err)
		}
		if string(got) != string(data) {
			t.Errorf("pool alias %s content = %q", ext, got)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "note", "1", "info", "images")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("legacy images dir should be removed, stat err = %v", err)
	}

	n := &note{}
	if err := s.GetObject(n, "1", LoadOptions{}); err != nil || n.Title != "old" {
		t.Errorf("GetObject() = %+v, %v", n, err)
	}
}

func TestMigrate_RefusesOtherVersions(t *testing.T) {
	s := newTestStore(t, Options{})
	root := s.Root()
	s.Close()

	_, err := Migrate(root, Options{}, media.SHA256)
	var vm *VersionMismatchError
	if !errors.As(err, &vm) {
		t.Fatalf("Migrate() error = %v, want *VersionMismatchError", err)
	}
	if vm.Expected != PreviousVersion || vm.Got != StoreVersion {
		t.Errorf("mismatch = %+v", vm)
	}
}
