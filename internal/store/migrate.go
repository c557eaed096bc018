package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"webdl/internal/media"
)

// legacyImagesDir is where 1.x stores kept a private copy of each item's images.
const legacyImagesDir = "images"

// MigrateStats reports what a migration did.
type MigrateStats struct {
	Items  int
	Images int
}

// Migrate upgrades a store from PreviousVersion to StoreVersion. Every in-store item's
// private images are hardlinked into the shared pool and the private copies removed.
// Any other on-disk version is refused. An interrupted migration is not resumable.
func Migrate(root string, opts Options, algo media.Algorithm) (MigrateStats, error) {
	var stats MigrateStats
	s := newStore(root, opts)
	if err := s.acquire(); err != nil {
		return stats, err
	}
	defer s.Close()

	m := s.meta()
	var v Version
	if err := m.Get(versionFile, &v); err != nil {
		return stats, err
	}
	if v != PreviousVersion {
		return stats, &VersionMismatchError{Expected: PreviousVersion, Got: v}
	}
	if m.Has(objectsFile) {
		if err := m.Get(objectsFile, &s.objects); err != nil {
			return stats, err
		}
	}
	if err := os.MkdirAll(s.mediaDir, 0755); err != nil {
		return stats, &FsError{Op: OpCreateDir, Path: s.mediaDir, Err: err}
	}

	for _, kind := range s.objects.Kinds() {
		for _, id := range s.objects.IDs(kind) {
			if !s.objects[kind][id].InStore {
				continue
			}
			n, err := s.migrateItem(kind, id, algo)
			if err != nil {
				return stats, Chain(kind+"/"+id, err)
			}
			stats.Items++
			stats.Images += n
		}
	}

	s.version = StoreVersion
	s.dirty = true
	return stats, s.Save()
}

func (s *Store) migrateItem(kind, id string, algo media.Algorithm) (int, error) {
	dir := filepath.Join(s.ItemPath(kind, id), infoDir, legacyImagesDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &FsError{Op: OpRead, Path: dir, Err: err}
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		d, ext, err := media.ParseName(e.Name())
		if err != nil {
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return n, &FsError{Op: OpRead, Path: path, Err: rerr}
			}
			d = algo.Sum(data)
			ext = strings.TrimPrefix(filepath.Ext(e.Name()), ".")
		}
		if err := s.storer.Link(d, ext, path); err != nil {
			return n, err
		}
		n++
	}
	if err := os.RemoveAll(dir); err != nil {
		return n, &FsError{Op: OpWrite, Path: dir, Err: err}
	}
	return n, nil
}
