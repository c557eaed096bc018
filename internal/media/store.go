package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
)

// Loader is a read cache over the media pool keyed by digest.
// It is valid for one logical operation and is never persisted.
type Loader struct {
	dir   string
	cache map[HashDigest][]byte
}

// NewLoader creates a Loader reading from the pool directory dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[HashDigest][]byte)}
}

// Load returns the bytes for d. The extension alias is read first; the extensionless
// pool file is the fallback. Results are shared between callers and must not be modified.
func (l *Loader) Load(d HashDigest, ext string) ([]byte, error) {
	if data, ok := l.cache[d]; ok {
		return data, nil
	}
	path := d.StorePath(l.dir, ext)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && ext != "" {
		path = d.PoolPath(l.dir)
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, &Error{Op: OpRead, Path: path, Err: err}
	}
	l.cache[d] = data
	return data, nil
}

type poolEntry struct {
	path string
	exts map[string]struct{}
}

// Stats counts filesystem mutations performed by a Storer.
type Stats struct {
	Writes int
	Links  int
}

// Storer writes blobs into the pool. The first store of a digest writes the pool file
// named by the digest alone; every (digest, extension) pair gets one hardlink alias.
// Repeated stores of a known pair touch nothing.
type Storer struct {
	dir   string
	pool  map[HashDigest]*poolEntry
	stats Stats
}

// NewStorer creates a Storer writing into the pool directory dir.
func NewStorer(dir string) *Storer {
	return &Storer{dir: dir, pool: make(map[HashDigest]*poolEntry)}
}

// Dir returns the pool directory.
func (s *Storer) Dir() string { return s.dir }

// Stats returns the writes and hardlinks performed so far.
func (s *Storer) Stats() Stats { return s.stats }

// Store records data under d with the given extension.
func (s *Storer) Store(d HashDigest, ext string, data []byte) error {
	entry, ok := s.pool[d]
	if !ok {
		path := d.PoolPath(s.dir)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := writeAtomic(path, data); err != nil {
				return &Error{Op: OpWrite, Path: path, Err: err}
			}
			s.stats.Writes++
		} else if err != nil {
			return &Error{Op: OpWrite, Path: path, Err: err}
		}
		entry = &poolEntry{path: path, exts: make(map[string]struct{})}
		s.pool[d] = entry
	}
	if _, ok := entry.exts[ext]; ok || ext == "" {
		return nil
	}
	link := d.StorePath(s.dir, ext)
	if _, err := os.Lstat(link); errors.Is(err, fs.ErrNotExist) {
		if err := os.Link(entry.path, link); err != nil {
			return &Error{Op: OpHardLink, Path: entry.path, Link: link, Err: err}
		}
		s.stats.Links++
	} else if err != nil {
		return &Error{Op: OpHardLink, Path: entry.path, Link: link, Err: err}
	}
	entry.exts[ext] = struct{}{}
	return nil
}

// Link hardlinks an existing file into the pool as d with the given extension.
// It is used when migrating per-item image copies into the shared pool.
func (s *Storer) Link(d HashDigest, ext, src string) error {
	if _, ok := s.pool[d]; !ok {
		path := d.PoolPath(s.dir)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := os.Link(src, path); err != nil {
				return &Error{Op: OpHardLink, Path: src, Link: path, Err: err}
			}
			s.stats.Links++
		} else if err != nil {
			return &Error{Op: OpHardLink, Path: src, Link: path, Err: err}
		}
		s.pool[d] = &poolEntry{path: path, exts: make(map[string]struct{})}
	}
	// The pool file exists now; alias it like a regular store.
	return s.Store(d, ext, nil)
}

// writeAtomic writes data to path through a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, bytes.NewReader(data))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if written != int64(len(data)) {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", len(data), written)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}

// RefSet collects the (digest, extension) pairs reachable from live objects.
// It only reports reachability; nothing here deletes pool files.
type RefSet struct {
	refs map[HashDigest]map[string]struct{}
}

// NewRefSet creates an empty RefSet.
func NewRefSet() *RefSet {
	return &RefSet{refs: make(map[HashDigest]map[string]struct{})}
}

// Add records a reference.
func (r *RefSet) Add(d HashDigest, ext string) {
	exts, ok := r.refs[d]
	if !ok {
		exts = make(map[string]struct{})
		r.refs[d] = exts
	}
	if ext != "" {
		exts[ext] = struct{}{}
	}
}

// Len returns the number of distinct digests.
func (r *RefSet) Len() int { return len(r.refs) }

// Contains reports whether d was referenced with any extension.
func (r *RefSet) Contains(d HashDigest) bool {
	_, ok := r.refs[d]
	return ok
}

// Paths returns every pool file and alias path that must be retained, sorted.
func (r *RefSet) Paths(dir string) []string {
	var paths []string
	for d, exts := range r.refs {
		paths = append(paths, d.PoolPath(dir))
		for ext := range exts {
			paths = append(paths, d.StorePath(dir, ext))
		}
	}
	sort.Strings(paths)
	return paths
}

// Unreferenced lists pool entries in dir that are not retained by r, sorted.
// Temp files and names that do not parse as pool names are ignored.
func (r *RefSet) Unreferenced(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Op: OpRead, Path: dir, Err: err}
	}
	keep := r.Paths(dir)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, err := ParseName(e.Name()); err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, found := slices.BinarySearch(keep, path); !found {
			out = append(out, path)
		}
	}
	return out, nil
}
