package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"webdl/internal/store"
)

// Link mirrors the manifest tree below dest: every branch becomes a directory and every
// leaf entry a relative symlink <dir>/<site>/<kind>/<ref> to the item's store directory.
// Existing paths are left alone and entries that are not stored are skipped. It returns
// the number of links created.
func (r *Runner) Link(n *Node, dest, site string) (int, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", dest, err)
	}
	return r.link(n, dest, site)
}

func (r *Runner) link(n *Node, dir, site string) (int, error) {
	created := 0
	for _, name := range sortedKeys(n.Branch) {
		sub := filepath.Join(dir, name)
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return created, fmt.Errorf("creating %s: %w", sub, err)
		}
		c, err := r.link(n.Branch[name], sub, site)
		created += c
		if err != nil {
			return created, err
		}
	}

	s := r.driver.Store()
	for _, kind := range sortedKeys(n.Leaf) {
		k, err := r.registry.Kind(kind)
		if err != nil {
			return created, &ApplyError{Kind: kind, Err: err}
		}
		entries := n.Leaf[kind]
		for _, ref := range sortedKeys(entries) {
			id, err := k.Key(entryRef(kind, ref, entries[ref]))
			if err != nil {
				return created, &ApplyError{Kind: kind, Ref: ref, Err: err}
			}
			path := filepath.Join(dir, site, kind, ref)
			if _, err := os.Lstat(path); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				return created, fmt.Errorf("checking %s: %w", path, err)
			}
			if !s.InStore(kind, id) {
				r.logger.Warn("not linking entry missing from store", "kind", kind, "id", id)
				continue
			}
			if err := store.LinkPath(s.ItemPath(kind, id), path, true); err != nil {
				return created, &ApplyError{Kind: kind, Ref: ref, Err: err}
			}
			r.logger.Debug("linked", "kind", kind, "id", id, "path", path)
			created++
		}
	}
	return created, nil
}
