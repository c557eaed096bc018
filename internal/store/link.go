package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LinkPath creates a symlink at dest pointing to src. When relative is set the link target
// is expressed relative to dest's parent. The parent of dest is created if missing.
// An existing link that already resolves to src is left alone; any other existing entry
// at dest is an error.
func LinkPath(src, dest string, relative bool) error {
	parent, err := prepareDest(dest)
	if err != nil {
		return err
	}
	dest = filepath.Join(parent, filepath.Base(dest))

	srcAbs, err := canonicalize(src)
	if err != nil {
		return err
	}
	if srcAbs == dest {
		return nil
	}

	target := srcAbs
	if relative {
		target = relativeTo(srcAbs, parent)
	}

	if fi, err := os.Lstat(dest); err == nil {
		if fi.Mode()&fs.ModeSymlink != 0 {
			if cur, err := os.Readlink(dest); err == nil && cur == target {
				return nil
			}
			if resolved, err := filepath.EvalSymlinks(dest); err == nil && resolved == srcAbs {
				return nil
			}
		}
		return &LinkError{Src: srcAbs, Dest: dest, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return &LinkError{Src: srcAbs, Dest: dest, Err: err}
	}

	if err := os.Symlink(target, dest); err != nil {
		return &LinkError{Src: srcAbs, Dest: dest, Err: &FsError{Op: OpSymlink, Path: dest, Err: err}}
	}
	return nil
}

// prepareDest creates the parent of dest and returns its canonical path.
func prepareDest(dest string) (string, error) {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", &DestPrepError{Dest: dest, Err: &FsError{Op: OpCreateDir, Path: parent, Err: err}}
	}
	canon, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return "", &DestPrepError{Dest: dest, Err: &FsError{Op: OpCanonicalize, Path: parent, Err: err}}
	}
	abs, err := filepath.Abs(canon)
	if err != nil {
		return "", &DestPrepError{Dest: dest, Err: &FsError{Op: OpCanonicalize, Path: canon, Err: err}}
	}
	return abs, nil
}

// canonicalize resolves path to an absolute path without symlinks. A path that does not
// exist yet is made absolute with its existing ancestors resolved.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &FsError{Op: OpCanonicalize, Path: path, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", &FsError{Op: OpCanonicalize, Path: path, Err: err}
	}
	parent, base := filepath.Split(abs)
	if parent == abs || base == "" {
		return abs, nil
	}
	p, err := canonicalize(filepath.Clean(parent))
	if err != nil {
		return "", err
	}
	return filepath.Join(p, base), nil
}

// relativeTo expresses target relative to base. Both must be absolute and clean.
// The shared leading components are dropped and each remaining component of base
// becomes a "..".
func relativeTo(target, base string) string {
	t := splitPath(target)
	b := splitPath(base)
	common := 0
	for common < len(t) && common < len(b) && t[common] == b[common] {
		common++
	}
	parts := make([]string, 0, len(b)-common+len(t)-common)
	for range b[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, t[common:]...)
	if len(parts) == 0 {
		return "."
	}
	return filepath.Join(parts...)
}

func splitPath(p string) []string {
	p = filepath.Clean(p)
	var out []string
	for _, s := range strings.Split(p, string(filepath.Separator)) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
