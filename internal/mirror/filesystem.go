package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSystemMirror stores blobs and metadata below a directory:
//
//	<root>/
//	  media/<pool name>
//	  metadata/<host id>/<name>
//	  metadata/<host id>/<name>.version
type FileSystemMirror struct {
	name     string
	root     string
	mediaDir string
	metaDir  string
}

var _ Mirror = (*FileSystemMirror)(nil)

// NewFileSystemMirror creates the directory layout below root.
func NewFileSystemMirror(name, root string) (*FileSystemMirror, error) {
	m := &FileSystemMirror{
		name:     name,
		root:     root,
		mediaDir: filepath.Join(root, "media"),
		metaDir:  filepath.Join(root, "metadata"),
	}
	for _, dir := range []string{m.mediaDir, m.metaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating mirror directory: %w", err)
		}
	}
	return m, nil
}

func (m *FileSystemMirror) Name() string { return m.name }

func (m *FileSystemMirror) blobPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(m.mediaDir, name), nil
}

func (m *FileSystemMirror) PutBlob(_ context.Context, name string, r io.Reader, size int64) error {
	path, err := m.blobPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		_, err := readSized(r, size)
		return err
	}
	return writeFile(path, r, size)
}

func (m *FileSystemMirror) GetBlob(_ context.Context, name string, w io.Writer) error {
	path, err := m.blobPath(name)
	if err != nil {
		return err
	}
	return readFile(path, w)
}

func (m *FileSystemMirror) HasBlob(_ context.Context, name string) (bool, error) {
	path, err := m.blobPath(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (m *FileSystemMirror) metaPath(hostID, name string) string {
	return filepath.Join(m.metaDir, hostID, name)
}

func (m *FileSystemMirror) PutMetadata(_ context.Context, hostID, name string, r io.Reader, size int64, version int64) error {
	path := m.metaPath(hostID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := writeFile(path, r, size); err != nil {
		return err
	}
	v := strconv.FormatInt(version, 10)
	return writeFile(path+".version", strings.NewReader(v), int64(len(v)))
}

func (m *FileSystemMirror) GetMetadata(_ context.Context, hostID, name string, w io.Writer) error {
	return readFile(m.metaPath(hostID, name), w)
}

func (m *FileSystemMirror) GetMetadataVersion(_ context.Context, hostID, name string) (int64, error) {
	data, err := os.ReadFile(m.metaPath(hostID, name) + ".version")
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return v, nil
}

func (m *FileSystemMirror) ValidateSetup(context.Context) error {
	for _, dir := range []string{m.root, m.mediaDir, m.metaDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("mirror directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("mirror path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile copies r to path through a temp file in the same directory.
func writeFile(path string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	ok = true
	return nil
}

func readFile(path string, w io.Writer) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
