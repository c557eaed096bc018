package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir reads and writes the named records of one object directory.
// Every record is a file <name>.<ext>; writes go through a temp file and rename.
type Dir struct {
	path        string
	codec       Codec
	compression Compression
}

// NewDir returns a Dir rooted at path.
func NewDir(path string, f Format, c Compression) *Dir {
	return &Dir{path: path, codec: CodecFor(f), compression: c}
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Sub returns a Dir for the named subdirectory using the same encoding.
func (d *Dir) Sub(name string) *Dir {
	return &Dir{path: filepath.Join(d.path, name), codec: d.codec, compression: d.compression}
}

// Put encodes v and writes it as the record name.
func (d *Dir) Put(name string, v any) error {
	path := filepath.Join(d.path, name+"."+d.codec.Ext())
	data, err := d.codec.Marshal(v)
	if err != nil {
		return Chain(name, &FormatError{Path: path, Err: err})
	}
	return Chain(name, writeFile(path, data))
}

// Get decodes the record name into v. A record written in the other format is read too,
// so switching the configured format does not orphan existing records.
func (d *Dir) Get(name string, v any) error {
	var firstErr error
	for _, c := range d.codecs() {
		path := filepath.Join(d.path, name+"."+c.Ext())
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = &FsError{Op: OpOpenFile, Path: path, Err: err}
			}
			continue
		}
		if err != nil {
			return Chain(name, &FsError{Op: OpRead, Path: path, Err: err})
		}
		if err := c.Unmarshal(data, v); err != nil {
			return Chain(name, &FormatError{Path: path, Err: err})
		}
		return nil
	}
	return Chain(name, firstErr)
}

// Has reports whether the record name exists in any format.
func (d *Dir) Has(name string) bool {
	for _, c := range d.codecs() {
		if _, err := os.Stat(filepath.Join(d.path, name+"."+c.Ext())); err == nil {
			return true
		}
	}
	return false
}

func (d *Dir) codecs() []Codec {
	if _, ok := d.codec.(cborCodec); ok {
		return []Codec{d.codec, yamlCodec{}}
	}
	return []Codec{d.codec, cborCodec{}}
}

// PutBytes writes data verbatim under the file name, compressed with the Dir's compression.
func (d *Dir) PutBytes(name string, data []byte) error {
	path := filepath.Join(d.path, name+d.compression.Suffix())
	out, err := d.compression.compress(data)
	if err != nil {
		return Chain(name, &FormatError{Path: path, Err: err})
	}
	return Chain(name, writeFile(path, out))
}

// GetBytes reads data written by PutBytes under any compression.
func (d *Dir) GetBytes(name string) ([]byte, error) {
	order := []Compression{d.compression}
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		if c != d.compression {
			order = append(order, c)
		}
	}
	var firstErr error
	for _, c := range order {
		path := filepath.Join(d.path, name+c.Suffix())
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = &FsError{Op: OpOpenFile, Path: path, Err: err}
			}
			continue
		}
		if err != nil {
			return nil, Chain(name, &FsError{Op: OpRead, Path: path, Err: err})
		}
		out, err := c.decompress(data)
		if err != nil {
			return nil, Chain(name, &FormatError{Path: path, Err: err})
		}
		return out, nil
	}
	return nil, Chain(name, firstErr)
}

// ensure creates the directory if needed.
func (d *Dir) ensure() error {
	if err := os.MkdirAll(d.path, 0755); err != nil {
		return &FsError{Op: OpCreateDir, Path: d.path, Err: err}
	}
	return nil
}

// writeFile writes data to path atomically (temp file + rename).
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &FsError{Op: OpCreateDir, Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &FsError{Op: OpCreateFile, Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &FsError{Op: OpWrite, Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &FsError{Op: OpWrite, Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &FsError{Op: OpRename, Path: path, Err: err}
	}
	success = true
	return nil
}
