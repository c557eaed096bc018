package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SealFile encrypts what write produces and stores it at path. The file is replaced
// through a temporary file in the same directory.
func SealFile(enc Encryptor, path string, write func(io.Writer) error) error {
	var plain bytes.Buffer
	if err := write(&plain); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".seal-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := enc.Encrypt(&plain, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// OpenFile decrypts the file at path with key and hands the plaintext to read.
func OpenFile(key Key, path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var plain bytes.Buffer
	if err := key.Decrypt(f, &plain); err != nil {
		return fmt.Errorf("decrypting %s: %w", path, err)
	}
	return read(&plain)
}
