package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryMirror keeps everything in maps. Safe for concurrent use.
type MemoryMirror struct {
	name     string
	mu       sync.RWMutex
	blobs    map[string][]byte
	meta     map[string][]byte
	versions map[string]int64
}

var _ Mirror = (*MemoryMirror)(nil)

func NewMemoryMirror(name string) *MemoryMirror {
	return &MemoryMirror{
		name:     name,
		blobs:    make(map[string][]byte),
		meta:     make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryMirror) Name() string { return m.name }

func readSized(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

func (m *MemoryMirror) PutBlob(_ context.Context, name string, r io.Reader, size int64) error {
	data, err := readSized(r, size)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = data
	return nil
}

func (m *MemoryMirror) GetBlob(_ context.Context, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.blobs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("blob %s: %w", name, ErrNotFound)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (m *MemoryMirror) HasBlob(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[name]
	return ok, nil
}

// Blobs returns the number of stored blobs.
func (m *MemoryMirror) Blobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func metaKey(hostID, name string) string { return hostID + "/" + name }

func (m *MemoryMirror) PutMetadata(_ context.Context, hostID, name string, r io.Reader, size int64, version int64) error {
	data, err := readSized(r, size)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := metaKey(hostID, name)
	m.meta[k] = data
	m.versions[k] = version
	return nil
}

func (m *MemoryMirror) GetMetadata(_ context.Context, hostID, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.meta[metaKey(hostID, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("metadata %s of host %s: %w", name, hostID, ErrNotFound)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (m *MemoryMirror) GetMetadataVersion(_ context.Context, hostID, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[metaKey(hostID, name)], nil
}

func (m *MemoryMirror) ValidateSetup(context.Context) error { return nil }
