// Package mirror copies the media pool and history snapshots to a second location.
package mirror

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob or metadata item does not exist on the mirror.
var ErrNotFound = errors.New("not found on mirror")

// Mirror is a backend holding pool blobs by name and per-host metadata files.
type Mirror interface {
	Name() string

	// PutBlob stores a pool file under its pool name, e.g. "sha256-<hex>.jpg".
	// Storing a name twice is harmless. size is the number of bytes read from r.
	PutBlob(ctx context.Context, name string, r io.Reader, size int64) error
	GetBlob(ctx context.Context, name string, w io.Writer) error
	HasBlob(ctx context.Context, name string) (bool, error)

	// PutMetadata stores a named metadata file of a host with a version marker.
	PutMetadata(ctx context.Context, hostID, name string, r io.Reader, size int64, version int64) error
	GetMetadata(ctx context.Context, hostID, name string, w io.Writer) error
	// GetMetadataVersion returns 0 when nothing was stored.
	GetMetadataVersion(ctx context.Context, hostID, name string) (int64, error)

	// ValidateSetup checks that the backend is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
