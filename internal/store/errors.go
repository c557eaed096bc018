package store

import (
	"errors"
	"fmt"
)

var (
	// ErrLocked is returned by Open and Create when another process holds the store lock.
	ErrLocked = errors.New("store is locked by another process")
	// ErrHandleFinished is returned when a finished ContainerHandle is used again.
	ErrHandleFinished = errors.New("container handle already finished")
)

// FsOp is the filesystem operation an FsError failed on.
type FsOp string

const (
	OpCreateDir    FsOp = "create dir"
	OpCreateFile   FsOp = "create file"
	OpOpenFile     FsOp = "open file"
	OpRead         FsOp = "read"
	OpWrite        FsOp = "write"
	OpRename       FsOp = "rename"
	OpSymlink      FsOp = "symlink"
	OpCanonicalize FsOp = "canonicalize"
)

// FsError is a failed filesystem call with the path it was attempted on.
type FsError struct {
	Op   FsOp
	Path string
	Err  error
}

func (e *FsError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FsError) Unwrap() error { return e.Err }

// FormatError is a record that could not be encoded or decoded.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid format in %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// VersionMismatchError is returned when an on-disk version is not compatible.
type VersionMismatchError struct {
	Expected Version
	Got      Version
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: got %s, expected %s", e.Got, e.Expected)
}

// FieldError names the record field or object id an error came from.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Chain wraps err with field as context. It returns nil for a nil err.
func Chain(field string, err error) error {
	if err == nil {
		return nil
	}
	return &FieldError{Field: field, Err: err}
}

// DestPrepError is returned when the parent of a link destination cannot be prepared.
type DestPrepError struct {
	Dest string
	Err  error
}

func (e *DestPrepError) Error() string {
	return fmt.Sprintf("preparing destination %s: %v", e.Dest, e.Err)
}

func (e *DestPrepError) Unwrap() error { return e.Err }

// LinkError is returned when a symlink cannot be created at Dest.
type LinkError struct {
	Src  string
	Dest string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("linking %s to %s: %v", e.Dest, e.Src, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }
