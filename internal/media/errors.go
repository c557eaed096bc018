package media

import "fmt"

// Op is the filesystem operation that failed.
type Op string

const (
	OpRead     Op = "read"
	OpWrite    Op = "write"
	OpHardLink Op = "hardlink"
)

// Error reports a failed pool operation with the path it was attempted on.
type Error struct {
	Op   Op
	Path string
	// Link is the alias path for OpHardLink.
	Link string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == OpHardLink {
		return fmt.Sprintf("media: failed to hardlink %s to %s: %v", e.Link, e.Path, e.Err)
	}
	return fmt.Sprintf("media: failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FieldError records which field of an object graph a media error came from.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// chain wraps err with the field name unless err is nil.
func chain(field string, err error) error {
	if err == nil {
		return nil
	}
	return &FieldError{Field: field, Err: err}
}
