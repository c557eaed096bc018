package app

import "webdl/internal/archive"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Operation tracks a CLI command that may change the archive.
// Operations are created in memory with ID=0. Only commands that fetch or link
// persist them (giving them an auto-increment ID from the history database).
type Operation struct {
	ID         int64
	RunID      string // shared with the log lines of the run
	Name       string
	Parameters string
	Status     string // "success" or "error"
}

// NewOperation creates a new in-memory operation with a fresh run id.
func NewOperation(name, parameters string, ids archive.IDGenerator) *Operation {
	return &Operation{
		RunID:      ids.New(),
		Name:       name,
		Parameters: parameters,
		Status:     statusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}
