package model

import (
	"database/sql"
	"time"
)

// Operation is one CLI invocation that touched the archive.
type Operation struct {
	ID         int64
	RunID      string // UUID shared with the log lines of the run
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string // command name, e.g. "get" or "manifest apply"
	Parameters string
	Status     string // "running" until finished, then "success" or "error"
}

// FetchEvent records what an operation did to one item.
type FetchEvent struct {
	ID          int64
	OperationID int64
	Kind        string
	ItemID      string
	Action      string // get, update, link or tombstone
	At          time.Time
}
