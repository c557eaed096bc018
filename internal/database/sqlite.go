package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"webdl/internal/database/migrations"
	"webdl/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase keeps the operation and fetch history in SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteDatabase opens the database at path and applies pending migrations.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{
		db:   db,
		path: path,
		now:  time.Now,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured and migrated.
func NewSQLiteDatabaseFromDB(db *sql.DB, now func() time.Time) *SQLiteDatabase {
	if now == nil {
		now = time.Now
	}
	return &SQLiteDatabase{db: db, now: now}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Operations

// CreateOperation records the start of a CLI invocation.
func (s *SQLiteDatabase) CreateOperation(runID, operation, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		RunID:      runID,
		StartedAt:  s.now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO operations (run_id, started_at, operation, parameters, status) VALUES (?, ?, ?, ?, ?)`,
		op.RunID, op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

// FinishOperation stamps the end time and final status of an operation.
func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		s.now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, run_id, started_at, finished_at, operation, parameters, status
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		op := &model.Operation{}
		if err := rows.Scan(&op.ID, &op.RunID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// MaxOperationID returns the id of the newest operation, 0 when there is none.
func (s *SQLiteDatabase) MaxOperationID() (int64, error) {
	var id int64
	err := s.db.QueryRowContext(context.Background(), `SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Fetch events

// RecordFetch records that an operation got, updated, linked or tombstoned an item.
func (s *SQLiteDatabase) RecordFetch(operationID int64, kind, itemID, action string) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO fetch_events (operation_id, kind, item_id, action, at) VALUES (?, ?, ?, ?, ?)`,
		operationID, kind, itemID, action, s.now().UTC())
	if err != nil {
		return fmt.Errorf("recording %s of %s/%s: %w", action, kind, itemID, err)
	}
	return nil
}

// ItemHistory returns every event recorded for an item, oldest first.
func (s *SQLiteDatabase) ItemHistory(kind, itemID string) ([]*model.FetchEvent, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, operation_id, kind, item_id, action, at
		 FROM fetch_events WHERE kind = ? AND item_id = ? ORDER BY id`, kind, itemID)
	if err != nil {
		return nil, fmt.Errorf("finding history of %s/%s: %w", kind, itemID, err)
	}
	defer rows.Close()

	var events []*model.FetchEvent
	for rows.Next() {
		e := &model.FetchEvent{}
		if err := rows.Scan(&e.ID, &e.OperationID, &e.Kind, &e.ItemID, &e.Action, &e.At); err != nil {
			return nil, fmt.Errorf("scanning fetch event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding history of %s/%s: %w", kind, itemID, err)
	}
	return events, nil
}

// ForOperation returns a recorder that attributes events to one operation.
func (s *SQLiteDatabase) ForOperation(operationID int64) *OperationHistory {
	return &OperationHistory{db: s, operationID: operationID}
}

// OperationHistory records fetch events of a single operation.
type OperationHistory struct {
	db          *SQLiteDatabase
	operationID int64
}

func (h *OperationHistory) RecordFetch(kind, itemID, action string) error {
	return h.db.RecordFetch(h.operationID, kind, itemID, action)
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
