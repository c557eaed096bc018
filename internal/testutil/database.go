package testutil

import (
	"testing"

	"webdl/internal/database"
)

// NewTestDatabase opens an in-memory history database with migrations applied.
// It is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewTestHistory returns the history of a fresh "test" operation together with its
// database, for asserting recorded fetch events.
func NewTestHistory(t *testing.T) (*database.OperationHistory, *database.SQLiteDatabase) {
	t.Helper()

	db := NewTestDatabase(t)
	op, err := db.CreateOperation("run-test", "test", "")
	if err != nil {
		t.Fatalf("failed to create operation: %v", err)
	}
	return db.ForOperation(op.ID), db
}
