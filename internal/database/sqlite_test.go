package database

import (
	"path/filepath"
	"testing"
	"time"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	t.Run("create and finish", func(t *testing.T) {
		db := newTestDB(t)

		op, err := db.CreateOperation("run-1", "get", "answer 12")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if op.ID == 0 || op.Status != "running" {
			t.Errorf("CreateOperation() = %+v", op)
		}

		if err := db.FinishOperation(op.ID, "success"); err != nil {
			t.Fatalf("FinishOperation() error = %v", err)
		}

		ops, err := db.ListOperations(10)
		if err != nil {
			t.Fatalf("ListOperations() error = %v", err)
		}
		if len(ops) != 1 {
			t.Fatalf("len(ListOperations()) = %d, want 1", len(ops))
		}
		got := ops[0]
		if got.RunID != "run-1" || got.Operation != "get" || got.Parameters != "answer 12" {
			t.Errorf("operation = %+v", got)
		}
		if got.Status != "success" || !got.FinishedAt.Valid {
			t.Errorf("operation not finished: status=%q finished=%v", got.Status, got.FinishedAt)
		}
	})

	t.Run("finish unknown operation", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.FinishOperation(99, "success"); err == nil {
			t.Error("FinishOperation() expected error for unknown id")
		}
	})

	t.Run("list is newest first and limited", func(t *testing.T) {
		db := newTestDB(t)
		for _, name := range []string{"a", "b", "c"} {
			if _, err := db.CreateOperation("run", name, ""); err != nil {
				t.Fatal(err)
			}
		}
		ops, err := db.ListOperations(2)
		if err != nil {
			t.Fatal(err)
		}
		if len(ops) != 2 || ops[0].Operation != "c" || ops[1].Operation != "b" {
			t.Errorf("ListOperations(2) = %v, %v", ops[0].Operation, ops[1].Operation)
		}

		maxID, err := db.MaxOperationID()
		if err != nil {
			t.Fatal(err)
		}
		if maxID != ops[0].ID {
			t.Errorf("MaxOperationID() = %d, want %d", maxID, ops[0].ID)
		}
	})

	t.Run("max id of empty database", func(t *testing.T) {
		db := newTestDB(t)
		maxID, err := db.MaxOperationID()
		if err != nil {
			t.Fatal(err)
		}
		if maxID != 0 {
			t.Errorf("MaxOperationID() = %d, want 0", maxID)
		}
	})
}

func TestSQLiteDatabase_ItemHistory(t *testing.T) {
	db := newTestDB(t)
	clock := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	db.now = func() time.Time { return clock }

	op, err := db.CreateOperation("run-1", "container update", "")
	if err != nil {
		t.Fatal(err)
	}
	h := db.ForOperation(op.ID)
	for _, action := range []string{"get", "link", "tombstone"} {
		if err := h.RecordFetch("answer", "12", action); err != nil {
			t.Fatalf("RecordFetch(%s) error = %v", action, err)
		}
	}
	if err := h.RecordFetch("answer", "13", "get"); err != nil {
		t.Fatal(err)
	}

	events, err := db.ItemHistory("answer", "12")
	if err != nil {
		t.Fatalf("ItemHistory() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(ItemHistory()) = %d, want 3", len(events))
	}
	for i, want := range []string{"get", "link", "tombstone"} {
		if events[i].Action != want || events[i].OperationID != op.ID {
			t.Errorf("events[%d] = %+v, want action %s", i, events[i], want)
		}
	}
	if !events[0].At.Equal(clock) {
		t.Errorf("events[0].At = %v, want %v", events[0].At, clock)
	}

	t.Run("unknown action is rejected", func(t *testing.T) {
		if err := h.RecordFetch("answer", "12", "delete"); err == nil {
			t.Error("RecordFetch() expected error for unknown action")
		}
	})

	t.Run("unknown operation is rejected", func(t *testing.T) {
		if err := db.RecordFetch(op.ID+100, "answer", "12", "get"); err == nil {
			t.Error("RecordFetch() expected foreign key error")
		}
	})
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.CreateOperation("run-1", "get", ""); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyDB, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copyDB.Close()

	if err := copyDB.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() on backup error = %v", err)
	}
	ops, err := copyDB.ListOperations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Errorf("backup holds %d operations, want 1", len(ops))
	}
}
