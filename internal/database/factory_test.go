package database

import (
	"os"
	"path/filepath"
	"testing"

	"webdl/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(dir string) config.DatabaseConfig
		wantErr bool
	}{
		{name: "memory", cfg: func(string) config.DatabaseConfig { return config.DatabaseConfig{Type: "memory"} }},
		{name: "sqlite", cfg: func(dir string) config.DatabaseConfig {
			return config.DatabaseConfig{Type: "sqlite", DataDir: dir}
		}},
		{name: "sqlite without data_dir", cfg: func(string) config.DatabaseConfig {
			return config.DatabaseConfig{Type: "sqlite"}
		}, wantErr: true},
		{name: "unknown type", cfg: func(string) config.DatabaseConfig { return config.DatabaseConfig{Type: "postgres"} }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDatabaseFromConfig(tt.cfg(t.TempDir()), "host-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDatabaseFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got != nil {
					got.Close()
					t.Error("NewDatabaseFromConfig() should return nil on error")
				}
				return
			}
			defer got.Close()
			if err := got.CheckMigrations(); err != nil {
				t.Errorf("CheckMigrations() error = %v", err)
			}
		})
	}
}

func TestNewDatabaseFromConfig_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "history")
	cfg := config.DatabaseConfig{Type: "sqlite", DataDir: dir}

	db, err := NewDatabaseFromConfig(cfg, "host-1")
	if err != nil {
		t.Fatalf("NewDatabaseFromConfig() error = %v", err)
	}
	op, err := db.CreateOperation("run-1", "get", "question 12")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("data dir mode = %o, want 700", perm)
	}
	want := filepath.Join(dir, "host-1.db")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("database file %s missing: %v", want, err)
	}

	// Reopening the same host finds the recorded operation.
	db, err = NewDatabaseFromConfig(cfg, "host-1")
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()
	if db.Path() != want {
		t.Errorf("Path() = %s, want %s", db.Path(), want)
	}
	ops, err := db.ListOperations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].ID != op.ID {
		t.Errorf("ListOperations() = %+v, want operation %d", ops, op.ID)
	}
}
