package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesStateDir(t *testing.T) {
	workspace := t.TempDir()
	conn, err := Open(Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(Path(workspace)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}

func TestOpenWithDSNLeavesWorkspaceAlone(t *testing.T) {
	workspace := t.TempDir()
	dsn := "file:" + filepath.Join(t.TempDir(), "elsewhere.db")
	conn, err := Open(Config{Workspace: workspace, DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, stateDir)); !os.IsNotExist(err) {
		t.Fatalf("state dir created for a DSN override: %v", err)
	}
}
