// Package db opens the sqlite database that backs a workspace.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".sdlcboard"
	fileName = "sdlcboard.db"
)

type Config struct {
	Workspace string
	// DSN overrides the workspace database path when set.
	DSN string
}

// EnsureWorkspace creates the state directory inside workspace and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Path returns the database file of a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir, fileName)
}

// Open opens the sqlite database with foreign keys enforced and a busy
// timeout so the server and CLI can share one file.
func Open(cfg Config) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		dsn = "file:" + Path(cfg.Workspace) + "?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return sql.Open("sqlite", dsn)
}
