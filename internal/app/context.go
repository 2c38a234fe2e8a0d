package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"sdlcboard/internal/config"
	"sdlcboard/internal/db"
	"sdlcboard/internal/domain"
	"sdlcboard/internal/migrate"
	"sdlcboard/internal/repo"
)

// Workspace bundles the resources a command or server needs.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
}

// LoadEnv loads KEY=VALUE pairs from the workspace .env file into the process
// environment without overriding variables that are already set.
func LoadEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// SetEnv writes key=value into the workspace .env file, keeping other entries.
func SetEnv(workspace, key, value string) error {
	path := filepath.Join(workspace, ".env")
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		values = map[string]string{}
	}
	values[key] = value
	return godotenv.Write(values, path)
}

// Open loads the workspace config, opens the database and applies migrations.
func Open(ctx context.Context, workspace string) (*Workspace, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{
		Dir:    workspace,
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Config: cfg,
	}, nil
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// Bootstrap makes actorID an ADMIN if no admin exists yet, so a fresh
// workspace always has someone who can assign roles. It reports whether a
// role was granted.
func (w *Workspace) Bootstrap(ctx context.Context, actorID string) (bool, error) {
	if actorID == "" {
		return false, errors.New("actor id required")
	}
	actors, err := w.Repo.ListActors(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range actors {
		if a.Role == domain.RoleAdmin {
			return false, nil
		}
	}
	if err := w.Repo.SetActorRole(ctx, actorID, domain.RoleAdmin, actorID); err != nil {
		return false, fmt.Errorf("assign admin role: %w", err)
	}
	return true, nil
}
