package repo

import (
	"context"
	"database/sql"

	"sdlcboard/internal/domain"
	"sdlcboard/internal/events"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, r.now())
	return err
}

// SetActorRole assigns role to actorID, replacing any previous role. An empty
// role removes the assignment.
func (r Repo) SetActorRole(ctx context.Context, actorID string, role domain.Role, setBy string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.EnsureActor(ctx, tx, actorID); err != nil {
		return err
	}
	if role == "" {
		_, err = tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=?`, actorID)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO actor_roles(actor_id, role) VALUES (?,?)
ON CONFLICT(actor_id) DO UPDATE SET role=excluded.role`, actorID, string(role))
	}
	if err != nil {
		return err
	}
	if err := r.Events.Append(ctx, tx, events.Entry{
		Type:       events.RoleSet,
		EntityKind: "actor",
		EntityID:   actorID,
		ActorID:    setBy,
		Payload:    events.Payload{"role": role},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListActors returns every known actor with its role, if any.
func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.id, COALESCE(ar.role,''), a.created_at
FROM actors a LEFT JOIN actor_roles ar ON ar.actor_id=a.id ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	actors := []domain.Actor{}
	for rows.Next() {
		var a domain.Actor
		var role string
		if err := rows.Scan(&a.ID, &role, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = domain.Role(role)
		actors = append(actors, a)
	}
	return actors, rows.Err()
}
