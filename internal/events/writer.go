package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ProjectUpserted = "project.upserted"
	ProjectDeleted  = "project.deleted"
	StageUpdated    = "stage.updated"
	// StageBottleneck is emitted when a stage update turns a stage into a bottleneck.
	StageBottleneck = "stage.bottleneck"
	RoleSet         = "rbac.role_set"
)

// Types lists every event type the writer is used with.
func Types() []string {
	return []string{ProjectUpserted, ProjectDeleted, StageUpdated, StageBottleneck, RoleSet}
}

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Entry describes one audit event.
type Entry struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

// Append writes an event inside tx so that it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, Nullable(e.ProjectID), e.EntityKind, Nullable(e.EntityID), e.ActorID, string(data))
	return err
}

// Nullable maps an empty string to SQL NULL.
func Nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
