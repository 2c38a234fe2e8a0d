package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine"
	"sdlcboard/internal/events"
)

type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const projectColumns = `id,name,code,is_active,updated_at`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	var active int
	if err := row.Scan(&p.ID, &p.Name, &p.Code, &active, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	p.IsActive = active != 0
	p.SDLCStages = []domain.Stage{}
	return p, nil
}

const stageColumns = `id,name,status,entry_criteria_met,exit_criteria_met,delayed_tasks,owner_name`

func scanStage(row interface{ Scan(...any) error }, extra ...any) (domain.Stage, error) {
	var s domain.Stage
	var status string
	var entry, exit int
	dest := append([]any{&s.ID, &s.Name, &status, &entry, &exit, &s.DelayedTasks, &s.OwnerName}, extra...)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return s, ErrNotFound
		}
		return s, err
	}
	s.Status = domain.StageStatus(status)
	s.EntryCriteriaMet = entry != 0
	s.ExitCriteriaMet = exit != 0
	return s, nil
}

// ListProjects returns every project in dashboard order with its stages in pipeline order.
func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return listProjects(ctx, r.DB)
}

// FetchProjects makes the repository usable as the dashboard's project fetcher.
func (r Repo) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	return r.ListProjects(ctx)
}

func listProjects(ctx context.Context, q queryer) ([]domain.Project, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	index := map[string]int{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(res)
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stageRows, err := q.QueryContext(ctx, `SELECT `+stageColumns+`,project_id FROM stages ORDER BY project_id, position`)
	if err != nil {
		return nil, err
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var projectID string
		s, err := scanStage(stageRows, &projectID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[projectID]; ok {
			res[i].SDLCStages = append(res[i].SDLCStages, s)
		}
	}
	return res, stageRows.Err()
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return getProject(ctx, r.DB, id)
}

func getProject(ctx context.Context, q queryer, id string) (domain.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	rows, err := q.QueryContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE project_id=? ORDER BY position`, id)
	if err != nil {
		return p, err
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return p, err
		}
		p.SDLCStages = append(p.SDLCStages, s)
	}
	return p, rows.Err()
}

// AssignStageIDs gives every stage without an id a generated one.
func AssignStageIDs(p *domain.Project) {
	for i := range p.SDLCStages {
		if p.SDLCStages[i].ID == "" {
			p.SDLCStages[i].ID = uuid.NewString()
		}
	}
}

// UpsertProject creates or replaces a project. Its stages are replaced
// wholesale in the given order; stages without an id get a generated one.
func (r Repo) UpsertProject(ctx context.Context, p domain.Project, actorID string) (domain.Project, error) {
	p = p.Clone()
	AssignStageIDs(&p)
	if err := ValidateProject(p); err != nil {
		return domain.Project{}, err
	}
	for i := range p.SDLCStages {
		p.SDLCStages[i].Status, _ = domain.ParseStageStatus(string(p.SDLCStages[i].Status))
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = r.now()
	}
	if p.SDLCStages == nil {
		p.SDLCStages = []domain.Stage{}
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id=?`, p.ID).Scan(&existing); err != nil {
		return domain.Project{}, err
	}
	var holder string
	err = tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE code=? AND id<>?`, p.Code, p.ID).Scan(&holder)
	if err == nil {
		return domain.Project{}, invalidf("project %s: code %s already used by project %s", p.ID, p.Code, holder)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, err
	}
	if existing == 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO projects(id,name,code,is_active,position,updated_at)
VALUES (?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM projects),?)`,
			p.ID, p.Name, p.Code, boolInt(p.IsActive), p.UpdatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE projects SET name=?, code=?, is_active=?, updated_at=? WHERE id=?`,
			p.Name, p.Code, boolInt(p.IsActive), p.UpdatedAt, p.ID)
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("write project %s: %w", p.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE project_id=?`, p.ID); err != nil {
		return domain.Project{}, err
	}
	for i, s := range p.SDLCStages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stages(project_id,id,position,name,status,entry_criteria_met,exit_criteria_met,delayed_tasks,owner_name)
VALUES (?,?,?,?,?,?,?,?,?)`,
			p.ID, s.ID, i, s.Name, string(s.Status), boolInt(s.EntryCriteriaMet), boolInt(s.ExitCriteriaMet), s.DelayedTasks, s.OwnerName); err != nil {
			return domain.Project{}, fmt.Errorf("write stage %s: %w", s.ID, err)
		}
	}
	if err := r.Events.Append(ctx, tx, events.Entry{
		Type:       events.ProjectUpserted,
		ProjectID:  p.ID,
		EntityKind: "project",
		EntityID:   p.ID,
		ActorID:    actorID,
		Payload:    events.Payload{"created": existing == 0, "stages": len(p.SDLCStages)},
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (r Repo) DeleteProject(ctx context.Context, id, actorID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE project_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, events.Entry{
		Type:       events.ProjectDeleted,
		ProjectID:  id,
		EntityKind: "project",
		EntityID:   id,
		ActorID:    actorID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// StagePatch holds the stage fields to change; nil fields are left untouched.
type StagePatch struct {
	Name             *string
	Status           *domain.StageStatus
	EntryCriteriaMet *bool
	ExitCriteriaMet  *bool
	DelayedTasks     *int
	OwnerName        *string
}

func (p StagePatch) apply(s domain.Stage) domain.Stage {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.EntryCriteriaMet != nil {
		s.EntryCriteriaMet = *p.EntryCriteriaMet
	}
	if p.ExitCriteriaMet != nil {
		s.ExitCriteriaMet = *p.ExitCriteriaMet
	}
	if p.DelayedTasks != nil {
		s.DelayedTasks = *p.DelayedTasks
	}
	if p.OwnerName != nil {
		s.OwnerName = *p.OwnerName
	}
	return s
}

// UpdateStage patches one stage and bumps the project's updated_at. A stage
// that turns into a bottleneck also records a stage.bottleneck event.
func (r Repo) UpdateStage(ctx context.Context, projectID, stageID string, patch StagePatch, actorID string) (domain.Stage, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stage{}, err
	}
	defer tx.Rollback()

	before, err := scanStage(tx.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE project_id=? AND id=?`, projectID, stageID))
	if err != nil {
		return domain.Stage{}, err
	}
	after := patch.apply(before)
	if err := ValidateStage(after); err != nil {
		return domain.Stage{}, err
	}
	after.Status, _ = domain.ParseStageStatus(string(after.Status))
	if _, err := tx.ExecContext(ctx, `UPDATE stages SET name=?, status=?, entry_criteria_met=?, exit_criteria_met=?, delayed_tasks=?, owner_name=?
WHERE project_id=? AND id=?`,
		after.Name, string(after.Status), boolInt(after.EntryCriteriaMet), boolInt(after.ExitCriteriaMet), after.DelayedTasks, after.OwnerName,
		projectID, stageID); err != nil {
		return domain.Stage{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at=? WHERE id=?`, r.now(), projectID); err != nil {
		return domain.Stage{}, err
	}
	if err := r.Events.Append(ctx, tx, events.Entry{
		Type:       events.StageUpdated,
		ProjectID:  projectID,
		EntityKind: "stage",
		EntityID:   stageID,
		ActorID:    actorID,
		Payload:    events.Payload{"from": before.Status, "to": after.Status},
	}); err != nil {
		return domain.Stage{}, err
	}
	if !engine.IsBottleneck(before) && engine.IsBottleneck(after) {
		reasons := []string{}
		for _, reason := range engine.Reasons(after) {
			reasons = append(reasons, reason.Message)
		}
		if err := r.Events.Append(ctx, tx, events.Entry{
			Type:       events.StageBottleneck,
			ProjectID:  projectID,
			EntityKind: "stage",
			EntityID:   stageID,
			ActorID:    actorID,
			Payload:    events.Payload{"stage": after.Name, "owner": after.OwnerName, "reasons": reasons},
		}); err != nil {
			return domain.Stage{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Stage{}, err
	}
	return after, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
