package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"sdlcboard/internal/db"
	"sdlcboard/internal/domain"
	"sdlcboard/internal/events"
	"sdlcboard/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return Repo{DB: conn, Now: func() time.Time { return fixed }}
}

func apollo() domain.Project {
	return domain.Project{
		ID: "apl", Name: "Apollo", Code: "APL", IsActive: true,
		SDLCStages: []domain.Stage{
			{ID: "plan", Name: "Planning", Status: domain.StageCompleted, EntryCriteriaMet: true, ExitCriteriaMet: true},
			{ID: "build", Name: "Build", Status: "in_progress", EntryCriteriaMet: true, ExitCriteriaMet: true, OwnerName: "Dee"},
		},
	}
}

func TestUpsertAndList(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	zeus := domain.Project{ID: "zus", Name: "Zeus", Code: "ZUS", SDLCStages: []domain.Stage{{Name: "Design", Status: domain.StageNotStarted}}}
	if _, err := r.UpsertProject(ctx, zeus, "ana"); err != nil {
		t.Fatalf("upsert zeus: %v", err)
	}
	stored, err := r.UpsertProject(ctx, apollo(), "ana")
	if err != nil {
		t.Fatalf("upsert apollo: %v", err)
	}
	if stored.SDLCStages[1].Status != domain.StageInProgress {
		t.Fatalf("status not normalized: %q", stored.SDLCStages[1].Status)
	}
	if stored.UpdatedAt != "2024-03-01T12:00:00Z" {
		t.Fatalf("updated_at = %q", stored.UpdatedAt)
	}

	list, err := r.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "zus" || list[1].ID != "apl" {
		t.Fatalf("projects should keep insertion order, got %+v", list)
	}
	if id := list[0].SDLCStages[0].ID; id == "" {
		t.Fatalf("stage without id was not assigned one")
	}
	got := list[1].SDLCStages
	if len(got) != 2 || got[0].ID != "plan" || got[1].ID != "build" || got[1].OwnerName != "Dee" {
		t.Fatalf("stages out of order: %+v", got)
	}

	// Replacing keeps the project's position and swaps its stages.
	replaced := apollo()
	replaced.Name = "Apollo II"
	replaced.SDLCStages = replaced.SDLCStages[1:]
	if _, err := r.UpsertProject(ctx, replaced, "ana"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	list, _ = r.ListProjects(ctx)
	if list[1].Name != "Apollo II" || len(list[1].SDLCStages) != 1 {
		t.Fatalf("replace failed: %+v", list[1])
	}
}

func TestUpsertRejectsInvalidProjects(t *testing.T) {
	r := newTestRepo(t)
	cases := map[string]func(p *domain.Project){
		"missing name":       func(p *domain.Project) { p.Name = " " },
		"missing code":       func(p *domain.Project) { p.Code = "" },
		"bad status":         func(p *domain.Project) { p.SDLCStages[0].Status = "BLOCKED" },
		"negative tasks":     func(p *domain.Project) { p.SDLCStages[0].DelayedTasks = -1 },
		"duplicate stage":    func(p *domain.Project) { p.SDLCStages[1].ID = p.SDLCStages[0].ID },
		"missing stage name": func(p *domain.Project) { p.SDLCStages[0].Name = "" },
	}
	for name, mutate := range cases {
		p := apollo()
		mutate(&p)
		_, err := r.UpsertProject(context.Background(), p, "ana")
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestUpsertRejectsDuplicateCode(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.UpsertProject(ctx, apollo(), "ana"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	other := apollo()
	other.ID = "other"
	_, err := r.UpsertProject(ctx, other, "ana")
	var ve *ValidationError
	if !errors.As(err, &ve) || !strings.Contains(ve.Error(), "APL") {
		t.Fatalf("expected ValidationError naming the code, got %v", err)
	}
	if _, err := r.GetProject(ctx, "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected project was stored: %v", err)
	}
	// Re-saving the holder of the code is not a conflict.
	if _, err := r.UpsertProject(ctx, apollo(), "ana"); err != nil {
		t.Fatalf("update own code: %v", err)
	}
}

func TestEmptyAPIKeyNameStoredAsNull(t *testing.T) {
	r := newTestRepo(t)
	key, _, err := r.CreateAPIKey(context.Background(), "ana", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var isNull bool
	if err := r.DB.QueryRow(`SELECT name IS NULL FROM api_keys WHERE id=?`, key.ID).Scan(&isNull); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !isNull {
		t.Fatalf("empty name should be stored as NULL")
	}
}

func TestCompletedStageWithUnmetExitIsStored(t *testing.T) {
	r := newTestRepo(t)
	p := apollo()
	p.SDLCStages[0].ExitCriteriaMet = false
	if _, err := r.UpsertProject(context.Background(), p, "ana"); err != nil {
		t.Fatalf("inconsistent stage should still be accepted: %v", err)
	}
}

func TestGetAndDeleteProject(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.GetProject(ctx, "apl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.UpsertProject(ctx, apollo(), "ana"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, err := r.GetProject(ctx, "apl")
	if err != nil || len(p.SDLCStages) != 2 {
		t.Fatalf("get: %+v %v", p, err)
	}
	if err := r.DeleteProject(ctx, "apl", "ana"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteProject(ctx, "apl", "ana"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
	evts, err := r.LatestEvents(ctx, EventFilters{ProjectID: "apl"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 || evts[0].Type != events.ProjectDeleted || evts[1].Type != events.ProjectUpserted {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestUpdateStageRecordsBottleneck(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.UpsertProject(ctx, apollo(), "ana"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tasks := 4
	s, err := r.UpdateStage(ctx, "apl", "build", StagePatch{DelayedTasks: &tasks}, "ben")
	if err != nil || s.DelayedTasks != 4 {
		t.Fatalf("update tasks: %+v %v", s, err)
	}
	evts, _ := r.LatestEvents(ctx, EventFilters{Type: events.StageBottleneck})
	if len(evts) != 0 {
		t.Fatalf("delayed tasks alone should not record a bottleneck")
	}

	delayed := domain.StageStatus("delayed")
	s, err = r.UpdateStage(ctx, "apl", "build", StagePatch{Status: &delayed}, "ben")
	if err != nil || s.Status != domain.StageDelayed || s.OwnerName != "Dee" {
		t.Fatalf("update status: %+v %v", s, err)
	}
	evts, _ = r.LatestEvents(ctx, EventFilters{Type: events.StageBottleneck, EntityID: "build"})
	if len(evts) != 1 || evts[0].ActorID != "ben" {
		t.Fatalf("expected one bottleneck event, got %+v", evts)
	}
	if !strings.Contains(evts[0].Payload, "stage is delayed") {
		t.Fatalf("payload missing reason: %s", evts[0].Payload)
	}

	// Already a bottleneck; no new transition.
	met := false
	if _, err := r.UpdateStage(ctx, "apl", "build", StagePatch{ExitCriteriaMet: &met}, "ben"); err != nil {
		t.Fatalf("update exit: %v", err)
	}
	evts, _ = r.LatestEvents(ctx, EventFilters{Type: events.StageBottleneck})
	if len(evts) != 1 {
		t.Fatalf("bottleneck event repeated: %d", len(evts))
	}
	updates, _ := r.LatestEvents(ctx, EventFilters{Type: events.StageUpdated})
	if len(updates) != 3 {
		t.Fatalf("expected 3 stage.updated events, got %d", len(updates))
	}
}

func TestUpdateStageErrors(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.UpsertProject(ctx, apollo(), "ana"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := r.UpdateStage(ctx, "apl", "nope", StagePatch{}, "ben"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	neg := -2
	_, err := r.UpdateStage(ctx, "apl", "build", StagePatch{DelayedTasks: &neg}, "ben")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEventPaging(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		p := apollo()
		p.ID, p.Code = id, strings.ToUpper(id)
		if _, err := r.UpsertProject(ctx, p, ""); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	latest, err := r.LatestEventID(ctx)
	if err != nil || latest != 3 {
		t.Fatalf("latest id = %d %v", latest, err)
	}
	page, _ := r.LatestEvents(ctx, EventFilters{Limit: 2})
	if len(page) != 2 || page[0].ID != 3 || page[0].ActorID != "system" {
		t.Fatalf("unexpected first page %+v", page)
	}
	rest, _ := r.LatestEvents(ctx, EventFilters{Before: page[1].ID})
	if len(rest) != 1 || rest[0].ID != 1 {
		t.Fatalf("unexpected second page %+v", rest)
	}
	after, _ := r.EventsAfter(ctx, 10, 1)
	if len(after) != 2 || after[0].ID != 2 || after[1].ID != 3 {
		t.Fatalf("EventsAfter should be oldest first, got %+v", after)
	}
}

func TestActorRoles(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := r.SetActorRole(ctx, "ana", domain.RoleProjectManager, "root"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := r.SetActorRole(ctx, "ana", domain.RoleAdmin, "root"); err != nil {
		t.Fatalf("replace role: %v", err)
	}
	if err := r.SetActorRole(ctx, "ben", domain.RoleViewer, "root"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := r.SetActorRole(ctx, "ben", "", "root"); err != nil {
		t.Fatalf("clear role: %v", err)
	}
	actors, err := r.ListActors(ctx)
	if err != nil {
		t.Fatalf("list actors: %v", err)
	}
	if len(actors) != 2 || actors[0].ID != "ana" || actors[0].Role != domain.RoleAdmin || actors[1].Role != "" {
		t.Fatalf("unexpected actors %+v", actors)
	}
	evts, _ := r.LatestEvents(ctx, EventFilters{Type: events.RoleSet, EntityKind: "actor"})
	if len(evts) != 4 {
		t.Fatalf("expected 4 role events, got %d", len(evts))
	}
}

func TestAPIKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	key, plain, err := r.CreateAPIKey(ctx, "ana", "ci")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(plain, "sdlc_") || key.KeyHash == plain {
		t.Fatalf("unexpected key material %q %q", plain, key.KeyHash)
	}
	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey(" "+plain+"\n"))
	if err != nil || got.ID != key.ID || got.ActorID != "ana" || got.Name != "ci" {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("wrong")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := r.CreateAPIKey(ctx, "ben", ""); err != nil {
		t.Fatalf("create second: %v", err)
	}
	mine, _ := r.ListAPIKeys(ctx, "ana")
	all, _ := r.ListAPIKeys(ctx, "")
	if len(mine) != 1 || len(all) != 2 {
		t.Fatalf("list: mine=%d all=%d", len(mine), len(all))
	}
	if err := r.DeleteAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, key.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := r.CreateAPIKey(ctx, " ", ""); err == nil {
		t.Fatalf("blank actor accepted")
	}
}
