package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"sdlcboard/internal/config"
	"sdlcboard/internal/db"
	"sdlcboard/internal/domain"
	"sdlcboard/internal/events"
	"sdlcboard/internal/migrate"
	"sdlcboard/internal/repo"
)

type capturedHook struct {
	mu       sync.Mutex
	headers  []http.Header
	bodies   []EventResponse
	failNext bool
}

func (c *capturedHook) handler(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		http.Error(w, "try later", http.StatusServiceUnavailable)
		return
	}
	data, _ := io.ReadAll(r.Body)
	var evt EventResponse
	_ = json.Unmarshal(data, &evt)
	c.headers = append(c.headers, r.Header.Clone())
	c.bodies = append(c.bodies, evt)
	w.WriteHeader(http.StatusNoContent)
}

func TestWebhookDeliversNewMatchingEvents(t *testing.T) {
	srv := newTestServer(t, nil)
	hook := &capturedHook{}
	target := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer target.Close()

	d := newWebhookDispatcher(srv.Repo, []config.WebhookConfig{{
		URL:    target.URL,
		Events: []string{events.StageBottleneck},
		Secret: "s3cret",
	}}, nil)
	ctx := context.Background()
	// Establish the cursor before new events are written.
	d.dispatchAll(ctx)

	delayed := domain.StageDelayed
	if _, err := srv.Repo.UpdateStage(ctx, "p2", "s1", repo.StagePatch{Status: &delayed}, "pm"); err != nil {
		t.Fatalf("update stage: %v", err)
	}
	d.dispatchAll(ctx)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.bodies) != 1 {
		t.Fatalf("expected one delivery, got %d", len(hook.bodies))
	}
	if hook.bodies[0].Type != events.StageBottleneck || hook.bodies[0].ProjectID != "p2" {
		t.Fatalf("unexpected delivery %+v", hook.bodies[0])
	}
	h := hook.headers[0]
	if h.Get("X-Sdlc-Event") != events.StageBottleneck || h.Get("X-Sdlc-Secret") != "s3cret" || h.Get("X-Sdlc-Delivery") == "" {
		t.Fatalf("unexpected headers %v", h)
	}
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	srv := newTestServer(t, nil)
	hook := &capturedHook{failNext: true}
	target := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer target.Close()

	d := newWebhookDispatcher(srv.Repo, []config.WebhookConfig{{URL: target.URL}}, nil)
	ctx := context.Background()
	d.dispatchAll(ctx)

	if err := srv.Repo.SetActorRole(ctx, "dana", domain.RoleViewer, "admin"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.bodies) != 1 || hook.bodies[0].Type != events.RoleSet {
		t.Fatalf("expected the failed event to be redelivered once, got %+v", hook.bodies)
	}
}

func TestWebhookSkipsDisabledHooks(t *testing.T) {
	srv := newTestServer(t, nil)
	hook := &capturedHook{}
	target := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer target.Close()

	disabled := false
	d := newWebhookDispatcher(srv.Repo, []config.WebhookConfig{{URL: target.URL, Enabled: &disabled}}, nil)
	ctx := context.Background()
	d.dispatchAll(ctx)
	if err := srv.Repo.SetActorRole(ctx, "erin", domain.RoleViewer, "admin"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	d.dispatchAll(ctx)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.bodies) != 0 {
		t.Fatalf("disabled hook received %d deliveries", len(hook.bodies))
	}
}

func TestWebhookCursorFailureDoesNotReplayHistory(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	r := repo.Repo{DB: conn}
	hook := &capturedHook{}
	target := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer target.Close()

	d := newWebhookDispatcher(r, []config.WebhookConfig{{URL: target.URL}}, nil)
	ctx := context.Background()
	// No schema yet, so the cursor lookup fails.
	d.dispatchAll(ctx)
	d.mu.Lock()
	stored := len(d.cursors)
	d.mu.Unlock()
	if stored != 0 {
		t.Fatalf("failed lookup stored a cursor")
	}

	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := r.SetActorRole(ctx, "old", domain.RoleViewer, "admin"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	d.dispatchAll(ctx)
	if err := r.SetActorRole(ctx, "new", domain.RoleViewer, "admin"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	d.dispatchAll(ctx)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.bodies) != 1 || hook.bodies[0].EntityID != "new" {
		t.Fatalf("expected only the event after recovery, got %+v", hook.bodies)
	}
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter([]string{" ", ""})
	if !all.match("anything") {
		t.Fatalf("blank filter should match everything")
	}
	some := newEventFilter([]string{events.StageUpdated})
	if !some.match(events.StageUpdated) || some.match(events.RoleSet) {
		t.Fatalf("unexpected filter behaviour")
	}
}
