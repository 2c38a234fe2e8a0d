package sdlcboardsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine"
)

func TestFetchProjectsSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/projects" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "k1" {
			t.Errorf("missing api key header")
		}
		json.NewEncoder(w).Encode([]domain.Project{{ID: "p1", Name: "Payments", Code: "PAY", SDLCStages: []domain.Stage{}}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k1"
	projects, err := c.FetchProjects(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("unexpected projects %+v", projects)
	}
}

func TestClientDrivesLocalEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.Project{
			{ID: "p1", Name: "Payments", Code: "PAY", SDLCStages: []domain.Stage{
				{ID: "s1", Name: "Build", Status: domain.StageDelayed, EntryCriteriaMet: true, ExitCriteriaMet: true},
			}},
		})
	}))
	defer srv.Close()

	e := engine.New(New(srv.URL), engine.Config{})
	view, err := e.Dashboard(context.Background(), domain.RoleProjectManager, engine.Query{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if view.State != engine.StateReady || view.Selected == nil || !view.Selected.Stages[0].IsBottleneck {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":"access_denied","message":"access denied"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Dashboard(context.Background(), "pay", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "access_denied" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestDashboardQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/dashboard" || r.URL.Query().Get("q") != "a b" || r.URL.Query().Get("project_id") != "p1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		json.NewEncoder(w).Encode(View{State: "ready", Term: "a b", Projects: []domain.ProjectSummary{}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	view, err := c.Dashboard(context.Background(), "a b", "p1")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if view.Term != "a b" {
		t.Fatalf("unexpected view %+v", view)
	}
}
