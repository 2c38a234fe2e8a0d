package sdlcboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sdlcboard/internal/domain"
)

// Client is a minimal SDLC dashboard HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// View mirrors the dashboard view returned by GET /dashboard.
type View struct {
	State    string                  `json:"state"`
	Message  string                  `json:"message,omitempty"`
	Stale    bool                    `json:"stale"`
	Term     string                  `json:"term"`
	LoadedAt string                  `json:"loaded_at,omitempty"`
	Projects []domain.ProjectSummary `json:"projects"`
	Selected *domain.ProjectDetail   `json:"selected,omitempty"`
}

type RefreshResult struct {
	Token    uint64 `json:"token"`
	Outcome  string `json:"outcome"`
	Projects int    `json:"projects"`
}

type Me struct {
	ActorID string      `json:"actor_id"`
	Role    domain.Role `json:"role"`
	Access  string      `json:"access"`
	Source  string      `json:"source"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FetchProjects returns the raw project records. It lets a Client serve as
// the project fetcher of a local dashboard engine.
func (c *Client) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	var resp []domain.Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// Dashboard returns the server-side dashboard view.
func (c *Client) Dashboard(ctx context.Context, term, projectID string) (View, error) {
	q := url.Values{}
	if term != "" {
		q.Set("q", term)
	}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	endpoint := "dashboard"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp View
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Project returns one project with annotated stages.
func (c *Client) Project(ctx context.Context, id string) (domain.ProjectDetail, error) {
	var resp domain.ProjectDetail
	err := c.do(ctx, http.MethodGet, "dashboard/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Refresh asks the server to reload its projects.
func (c *Client) Refresh(ctx context.Context) (RefreshResult, error) {
	var resp RefreshResult
	err := c.do(ctx, http.MethodPost, "dashboard/refresh", nil, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// PutProject creates or replaces a project with its stages.
func (c *Client) PutProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	stages := make([]map[string]any, 0, len(p.SDLCStages))
	for _, s := range p.SDLCStages {
		stages = append(stages, map[string]any{
			"id":                 s.ID,
			"name":               s.Name,
			"status":             s.Status,
			"entry_criteria_met": s.EntryCriteriaMet,
			"exit_criteria_met":  s.ExitCriteriaMet,
			"delayed_tasks":      s.DelayedTasks,
			"owner_name":         s.OwnerName,
		})
	}
	body := map[string]any{
		"name":        p.Name,
		"code":        p.Code,
		"is_active":   p.IsActive,
		"sdlc_stages": stages,
	}
	var resp domain.Project
	err := c.do(ctx, http.MethodPut, "projects/"+url.PathEscape(p.ID), body, &resp)
	return resp, err
}

// UpdateStage patches the given stage fields, e.g. {"status": "DELAYED"}.
func (c *Client) UpdateStage(ctx context.Context, projectID, stageID string, fields map[string]any) (domain.StageView, error) {
	var resp domain.StageView
	endpoint := fmt.Sprintf("projects/%s/stages/%s", url.PathEscape(projectID), url.PathEscape(stageID))
	err := c.do(ctx, http.MethodPatch, endpoint, fields, &resp)
	return resp, err
}

// SetRole assigns a role to actorID; an empty role removes it.
func (c *Client) SetRole(ctx context.Context, actorID string, role domain.Role) error {
	return c.do(ctx, http.MethodPut, "rbac/actors/"+url.PathEscape(actorID)+"/role", map[string]any{"role": role}, nil)
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
