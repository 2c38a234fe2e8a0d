package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine"
	"sdlcboard/internal/engine/auth"
	"sdlcboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"access_denied"`
	Message string         `json:"message" example:"access denied"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"required_role\":\"ADMIN\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// service carries the dependencies shared by every route.
type service struct {
	engine *engine.Engine
	repo   repo.Repo
	roles  auth.Service
	auth   AuthConfig
	logger *slog.Logger
}

// New returns an HTTP handler exposing the dashboard API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine required")
	}
	if cfg.Repo.DB == nil {
		return nil, errors.New("repo database required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the error envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 && status < http.StatusInternalServerError {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	s := &service{
		engine: cfg.Engine,
		repo:   cfg.Repo,
		roles:  auth.Service{DB: cfg.Repo.DB},
		auth:   cfg.Auth,
		logger: logger,
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("SDLC Dashboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, s)
	registerDashboard(group, s)
	registerProjects(group, s)
	registerEvents(group, s)
	registerRBAC(group, s)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return otelhttp.NewHandler(router, "sdlcboard.api"), nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the API envelope. Server-side failures
// never carry their cause to the client.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, engine.ErrAccessDenied) {
		return newAPIError(http.StatusForbidden, "access_denied", "access denied", nil)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"required_role": fe.Required})
	}
	var ffe *engine.FetchFailedError
	if errors.As(err, &ffe) {
		return newAPIError(http.StatusServiceUnavailable, "fetch_failed", engine.FetchFailedMessage, nil)
	}
	if errors.Is(err, engine.ErrProjectNotFound) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	var ve *repo.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", ve.Msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

// fail logs err when it maps to a server error and returns the API error.
func (s *service) fail(ctx context.Context, err error) huma.StatusError {
	se := handleError(err)
	if se.GetStatus() >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed", "status", se.GetStatus(), "error", err)
	}
	return se
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// access runs the gate for the current request. The role is resolved on
// every call.
func (s *service) access(ctx context.Context) (Principal, domain.Role, auth.Decision, huma.StatusError) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return Principal{}, "", auth.Denied, authErr
	}
	role, decision := s.engine.Access(ctx, principalRole{principal: principal, roles: s.roles})
	return principal, role, decision, nil
}

func (s *service) requireAccess(ctx context.Context) (Principal, domain.Role, error) {
	principal, role, decision, authErr := s.access(ctx)
	if authErr != nil {
		return Principal{}, "", authErr
	}
	if decision != auth.Allowed {
		return principal, role, engine.ErrAccessDenied
	}
	return principal, role, nil
}

func (s *service) requireAdmin(ctx context.Context) (Principal, error) {
	principal, role, _, authErr := s.access(ctx)
	if authErr != nil {
		return Principal{}, authErr
	}
	if err := auth.RequireAdmin(role); err != nil {
		return principal, err
	}
	return principal, nil
}

// reload refreshes the dashboard after a write so readers see it.
func (s *service) reload(ctx context.Context) {
	if _, err := s.engine.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "refresh after write failed", "error", errors.Unwrap(err))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	// The document is patched in place, so build it exactly once.
	spec := sync.OnceValue(func() []byte {
		oas := api.OpenAPI()
		ensureDefaultErrorResponses(oas)
		applyAuthSecurity(oas, basePath)
		data, _ := json.Marshal(oas)
		return data
	})
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec())
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>SDLC Dashboard API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal and dashboard access",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, role, decision, authErr := s.access(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{
			ActorID: principal.ActorID,
			Role:    role,
			Access:  string(decision),
			Source:  principal.Source,
		}}, nil
	})
}

func registerDashboard(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Dashboard view with optional search and selected project",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Q         string `query:"q" doc:"Case-insensitive substring of project name or code"`
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body engine.View `json:"body"`
	}, error) {
		_, role, err := s.requireAccess(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		view, err := s.engine.Dashboard(ctx, role, engine.Query{Term: input.Q, ProjectID: input.ProjectID})
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		return &struct {
			Body engine.View `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-projects",
		Method:      http.MethodGet,
		Path:        "/dashboard/projects",
		Summary:     "Filtered project summaries",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Q string `query:"q"`
	}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		_, role, err := s.requireAccess(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		view, err := s.engine.Dashboard(ctx, role, engine.Query{Term: input.Q})
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: projectList(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-project",
		Method:      http.MethodGet,
		Path:        "/dashboard/projects/{project_id}",
		Summary:     "Project with annotated stages",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.ProjectDetail `json:"body"`
	}, error) {
		_, role, err := s.requireAccess(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		detail, err := s.engine.Project(ctx, role, input.ProjectID)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		return &struct {
			Body domain.ProjectDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-refresh",
		Method:      http.MethodPost,
		Path:        "/dashboard/refresh",
		Summary:     "Reload projects from the data source",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.RefreshResult `json:"body"`
	}, error) {
		if _, _, err := s.requireAccess(ctx); err != nil {
			return nil, s.fail(ctx, err)
		}
		res, err := s.engine.Refresh(ctx)
		if err != nil {
			// The cause was logged by the engine.
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RefreshResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerProjects(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List raw project records",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if _, _, err := s.requireAccess(ctx); err != nil {
			return nil, s.fail(ctx, err)
		}
		items, err := s.repo.ListProjects(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-project",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}",
		Summary:     "Create or replace a project and its stages",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      PutProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, _, err := s.requireAccess(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		p, err := s.repo.UpsertProject(ctx, input.Body.project(input.ProjectID), principal.ActorID)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		s.reload(ctx)
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete a project",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		principal, err := s.requireAdmin(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		if err := s.repo.DeleteProject(ctx, input.ProjectID, principal.ActorID); err != nil {
			return nil, s.fail(ctx, err)
		}
		s.reload(ctx)
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-stage",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{stage_id}",
		Summary:     "Update one stage",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		StageID   string            `path:"stage_id"`
		Body      PatchStageRequest `json:"body"`
	}) (*struct {
		Body domain.StageView `json:"body"`
	}, error) {
		principal, _, err := s.requireAccess(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		if input.Body.empty() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "no stage fields to update", nil)
		}
		st, err := s.repo.UpdateStage(ctx, input.ProjectID, input.StageID, input.Body.patch(), principal.ActorID)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		s.reload(ctx)
		return &struct {
			Body domain.StageView `json:"body"`
		}{Body: engine.Annotate(st)}, nil
	})
}

func registerEvents(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,stage,actor"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := s.requireAdmin(ctx); err != nil {
			return nil, s.fail(ctx, err)
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := s.repo.LatestEvents(ctx, repo.EventFilters{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "set-actor-role",
		Method:      http.MethodPut,
		Path:        "/rbac/actors/{actor_id}/role",
		Summary:     "Assign or remove an actor's role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		ActorID string         `path:"actor_id"`
		Body    SetRoleRequest `json:"body"`
	}) (*struct {
		Body RoleResponse `json:"body"`
	}, error) {
		principal, err := s.requireAdmin(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		var role domain.Role
		if strings.TrimSpace(input.Body.Role) != "" {
			role, err = domain.ParseRole(input.Body.Role)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
		}
		if err := s.repo.SetActorRole(ctx, input.ActorID, role, principal.ActorID); err != nil {
			return nil, s.fail(ctx, err)
		}
		return &struct {
			Body RoleResponse `json:"body"`
		}{Body: RoleResponse{ActorID: input.ActorID, Role: role}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		var role domain.Role
		if strings.TrimSpace(input.Body.Role) != "" {
			parsed, err := domain.ParseRole(input.Body.Role)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			role = parsed
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, role)
		if err != nil {
			authCfg.logger().ErrorContext(ctx, "sign dev token failed", "error", err)
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

// StartRefresher reloads the dashboard every interval until ctx is done.
func StartRefresher(ctx context.Context, e *engine.Engine, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := e.Refresh(ctx)
				if err != nil {
					continue
				}
				logger.DebugContext(ctx, "background refresh", "outcome", res.Outcome, "token", uint64(res.Token))
			}
		}
	}()
}
