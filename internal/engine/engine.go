package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"sdlcboard/internal/domain"
	"sdlcboard/internal/engine/auth"
	"sdlcboard/internal/store"
)

const instrumentationName = "sdlcboard/internal/engine"

// FetchFailedMessage is the only text shown to end users when a fetch fails.
const FetchFailedMessage = "projects could not be loaded, please retry"

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrProjectNotFound = errors.New("project not found")
)

// RoleProvider reports the role of the current caller.
type RoleProvider interface {
	CurrentRole(ctx context.Context) (domain.Role, error)
}

// Fetcher returns the authoritative list of projects visible to the caller.
type Fetcher interface {
	FetchProjects(ctx context.Context) ([]domain.Project, error)
}

// FetcherFunc adapts a function into a Fetcher.
type FetcherFunc func(ctx context.Context) ([]domain.Project, error)

func (f FetcherFunc) FetchProjects(ctx context.Context) ([]domain.Project, error) { return f(ctx) }

// FetchFailedError hides the fetch cause behind a generic message.
// The cause is reachable through errors.Unwrap for logging only.
type FetchFailedError struct {
	cause error
}

func (e *FetchFailedError) Error() string { return FetchFailedMessage }
func (e *FetchFailedError) Unwrap() error { return e.cause }

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateEmpty   State = "empty"
	StateNoMatch State = "no_match"
	StateError   State = "error"
)

type RefreshOutcome string

const (
	RefreshApplied    RefreshOutcome = "applied"
	RefreshSuperseded RefreshOutcome = "superseded"
	RefreshFailed     RefreshOutcome = "failed"
)

type RefreshResult struct {
	Token    store.Token    `json:"token"`
	Outcome  RefreshOutcome `json:"outcome" enum:"applied,superseded,failed"`
	Projects int            `json:"projects"`
}

// Query selects what a dashboard view shows.
type Query struct {
	Term      string
	ProjectID string
}

// View is everything a presentation layer needs to render the dashboard.
type View struct {
	State    State                   `json:"state" enum:"loading,ready,empty,no_match,error"`
	Message  string                  `json:"message,omitempty"`
	Stale    bool                    `json:"stale"`
	Term     string                  `json:"term"`
	LoadedAt string                  `json:"loaded_at,omitempty" format:"date-time"`
	Projects []domain.ProjectSummary `json:"projects"`
	Selected *domain.ProjectDetail   `json:"selected,omitempty"`
}

type Config struct {
	Logger         *slog.Logger
	Meter          metric.Meter
	RefreshTimeout time.Duration
}

type failure struct {
	token store.Token
}

type refreshMetrics struct {
	total      metric.Int64Counter
	applied    metric.Int64Counter
	superseded metric.Int64Counter
	failed     metric.Int64Counter
}

// Engine ties the access gate, the project store and the fetcher together.
type Engine struct {
	Fetcher Fetcher
	Store   *store.Store

	logger  *slog.Logger
	timeout time.Duration
	metrics refreshMetrics
	failure atomic.Pointer[failure]
	initial singleflight.Group
}

func New(f Fetcher, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	return &Engine{
		Fetcher: f,
		Store:   store.New(),
		logger:  logger,
		timeout: cfg.RefreshTimeout,
		metrics: newRefreshMetrics(meter, logger),
	}
}

func newRefreshMetrics(meter metric.Meter, logger *slog.Logger) refreshMetrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("create metric failed", "metric", name, "error", err)
		}
		return c
	}
	return refreshMetrics{
		total:      counter("sdlcboard.refresh.total", "Project refreshes started"),
		applied:    counter("sdlcboard.refresh.applied", "Project refreshes applied to the store"),
		superseded: counter("sdlcboard.refresh.superseded", "Project refreshes dropped because a newer one was issued"),
		failed:     counter("sdlcboard.refresh.failed", "Project refreshes that failed to fetch"),
	}
}

func add(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

// Access resolves the caller's role and runs the access gate. A provider error
// is treated as an absent role.
func (e *Engine) Access(ctx context.Context, p RoleProvider) (domain.Role, auth.Decision) {
	if p == nil {
		return "", auth.Denied
	}
	role, err := p.CurrentRole(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "role unavailable, denying access", "error", err)
		return "", auth.Denied
	}
	return role, auth.Check(role)
}

// Refresh fetches projects and loads them unless a newer refresh was issued
// in the meantime. Fetch errors come back as *FetchFailedError.
func (e *Engine) Refresh(ctx context.Context) (RefreshResult, error) {
	tok := e.Store.Begin()
	add(ctx, e.metrics.total)
	fctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	records, err := e.Fetcher.FetchProjects(fctx)
	if err != nil {
		if tok != e.Store.Latest() {
			add(ctx, e.metrics.superseded)
			e.logger.DebugContext(ctx, "superseded fetch failed", "token", uint64(tok), "error", err)
			return RefreshResult{Token: tok, Outcome: RefreshSuperseded}, nil
		}
		add(ctx, e.metrics.failed)
		e.logger.ErrorContext(ctx, "project fetch failed", "token", uint64(tok), "error", err)
		e.failure.Store(&failure{token: tok})
		return RefreshResult{Token: tok, Outcome: RefreshFailed}, &FetchFailedError{cause: err}
	}
	if !e.Store.LoadIfLatest(tok, records) {
		add(ctx, e.metrics.superseded)
		e.logger.DebugContext(ctx, "dropping superseded fetch result", "token", uint64(tok), "latest", uint64(e.Store.Latest()))
		return RefreshResult{Token: tok, Outcome: RefreshSuperseded}, nil
	}
	e.clearFailure(tok)
	add(ctx, e.metrics.applied)
	e.logger.InfoContext(ctx, "projects loaded", "token", uint64(tok), "projects", len(records))
	return RefreshResult{Token: tok, Outcome: RefreshApplied, Projects: len(records)}, nil
}

// clearFailure drops a recorded failure that is older than tok.
func (e *Engine) clearFailure(tok store.Token) {
	for {
		cur := e.failure.Load()
		if cur == nil || cur.token > tok {
			return
		}
		if e.failure.CompareAndSwap(cur, nil) {
			return
		}
	}
}

// Failed reports whether the latest issued refresh failed.
func (e *Engine) Failed() bool {
	f := e.failure.Load()
	return f != nil && f.token == e.Store.Latest()
}

func (e *Engine) ensureLoaded(ctx context.Context) {
	if e.Store.Loaded() || e.Failed() {
		return
	}
	// Concurrent first reads share one fetch so they do not supersede each
	// other. The failure is recorded on the engine and surfaces as StateError.
	_, _, _ = e.initial.Do("initial", func() (any, error) {
		if e.Store.Loaded() || e.Failed() {
			return nil, nil
		}
		_, err := e.Refresh(ctx)
		return nil, err
	})
}

// Dashboard builds the view for role. Denied roles get ErrAccessDenied before
// any fetch is attempted.
func (e *Engine) Dashboard(ctx context.Context, role domain.Role, q Query) (View, error) {
	if auth.Check(role) != auth.Allowed {
		return View{}, ErrAccessDenied
	}
	e.ensureLoaded(ctx)
	snap := e.Store.Snapshot()
	all := snap.All()
	filtered := Filter(all, q.Term)

	view := View{
		Term:     q.Term,
		Projects: make([]domain.ProjectSummary, 0, len(filtered)),
	}
	if snap != nil {
		view.LoadedAt = snap.LoadedAt.UTC().Format(time.RFC3339)
	}
	for _, p := range filtered {
		view.Projects = append(view.Projects, Summarize(p))
	}
	switch {
	case e.Failed():
		view.State = StateError
		view.Message = FetchFailedMessage
		view.Stale = snap != nil
	case snap == nil:
		view.State = StateLoading
	case len(all) == 0:
		view.State = StateEmpty
	case len(filtered) == 0:
		view.State = StateNoMatch
	default:
		view.State = StateReady
	}
	if q.ProjectID != "" {
		p, ok := snap.ByID(q.ProjectID)
		if !ok {
			return view, ErrProjectNotFound
		}
		d := Detail(p)
		view.Selected = &d
	}
	return view, nil
}

// Project returns one annotated project from the current snapshot.
func (e *Engine) Project(ctx context.Context, role domain.Role, id string) (domain.ProjectDetail, error) {
	if auth.Check(role) != auth.Allowed {
		return domain.ProjectDetail{}, ErrAccessDenied
	}
	e.ensureLoaded(ctx)
	p, ok := e.Store.ByID(id)
	if !ok {
		if e.Failed() {
			return domain.ProjectDetail{}, &FetchFailedError{}
		}
		return domain.ProjectDetail{}, ErrProjectNotFound
	}
	return Detail(p), nil
}
