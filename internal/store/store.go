// Package store holds the current project snapshot for the dashboard.
//
// The snapshot is replaced wholesale on every load and readers always see
// either the previous or the next snapshot, never a mix. Loads are tied to
// request tokens so that a slow fetch cannot overwrite a newer one.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"sdlcboard/internal/domain"
)

// Token identifies one fetch request. Tokens increase monotonically.
type Token uint64

// Snapshot is an immutable view of the loaded projects.
type Snapshot struct {
	Token    Token
	LoadedAt time.Time
	projects []domain.Project
	index    map[string]int
}

// Len returns the number of projects in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.projects)
}

type Store struct {
	mu      sync.Mutex
	issued  atomic.Uint64
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

// Begin issues a new request token. Any token issued earlier is superseded.
func (s *Store) Begin() Token {
	return Token(s.issued.Add(1))
}

// Latest returns the most recently issued token.
func (s *Store) Latest() Token {
	return Token(s.issued.Load())
}

// Load replaces the snapshot unconditionally. It supersedes outstanding requests.
func (s *Store) Load(records []domain.Project) {
	s.LoadIfLatest(s.Begin(), records)
}

// LoadIfLatest replaces the snapshot only if tok is the latest issued token.
// It reports whether the records were applied.
func (s *Store) LoadIfLatest(tok Token, records []domain.Project) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok != s.Latest() {
		return false
	}
	snap := &Snapshot{
		Token:    tok,
		LoadedAt: s.now(),
		projects: make([]domain.Project, 0, len(records)),
		index:    make(map[string]int, len(records)),
	}
	for _, p := range records {
		if _, dup := snap.index[p.ID]; !dup {
			snap.index[p.ID] = len(snap.projects)
		}
		snap.projects = append(snap.projects, p.Clone())
	}
	s.current.Store(snap)
	return true
}

// Loaded reports whether any snapshot has been loaded.
func (s *Store) Loaded() bool {
	return s.current.Load() != nil
}

// Snapshot returns the current snapshot, or nil before the first load.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// All returns a copy of the current snapshot in insertion order.
func (s *Store) All() []domain.Project {
	return s.current.Load().All()
}

// ByID returns the project with the given id from the current snapshot.
func (s *Store) ByID(id string) (domain.Project, bool) {
	return s.current.Load().ByID(id)
}

func (s *Snapshot) All() []domain.Project {
	if s == nil {
		return []domain.Project{}
	}
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	return out
}

// ByID returns the first project with the given id.
func (s *Snapshot) ByID(id string) (domain.Project, bool) {
	if s == nil {
		return domain.Project{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return domain.Project{}, false
	}
	return s.projects[i].Clone(), true
}
