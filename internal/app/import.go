package app

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sdlcboard/internal/domain"
	"sdlcboard/internal/repo"
)

// ProjectsFile is the YAML layout accepted by `sdlc project import`.
type ProjectsFile struct {
	Projects []domain.Project `yaml:"projects"`
}

// ParseProjects decodes a projects file. Unknown fields are rejected so that
// typos in stage flags do not silently default to false. Stages may omit
// their id, as with the HTTP API.
func ParseProjects(data []byte) ([]domain.Project, error) {
	var f ProjectsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid projects yaml: %w", err)
	}
	for i := range f.Projects {
		repo.AssignStageIDs(&f.Projects[i])
		if err := repo.ValidateProject(f.Projects[i]); err != nil {
			return nil, fmt.Errorf("projects[%d]: %w", i, err)
		}
	}
	return f.Projects, nil
}

// ImportProjectsFile upserts every project in the file at path.
func ImportProjectsFile(ctx context.Context, r repo.Repo, path, actorID string) ([]domain.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	projects, err := ParseProjects(data)
	if err != nil {
		return nil, err
	}
	stored := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		res, err := r.UpsertProject(ctx, p, actorID)
		if err != nil {
			return stored, fmt.Errorf("import %s: %w", p.ID, err)
		}
		stored = append(stored, res)
	}
	return stored, nil
}
