package engine

import (
	"strings"

	"golang.org/x/text/cases"

	"sdlcboard/internal/domain"
)

// Filter narrows projects to those whose name or code contains term, ignoring
// case. An empty term returns projects unchanged. Relative order is kept.
func Filter(projects []domain.Project, term string) []domain.Project {
	if term == "" {
		return projects
	}
	fold := cases.Fold()
	needle := fold.String(term)
	res := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if strings.Contains(fold.String(p.Name), needle) || strings.Contains(fold.String(p.Code), needle) {
			res = append(res, p)
		}
	}
	return res
}
