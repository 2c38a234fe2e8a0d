package repo

import (
	"fmt"
	"strings"

	"sdlcboard/internal/domain"
)

// ValidationError reports a record that cannot be stored.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidateProject checks the record shape before it is stored. It does not
// judge stage consistency: a COMPLETED stage with unmet exit criteria is valid.
func ValidateProject(p domain.Project) error {
	if strings.TrimSpace(p.ID) == "" {
		return invalidf("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalidf("project %s: name is required", p.ID)
	}
	if strings.TrimSpace(p.Code) == "" {
		return invalidf("project %s: code is required", p.ID)
	}
	seen := map[string]bool{}
	for _, s := range p.SDLCStages {
		if err := ValidateStage(s); err != nil {
			return invalidf("project %s: %s", p.ID, err)
		}
		if seen[s.ID] {
			return invalidf("project %s: duplicate stage id %s", p.ID, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func ValidateStage(s domain.Stage) error {
	if strings.TrimSpace(s.ID) == "" {
		return invalidf("stage id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return invalidf("stage %s: name is required", s.ID)
	}
	if _, err := domain.ParseStageStatus(string(s.Status)); err != nil {
		return invalidf("stage %s: %s", s.ID, err)
	}
	if s.DelayedTasks < 0 {
		return invalidf("stage %s: delayed_tasks must not be negative", s.ID)
	}
	return nil
}
