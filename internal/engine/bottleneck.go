package engine

import (
	"fmt"

	"sdlcboard/internal/domain"
)

// IsBottleneck reports whether a stage blocks progress: it is delayed or one of
// its entry/exit criteria is unmet. Delayed tasks alone do not flag a stage.
func IsBottleneck(s domain.Stage) bool {
	return s.Status == domain.StageDelayed || !s.EntryCriteriaMet || !s.ExitCriteriaMet
}

// Reasons lists every factor that applies to the stage, always in the order
// delayed, entry criteria, exit criteria, delayed tasks. The list can be
// non-empty for a stage that is not a bottleneck.
func Reasons(s domain.Stage) []domain.Reason {
	reasons := []domain.Reason{}
	if s.Status == domain.StageDelayed {
		reasons = append(reasons, domain.Reason{Code: domain.ReasonStageDelayed, Message: "stage is delayed"})
	}
	if !s.EntryCriteriaMet {
		reasons = append(reasons, domain.Reason{Code: domain.ReasonEntryCriteriaUnmet, Message: "entry criteria not met"})
	}
	if !s.ExitCriteriaMet {
		reasons = append(reasons, domain.Reason{Code: domain.ReasonExitCriteriaUnmet, Message: "exit criteria not met"})
	}
	if s.DelayedTasks > 0 {
		reasons = append(reasons, domain.Reason{
			Code:    domain.ReasonDelayedTasks,
			Message: fmt.Sprintf("%d delayed task(s) in this stage", s.DelayedTasks),
		})
	}
	return reasons
}

// Annotate evaluates a stage for display.
func Annotate(s domain.Stage) domain.StageView {
	flagged := IsBottleneck(s)
	return domain.StageView{
		Stage:        s,
		IsBottleneck: flagged,
		ShowReasons:  flagged,
		Reasons:      Reasons(s),
	}
}

// Detail annotates every stage of a project, keeping pipeline order.
func Detail(p domain.Project) domain.ProjectDetail {
	views := make([]domain.StageView, 0, len(p.SDLCStages))
	for _, s := range p.SDLCStages {
		views = append(views, Annotate(s))
	}
	return domain.ProjectDetail{
		ID:        p.ID,
		Name:      p.Name,
		Code:      p.Code,
		IsActive:  p.IsActive,
		UpdatedAt: p.UpdatedAt,
		Stages:    views,
	}
}

// Summarize builds the list-view projection of a project.
func Summarize(p domain.Project) domain.ProjectSummary {
	count := 0
	for _, s := range p.SDLCStages {
		if IsBottleneck(s) {
			count++
		}
	}
	return domain.ProjectSummary{
		ID:              p.ID,
		Name:            p.Name,
		Code:            p.Code,
		IsActive:        p.IsActive,
		UpdatedAt:       p.UpdatedAt,
		StageCount:      len(p.SDLCStages),
		BottleneckCount: count,
	}
}
