package engine

import (
	"reflect"
	"testing"

	"sdlcboard/internal/domain"
)

func messages(reasons []domain.Reason) []string {
	out := []string{}
	for _, r := range reasons {
		out = append(out, r.Message)
	}
	return out
}

func TestIsBottleneckTruthTable(t *testing.T) {
	for _, delayed := range []bool{false, true} {
		for _, entry := range []bool{false, true} {
			for _, exit := range []bool{false, true} {
				s := domain.Stage{Status: domain.StageInProgress, EntryCriteriaMet: entry, ExitCriteriaMet: exit}
				if delayed {
					s.Status = domain.StageDelayed
				}
				want := delayed || !entry || !exit
				for _, tasks := range []int{0, 5} {
					s.DelayedTasks = tasks
					if got := IsBottleneck(s); got != want {
						t.Errorf("IsBottleneck(delayed=%v entry=%v exit=%v tasks=%d) = %v, want %v", delayed, entry, exit, tasks, got, want)
					}
				}
			}
		}
	}
}

func TestReasonsOrder(t *testing.T) {
	s := domain.Stage{Status: domain.StageDelayed, DelayedTasks: 1}
	want := []string{"stage is delayed", "entry criteria not met", "exit criteria not met", "1 delayed task(s) in this stage"}
	if got := messages(Reasons(s)); !reflect.DeepEqual(got, want) {
		t.Fatalf("Reasons = %v, want %v", got, want)
	}
	codes := []string{}
	for _, r := range Reasons(s) {
		codes = append(codes, r.Code)
	}
	wantCodes := []string{domain.ReasonStageDelayed, domain.ReasonEntryCriteriaUnmet, domain.ReasonExitCriteriaUnmet, domain.ReasonDelayedTasks}
	if !reflect.DeepEqual(codes, wantCodes) {
		t.Fatalf("codes = %v, want %v", codes, wantCodes)
	}
}

func TestReasonsEmptyForHealthyStage(t *testing.T) {
	s := domain.Stage{Status: domain.StageCompleted, EntryCriteriaMet: true, ExitCriteriaMet: true}
	got := Reasons(s)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil reasons, got %#v", got)
	}
}

func TestDelayedStageScenario(t *testing.T) {
	p := domain.Project{ID: "1", Name: "Apollo", Code: "APL", SDLCStages: []domain.Stage{
		{ID: "s", Name: "Build", Status: domain.StageDelayed, EntryCriteriaMet: true, ExitCriteriaMet: true},
	}}
	s := p.SDLCStages[0]
	if !IsBottleneck(s) {
		t.Fatalf("delayed stage should be a bottleneck")
	}
	if got := messages(Reasons(s)); !reflect.DeepEqual(got, []string{"stage is delayed"}) {
		t.Fatalf("unexpected reasons %v", got)
	}
	if sum := Summarize(p); sum.BottleneckCount != 1 || sum.StageCount != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestDelayedTasksAloneIsNotABottleneck(t *testing.T) {
	s := domain.Stage{Status: domain.StageInProgress, EntryCriteriaMet: true, ExitCriteriaMet: true, DelayedTasks: 3}
	view := Annotate(s)
	if view.IsBottleneck || view.ShowReasons {
		t.Fatalf("stage with only delayed tasks should not be flagged: %+v", view)
	}
	if got := messages(view.Reasons); !reflect.DeepEqual(got, []string{"3 delayed task(s) in this stage"}) {
		t.Fatalf("unexpected reasons %v", got)
	}
}

func TestDetailKeepsStageOrder(t *testing.T) {
	p := domain.Project{ID: "1", Name: "Apollo", Code: "APL", SDLCStages: []domain.Stage{
		{ID: "a", Name: "Plan", Status: domain.StageCompleted, EntryCriteriaMet: true, ExitCriteriaMet: true},
		{ID: "b", Name: "Build", Status: domain.StageNotStarted},
	}}
	d := Detail(p)
	if len(d.Stages) != 2 || d.Stages[0].ID != "a" || d.Stages[1].ID != "b" {
		t.Fatalf("unexpected stages %+v", d.Stages)
	}
	if d.Stages[0].IsBottleneck || !d.Stages[1].IsBottleneck {
		t.Fatalf("unexpected flags %+v", d.Stages)
	}
	if empty := Detail(domain.Project{ID: "2"}); empty.Stages == nil || len(empty.Stages) != 0 {
		t.Fatalf("project without stages should have an empty stage list")
	}
}
