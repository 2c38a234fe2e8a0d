package engine

import (
	"reflect"
	"testing"

	"sdlcboard/internal/domain"
)

func sampleProjects() []domain.Project {
	return []domain.Project{
		{ID: "1", Name: "Apollo", Code: "APL"},
		{ID: "2", Name: "Zeus", Code: "ZUS"},
		{ID: "3", Name: "Hermes Mail", Code: "HRM-APL"},
		{ID: "4", Name: "Éclair", Code: "ECL"},
	}
}

func ids(projects []domain.Project) []string {
	out := []string{}
	for _, p := range projects {
		out = append(out, p.ID)
	}
	return out
}

func TestFilterEmptyTermIsIdentity(t *testing.T) {
	in := sampleProjects()
	if got := Filter(in, ""); !reflect.DeepEqual(got, in) {
		t.Fatalf("empty term changed the input: %v", ids(got))
	}
	if got := Filter(nil, ""); got != nil {
		t.Fatalf("expected nil passthrough, got %v", got)
	}
}

func TestFilterMatchesNameOrCode(t *testing.T) {
	got := Filter(sampleProjects()[:2], "apl")
	if !reflect.DeepEqual(ids(got), []string{"1"}) {
		t.Fatalf("unexpected result %v", ids(got))
	}
	got = Filter(sampleProjects(), "apl")
	if !reflect.DeepEqual(ids(got), []string{"1", "3"}) {
		t.Fatalf("expected stable subsequence, got %v", ids(got))
	}
	if got := Filter(sampleProjects(), "mail"); !reflect.DeepEqual(ids(got), []string{"3"}) {
		t.Fatalf("name match failed: %v", ids(got))
	}
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	upper := Filter(sampleProjects(), "ABC")
	lower := Filter(sampleProjects(), "abc")
	if !reflect.DeepEqual(upper, lower) {
		t.Fatalf("case changed the result")
	}
	if !reflect.DeepEqual(ids(Filter(sampleProjects(), "ZeUs")), []string{"2"}) {
		t.Fatalf("mixed case term did not match")
	}
	if !reflect.DeepEqual(ids(Filter(sampleProjects(), "ÉCLAIR")), []string{"4"}) {
		t.Fatalf("unicode case folding did not match")
	}
}

func TestFilterKeepsWhitespace(t *testing.T) {
	if got := Filter(sampleProjects(), " "); !reflect.DeepEqual(ids(got), []string{"3"}) {
		t.Fatalf("whitespace term should match only names containing a space, got %v", ids(got))
	}
	if got := Filter(sampleProjects(), "nothing"); len(got) != 0 {
		t.Fatalf("expected no match, got %v", ids(got))
	}
}
