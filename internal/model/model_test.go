package model

import (
	"reflect"
	"testing"

	"gorm.io/datatypes"
)

const planJSON = `{"phases":[{"phaseTitle":"A","skills":["Go","SQL"]},{"phaseTitle":"B","skills":["Docker"]}]}`

func TestExtractSkills(t *testing.T) {
	cases := []struct {
		name    string
		skills  []string
		content string
		want    []string
	}{
		{"union keeps first casing", []string{" Python ", "go"}, planJSON, []string{"Python", "go", "SQL", "Docker"}},
		{"plain text content", []string{"Rust", "rust", ""}, "Phase 1: learn everything", []string{"Rust"}},
		{"non-string skills ignored", nil, `{"phases":[{"skills":["Kafka", 3, null, " "]}]}`, []string{"Kafka"}},
		{"empty", nil, "", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractSkills(tc.skills, tc.content)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractSkills() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGeneratedContentTryParse(t *testing.T) {
	plan, ok := GeneratedContent[RoadmapPlan](planJSON).TryParse()
	if !ok || len(plan.Phases) != 2 || plan.TaskCount() != 3 {
		t.Fatalf("valid plan not parsed: %+v ok=%v", plan, ok)
	}
	for _, raw := range []string{"", "not json", `["a"]`, `{"phases": "oops"}`} {
		if _, ok := GeneratedContent[RoadmapPlan](raw).TryParse(); ok {
			t.Errorf("TryParse(%q) should fail", raw)
		}
	}
}

func TestProgressSanitize(t *testing.T) {
	plan, _ := GeneratedContent[RoadmapPlan](planJSON).TryParse()
	in := RoadmapProgress{
		CurrentPhase: 7,
		CompletedTasks: []TaskRef{
			{PhaseIndex: 0, TaskIndex: 1, Completed: true},
			{PhaseIndex: 0, TaskIndex: 1, Completed: true},
			{PhaseIndex: 1, TaskIndex: 1, Completed: true},
			{PhaseIndex: 2, TaskIndex: 0, Completed: true},
		},
		IsCompleted: true,
	}
	got := in.Sanitize(plan)
	if got.CurrentPhase != 1 || len(got.CompletedTasks) != 1 || !got.IsCompleted {
		t.Fatalf("unexpected sanitized progress %+v", got)
	}

	empty := in.Sanitize(RoadmapPlan{})
	if empty.CurrentPhase != 0 || len(empty.CompletedTasks) != 0 {
		t.Fatalf("empty plan should drop everything: %+v", empty)
	}
}

func TestCompletionPercentIgnoresStaleIndices(t *testing.T) {
	rm := &Roadmap{
		Status:         RoadmapCompleted,
		RoadmapContent: planJSON,
		Progress: datatypes.NewJSONType(RoadmapProgress{CompletedTasks: []TaskRef{
			{PhaseIndex: 0, TaskIndex: 0, Completed: true},
			{PhaseIndex: 0, TaskIndex: 0, Completed: true},
			{PhaseIndex: 1, TaskIndex: 0, Completed: false},
			{PhaseIndex: 5, TaskIndex: 0, Completed: true},
		}}),
	}
	if got := rm.CompletionPercent(); got != 33 {
		t.Fatalf("CompletionPercent() = %d, want 33", got)
	}

	view := rm.View()
	if view.Plan == nil || view.Advice != nil {
		t.Fatalf("view should expose only parsable content: %+v", view)
	}

	rm.RoadmapContent = "legacy text roadmap"
	if got := rm.CompletionPercent(); got != 0 {
		t.Fatalf("unparsable content should yield 0, got %d", got)
	}
}

func TestNormalizeResource(t *testing.T) {
	r := Resource{Title: "  Go  ", URL: " https://go.dev ", Rating: 9, Skills: []string{"Go", " GO", "", "gRPC"}, Difficulty: "expert"}
	r.Normalize()
	if r.Title != "Go" || r.URL != "https://go.dev" || r.Rating != 5 || r.Difficulty != DifficultyBeginner || r.Source != SourceCurated {
		t.Fatalf("unexpected normalized resource %+v", r)
	}
	if !reflect.DeepEqual(r.Skills, []string{"go", "grpc"}) {
		t.Fatalf("skills = %v", r.Skills)
	}
	if got := r.SemanticText(); got != "Go. . Skills: go, grpc" {
		t.Fatalf("SemanticText() = %q", got)
	}
}

func TestAssessmentSnapshot(t *testing.T) {
	a := &Assessment{
		TargetRole: "SRE",
		Skills:     datatypes.JSONSlice[string]{" Linux ", ""},
		Interests:  nil,
	}
	snap := a.Snapshot()
	if !reflect.DeepEqual(snap.Skills, []string{"Linux"}) || snap.Interests == nil || snap.TargetRole != "SRE" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
