package service

import (
	"context"
	"errors"
	"testing"

	"careermap_backend/internal/model"
	"careermap_backend/internal/util"
)

func TestAssessmentValidation(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()

	cases := []AssessmentRequest{
		{TargetRole: "  "},
		{TargetRole: "SRE", YearsOfExperience: -1},
		{TargetRole: "SRE", PreferredLearningStyle: model.LearningStyle("osmosis")},
	}
	for _, req := range cases {
		if _, err := f.assessments.Create(ctx, 1, req); !errors.Is(err, util.ErrInvalidAssessment) {
			t.Errorf("Create(%+v) err = %v, want ErrInvalidAssessment", req, err)
		}
	}
}

func TestAssessmentReplaceAndList(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	first := f.createAssessment(t, 1)
	f.createAssessment(t, 2)

	updated, err := f.assessments.Replace(ctx, 1, first.ID, AssessmentRequest{
		TargetRole:             "Data Engineer",
		Skills:                 []string{"Spark"},
		PreferredLearningStyle: model.LearningStyleReading,
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if updated.CurrentRole != "" || updated.TargetRole != "Data Engineer" {
		t.Fatalf("replace should overwrite every field: %+v", updated)
	}

	got, err := f.assessments.Get(ctx, 1, first.ID)
	if err != nil || got.TargetRole != "Data Engineer" || len(got.Skills) != 1 || got.Skills[0] != "Spark" {
		t.Fatalf("unexpected stored assessment %+v err=%v", got, err)
	}

	if _, err := f.assessments.Replace(ctx, 2, first.ID, AssessmentRequest{TargetRole: "x"}); !errors.Is(err, util.ErrAssessmentNotFound) {
		t.Fatalf("replace of another user's assessment should be not found, got %v", err)
	}

	list, err := f.assessments.List(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 assessment for user 1, got %d err=%v", len(list), err)
	}
}

func TestAssessmentDeleteCascadesRoadmap(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 1)
	if _, err := f.svc.Generate(ctx, 1, a.ID); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := f.assessments.Delete(ctx, 1, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, 1, a.ID); !errors.Is(err, util.ErrRoadmapNotFound) {
		t.Fatalf("roadmap should be gone, got %v", err)
	}
	if err := f.assessments.Delete(ctx, 1, a.ID); !errors.Is(err, util.ErrAssessmentNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}
