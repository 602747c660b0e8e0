package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"careermap_backend/internal/model"
	"careermap_backend/internal/testutil"

	"gorm.io/gorm"
)

func TestResourceInsertIfAbsentNeverOverwrites(t *testing.T) {
	repo := NewResourceRepository(testutil.NewDB(t))
	ctx := context.Background()

	curated := &model.Resource{
		Title:  "Official Go Tour",
		URL:    "https://go.dev/tour",
		Type:   model.ResourceDocumentation,
		Rating: 5,
		Skills: []string{"Go", " golang "},
		Source: model.SourceCurated,
	}
	inserted, err := repo.InsertIfAbsent(ctx, curated)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	generated := &model.Resource{
		Title:  "Go tour (generated)",
		URL:    "https://go.dev/tour",
		Type:   model.ResourceArticle,
		Rating: 1,
		Skills: []string{"go"},
		Source: model.SourceAIGenerated,
	}
	inserted, err = repo.InsertIfAbsent(ctx, generated)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("second insert should be skipped")
	}

	got, err := repo.FindByURL(ctx, "https://go.dev/tour")
	if err != nil {
		t.Fatalf("FindByURL: %v", err)
	}
	if got.Title != "Official Go Tour" || got.Source != model.SourceCurated || got.Rating != 5 {
		t.Fatalf("curated row overwritten: %+v", got)
	}
	if len(got.Skills) != 2 || got.Skills[0] != "go" || got.Skills[1] != "golang" {
		t.Fatalf("skills: got=%v", got.Skills)
	}
}

func TestResourceFindBySkillsOrdering(t *testing.T) {
	repo := NewResourceRepository(testutil.NewDB(t))
	ctx := context.Background()

	seed := []model.Resource{
		{Title: "A", URL: "https://a", Type: model.ResourceVideo, Rating: 3, Skills: []string{"react"}},
		{Title: "B", URL: "https://b", Type: model.ResourceVideo, Rating: 5, Skills: []string{"React", "css"}},
		{Title: "C", URL: "https://c", Type: model.ResourceCourse, Rating: 4, Skills: []string{"docker"}},
		{Title: "D", URL: "https://d", Type: model.ResourceArticle, Rating: 5, Skills: []string{"css"}},
	}
	for i := range seed {
		if _, err := repo.InsertIfAbsent(ctx, &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	got, err := repo.FindBySkills(ctx, []string{"REACT", "Css"}, nil, 20)
	if err != nil {
		t.Fatalf("FindBySkills: %v", err)
	}
	// rating desc, then newest first
	want := []string{"D", "B", "A"}
	if len(got) != len(want) {
		t.Fatalf("count: want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		if got[i].Title != want[i] {
			t.Fatalf("order[%d]: want=%s got=%s", i, want[i], got[i].Title)
		}
	}

	excluded, err := repo.FindBySkills(ctx, []string{"react"}, []uint{seed[1].ID}, 20)
	if err != nil {
		t.Fatalf("FindBySkills exclude: %v", err)
	}
	if len(excluded) != 1 || excluded[0].Title != "A" {
		t.Fatalf("exclude: got=%v", excluded)
	}
}

func TestResourceFindByIDsKeepsOrder(t *testing.T) {
	repo := NewResourceRepository(testutil.NewDB(t))
	ctx := context.Background()
	var ids []uint
	for _, u := range []string{"https://x", "https://y", "https://z"} {
		r := &model.Resource{Title: u, URL: u, Type: model.ResourceArticle}
		repo.InsertIfAbsent(ctx, r)
		ids = append(ids, r.ID)
	}
	got, err := repo.FindByIDs(ctx, []uint{ids[2], 999, ids[0]})
	if err != nil {
		t.Fatalf("FindByIDs: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[0] {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestRoadmapCreateIfAbsentSingleWinner(t *testing.T) {
	repo := NewRoadmapRepository(testutil.NewDB(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := repo.CreateIfAbsent(ctx, &model.Roadmap{
				UserID: 1, AssessmentID: 2, Status: model.RoadmapGenerating, JobID: string(rune('a' + i)),
			})
			if err != nil {
				t.Errorf("CreateIfAbsent: %v", err)
				return
			}
			if created {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("winners: want=1 got=%d", wins)
	}
}

func TestRoadmapMarkCompletedRequiresCurrentJob(t *testing.T) {
	repo := NewRoadmapRepository(testutil.NewDB(t))
	ctx := context.Background()
	rm := &model.Roadmap{UserID: 1, AssessmentID: 2, Status: model.RoadmapGenerating, JobID: "new-job"}
	if _, err := repo.CreateIfAbsent(ctx, rm); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := repo.MarkCompleted(ctx, 1, 2, "old-job", "advice", "content")
	if err != nil || ok {
		t.Fatalf("stale job should not write: ok=%v err=%v", ok, err)
	}
	ok, err = repo.MarkCompleted(ctx, 1, 2, "new-job", "advice", "content")
	if err != nil || !ok {
		t.Fatalf("current job should write: ok=%v err=%v", ok, err)
	}
	ok, _ = repo.MarkFailed(ctx, 1, 2, "new-job")
	if ok {
		t.Fatalf("completed roadmap must not flip to failed")
	}

	got, _ := repo.FindByUserAndAssessment(ctx, 1, 2)
	if got.Status != model.RoadmapCompleted || got.CareerAdvice != "advice" {
		t.Fatalf("unexpected roadmap: %+v", got)
	}
}

func TestRoadmapDeleteFailedOnlyRemovesFailed(t *testing.T) {
	repo := NewRoadmapRepository(testutil.NewDB(t))
	ctx := context.Background()
	rm := &model.Roadmap{UserID: 1, AssessmentID: 2, Status: model.RoadmapGenerating, JobID: "job-1"}
	if _, err := repo.CreateIfAbsent(ctx, rm); err != nil {
		t.Fatalf("create: %v", err)
	}

	if ok, err := repo.DeleteFailed(ctx, rm.ID); err != nil || ok {
		t.Fatalf("generating roadmap must survive: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.MarkFailed(ctx, 1, 2, "job-1"); !ok {
		t.Fatalf("MarkFailed should write")
	}
	if ok, err := repo.DeleteFailed(ctx, rm.ID); err != nil || !ok {
		t.Fatalf("failed roadmap should be deleted: ok=%v err=%v", ok, err)
	}
	if _, err := repo.FindByUserAndAssessment(ctx, 1, 2); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestAssessmentDeleteCascadesRoadmap(t *testing.T) {
	db := testutil.NewDB(t)
	assessments := NewAssessmentRepository(db)
	roadmaps := NewRoadmapRepository(db)
	ctx := context.Background()

	a := &model.Assessment{UserID: 9, CurrentRole: "QA", TargetRole: "SRE"}
	if err := assessments.Create(ctx, a); err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	roadmaps.CreateIfAbsent(ctx, &model.Roadmap{UserID: 9, AssessmentID: a.ID, Status: model.RoadmapCompleted})

	if err := assessments.DeleteWithRoadmap(ctx, a.ID, 8); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("other user delete: want ErrRecordNotFound got %v", err)
	}
	if err := assessments.DeleteWithRoadmap(ctx, a.ID, 9); err != nil {
		t.Fatalf("DeleteWithRoadmap: %v", err)
	}
	if _, err := roadmaps.FindByUserAndAssessment(ctx, 9, a.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("roadmap should be gone, got %v", err)
	}
	if _, err := assessments.FindByIDForUser(ctx, a.ID, 9); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("assessment should be gone, got %v", err)
	}
}
