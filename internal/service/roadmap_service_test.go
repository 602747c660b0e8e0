package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"careermap_backend/internal/model"
	"careermap_backend/internal/repository"
	"careermap_backend/internal/testutil"
	"careermap_backend/internal/util"
	"careermap_backend/pkg/queue"

	"gorm.io/gorm"
)

const samplePlan = `{"phases":[
	{"phaseTitle":"Foundation","skills":["Go","SQL"],"project":"CLI","timeBreakdown":"2 hours/day"},
	{"phaseTitle":"Services","skills":["gRPC","Docker","Kubernetes"],"project":"API","timeBreakdown":"2 hours/day"}
]}`

type roadmapFixture struct {
	db          *gorm.DB
	svc         *RoadmapService
	queue       *queue.Queue
	assessments *AssessmentService
}

func newRoadmapFixture(t *testing.T) *roadmapFixture {
	t.Helper()
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	q := queue.New(rdb, queue.NewRedisBroker(rdb, "test"), queue.Options{Name: "test"})
	assessmentRepo := repository.NewAssessmentRepository(db)
	return &roadmapFixture{
		db:          db,
		svc:         NewRoadmapService(repository.NewRoadmapRepository(db), assessmentRepo, q),
		queue:       q,
		assessments: NewAssessmentService(assessmentRepo),
	}
}

func (f *roadmapFixture) createAssessment(t *testing.T, userID uint) *model.Assessment {
	t.Helper()
	a, err := f.assessments.Create(context.Background(), userID, AssessmentRequest{
		CurrentRole:    "QA Engineer",
		TargetRole:     "Backend Engineer",
		Skills:         []string{"Python", " "},
		TimeCommitment: "10 hours/week",
	})
	if err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	return a
}

func (f *roadmapFixture) roadmapCount(t *testing.T, assessmentID uint) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&model.Roadmap{}).Where("assessment_id = ?", assessmentID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestGenerateIsIdempotentWhileInFlight(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 7)

	first, err := f.svc.Generate(ctx, 7, a.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !first.Enqueued || first.JobID == "" || first.Roadmap.Status != model.RoadmapGenerating || first.Roadmap.JobID != first.JobID {
		t.Fatalf("unexpected first result %+v", first)
	}

	job, err := f.queue.GetJob(ctx, first.JobID)
	if err != nil || job.State != queue.StateWaiting {
		t.Fatalf("job should be waiting: %+v err=%v", job, err)
	}
	var payload model.RoadmapJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UserID != 7 || payload.AssessmentID != a.ID || len(payload.AssessmentData.Skills) != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	second, err := f.svc.Generate(ctx, 7, a.ID)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if second.Enqueued || second.JobID != first.JobID {
		t.Fatalf("second generate should be a no-op, got %+v", second)
	}
	if n := f.roadmapCount(t, a.ID); n != 1 {
		t.Fatalf("expected 1 roadmap, got %d", n)
	}
}

func TestGenerateUnknownAssessment(t *testing.T) {
	f := newRoadmapFixture(t)
	a := f.createAssessment(t, 1)

	if _, err := f.svc.Generate(context.Background(), 2, a.ID); !errors.Is(err, util.ErrAssessmentNotFound) {
		t.Fatalf("other user's assessment should be not found, got %v", err)
	}
	if _, err := f.svc.Generate(context.Background(), 1, 999); !errors.Is(err, util.ErrAssessmentNotFound) {
		t.Fatalf("expected ErrAssessmentNotFound, got %v", err)
	}
}

func TestGenerateCompletedIsNoop(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 1)

	first, _ := f.svc.Generate(ctx, 1, a.ID)
	payload := model.RoadmapJobPayload{UserID: 1, AssessmentID: a.ID}
	if ok, err := f.svc.CompleteGeneration(ctx, payload, first.JobID, "{}", samplePlan); err != nil || !ok {
		t.Fatalf("CompleteGeneration ok=%v err=%v", ok, err)
	}

	again, err := f.svc.Generate(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if again.Enqueued || again.Roadmap.Status != model.RoadmapCompleted || again.Roadmap.RoadmapContent != samplePlan {
		t.Fatalf("completed roadmap should be returned as is: %+v", again)
	}
}

func TestGenerateAfterFailureRegenerates(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 1)

	first, _ := f.svc.Generate(ctx, 1, a.ID)
	payload := model.RoadmapJobPayload{UserID: 1, AssessmentID: a.ID}
	if ok, err := f.svc.FailGeneration(ctx, payload, first.JobID); err != nil || !ok {
		t.Fatalf("FailGeneration ok=%v err=%v", ok, err)
	}

	retry, err := f.svc.Generate(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !retry.Enqueued || retry.JobID == first.JobID || retry.Roadmap.Status != model.RoadmapGenerating {
		t.Fatalf("failed roadmap should be regenerated: %+v", retry)
	}
	if n := f.roadmapCount(t, a.ID); n != 1 {
		t.Fatalf("expected 1 roadmap, got %d", n)
	}
}

func TestConcurrentGenerateAfterFailureEnqueuesOnce(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 1)

	first, _ := f.svc.Generate(ctx, 1, a.ID)
	payload := model.RoadmapJobPayload{UserID: 1, AssessmentID: a.ID}
	if ok, err := f.svc.FailGeneration(ctx, payload, first.JobID); err != nil || !ok {
		t.Fatalf("FailGeneration ok=%v err=%v", ok, err)
	}

	// 第一个请求读到 failed 记录后，第二个请求完整执行一次
	var (
		fired    bool
		other    *GenerateResult
		otherErr error
	)
	err := f.db.Callback().Query().After("gorm:query").Register("test:interleave", func(tx *gorm.DB) {
		rm, ok := tx.Statement.Dest.(*model.Roadmap)
		if fired || !ok || rm.Status != model.RoadmapFailed {
			return
		}
		fired = true
		other, otherErr = f.svc.Generate(ctx, 1, a.ID)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	res, err := f.svc.Generate(ctx, 1, a.ID)
	if err != nil || otherErr != nil {
		t.Fatalf("Generate err=%v other=%v", err, otherErr)
	}
	if !fired || !other.Enqueued {
		t.Fatalf("interleaved request should enqueue: fired=%v %+v", fired, other)
	}
	if res.Enqueued || res.JobID != other.JobID {
		t.Fatalf("late request should return the in-flight roadmap, got %+v want job %s", res, other.JobID)
	}

	got, err := f.svc.Get(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.JobID != other.JobID || got.Status != model.RoadmapGenerating {
		t.Fatalf("in-flight roadmap was replaced: %+v", got)
	}
	if n := f.roadmapCount(t, a.ID); n != 1 {
		t.Fatalf("expected 1 roadmap, got %d", n)
	}
}

func TestRegenerateSupersedesOldJob(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 1)

	first, _ := f.svc.Generate(ctx, 1, a.ID)
	second, err := f.svc.Regenerate(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if second.JobID == first.JobID || !second.Enqueued {
		t.Fatalf("regenerate should enqueue a new job: %+v", second)
	}
	if n := f.roadmapCount(t, a.ID); n != 1 {
		t.Fatalf("expected 1 roadmap, got %d", n)
	}

	payload := model.RoadmapJobPayload{UserID: 1, AssessmentID: a.ID}
	ok, err := f.svc.CompleteGeneration(ctx, payload, first.JobID, "stale", "stale")
	if err != nil || ok {
		t.Fatalf("superseded job must not write, ok=%v err=%v", ok, err)
	}
	rm, _ := f.svc.Get(ctx, 1, a.ID)
	if rm.Status != model.RoadmapGenerating || rm.JobID != second.JobID {
		t.Fatalf("record should belong to the new job: %+v", rm)
	}
}

type downQueue struct{}

func (downQueue) EnqueueWithID(context.Context, string, interface{}) error {
	return queue.ErrUnavailable
}

func (downQueue) GetJob(context.Context, string) (*queue.Job, error) {
	return nil, queue.ErrJobNotFound
}

func TestGenerateEnqueueFailureRollsBack(t *testing.T) {
	f := newRoadmapFixture(t)
	f.svc.Queue = downQueue{}
	a := f.createAssessment(t, 1)

	_, err := f.svc.Generate(context.Background(), 1, a.ID)
	if !errors.Is(err, util.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if n := f.roadmapCount(t, a.ID); n != 0 {
		t.Fatalf("roadmap should be rolled back, got %d", n)
	}
}

func TestJobStatusOwnerOnly(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 1)
	res, _ := f.svc.Generate(ctx, 1, a.ID)

	job, err := f.svc.JobStatus(ctx, 1, res.JobID)
	if err != nil || job.ID != res.JobID {
		t.Fatalf("owner lookup failed: %+v err=%v", job, err)
	}
	if _, err := f.svc.JobStatus(ctx, 2, res.JobID); !errors.Is(err, util.ErrJobNotFound) {
		t.Fatalf("other user should get ErrJobNotFound, got %v", err)
	}
	if _, err := f.svc.JobStatus(ctx, 1, "missing"); !errors.Is(err, util.ErrJobNotFound) {
		t.Fatalf("unknown job should be not found, got %v", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	f := newRoadmapFixture(t)
	ctx := context.Background()
	a := f.createAssessment(t, 1)

	if _, err := f.svc.UpdateProgress(ctx, 1, ProgressRequest{AssessmentID: a.ID}); !errors.Is(err, util.ErrRoadmapNotFound) {
		t.Fatalf("expected ErrRoadmapNotFound, got %v", err)
	}

	res, _ := f.svc.Generate(ctx, 1, a.ID)
	if _, err := f.svc.UpdateProgress(ctx, 1, ProgressRequest{AssessmentID: a.ID}); !errors.Is(err, util.ErrRoadmapNotReady) {
		t.Fatalf("expected ErrRoadmapNotReady, got %v", err)
	}

	payload := model.RoadmapJobPayload{UserID: 1, AssessmentID: a.ID}
	if _, err := f.svc.CompleteGeneration(ctx, payload, res.JobID, "{}", samplePlan); err != nil {
		t.Fatalf("CompleteGeneration: %v", err)
	}

	_, err := f.svc.UpdateProgress(ctx, 1, ProgressRequest{AssessmentID: a.ID, CurrentPhase: -1})
	if !errors.Is(err, util.ErrInvalidProgress) {
		t.Fatalf("expected ErrInvalidProgress, got %v", err)
	}

	rm, err := f.svc.UpdateProgress(ctx, 1, ProgressRequest{
		AssessmentID: a.ID,
		CurrentPhase: 5,
		CompletedTasks: []model.TaskRef{
			{PhaseIndex: 0, TaskIndex: 1, Completed: true},
			{PhaseIndex: 0, TaskIndex: 1, Completed: true},
			{PhaseIndex: 1, TaskIndex: 2, Completed: true},
			{PhaseIndex: 1, TaskIndex: 3, Completed: true},
			{PhaseIndex: 4, TaskIndex: 0, Completed: true},
		},
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	p := rm.Progress.Data()
	if p.CurrentPhase != 1 || len(p.CompletedTasks) != 2 {
		t.Fatalf("progress not sanitized: %+v", p)
	}

	stored, _ := f.svc.Get(ctx, 1, a.ID)
	if got := stored.CompletionPercent(); got != 40 {
		t.Fatalf("expected 40%% complete, got %d", got)
	}
}
