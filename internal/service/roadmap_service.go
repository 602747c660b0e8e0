package service

import (
	"careermap_backend/internal/model"
	"careermap_backend/internal/repository"
	"careermap_backend/internal/util"
	"careermap_backend/pkg/logger"
	"careermap_backend/pkg/queue"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobQueue 路线图服务只需要入队与查询任务状态
type JobQueue interface {
	EnqueueWithID(ctx context.Context, id string, payload interface{}) error
	GetJob(ctx context.Context, id string) (*queue.Job, error)
}

type RoadmapService struct {
	Roadmaps    *repository.RoadmapRepository
	Assessments *repository.AssessmentRepository
	Queue       JobQueue
}

func NewRoadmapService(roadmaps *repository.RoadmapRepository, assessments *repository.AssessmentRepository, q JobQueue) *RoadmapService {
	return &RoadmapService{Roadmaps: roadmaps, Assessments: assessments, Queue: q}
}

// GenerateResult Enqueued 为 false 时表示已有记录，本次请求未产生新任务
type GenerateResult struct {
	Roadmap  *model.Roadmap
	JobID    string
	Enqueued bool
	Message  string
}

type ProgressRequest struct {
	AssessmentID   uint            `json:"assessmentId" binding:"required"`
	CurrentPhase   int             `json:"currentPhase"`
	CompletedTasks []model.TaskRef `json:"completedTasks"`
	IsCompleted    bool            `json:"isCompleted"`
}

// Generate 幂等：生成中或已完成时直接返回现有记录，失败的记录按重新生成处理
func (s *RoadmapService) Generate(ctx context.Context, userID, assessmentID uint) (*GenerateResult, error) {
	assessment, err := s.loadAssessment(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.Roadmaps.FindByUserAndAssessment(ctx, userID, assessmentID)
	switch {
	case err == nil:
		if existing.Status != model.RoadmapFailed {
			return existingResult(existing), nil
		}
		// 未删除说明另一个请求已重建，交给 CreateIfAbsent 返回现有记录
		if _, err := s.Roadmaps.DeleteFailed(ctx, existing.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	return s.createAndEnqueue(ctx, assessment)
}

// Regenerate 删除已有记录后重新入队；旧任务完成时因 jobId 不匹配而不会写入
func (s *RoadmapService) Regenerate(ctx context.Context, userID, assessmentID uint) (*GenerateResult, error) {
	assessment, err := s.loadAssessment(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.Roadmaps.DeleteByUserAndAssessment(ctx, userID, assessmentID); err != nil {
		return nil, err
	}
	return s.createAndEnqueue(ctx, assessment)
}

func (s *RoadmapService) loadAssessment(ctx context.Context, userID, assessmentID uint) (*model.Assessment, error) {
	a, err := s.Assessments.FindByIDForUser(ctx, assessmentID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	return a, err
}

func existingResult(rm *model.Roadmap) *GenerateResult {
	msg := "Roadmap already exists"
	if rm.Status == model.RoadmapGenerating {
		msg = "Roadmap generation already in progress"
	}
	return &GenerateResult{Roadmap: rm, JobID: rm.JobID, Message: msg}
}

// createAndEnqueue jobId 在插入前生成并随记录落库，worker 永远不会看到没有 jobId 的记录
func (s *RoadmapService) createAndEnqueue(ctx context.Context, assessment *model.Assessment) (*GenerateResult, error) {
	jobID := queue.NewJobID()
	rm := &model.Roadmap{
		UserID:       assessment.UserID,
		AssessmentID: assessment.ID,
		JobID:        jobID,
		Status:       model.RoadmapGenerating,
		Progress:     datatypes.NewJSONType(model.RoadmapProgress{CompletedTasks: []model.TaskRef{}}),
	}
	created, err := s.Roadmaps.CreateIfAbsent(ctx, rm)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := s.Roadmaps.FindByUserAndAssessment(ctx, assessment.UserID, assessment.ID)
		if err != nil {
			return nil, err
		}
		return existingResult(existing), nil
	}

	payload := model.RoadmapJobPayload{
		UserID:         assessment.UserID,
		AssessmentID:   assessment.ID,
		AssessmentData: assessment.Snapshot(),
	}
	if err := s.Queue.EnqueueWithID(ctx, jobID, payload); err != nil {
		// 回滚刚创建的记录，客户端可直接重试
		if delErr := s.Roadmaps.DeleteByJobID(context.Background(), rm.ID, jobID); delErr != nil {
			logger.Log.Error("Rollback roadmap after enqueue failure failed",
				zap.Uint("roadmapId", rm.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("%w: %v", util.ErrQueueUnavailable, err)
	}

	logger.Log.Info("Roadmap generation enqueued",
		zap.Uint("userId", assessment.UserID),
		zap.Uint("assessmentId", assessment.ID),
		zap.String("jobId", jobID))
	return &GenerateResult{Roadmap: rm, JobID: jobID, Enqueued: true, Message: "Roadmap generation started"}, nil
}

func (s *RoadmapService) Get(ctx context.Context, userID, assessmentID uint) (*model.Roadmap, error) {
	rm, err := s.Roadmaps.FindByUserAndAssessment(ctx, userID, assessmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrRoadmapNotFound
	}
	return rm, err
}

// JobStatus 只允许任务发起人查询，其它用户与过期任务一样返回 not found
func (s *RoadmapService) JobStatus(ctx context.Context, userID uint, jobID string) (*queue.Job, error) {
	job, err := s.Queue.GetJob(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return nil, util.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var payload model.RoadmapJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.UserID != userID {
		return nil, util.ErrJobNotFound
	}
	return job, nil
}

// UpdateProgress 整体覆盖进度；内容可解析时裁剪越界的索引
func (s *RoadmapService) UpdateProgress(ctx context.Context, userID uint, req ProgressRequest) (*model.Roadmap, error) {
	if req.CurrentPhase < 0 {
		return nil, fmt.Errorf("%w: currentPhase must not be negative", util.ErrInvalidProgress)
	}
	for _, t := range req.CompletedTasks {
		if t.PhaseIndex < 0 || t.TaskIndex < 0 {
			return nil, fmt.Errorf("%w: task indices must not be negative", util.ErrInvalidProgress)
		}
	}

	rm, err := s.Get(ctx, userID, req.AssessmentID)
	if err != nil {
		return nil, err
	}
	if rm.Status != model.RoadmapCompleted {
		return nil, util.ErrRoadmapNotReady
	}

	progress := model.RoadmapProgress{
		CurrentPhase:   req.CurrentPhase,
		CompletedTasks: req.CompletedTasks,
		IsCompleted:    req.IsCompleted,
	}
	if progress.CompletedTasks == nil {
		progress.CompletedTasks = []model.TaskRef{}
	}
	if plan, ok := rm.Plan().TryParse(); ok {
		progress = progress.Sanitize(plan)
	}

	if err := s.Roadmaps.UpdateProgress(ctx, rm.ID, progress); err != nil {
		return nil, err
	}
	rm.Progress = datatypes.NewJSONType(progress)
	return rm, nil
}

// CompleteGeneration worker 写入生成结果，返回 false 表示记录已被新任务取代
func (s *RoadmapService) CompleteGeneration(ctx context.Context, p model.RoadmapJobPayload, jobID, advice, content string) (bool, error) {
	return s.Roadmaps.MarkCompleted(ctx, p.UserID, p.AssessmentID, jobID, advice, content)
}

func (s *RoadmapService) FailGeneration(ctx context.Context, p model.RoadmapJobPayload, jobID string) (bool, error) {
	return s.Roadmaps.MarkFailed(ctx, p.UserID, p.AssessmentID, jobID)
}
