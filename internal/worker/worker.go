// Package worker 消费路线图生成队列
package worker

import (
	"careermap_backend/internal/model"
	"careermap_backend/internal/service"
	"careermap_backend/pkg/logger"
	"careermap_backend/pkg/monitoring"
	"careermap_backend/pkg/queue"
	"careermap_backend/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	outcomeCompleted  = "completed"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
)

type Options struct {
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	StallInterval     time.Duration
}

type Pool struct {
	queue     *queue.Queue
	roadmaps  *service.RoadmapService
	ai        *service.AIService
	resources *service.ResourceService
	opts      Options

	wg sync.WaitGroup
}

func NewPool(q *queue.Queue, roadmaps *service.RoadmapService, ai *service.AIService, resources *service.ResourceService, opts Options) *Pool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 2
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}
	if opts.StallInterval <= 0 {
		opts.StallInterval = 30 * time.Second
	}
	return &Pool{queue: q, roadmaps: roadmaps, ai: ai, resources: resources, opts: opts}
}

// Start 启动消费协程，ctx 取消后停止取新任务，正在执行的任务继续完成
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.opts.Concurrency; i++ {
		p.wg.Add(1)
		go func(n int) {
			defer p.wg.Done()
			p.consume(ctx, n)
		}(i)
	}

	if p.queue.SupportsStallRecovery() {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.recoverStalled(ctx)
		}()
	}

	logger.Log.Info("Roadmap worker started",
		zap.String("queue", p.queue.Name()),
		zap.Int("concurrency", p.opts.Concurrency))
}

// Wait 等待所有协程退出
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) consume(ctx context.Context, n int) {
	for ctx.Err() == nil {
		d, err := p.queue.Dequeue(ctx)
		if errors.Is(err, queue.ErrNoMessage) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("Dequeue failed", zap.Int("worker", n), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.Process(context.WithoutCancel(ctx), d)
	}
}

func (p *Pool) recoverStalled(ctx context.Context) {
	ticker := time.NewTicker(p.opts.StallInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.RecoverStalled(ctx)
			if err != nil {
				logger.Log.Error("Stall recovery failed", zap.Error(err))
				continue
			}
			if n > 0 {
				monitoring.JobsRecovered.Add(float64(n))
				logger.Log.Warn("Requeued stalled roadmap jobs", zap.Int("count", n))
			}
		}
	}
}

// Process 执行一个任务并写回队列状态
func (p *Pool) Process(ctx context.Context, d *queue.Delivery) {
	started := time.Now()
	monitoring.JobsInFlight.Inc()
	defer monitoring.JobsInFlight.Dec()

	ctx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()
	ctx, span := tracing.StartJobSpan(ctx, d.Job.ID)

	stop := p.heartbeat(ctx, d.Job.ID)
	outcome, err := p.run(ctx, d)
	stop()
	tracing.EndSpan(span, err)

	// 任务状态必须写回，不受任务超时影响
	finishCtx := context.WithoutCancel(ctx)
	if outcome == outcomeFailed {
		if ferr := p.queue.Fail(finishCtx, d, err); ferr != nil {
			logger.Log.Error("Mark job failed error", zap.String("jobId", d.Job.ID), zap.Error(ferr))
		}
		logger.Log.Error("Roadmap job failed",
			zap.String("jobId", d.Job.ID),
			zap.Int("attempts", d.Job.Attempts),
			zap.Error(err))
	} else {
		if cerr := p.queue.Complete(finishCtx, d); cerr != nil {
			logger.Log.Error("Mark job completed error", zap.String("jobId", d.Job.ID), zap.Error(cerr))
		}
		logger.Log.Info("Roadmap job finished",
			zap.String("jobId", d.Job.ID),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", time.Since(started)))
	}
	monitoring.ObserveJob(outcome, started)
}

func (p *Pool) run(ctx context.Context, d *queue.Delivery) (outcome string, err error) {
	jobID := d.Job.ID
	var payload model.RoadmapJobPayload
	if err := d.Decode(&payload); err != nil {
		return p.failUndecodable(ctx, d, err)
	}

	persisted := false
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Roadmap job panicked",
				zap.String("jobId", jobID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			if persisted {
				outcome, err = outcomeCompleted, nil
				return
			}
			outcome, err = p.fail(ctx, payload, jobID, fmt.Errorf("panic: %v", r))
		}
	}()

	p.progress(ctx, jobID, 10)
	advice, err := p.ai.GenerateAdvice(ctx, payload.AssessmentData)
	if err != nil {
		return p.fail(ctx, payload, jobID, err)
	}

	p.progress(ctx, jobID, 50)
	content, err := p.ai.GenerateRoadmap(ctx, payload.AssessmentData)
	if err != nil {
		return p.fail(ctx, payload, jobID, err)
	}

	p.progress(ctx, jobID, 80)
	ok, err := p.roadmaps.CompleteGeneration(ctx, payload, jobID, advice, content)
	if err != nil {
		return p.fail(ctx, payload, jobID, fmt.Errorf("persist roadmap: %w", err))
	}
	if !ok {
		// 记录已被删除或被新任务取代
		logger.Log.Warn("Roadmap superseded, result discarded",
			zap.String("jobId", jobID),
			zap.Uint("userId", payload.UserID),
			zap.Uint("assessmentId", payload.AssessmentID))
		return outcomeSuperseded, nil
	}
	persisted = true

	skills := model.ExtractSkills(payload.AssessmentData.Skills, content)
	p.progress(ctx, jobID, 90)
	p.augment(ctx, jobID, skills)
	return outcomeCompleted, nil
}

func (p *Pool) fail(ctx context.Context, payload model.RoadmapJobPayload, jobID string, cause error) (string, error) {
	if _, err := p.roadmaps.FailGeneration(context.WithoutCancel(ctx), payload, jobID); err != nil {
		logger.Log.Error("Mark roadmap failed error", zap.String("jobId", jobID), zap.Error(err))
	}
	return outcomeFailed, cause
}

// failUndecodable 负载无法完整解析时，尽量取出 userId/assessmentId 把路线图标记为失败
func (p *Pool) failUndecodable(ctx context.Context, d *queue.Delivery, cause error) (string, error) {
	raw := gjson.ParseBytes(d.Job.Payload)
	payload := model.RoadmapJobPayload{
		UserID:       uint(raw.Get("userId").Uint()),
		AssessmentID: uint(raw.Get("assessmentId").Uint()),
	}
	logger.Log.Error("Undecodable roadmap job payload",
		zap.String("jobId", d.Job.ID),
		zap.ByteString("payload", d.Job.Payload),
		zap.Error(cause))

	cause = fmt.Errorf("decode payload: %w", cause)
	if payload.UserID == 0 || payload.AssessmentID == 0 {
		return outcomeFailed, cause
	}
	return p.fail(ctx, payload, d.Job.ID, cause)
}

// augment 为路线图涉及的技能补充学习资源，失败只记录日志
func (p *Pool) augment(ctx context.Context, jobID string, skills []string) {
	if len(skills) == 0 {
		return
	}
	resources, err := p.ai.GenerateResourcesForSkills(ctx, skills)
	if err != nil {
		logger.Log.Warn("Resource augmentation skipped", zap.String("jobId", jobID), zap.Error(err))
		return
	}
	n, err := p.resources.UpsertGenerated(ctx, resources)
	if err != nil {
		logger.Log.Warn("Resource augmentation partially failed",
			zap.String("jobId", jobID), zap.Int("inserted", n), zap.Error(err))
		return
	}
	logger.Log.Info("Resources augmented",
		zap.String("jobId", jobID),
		zap.Int("skills", len(skills)),
		zap.Int("generated", len(resources)),
		zap.Int("inserted", n))
}

func (p *Pool) progress(ctx context.Context, jobID string, pct int) {
	if err := p.queue.UpdateProgress(ctx, jobID, pct); err != nil {
		logger.Log.Warn("Update job progress failed",
			zap.String("jobId", jobID), zap.Int("progress", pct), zap.Error(err))
	}
}

// heartbeat 定期刷新心跳，返回的函数停止刷新并等待协程退出
func (p *Pool) heartbeat(ctx context.Context, jobID string) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.Heartbeat(ctx, jobID); err != nil {
					logger.Log.Debug("Heartbeat failed", zap.String("jobId", jobID), zap.Error(err))
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
