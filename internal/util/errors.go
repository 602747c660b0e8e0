package util

import "errors"

var (
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrRoadmapNotFound     = errors.New("roadmap not found")
	ErrRoadmapNotReady     = errors.New("roadmap is not completed yet")
	ErrInvalidProgress     = errors.New("invalid progress")
	ErrQueueUnavailable    = errors.New("job queue unavailable")
	ErrJobNotFound         = errors.New("job not found")
	ErrInvalidAssessment   = errors.New("invalid assessment")
	ErrInvalidResourceType = errors.New("invalid resource type")

	// ErrGenerationFailed 上游文本生成失败，包装原始错误
	ErrGenerationFailed = errors.New("text generation failed")
)
