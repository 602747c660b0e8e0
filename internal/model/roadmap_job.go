package model

// RoadmapJobPayload 入队的任务数据，携带评估快照
type RoadmapJobPayload struct {
	UserID         uint           `json:"userId"`
	AssessmentID   uint           `json:"assessmentId"`
	AssessmentData AssessmentData `json:"assessmentData"`
}
