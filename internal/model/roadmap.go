package model

import (
	"gorm.io/datatypes"
)

type RoadmapStatus string

const (
	RoadmapGenerating RoadmapStatus = "generating"
	RoadmapCompleted  RoadmapStatus = "completed"
	RoadmapFailed     RoadmapStatus = "failed"
)

// Roadmap 每个 (user, assessment) 至多一条，重新生成时物理删除后重建
// swagger:model Roadmap
type Roadmap struct {
	ID             uint                                `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint                                `gorm:"not null;uniqueIndex:idx_roadmap_user_assessment" json:"userId"`
	AssessmentID   uint                                `gorm:"not null;uniqueIndex:idx_roadmap_user_assessment" json:"assessmentId"`
	JobID          string                              `gorm:"size:64;index" json:"jobId"`
	Status         RoadmapStatus                       `gorm:"size:20;not null;default:'generating';index" json:"status"`
	CareerAdvice   string                              `gorm:"type:longtext" json:"careerAdvice"`
	RoadmapContent string                              `gorm:"type:longtext" json:"roadmapContent"`
	Progress       datatypes.JSONType[RoadmapProgress] `gorm:"type:json" json:"progress"`
	Timestamps
}

func (Roadmap) TableName() string {
	return "roadmaps"
}

type TaskRef struct {
	PhaseIndex int  `json:"phaseIndex"`
	TaskIndex  int  `json:"taskIndex"`
	Completed  bool `json:"completed"`
}

type RoadmapProgress struct {
	CurrentPhase   int       `json:"currentPhase"`
	CompletedTasks []TaskRef `json:"completedTasks"`
	IsCompleted    bool      `json:"isCompleted"`
}

func (r *Roadmap) Advice() GeneratedContent[CareerAdvice] {
	return GeneratedContent[CareerAdvice](r.CareerAdvice)
}

func (r *Roadmap) Plan() GeneratedContent[RoadmapPlan] {
	return GeneratedContent[RoadmapPlan](r.RoadmapContent)
}

// Sanitize 按已解析的路线图内容裁剪进度：越界任务丢弃，currentPhase 夹到合法区间
func (p RoadmapProgress) Sanitize(plan RoadmapPlan) RoadmapProgress {
	out := RoadmapProgress{IsCompleted: p.IsCompleted, CompletedTasks: []TaskRef{}}
	phases := len(plan.Phases)
	out.CurrentPhase = p.CurrentPhase
	if phases == 0 {
		out.CurrentPhase = 0
	} else if out.CurrentPhase >= phases {
		out.CurrentPhase = phases - 1
	}
	seen := make(map[[2]int]bool)
	for _, t := range p.CompletedTasks {
		if !plan.hasTask(t.PhaseIndex, t.TaskIndex) {
			continue
		}
		key := [2]int{t.PhaseIndex, t.TaskIndex}
		if seen[key] {
			continue
		}
		seen[key] = true
		out.CompletedTasks = append(out.CompletedTasks, t)
	}
	return out
}

// CompletionPercent 完成百分比，忽略越界的旧索引
func (r *Roadmap) CompletionPercent() int {
	plan, ok := r.Plan().TryParse()
	if !ok {
		return 0
	}
	total := plan.TaskCount()
	if total == 0 {
		return 0
	}
	done := 0
	seen := make(map[[2]int]bool)
	for _, t := range r.Progress.Data().CompletedTasks {
		key := [2]int{t.PhaseIndex, t.TaskIndex}
		if !t.Completed || seen[key] || !plan.hasTask(t.PhaseIndex, t.TaskIndex) {
			continue
		}
		seen[key] = true
		done++
	}
	return done * 100 / total
}

// RoadmapView 接口返回结构，内容可解析时附带结构化视图
type RoadmapView struct {
	*Roadmap
	Advice            *CareerAdvice `json:"advice"`
	Plan              *RoadmapPlan  `json:"roadmap"`
	CompletionPercent int           `json:"completionPercent"`
}

func (r *Roadmap) View() RoadmapView {
	v := RoadmapView{Roadmap: r, CompletionPercent: r.CompletionPercent()}
	if advice, ok := r.Advice().TryParse(); ok {
		v.Advice = &advice
	}
	if plan, ok := r.Plan().TryParse(); ok {
		v.Plan = &plan
	}
	return v
}
