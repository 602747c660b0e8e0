package model

import (
	"strings"

	"gorm.io/datatypes"
)

type LearningStyle string

const (
	LearningStyleVisual      LearningStyle = "visual"
	LearningStyleAuditory    LearningStyle = "auditory"
	LearningStyleReading     LearningStyle = "reading"
	LearningStyleKinesthetic LearningStyle = "kinesthetic"
	LearningStyleMixed       LearningStyle = "mixed"
)

func (s LearningStyle) Valid() bool {
	switch s {
	case "", LearningStyleVisual, LearningStyleAuditory, LearningStyleReading, LearningStyleKinesthetic, LearningStyleMixed:
		return true
	}
	return false
}

// Assessment 用户提交的职业画像
// swagger:model Assessment
type Assessment struct {
	BaseModel
	UserID                 uint                        `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	CurrentRole            string                      `gorm:"size:255" json:"currentRole"`
	YearsOfExperience      int                         `gorm:"default:0" json:"yearsOfExperience"`
	TargetRole             string                      `gorm:"size:255" json:"targetRole"`
	Skills                 datatypes.JSONSlice[string] `gorm:"type:json" json:"skills"`
	Interests              datatypes.JSONSlice[string] `gorm:"type:json" json:"interests"`
	EducationLevel         string                      `gorm:"size:100" json:"educationLevel"`
	PreferredLearningStyle LearningStyle               `gorm:"size:20" json:"preferredLearningStyle"`
	TimeCommitment         string                      `gorm:"size:100" json:"timeCommitment"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// AssessmentData 入队时保存的评估快照，Worker 只读取快照而不回查数据库
type AssessmentData struct {
	CurrentRole            string        `json:"currentRole"`
	YearsOfExperience      int           `json:"yearsOfExperience"`
	TargetRole             string        `json:"targetRole"`
	Skills                 []string      `json:"skills"`
	Interests              []string      `json:"interests"`
	EducationLevel         string        `json:"educationLevel"`
	PreferredLearningStyle LearningStyle `json:"preferredLearningStyle"`
	TimeCommitment         string        `json:"timeCommitment"`
}

func (a *Assessment) Snapshot() AssessmentData {
	return AssessmentData{
		CurrentRole:            a.CurrentRole,
		YearsOfExperience:      a.YearsOfExperience,
		TargetRole:             a.TargetRole,
		Skills:                 cleanList(a.Skills),
		Interests:              cleanList(a.Interests),
		EducationLevel:         a.EducationLevel,
		PreferredLearningStyle: a.PreferredLearningStyle,
		TimeCommitment:         a.TimeCommitment,
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
