package model

import (
	"strings"

	"gorm.io/gorm"
)

type ResourceType string

const (
	ResourceVideo         ResourceType = "video"
	ResourcePlaylist      ResourceType = "playlist"
	ResourceDocumentation ResourceType = "documentation"
	ResourceCourse        ResourceType = "course"
	ResourceArticle       ResourceType = "article"
	ResourceGithub        ResourceType = "github"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceVideo, ResourcePlaylist, ResourceDocumentation, ResourceCourse, ResourceArticle, ResourceGithub:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// ResourceSource 资源来源：人工整理 / AI 生成 / 外部视频平台实时检索
type ResourceSource string

const (
	SourceCurated     ResourceSource = "curated"
	SourceAIGenerated ResourceSource = "ai_generated"
	SourceExternal    ResourceSource = "external"
)

const DefaultRating = 4

// Resource represents a learning resource shared by all users.
// url 是逻辑唯一键，skills 存在 resource_skills 表中便于按技能检索
// swagger:model Resource
type Resource struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id,omitempty"`
	Title       string          `gorm:"size:255;not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	URL         string          `gorm:"size:512;not null;uniqueIndex" json:"url"`
	Type        ResourceType    `gorm:"size:20;not null;index" json:"type"`
	Difficulty  Difficulty      `gorm:"size:20;default:'beginner'" json:"difficulty"`
	Duration    string          `gorm:"size:100" json:"duration"`
	Thumbnail   string          `gorm:"size:512" json:"thumbnail"`
	Author      string          `gorm:"size:255" json:"author"`
	Rating      float64         `gorm:"default:4" json:"rating"`
	Source      ResourceSource  `gorm:"size:20;default:'curated'" json:"source"`
	SkillRows   []ResourceSkill `gorm:"foreignKey:ResourceID;constraint:OnDelete:CASCADE" json:"-"`
	Skills      []string        `gorm:"-" json:"skills"`
	Timestamps
}

func (Resource) TableName() string {
	return "resources"
}

// AfterFind 预加载 SkillRows 后回填 Skills
func (r *Resource) AfterFind(tx *gorm.DB) error {
	r.Skills = make([]string, 0, len(r.SkillRows))
	for _, s := range r.SkillRows {
		r.Skills = append(r.Skills, s.Skill)
	}
	return nil
}

// Normalize 统一各来源资源的字段：技能小写去重、评分归一、缺省难度
func (r *Resource) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.URL = strings.TrimSpace(r.URL)
	r.Skills = NormalizeSkills(r.Skills)
	if !r.Difficulty.Valid() {
		r.Difficulty = DifficultyBeginner
	}
	if r.Rating < 0 {
		r.Rating = 0
	}
	if r.Rating > 5 {
		r.Rating = 5
	}
	if r.Source == "" {
		r.Source = SourceCurated
	}
}

// SemanticText 用于生成向量的文本
func (r *Resource) SemanticText() string {
	return r.Title + ". " + r.Description + ". Skills: " + strings.Join(r.Skills, ", ")
}

type ResourceSkill struct {
	ResourceID uint   `gorm:"primaryKey;autoIncrement:false"`
	Skill      string `gorm:"primaryKey;size:100;index"`
	Position   int    `gorm:"not null;default:0"`
}

func (ResourceSkill) TableName() string {
	return "resource_skills"
}

func NormalizeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
