package model

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// GeneratedContent 模型生成的文本，不保证是合法 JSON；旧数据可能是纯文本
type GeneratedContent[T any] string

func (g GeneratedContent[T]) Raw() string {
	return string(g)
}

func (g GeneratedContent[T]) TryParse() (T, bool) {
	var v T
	raw := strings.TrimSpace(string(g))
	if raw == "" || !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false
	}
	return v, true
}

type CareerAdvice struct {
	GapAnalysis       string   `json:"gapAnalysis"`
	RecommendedSkills []string `json:"recommendedSkills"`
	EstimatedTimeline string   `json:"estimatedTimeline"`
	MotivationalTip   string   `json:"motivationalTip"`
}

type RoadmapPhase struct {
	PhaseTitle    string   `json:"phaseTitle"`
	Skills        []string `json:"skills"`
	Project       string   `json:"project"`
	TimeBreakdown string   `json:"timeBreakdown"`
}

type RoadmapPlan struct {
	Phases []RoadmapPhase `json:"phases"`
}

func (p RoadmapPlan) TaskCount() int {
	n := 0
	for _, ph := range p.Phases {
		n += len(ph.Skills)
	}
	return n
}

func (p RoadmapPlan) hasTask(phase, task int) bool {
	if phase < 0 || phase >= len(p.Phases) {
		return false
	}
	return task >= 0 && task < len(p.Phases[phase].Skills)
}

// ExtractSkills 合并评估技能与路线图各阶段技能：去空白、保留原大小写、忽略大小写去重、先出现者优先。
// 路线图内容无法解析时只返回评估技能
func ExtractSkills(assessmentSkills []string, roadmapContent string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(assessmentSkills))
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, s := range assessmentSkills {
		add(s)
	}

	raw := strings.TrimSpace(roadmapContent)
	if raw == "" || !gjson.Valid(raw) {
		return out
	}
	gjson.Get(raw, "phases").ForEach(func(_, phase gjson.Result) bool {
		phase.Get("skills").ForEach(func(_, skill gjson.Result) bool {
			if skill.Type == gjson.String {
				add(skill.String())
			}
			return true
		})
		return true
	})
	return out
}
