package service

import (
	"careermap_backend/internal/model"
	"careermap_backend/internal/util"
	"careermap_backend/pkg/llm"
	"careermap_backend/pkg/logger"
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type AIService struct {
	client llm.Client
}

func NewAIService(client llm.Client) *AIService {
	return &AIService{client: client}
}

const (
	maxResourceSkills   = 10
	defaultWeeklyBudget = 10.0
)

// GenerateAdvice 返回职业建议文本，通常是 JSON，但不保证
func (s *AIService) GenerateAdvice(ctx context.Context, data model.AssessmentData) (string, error) {
	out, err := s.client.Complete(ctx, llm.Request{
		Prompt:      BuildAdvicePrompt(data),
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("%w: career advice: %v", util.ErrGenerationFailed, err)
	}
	return StripCodeFences(out), nil
}

func (s *AIService) GenerateRoadmap(ctx context.Context, data model.AssessmentData) (string, error) {
	out, err := s.client.Complete(ctx, llm.Request{
		Prompt:      BuildRoadmapPrompt(data),
		Temperature: 0.5,
		MaxTokens:   2000,
	})
	if err != nil {
		return "", fmt.Errorf("%w: roadmap: %v", util.ErrGenerationFailed, err)
	}
	return StripCodeFences(out), nil
}

// GenerateResourcesForSkills 让模型推荐学习资源，输出逐条校验，不合格的条目丢弃
func (s *AIService) GenerateResourcesForSkills(ctx context.Context, skills []string) ([]model.Resource, error) {
	if len(skills) == 0 {
		return []model.Resource{}, nil
	}
	if len(skills) > maxResourceSkills {
		skills = skills[:maxResourceSkills]
	}
	out, err := s.client.Complete(ctx, llm.Request{
		Prompt:      BuildResourcePrompt(skills),
		Temperature: 0.4,
		MaxTokens:   2500,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: resources: %v", util.ErrGenerationFailed, err)
	}
	resources := ParseGeneratedResources(StripCodeFences(out))
	logger.Log.Debug("Generated resources parsed",
		zap.Int("skills", len(skills)),
		zap.Int("resources", len(resources)))
	return resources, nil
}

func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func BuildAdvicePrompt(d model.AssessmentData) string {
	var b strings.Builder
	b.WriteString("You are a career advisor AI. Based on the following user information, provide personalized career advice in strictly valid JSON format.\n")
	fmt.Fprintf(&b, "Current Role: %s\n", orDefault(d.CurrentRole, "Not specified"))
	fmt.Fprintf(&b, "Years of Experience: %d\n", d.YearsOfExperience)
	fmt.Fprintf(&b, "Target Role: %s\n", orDefault(d.TargetRole, "Not specified"))
	fmt.Fprintf(&b, "Current Skills: %s\n", strings.Join(d.Skills, ", "))
	fmt.Fprintf(&b, "Interests: %s\n", strings.Join(d.Interests, ", "))
	fmt.Fprintf(&b, "Education: %s\n", orDefault(d.EducationLevel, "Not specified"))
	fmt.Fprintf(&b, "Learning Style: %s\n", orDefault(string(d.PreferredLearningStyle), "Not specified"))
	fmt.Fprintf(&b, "Time Commitment: %s\n\n", orDefault(d.TimeCommitment, "Not specified"))
	b.WriteString(`Output JSON structure:
{
  "gapAnalysis": "A brief analysis of skill gaps",
  "recommendedSkills": ["Skill 1", "Skill 2", "Skill 3"],
  "estimatedTimeline": "Estimated time to reach the target role",
  "motivationalTip": "One specific motivational tip"
}

Keep the content concise, actionable and supportive. Return only the raw JSON without markdown fences.`)
	return b.String()
}

func BuildRoadmapPrompt(d model.AssessmentData) string {
	weekly, daily := TimeBudget(d.TimeCommitment)

	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed learning roadmap for someone transitioning from %s to %s.\n",
		orDefault(d.CurrentRole, "an unspecified role"), orDefault(d.TargetRole, "an unspecified role"))
	fmt.Fprintf(&b, "Current Skills: %s\n", strings.Join(d.Skills, ", "))
	fmt.Fprintf(&b, "Available Time: %s (%s)\n", orDefault(d.TimeCommitment, formatHours(weekly)+"/week"), formatHours(weekly)+"/week")
	fmt.Fprintf(&b, "Daily Budget: %s\n", daily)
	fmt.Fprintf(&b, "Learning Style: %s\n\n", orDefault(string(d.PreferredLearningStyle), "visual"))
	b.WriteString(`Output strictly valid JSON with this structure and exactly 4 phases:
{
  "phases": [
    {
      "phaseTitle": "Phase 1: Foundation (Months 1-3)",
      "skills": ["Skill 1", "Skill 2", "Skill 3"],
      "project": "Description of a project for this phase",
      "timeBreakdown": "Weekly: X hours. Daily: Y hours."
    }
  ]
}

Constraints:
`)
	fmt.Fprintf(&b, "1. The learner has %s per week, which is %s. Use exactly this daily figure in every timeBreakdown.\n", formatHours(weekly), daily)
	fmt.Fprintf(&b, "2. Never schedule more than %s.\n", daily)
	b.WriteString("3. Be realistic and supportive.\n4. Return only the raw JSON without markdown fences.")
	return b.String()
}

func BuildResourcePrompt(skills []string) string {
	return fmt.Sprintf(`Recommend high quality, free learning resources for each of these skills: %s.
Return a JSON array. Each element must have:
{"title": "...", "description": "one sentence", "url": "https://...", "type": "video|playlist|documentation|course|article|github", "difficulty": "beginner|intermediate|advanced", "duration": "...", "author": "...", "skills": ["skill"]}
Only include resources with real, stable URLs. Return 2 to 3 resources per skill and only the raw JSON array.`,
		strings.Join(skills, ", "))
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// TimeBudget 从自由文本中解析每周学习时长，返回每周小时数与每日预算描述。
// "14 hours/week" -> (14, "2 hours/day")；含 day/daily 时视为每日时长
func TimeBudget(commitment string) (float64, string) {
	weekly := defaultWeeklyBudget
	lower := strings.ToLower(commitment)
	if m := numberPattern.FindString(lower); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil && v > 0 {
			weekly = v
			if strings.Contains(lower, "day") || strings.Contains(lower, "daily") {
				weekly = v * 7
			}
			if strings.Contains(lower, "min") {
				weekly = weekly / 60
			}
		}
	}
	return weekly, formatHours(weekly/7) + "/day"
}

func formatHours(h float64) string {
	if h < 1 {
		return fmt.Sprintf("%d minutes", int(math.Round(h*60)))
	}
	rounded := math.Round(h*10) / 10
	if rounded == 1 {
		return "1 hour"
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " hours"
}

// ParseGeneratedResources 容忍顶层数组或 {"resources": [...]} 两种结构
func ParseGeneratedResources(raw string) []model.Resource {
	out := []model.Resource{}
	if !gjson.Valid(raw) {
		return out
	}
	root := gjson.Parse(raw)
	if root.IsObject() {
		root = root.Get("resources")
	}
	if !root.IsArray() {
		return out
	}
	seen := make(map[string]bool)
	root.ForEach(func(_, item gjson.Result) bool {
		title := strings.TrimSpace(item.Get("title").String())
		url := strings.TrimSpace(item.Get("url").String())
		rtype := model.ResourceType(strings.ToLower(strings.TrimSpace(item.Get("type").String())))
		if title == "" || !strings.HasPrefix(url, "http") || !rtype.Valid() || seen[url] {
			return true
		}
		seen[url] = true

		var skills []string
		item.Get("skills").ForEach(func(_, s gjson.Result) bool {
			if s.Type == gjson.String {
				skills = append(skills, s.String())
			}
			return true
		})
		res := model.Resource{
			Title:       title,
			Description: item.Get("description").String(),
			URL:         url,
			Type:        rtype,
			Difficulty:  model.Difficulty(strings.ToLower(item.Get("difficulty").String())),
			Duration:    item.Get("duration").String(),
			Author:      item.Get("author").String(),
			Rating:      model.DefaultRating,
			Skills:      skills,
			Source:      model.SourceAIGenerated,
		}
		res.Normalize()
		out = append(out, res)
		return true
	})
	return out
}
