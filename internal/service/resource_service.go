package service

import (
	"careermap_backend/internal/config"
	"careermap_backend/internal/model"
	"careermap_backend/internal/repository"
	"careermap_backend/internal/util"
	"careermap_backend/pkg/logger"
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	semanticTopK       = 10
	keywordLimit       = 20
	byTypeLimit        = 20
	maxExternalSkills  = 3
	externalPlaylists  = 2
	externalVideos     = 1
	externalQueryVideo = 2
)

type ResourceSettings struct {
	ExternalThreshold int
	SkillLimit        int
	SemanticLimit     int
}

type SearchRequest struct {
	Skills []string
	Query  string
}

type SourceCounts struct {
	Semantic int `json:"semantic"`
	Database int `json:"database"`
	External int `json:"external"`
}

type SearchResult struct {
	Resources  []model.Resource `json:"resources"`
	Count      int              `json:"count"`
	IsSemantic bool             `json:"isSemantic"`
	Sources    SourceCounts     `json:"source"`
}

type ResourceService struct {
	repo     *repository.ResourceRepository
	semantic *SemanticIndexService
	external VideoSearcher

	mu       sync.RWMutex
	settings ResourceSettings
}

func NewResourceService(repo *repository.ResourceRepository, semantic *SemanticIndexService, external VideoSearcher, cfg config.ResourceConfig) *ResourceService {
	s := &ResourceService{repo: repo, semantic: semantic, external: external}
	s.UpdateSettings(cfg)
	return s
}

// UpdateSettings 配置热更新回调
func (s *ResourceService) UpdateSettings(cfg config.ResourceConfig) {
	next := ResourceSettings{
		ExternalThreshold: cfg.ExternalThreshold,
		SkillLimit:        cfg.SkillLimit,
		SemanticLimit:     cfg.SemanticLimit,
	}
	if next.ExternalThreshold <= 0 {
		next.ExternalThreshold = 5
	}
	if next.SkillLimit <= 0 {
		next.SkillLimit = 10
	}
	if next.SemanticLimit <= 0 {
		next.SemanticLimit = 15
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
}

func (s *ResourceService) Settings() ResourceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// tagged 记录每条结果的来源，用于最终计数
type tagged struct {
	res    model.Resource
	source string
}

// Search 语义检索 -> 技能关键词 -> 外部视频平台，逐级补足到阈值
func (s *ResourceService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	settings := s.Settings()
	query := strings.TrimSpace(req.Query)
	skills := model.NormalizeSkills(req.Skills)

	result := &SearchResult{Resources: []model.Resource{}}
	if query == "" && len(skills) == 0 {
		return result, nil
	}

	var found []tagged
	seenIDs := []uint{}

	if query != "" && s.semantic.Enabled() {
		ids, err := s.semantic.Search(ctx, query, semanticTopK)
		if err != nil {
			logger.Log.Warn("Semantic search failed, falling back to keyword search", zap.Error(err))
		} else if len(ids) > 0 {
			hits, err := s.repo.FindByIDs(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("load semantic hits: %w", err)
			}
			for _, r := range hits {
				found = append(found, tagged{res: r, source: "semantic"})
				seenIDs = append(seenIDs, r.ID)
			}
			result.IsSemantic = len(hits) > 0
		}
	}

	if len(found) < settings.ExternalThreshold && len(skills) > 0 {
		rows, err := s.repo.FindBySkills(ctx, skills, seenIDs, keywordLimit)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		for _, r := range rows {
			found = append(found, tagged{res: r, source: "database"})
		}
	}

	if len(found) < settings.ExternalThreshold && s.external != nil {
		for _, r := range s.searchExternal(ctx, query, skills) {
			found = append(found, tagged{res: r, source: "external"})
		}
	}

	limit := settings.SkillLimit
	if query != "" {
		limit = settings.SemanticLimit
	}

	seenURL := make(map[string]bool, len(found))
	for _, t := range found {
		if len(result.Resources) >= limit {
			break
		}
		if t.res.URL == "" || seenURL[t.res.URL] {
			continue
		}
		seenURL[t.res.URL] = true
		result.Resources = append(result.Resources, t.res)
		switch t.source {
		case "semantic":
			result.Sources.Semantic++
		case "database":
			result.Sources.Database++
		default:
			result.Sources.External++
		}
	}
	result.Count = len(result.Resources)
	return result, nil
}

// searchExternal 每个检索词并发请求，结果按检索词顺序拼接
func (s *ResourceService) searchExternal(ctx context.Context, query string, skills []string) []model.Resource {
	terms := []string{query}
	if query == "" {
		terms = skills
		if len(terms) > maxExternalSkills {
			terms = terms[:maxExternalSkills]
		}
	}

	perTerm := make([][]model.Resource, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	for i, term := range terms {
		i, term := i, term
		g.Go(func() error {
			videos := externalVideos
			if query != "" {
				videos = externalQueryVideo
			}
			items := s.external.SearchPlaylists(gctx, term, externalPlaylists)
			perTerm[i] = append(items, s.external.SearchVideos(gctx, term, videos)...)
			return nil
		})
	}
	_ = g.Wait()

	var out []model.Resource
	for _, items := range perTerm {
		out = append(out, items...)
	}
	return out
}

// ByType 按类型和/或技能列出已收录的资源
func (s *ResourceService) ByType(ctx context.Context, resourceType string, skills []string) (*SearchResult, error) {
	rt := model.ResourceType(strings.ToLower(strings.TrimSpace(resourceType)))
	if rt != "" && !rt.Valid() {
		return nil, fmt.Errorf("%w: unknown resource type %q", util.ErrInvalidResourceType, resourceType)
	}
	rows, err := s.repo.ListByType(ctx, rt, skills, byTypeLimit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.Resource{}
	}
	return &SearchResult{
		Resources: rows,
		Count:     len(rows),
		Sources:   SourceCounts{Database: len(rows)},
	}, nil
}

// UpsertGenerated 按 url 插入不存在的资源，已有记录保持不变；新插入的尽力写入向量索引
func (s *ResourceService) UpsertGenerated(ctx context.Context, resources []model.Resource) (int, error) {
	inserted := make([]model.Resource, 0, len(resources))
	for i := range resources {
		res := resources[i]
		ok, err := s.repo.InsertIfAbsent(ctx, &res)
		if err != nil {
			return len(inserted), fmt.Errorf("insert resource %q: %w", res.URL, err)
		}
		if ok {
			inserted = append(inserted, res)
		}
	}
	if len(inserted) > 0 && s.semantic.Enabled() {
		if err := s.semantic.Index(ctx, inserted); err != nil {
			logger.Log.Warn("Index generated resources failed", zap.Int("count", len(inserted)), zap.Error(err))
		}
	}
	return len(inserted), nil
}
