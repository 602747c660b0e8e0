package service

import (
	"careermap_backend/internal/model"
	"careermap_backend/internal/repository"
	"careermap_backend/pkg/llm"
	"careermap_backend/pkg/logger"
	"careermap_backend/pkg/vectorstore"
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VectorIndex 向量库的最小接口，便于测试替换
type VectorIndex interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, points []vectorstore.Point) error
	Search(ctx context.Context, vector []float32, limit int) ([]vectorstore.Match, error)
}

const rebuildBatchSize = 50

// SemanticIndexService 资源的向量索引，index 或 embedder 为空时整体禁用
type SemanticIndexService struct {
	index     VectorIndex
	embedder  llm.Embedder
	resources *repository.ResourceRepository
}

func NewSemanticIndexService(index VectorIndex, embedder llm.Embedder, resources *repository.ResourceRepository) *SemanticIndexService {
	return &SemanticIndexService{index: index, embedder: embedder, resources: resources}
}

func (s *SemanticIndexService) Enabled() bool {
	return s != nil && s.index != nil && s.embedder != nil
}

func (s *SemanticIndexService) Init(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.index.Init(ctx)
}

// Index 向量化并写入索引，point id 即资源 id，重复写入幂等
func (s *SemanticIndexService) Index(ctx context.Context, resources []model.Resource) error {
	if !s.Enabled() || len(resources) == 0 {
		return nil
	}
	// 启动时向量库不可用的话，在这里补建集合；已就绪时为空操作
	if err := s.index.Init(ctx); err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	texts := make([]string, len(resources))
	for i := range resources {
		texts[i] = resources[i].SemanticText()
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed resources: %w", err)
	}
	if len(vectors) != len(resources) {
		return fmt.Errorf("embed resources: got %d vectors for %d inputs", len(vectors), len(resources))
	}

	points := make([]vectorstore.Point, len(resources))
	for i, res := range resources {
		points[i] = vectorstore.Point{
			ID:     uint64(res.ID),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"title": res.Title,
				"type":  string(res.Type),
				"url":   res.URL,
				"text":  texts[i],
			},
		}
	}
	if err := s.index.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Search 返回按相似度排序的资源 id
func (s *SemanticIndexService) Search(ctx context.Context, query string, topK int) ([]uint, error) {
	if !s.Enabled() || query == "" {
		return nil, nil
	}
	if err := s.index.Init(ctx); err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	matches, err := s.index.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, uint(m.ID))
	}
	return ids, nil
}

// Rebuild 分批读取全部资源写入索引，返回写入条数
func (s *SemanticIndexService) Rebuild(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	if err := s.index.Init(ctx); err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)

	var afterID uint
	total := 0
	for {
		batch, err := s.resources.ListAfter(gctx, afterID, rebuildBatchSize)
		if err != nil {
			// 批次失败会取消 gctx，优先返回真正的失败原因
			if werr := g.Wait(); werr != nil {
				return 0, werr
			}
			return total, fmt.Errorf("list resources: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID
		total += len(batch)
		g.Go(func() error {
			return s.Index(gctx, batch)
		})
		if len(batch) < rebuildBatchSize {
			break
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	logger.Log.Info("Semantic index rebuilt", zap.Int("resources", total))
	return total, nil
}
