package service

import (
	"context"
	"strings"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"
	"biogenie-go/internal/search"
	"biogenie-go/pkg/embedding"
	"biogenie-go/pkg/log"
)

// SearchService 接口定义了直接检索操作，不经过合成也不写会话。
type SearchService interface {
	Search(ctx context.Context, query, category string, topK int) ([]model.SearchResponseDTO, error)
}

type searchService struct {
	embeddingClient embedding.Client
	engine          search.Engine
	threshold       float64
	defaultTopK     int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, engine search.Engine, policy RAGPolicy) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		engine:          engine,
		threshold:       policy.Threshold,
		defaultTopK:     policy.TopK,
	}
}

// Search 向量化查询并按阈值检索，返回前端可直接展示的结果。
func (s *searchService) Search(ctx context.Context, query, category string, topK int) ([]model.SearchResponseDTO, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.InvalidInput("query cannot be empty")
	}
	if category == GeneralCategory {
		category = ""
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	log.Infof("[SearchService] 开始检索, query: '%s', category: '%s', topK: %d", query, category, topK)

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, err
	}

	hits, err := s.engine.Search(ctx, search.Query{
		Embedding: queryVector,
		Threshold: s.threshold,
		Limit:     topK,
		Category:  category,
	})
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResponseDTO, 0, len(hits))
	for _, h := range hits {
		results = append(results, model.SearchResponseDTO{
			ChunkID:  h.Chunk.ID,
			Category: h.Chunk.Category,
			Group:    h.Chunk.Group,
			Source:   h.Chunk.Source,
			Content:  h.Chunk.Content,
			Score:    h.Score,
		})
	}
	log.Infof("[SearchService] 检索完成, 命中 %d 条", len(results))
	return results, nil
}
