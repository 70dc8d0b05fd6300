package search

import (
	"context"
	"sync"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"
	"biogenie-go/pkg/log"
)

// ChunkSource 提供全部分块，通常由 repository.ChunkRepository 实现。
type ChunkSource interface {
	FindAll(ctx context.Context) ([]model.ContentChunk, error)
}

// LinearEngine 在内存快照上做精确的线性扫描，适合小规模语料。
// 快照在首次检索时加载，之后只在 Reload 时整体替换。
type LinearEngine struct {
	source ChunkSource
	dims   int

	mu     sync.RWMutex
	chunks []model.ContentChunk
	loaded bool
}

// NewLinearEngine 创建一个新的 LinearEngine 实例；dims 为部署约定的向量维度。
func NewLinearEngine(source ChunkSource, dims int) *LinearEngine {
	return &LinearEngine{source: source, dims: dims}
}

// Reload 重新从存储加载快照。存在维度不一致的分块时返回配置错误，旧快照保持不变。
func (e *LinearEngine) Reload(ctx context.Context) error {
	chunks, err := e.source.FindAll(ctx)
	if err != nil {
		return apperr.Transient("load chunk snapshot", err)
	}
	for _, c := range chunks {
		if e.dims > 0 && len(c.Embedding) != e.dims {
			return apperr.Configuration("chunk %d has %d dimensions, expected %d", c.ID, len(c.Embedding), e.dims)
		}
	}
	e.mu.Lock()
	e.chunks = chunks
	e.loaded = true
	e.mu.Unlock()
	log.Infof("[LinearEngine] 已加载 %d 个分块", len(chunks))
	return nil
}

// Len 返回快照中的分块数量。
func (e *LinearEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.chunks)
}

func (e *LinearEngine) snapshot(ctx context.Context) ([]model.ContentChunk, error) {
	e.mu.RLock()
	chunks, loaded := e.chunks, e.loaded
	e.mu.RUnlock()
	if loaded {
		return chunks, nil
	}
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chunks, nil
}

// Search 实现 Engine。
func (e *LinearEngine) Search(ctx context.Context, q Query) ([]model.SimilarityResult, error) {
	if err := validate(q, e.dims); err != nil {
		return nil, err
	}
	chunks, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]model.SimilarityResult, 0)
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Transient("linear search", err)
		}
		if q.Category != "" && c.Category != q.Category {
			continue
		}
		if len(c.Embedding) != len(q.Embedding) {
			return nil, apperr.Configuration("chunk %d has %d dimensions, query has %d", c.ID, len(c.Embedding), len(q.Embedding))
		}
		score := Cosine(q.Embedding, c.Embedding)
		if eligible(q, c, score) {
			results = append(results, model.SimilarityResult{Chunk: c, Score: score})
		}
	}
	return rank(results, q.Limit), nil
}
