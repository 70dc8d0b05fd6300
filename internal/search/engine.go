// Package search 实现了基于余弦相似度的分块检索。
//
// 所有实现遵守同一组约束：只返回得分严格大于阈值的分块；给定年级时只返回该年级；
// 结果按得分降序、同分按插入顺序升序；长度不超过 Limit。没有命中是合法结果，
// 与存储故障（apperr.ErrTransient）严格区分。
package search

import (
	"context"
	"math"
	"sort"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"
)

// Query 描述一次检索请求。Category 为空表示不过滤年级。
type Query struct {
	Embedding []float32
	Threshold float64
	Limit     int
	Category  string
}

// Engine 定义了相似度检索操作。
type Engine interface {
	Search(ctx context.Context, q Query) ([]model.SimilarityResult, error)
}

// Cosine 计算两个向量的余弦相似度；任一为零向量时返回 0。
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func validate(q Query, dims int) error {
	if dims > 0 && len(q.Embedding) != dims {
		return apperr.Configuration("query embedding has %d dimensions, store expects %d", len(q.Embedding), dims)
	}
	if len(q.Embedding) == 0 {
		return apperr.InvalidInput("query embedding is empty")
	}
	if q.Threshold < 0 || q.Threshold > 1 {
		return apperr.InvalidInput("threshold %.3f out of range [0,1]", q.Threshold)
	}
	if q.Limit <= 0 {
		return apperr.InvalidInput("limit must be positive")
	}
	return nil
}

// eligible 判断候选分块是否满足阈值与年级过滤。
func eligible(q Query, chunk model.ContentChunk, score float64) bool {
	if q.Category != "" && chunk.Category != q.Category {
		return false
	}
	return score > q.Threshold
}

// rank 按得分降序、同分按分块 id（插入顺序）升序排列并截断到 limit。
func rank(results []model.SimilarityResult, limit int) []model.SimilarityResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
