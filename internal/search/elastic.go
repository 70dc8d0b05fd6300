package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"
	"biogenie-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// overfetchFactor 控制 kNN 候选数量相对 Limit 的倍数。
// kNN 是近似检索，多取一些再在本地做精确过滤与排序。
const overfetchFactor = 4

// ElasticEngine 通过 Elasticsearch 的 dense_vector kNN 检索候选，
// 再在本地按精确余弦相似度过滤、排序和截断。
//
// 候选集合由 Elasticsearch 的 k 截断决定。若同分分块恰好跨越截断位置，
// 哪些留下由 Elasticsearch 决定，同分按 id 升序只在候选集合内成立。
// 只有当第 Limit 名与最后一个候选同分时结果才会受影响，这种情况会记录告警。
type ElasticEngine struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

// NewElasticEngine 创建一个新的 ElasticEngine 实例。
func NewElasticEngine(client *elasticsearch.Client, indexName string, dims int) *ElasticEngine {
	return &ElasticEngine{client: client, indexName: indexName, dims: dims}
}

type esHit struct {
	Score  float64               `json:"_score"`
	Source model.EsChunkDocument `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// fetchSize 返回一次请求的候选数量。
func fetchSize(q Query) int {
	return q.Limit * overfetchFactor
}

func (e *ElasticEngine) buildQuery(q Query) map[string]interface{} {
	k := fetchSize(q)
	candidates := k * 2
	if candidates < 100 {
		candidates = 100
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   q.Embedding,
		"k":              k,
		"num_candidates": candidates,
	}
	if q.Category != "" {
		knn["filter"] = map[string]interface{}{
			"term": map[string]interface{}{"category": q.Category},
		}
	}
	return map[string]interface{}{
		"knn":  knn,
		"size": k,
	}
}

// Search 实现 Engine。
func (e *ElasticEngine) Search(ctx context.Context, q Query) ([]model.SimilarityResult, error) {
	if err := validate(q, e.dims); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(e.buildQuery(q)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[ElasticEngine] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, apperr.Transient("elasticsearch search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[ElasticEngine] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, apperr.Transient("elasticsearch search", fmt.Errorf("status %s", res.Status()))
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperr.Transient("decode es response", err)
	}

	results := make([]model.SimilarityResult, 0, len(parsed.Hits.Hits))
	floor := 0.0
	for i, hit := range parsed.Hits.Hits {
		chunk := model.ContentChunk{
			ID:       hit.Source.ChunkID,
			Category: hit.Source.Category,
			Group:    hit.Source.Group,
			Content:  hit.Source.Content,
			Source:   hit.Source.Source,
		}
		var score float64
		if len(hit.Source.Vector) > 0 {
			if len(hit.Source.Vector) != len(q.Embedding) {
				return nil, apperr.Configuration("indexed chunk %d has %d dimensions, query has %d",
					hit.Source.ChunkID, len(hit.Source.Vector), len(q.Embedding))
			}
			score = Cosine(q.Embedding, hit.Source.Vector)
		} else {
			score = scoreToCosine(hit.Score)
		}
		if i == 0 || score < floor {
			floor = score
		}
		// kNN 的 filter 只是提示，这里再校验一次
		if eligible(q, chunk, score) {
			results = append(results, model.SimilarityResult{Chunk: chunk, Score: score})
		}
	}
	log.Debugf("[ElasticEngine] 候选 %d 条, 过滤后 %d 条", len(parsed.Hits.Hits), len(results))
	ranked := rank(results, len(results))
	if len(parsed.Hits.Hits) >= fetchSize(q) && tiedAtCutoff(ranked, q.Limit, floor) {
		log.Warnf("[ElasticEngine] 第 %d 名与候选截断处同分 (%.6f), 同分顺序由 Elasticsearch 决定", q.Limit, floor)
	}
	return rank(ranked, q.Limit), nil
}

// tiedAtCutoff 报告排序后第 limit 名是否与候选中的最低分相同。
// 成立时可能还有同分分块被 kNN 截断在候选之外。
func tiedAtCutoff(ranked []model.SimilarityResult, limit int, floor float64) bool {
	if limit <= 0 || len(ranked) < limit {
		return false
	}
	return ranked[limit-1].Score == floor
}

// scoreToCosine 把 cosine 相似度字段的 _score（(1+cos)/2）还原为余弦值。
func scoreToCosine(score float64) float64 {
	return 2*score - 1
}
