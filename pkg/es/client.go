// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"biogenie-go/internal/config"
	"biogenie-go/internal/model"
	"biogenie-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保分块索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	client, err := NewClient(esCfg)
	if err != nil {
		return err
	}
	ESClient = client
	return EnsureIndex(context.Background(), client, esCfg.IndexName, dims)
}

// NewClient 按配置构造客户端，不做任何网络请求。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// indexMapping 返回 content_chunks 索引的 mapping，向量维度随部署配置。
func indexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "long" },
				"category": { "type": "keyword" },
				"group": { "type": "keyword" },
				"source": { "type": "keyword" },
				"content": { "type": "text", "analyzer": "english" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"created_at": { "type": "date" }
			}
		}
	}`, dims)
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func EnsureIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("[ES] 检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	created, err := client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(indexMapping(dims))),
		client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, created.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功, dims=%d", indexName, dims)
	return nil
}

// IndexChunk 将单个分块索引到 Elasticsearch，文档 id 为分块 id。
func IndexChunk(ctx context.Context, client *elasticsearch.Client, indexName string, doc model.EsChunkDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%d", doc.ChunkID),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ES] 索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}

	return nil
}

// DeleteBySource 删除某个来源文件在某个年级下的全部分块，供重新导入前清理。
func DeleteBySource(ctx context.Context, client *elasticsearch.Client, indexName, source, category string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"source": source}},
					{"term": map[string]interface{}{"category": category}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}

	res, err := client.DeleteByQuery(
		[]string{indexName},
		&buf,
		client.DeleteByQuery.WithContext(ctx),
		client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("[ES] 按来源删除文档出错: %s", res.String())
		return errors.New("failed to delete documents by source")
	}
	return nil
}

// Ping 检查集群是否可达，供就绪探针使用。
func Ping(ctx context.Context, client *elasticsearch.Client) error {
	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// ChunkIndexer 把某个来源的分块整体同步到索引：先删除旧文档再逐个写入。
type ChunkIndexer struct {
	Client *elasticsearch.Client
	Index  string
}

// ReplaceSource 用 chunks 替换索引中 (source, category) 的全部文档。
func (i ChunkIndexer) ReplaceSource(ctx context.Context, source, category string, chunks []model.ContentChunk) error {
	if err := DeleteBySource(ctx, i.Client, i.Index, source, category); err != nil {
		return err
	}
	for _, c := range chunks {
		doc := model.EsChunkDocument{
			ChunkID:   c.ID,
			Category:  c.Category,
			Group:     c.Group,
			Content:   c.Content,
			Source:    c.Source,
			Vector:    c.Embedding,
			CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := IndexChunk(ctx, i.Client, i.Index, doc); err != nil {
			return fmt.Errorf("索引分块 %d 失败: %w", c.ID, err)
		}
	}
	log.Infof("[ES] 来源 '%s' (category=%s) 已同步 %d 个分块", source, category, len(chunks))
	return nil
}
