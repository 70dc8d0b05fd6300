// Package pipeline 定义了来源文件的离线导入流程：
// 提取文本、切块、批量向量化、整体替换数据库中的分块并同步到检索索引。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/config"
	"biogenie-go/internal/model"
	"biogenie-go/internal/repository"
	"biogenie-go/pkg/embedding"
	"biogenie-go/pkg/log"
	"biogenie-go/pkg/tasks"
)

// Extractor 从文件内容中提取纯文本。
type Extractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Fetcher 从对象存储下载来源文件。
type Fetcher interface {
	Fetch(ctx context.Context, bucket, objectName string) ([]byte, error)
}

// Indexer 把一个来源的分块同步到外部检索索引。
type Indexer interface {
	ReplaceSource(ctx context.Context, source, category string, chunks []model.ContentChunk) error
}

// Processor 封装了导入流程的所有依赖和逻辑。fetcher 和 indexer 可以为 nil。
type Processor struct {
	extractor  Extractor
	embedder   embedding.Client
	chunkRepo  repository.ChunkRepository
	fetcher    Fetcher
	indexer    Indexer
	splitter   Splitter
	batchSize  int
	categories []string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractor Extractor,
	embedder embedding.Client,
	chunkRepo repository.ChunkRepository,
	fetcher Fetcher,
	indexer Indexer,
	ingestCfg config.IngestConfig,
	categories []string,
) *Processor {
	batch := ingestCfg.EmbedBatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Processor{
		extractor:  extractor,
		embedder:   embedder,
		chunkRepo:  chunkRepo,
		fetcher:    fetcher,
		indexer:    indexer,
		splitter:   NewSplitter(ingestCfg.ChunkSize, ingestCfg.ChunkOverlap),
		batchSize:  batch,
		categories: categories,
	}
}

// Process 处理一个来自队列的导入任务。
func (p *Processor) Process(ctx context.Context, task tasks.ChunkIngestTask) error {
	log.Infof("[Processor] 开始处理导入任务, Bucket: %s, Object: %s, Category: %s", task.Bucket, task.ObjectName, task.Category)
	if p.fetcher == nil {
		return errors.New("对象存储未配置")
	}

	data, err := p.fetcher.Fetch(ctx, task.Bucket, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return err
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小为: %d字节", len(data))

	source := task.Source
	if source == "" {
		source = filepath.Base(task.ObjectName)
	}
	group := task.Group
	if group == "" {
		group = GuessGroup(source)
	}
	_, err = p.ingest(ctx, data, source, task.Category, group)
	return err
}

// IngestFile 导入一个本地文件，group 为空时由文件名推断章节名。返回写入的分块数。
func (p *Processor) IngestFile(ctx context.Context, path, category, group string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取文件失败: %w", err)
	}
	source := filepath.Base(path)
	if group == "" {
		group = GuessGroup(source)
	}
	return p.ingest(ctx, data, source, category, group)
}

// AlreadyIngested 判断 (source, category) 是否已有分块，供批量导入跳过。
func (p *Processor) AlreadyIngested(ctx context.Context, source, category string) (bool, error) {
	return p.chunkRepo.ExistsSource(ctx, source, category)
}

func (p *Processor) ingest(ctx context.Context, data []byte, source, category, group string) (int, error) {
	if !p.knownCategory(category) {
		return 0, apperr.InvalidInput("unknown category %q", category)
	}
	if len(data) == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", source)
		return 0, errors.New("文件内容为空")
	}

	// 1. 提取文本
	text, err := p.extractor.ExtractText(ctx, bytes.NewReader(data), source)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", source, err)
		return 0, fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		log.Warnf("[Processor] Tika提取的文本内容为空, 处理中止, FileName: %s", source)
		return 0, errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 切块
	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, errors.New("未生成任何文本分块")
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, chunkSize: %d, overlap: %d, 共 %d 块", p.splitter.ChunkSize, p.splitter.ChunkOverlap, len(pieces))

	// 3. 批量向量化
	chunks := make([]*model.ContentChunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		vectors, err := p.embedder.CreateEmbeddings(ctx, pieces[start:end])
		if err != nil {
			log.Errorf("[Processor] 第 %d-%d 块向量化失败: %v", start+1, end, err)
			return 0, err
		}
		for i, v := range vectors {
			chunks = append(chunks, &model.ContentChunk{
				Category:  category,
				Group:     group,
				Content:   pieces[start+i],
				Embedding: v,
				Source:    source,
			})
		}
		log.Infof("[Processor] 向量化进度 %d/%d", end, len(pieces))
	}

	// 4. 整体替换数据库中的分块
	if err := p.chunkRepo.ReplaceSource(ctx, source, category, chunks); err != nil {
		log.Errorf("[Processor] 保存分块失败, source: %s, Error: %v", source, err)
		return 0, apperr.Persistence("replace chunks", err)
	}

	// 5. 同步到检索索引
	if p.indexer != nil {
		saved := make([]model.ContentChunk, len(chunks))
		for i, c := range chunks {
			saved[i] = *c
		}
		if err := p.indexer.ReplaceSource(ctx, source, category, saved); err != nil {
			log.Errorf("[Processor] 同步索引失败, source: %s, Error: %v", source, err)
			return 0, err
		}
	}

	log.Infof("[Processor] 导入完成, source: %s, category: %s, group: %s, 分块数: %d", source, category, group, len(chunks))
	return len(chunks), nil
}

func (p *Processor) knownCategory(category string) bool {
	for _, c := range p.categories {
		if c == category {
			return true
		}
	}
	return false
}

// GuessGroup 由文件名推断章节名：去掉扩展名，下划线和连字符换成空格，每个单词首字母大写。
func GuessGroup(fileName string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
