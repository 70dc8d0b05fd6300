package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/config"
	"biogenie-go/internal/model"
	"biogenie-go/internal/repository"
	"biogenie-go/pkg/tasks"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	_, _ = io.ReadAll(r)
	return f.text, f.err
}

type fakeEmbedder struct {
	batches []int
	err     error
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, f.err
}

func (f *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeFetcher struct {
	data map[string][]byte
}

func (f fakeFetcher) Fetch(_ context.Context, bucket, objectName string) ([]byte, error) {
	b, ok := f.data[bucket+"/"+objectName]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

type recordingIndexer struct {
	source, category string
	chunks           []model.ContentChunk
	err              error
}

func (r *recordingIndexer) ReplaceSource(_ context.Context, source, category string, chunks []model.ContentChunk) error {
	r.source, r.category, r.chunks = source, category, chunks
	return r.err
}

func newRepo(t *testing.T) repository.ChunkRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chunks.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ContentChunk{}))
	return repository.NewChunkRepository(db)
}

var categories = []string{"9", "10", "11", "12"}

func paragraphText(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "Paragraph about plasmids and vectors."
	}
	return strings.Join(parts, "\n\n")
}

func TestProcessor_IngestFile(t *testing.T) {
	repo := newRepo(t)
	embedder := &fakeEmbedder{}
	indexer := &recordingIndexer{}
	p := NewProcessor(fakeExtractor{text: paragraphText(5)}, embedder, repo, nil, indexer,
		config.IngestConfig{ChunkSize: 40, ChunkOverlap: 0, EmbedBatchSize: 2}, categories)

	path := filepath.Join(t.TempDir(), "genetic_engineering.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	n, err := p.IngestFile(context.Background(), path, "10", "")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{2, 2, 1}, embedder.batches)

	stored, err := repo.FindByCategory(context.Background(), "10")
	require.NoError(t, err)
	require.Len(t, stored, 5)
	assert.Equal(t, "Genetic Engineering", stored[0].Group)
	assert.Equal(t, "genetic_engineering.pdf", stored[0].Source)
	assert.Equal(t, []float32{0, 1}, stored[0].Embedding)

	assert.Equal(t, "genetic_engineering.pdf", indexer.source)
	require.Len(t, indexer.chunks, 5)
	assert.NotZero(t, indexer.chunks[0].ID)
	assert.Equal(t, stored[0].ID, indexer.chunks[0].ID)

	ingested, err := p.AlreadyIngested(context.Background(), "genetic_engineering.pdf", "10")
	require.NoError(t, err)
	assert.True(t, ingested)
}

func TestProcessor_ReingestReplaces(t *testing.T) {
	repo := newRepo(t)
	path := filepath.Join(t.TempDir(), "cells.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
	cfg := config.IngestConfig{ChunkSize: 40, EmbedBatchSize: 10}

	_, err := NewProcessor(fakeExtractor{text: paragraphText(4)}, &fakeEmbedder{}, repo, nil, nil, cfg, categories).
		IngestFile(context.Background(), path, "9", "Cells")
	require.NoError(t, err)
	_, err = NewProcessor(fakeExtractor{text: paragraphText(2)}, &fakeEmbedder{}, repo, nil, nil, cfg, categories).
		IngestFile(context.Background(), path, "9", "Cells")
	require.NoError(t, err)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestProcessor_Process(t *testing.T) {
	repo := newRepo(t)
	fetcher := fakeFetcher{data: map[string][]byte{"pdfs/class_11/pcr-basics.pdf": []byte("%PDF")}}
	p := NewProcessor(fakeExtractor{text: "PCR amplifies DNA."}, &fakeEmbedder{}, repo, fetcher, nil,
		config.IngestConfig{ChunkSize: 1000, ChunkOverlap: 150}, categories)

	err := p.Process(context.Background(), tasks.ChunkIngestTask{Bucket: "pdfs", ObjectName: "class_11/pcr-basics.pdf", Category: "11"})
	require.NoError(t, err)

	stored, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Pcr Basics", stored[0].Group)
	assert.Equal(t, "pcr-basics.pdf", stored[0].Source)

	err = p.Process(context.Background(), tasks.ChunkIngestTask{Bucket: "pdfs", ObjectName: "class_11/missing.pdf", Category: "11"})
	assert.Error(t, err)
}

func TestProcessor_Failures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
	cfg := config.IngestConfig{ChunkSize: 100}

	t.Run("unknown category", func(t *testing.T) {
		p := NewProcessor(fakeExtractor{text: "a"}, &fakeEmbedder{}, newRepo(t), nil, nil, cfg, categories)
		_, err := p.IngestFile(context.Background(), path, "13", "")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
	t.Run("empty text", func(t *testing.T) {
		p := NewProcessor(fakeExtractor{text: "  "}, &fakeEmbedder{}, newRepo(t), nil, nil, cfg, categories)
		_, err := p.IngestFile(context.Background(), path, "10", "")
		assert.Error(t, err)
	})
	t.Run("embedding leaves store untouched", func(t *testing.T) {
		repo := newRepo(t)
		p := NewProcessor(fakeExtractor{text: "a b c"}, &fakeEmbedder{err: apperr.Transient("embed", errors.New("429"))}, repo, nil, nil, cfg, categories)
		_, err := p.IngestFile(context.Background(), path, "10", "")
		assert.ErrorIs(t, err, apperr.ErrTransient)
		n, _ := repo.Count(context.Background())
		assert.Zero(t, n)
	})
	t.Run("no fetcher", func(t *testing.T) {
		p := NewProcessor(fakeExtractor{}, &fakeEmbedder{}, newRepo(t), nil, nil, cfg, categories)
		assert.Error(t, p.Process(context.Background(), tasks.ChunkIngestTask{ObjectName: "class_9/a.pdf", Category: "9"}))
	})
}

func TestGuessGroup(t *testing.T) {
	assert.Equal(t, "Genetic Engineering", GuessGroup("genetic_engineering.pdf"))
	assert.Equal(t, "Dna Replication Part 2", GuessGroup("DNA-replication_part 2.PDF"))
	assert.Equal(t, "", GuessGroup(".pdf"))
}
