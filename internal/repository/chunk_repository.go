package repository

import (
	"context"

	"biogenie-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 定义了对 content_chunks 表的数据操作接口。
// 服务流量只读；ReplaceSource 只由离线导入调用。
type ChunkRepository interface {
	FindAll(ctx context.Context) ([]model.ContentChunk, error)
	FindByCategory(ctx context.Context, category string) ([]model.ContentChunk, error)
	Count(ctx context.Context) (int64, error)
	ExistsSource(ctx context.Context, source, category string) (bool, error)
	ReplaceSource(ctx context.Context, source, category string, chunks []*model.ContentChunk) error
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// FindAll 按插入顺序返回全部分块。
func (r *chunkRepository) FindAll(ctx context.Context) ([]model.ContentChunk, error) {
	var chunks []model.ContentChunk
	err := r.db.WithContext(ctx).Order("id ASC").Find(&chunks).Error
	return chunks, err
}

// FindByCategory 按插入顺序返回某个年级的分块。
func (r *chunkRepository) FindByCategory(ctx context.Context, category string) ([]model.ContentChunk, error) {
	var chunks []model.ContentChunk
	err := r.db.WithContext(ctx).Where("category = ?", category).Order("id ASC").Find(&chunks).Error
	return chunks, err
}

// Count 返回分块总数，就绪探针用它判断索引是否已导入。
func (r *chunkRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.ContentChunk{}).Count(&total).Error
	return total, err
}

// ExistsSource 判断某个来源文件在该年级下是否已经导入过。
func (r *chunkRepository) ExistsSource(ctx context.Context, source, category string) (bool, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.ContentChunk{}).
		Where("source = ? AND category = ?", source, category).
		Count(&total).Error
	return total > 0, err
}

// ReplaceSource 在一个事务中删除该来源的旧分块并批量写入新分块。
// 写入后 chunks 中每个元素的 ID 会被回填。
func (r *chunkRepository) ReplaceSource(ctx context.Context, source, category string, chunks []*model.ContentChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source = ? AND category = ?", source, category).Delete(&model.ContentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for _, c := range chunks {
			c.ID = 0
			c.Source = source
			c.Category = category
		}
		return tx.CreateInBatches(chunks, 100).Error // 每100条记录一批
	})
}
