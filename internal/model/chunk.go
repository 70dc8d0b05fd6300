package model

import "time"

// ContentChunk 对应于数据库中的 content_chunks 表，是检索的最小单元。
// 分块由离线导入流程整体替换写入，服务流量只读不改。
// ID 自增，因此同时代表插入顺序，检索同分时按它稳定排序。
type ContentChunk struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Category  string    `gorm:"type:varchar(16);not null;index" json:"category"` // 年级，例如 "9"
	Group     string    `gorm:"type:varchar(255);column:group_name" json:"group"` // 章节名
	Content   string    `gorm:"type:mediumtext;not null" json:"content"`
	Embedding []float32 `gorm:"serializer:json;type:mediumtext;not null" json:"-"`
	Source    string    `gorm:"type:varchar(255);not null;index" json:"source"` // 来源 PDF
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ContentChunk) TableName() string {
	return "content_chunks"
}

// Citation 返回引用展示文本，形如 "Genetic Engineering (ch5.pdf)"。
func (c ContentChunk) Citation() string {
	group := c.Group
	if group == "" {
		group = "Unknown"
	}
	return group + " (" + c.Source + ")"
}

// SimilarityResult 是一次检索命中：分块引用加余弦相似度，从不持久化。
type SimilarityResult struct {
	Chunk ContentChunk `json:"chunk"`
	Score float64      `json:"score"`
}
