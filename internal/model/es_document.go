package model

// EsChunkDocument 定义了存储在 Elasticsearch 中的分块文档结构。
type EsChunkDocument struct {
	ChunkID   uint      `json:"chunk_id"`
	Category  string    `json:"category"`
	Group     string    `json:"group"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Vector    []float32 `json:"vector"`
	CreatedAt string    `json:"created_at"`
}

// SearchResponseDTO 定义了返回给前端的检索结果结构。
type SearchResponseDTO struct {
	ChunkID  uint    `json:"chunkId"`
	Category string  `json:"category"`
	Group    string  `json:"group"`
	Source   string  `json:"source"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}
