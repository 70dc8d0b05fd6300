// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "fmt"

// ChunkIngestTask 描述一个待导入的来源文件：对象存储中的位置、年级和章节。
type ChunkIngestTask struct {
	Bucket     string `json:"bucket"`
	ObjectName string `json:"object_name"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	Group      string `json:"group"`
}

// Key 唯一标识一个 (来源, 年级) 对，用作 Kafka 消息 key 和失败计数的键。
func (t ChunkIngestTask) Key() string {
	return fmt.Sprintf("%s:%s", t.Category, t.Source)
}
