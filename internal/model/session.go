// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息发送方角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession 是某个功能（笔记、摘要、答疑……）下的一次完整对话。
// 登录用户的会话 OwnerID 非空，落在持久化存储；访客会话 OwnerID 为空，只存在于临时存储。
type ChatSession struct {
	ID        string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID   *uint         `gorm:"index:idx_sessions_owner_feature,priority:1" json:"ownerId,omitempty"`
	GuestKey  string        `gorm:"-" json:"-"`
	Feature   string        `gorm:"type:varchar(32);not null;index:idx_sessions_owner_feature,priority:2" json:"feature"`
	Title     string        `gorm:"type:varchar(255);not null" json:"title"`
	Messages  []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
	CreatedAt time.Time     `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime:false;index" json:"updatedAt"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 代表会话中的单条消息，一经追加不再修改。
// Position 是消息在会话内的插入序号，读取时按它排序。
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"type:varchar(36);not null;index:idx_messages_session_position,priority:1" json:"-"`
	Position  int       `gorm:"not null;index:idx_messages_session_position,priority:2" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"` // "user" 或 "assistant"
	Content   string    `gorm:"type:mediumtext;not null" json:"content"`
	Sources   []string  `gorm:"serializer:json;type:text" json:"sources,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// UserMessage 构造一条用户消息。
func UserMessage(content string, at time.Time) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, CreatedAt: at}
}

// AssistantMessage 构造一条助手消息，sources 为引用来源。
func AssistantMessage(content string, sources []string, at time.Time) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Sources: sources, CreatedAt: at}
}
