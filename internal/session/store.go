// Package session 实现了按功能划分的对话会话存储。
//
// 同一个 Store 接口有两类后端：登录用户走持久化的多租户存储（gorm），
// 访客走本地临时存储（内存或 Redis）。后端在构造时由 Selector 按身份选定，
// 调用方不再按登录状态做分支。
package session

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"
)

const (
	// TitleLimit 是标题保留的最大字符数（按 rune 计）。
	TitleLimit = 60
	// TruncationMarker 在首条消息超长时追加在标题末尾。
	TruncationMarker = "…"
)

// Store 定义了会话的持久化操作，实例在构造时已绑定到某个身份。
type Store interface {
	// CreateSession 创建一个空会话。
	CreateSession(ctx context.Context, feature, title string) (*model.ChatSession, error)
	// OpenSession 在一次原子写入中创建会话并追加第一轮问答。
	OpenSession(ctx context.Context, feature, title string, user, bot model.ChatMessage) (*model.ChatSession, error)
	// AppendExchange 原子地追加一轮 (用户, 助手) 消息并刷新 UpdatedAt。
	AppendExchange(ctx context.Context, sessionID string, user, bot model.ChatMessage) (*model.ChatSession, error)
	// ListSessions 返回该功能下的会话（不含消息），按 UpdatedAt 倒序。
	ListSessions(ctx context.Context, feature string) ([]model.ChatSession, error)
	// LoadSession 返回会话及其按插入顺序排列的全部消息。
	LoadSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	// DeleteSession 删除会话及其消息；会话不存在时直接返回 nil。
	DeleteSession(ctx context.Context, sessionID string) error
	// Scope 返回所绑定身份的分区键，用于刷新信号。
	Scope() string
}

// Identity 描述调用者：UserID 非零为登录用户，否则是以 GuestKey 标识的访客上下文。
type Identity struct {
	UserID   uint
	Username string
	GuestKey string
}

// IsGuest 报告调用者是否未登录。
func (i Identity) IsGuest() bool {
	return i.UserID == 0
}

// Scope 返回身份的分区键：登录用户为 "u:<id>"，访客为 "g:<guestKey>"。
func (i Identity) Scope() string {
	if i.IsGuest() {
		return GuestScope(i.GuestKey)
	}
	return OwnerScope(i.UserID)
}

// OwnerScope 返回登录用户的分区键。
func OwnerScope(ownerID uint) string {
	return "u:" + strconv.FormatUint(uint64(ownerID), 10)
}

// GuestScope 返回访客上下文的分区键。
func GuestScope(guestKey string) string {
	return "g:" + guestKey
}

// DeriveTitle 由首条用户消息生成会话标题：空白折叠后取前 60 个字符，超长追加省略号。
func DeriveTitle(firstMessage string) string {
	text := strings.Join(strings.Fields(firstMessage), " ")
	if utf8.RuneCountInString(text) <= TitleLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:TitleLimit]) + TruncationMarker
}

func validateNew(feature, title string) error {
	if feature == "" {
		return apperr.InvalidInput("feature is required")
	}
	if title == "" {
		return apperr.InvalidInput("title is required")
	}
	if utf8.RuneCountInString(title) > TitleLimit+utf8.RuneCountInString(TruncationMarker) {
		return apperr.InvalidInput("title exceeds %d characters", TitleLimit+1)
	}
	return nil
}

func validateExchange(user, bot model.ChatMessage) error {
	if user.Role != model.RoleUser || bot.Role != model.RoleAssistant {
		return apperr.InvalidInput("exchange must be a user message followed by an assistant message")
	}
	return nil
}

// laterOf 保证 UpdatedAt 单调不减。
func laterOf(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

func cloneSession(s *model.ChatSession, withMessages bool) model.ChatSession {
	out := *s
	out.Messages = nil
	if withMessages && len(s.Messages) > 0 {
		out.Messages = make([]model.ChatMessage, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m
			if m.Sources != nil {
				out.Messages[i].Sources = append([]string(nil), m.Sources...)
			}
		}
	}
	return out
}
