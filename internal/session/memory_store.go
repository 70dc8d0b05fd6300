package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"

	"github.com/oklog/ulid/v2"
)

// MemoryBackend 是访客会话的进程内临时存储，无网络往返。
// 总会话数超过 capacity 时淘汰最久未更新的会话，不做任何通知：
// 访客会话本就不保证持久。
type MemoryBackend struct {
	mu       sync.RWMutex
	capacity int
	sessions map[string]*model.ChatSession
	now      func() time.Time
}

// NewMemoryBackend 创建一个新的 MemoryBackend；capacity <= 0 表示不限量。
func NewMemoryBackend(capacity int) *MemoryBackend {
	return &MemoryBackend{
		capacity: capacity,
		sessions: make(map[string]*model.ChatSession),
		now:      time.Now,
	}
}

// ForGuest 返回绑定到访客上下文的 Store。
func (b *MemoryBackend) ForGuest(guestKey string) Store {
	return &memoryStore{backend: b, guest: guestKey}
}

// Len 返回当前保存的会话数量。
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// evictLocked 在插入前腾出空间，调用方须持有写锁。
func (b *MemoryBackend) evictLocked() {
	if b.capacity <= 0 {
		return
	}
	for len(b.sessions) >= b.capacity {
		var oldest *model.ChatSession
		for _, s := range b.sessions {
			if oldest == nil || s.UpdatedAt.Before(oldest.UpdatedAt) {
				oldest = s
			}
		}
		delete(b.sessions, oldest.ID)
	}
}

type memoryStore struct {
	backend *MemoryBackend
	guest   string
}

var _ Store = (*memoryStore)(nil)

func (s *memoryStore) Scope() string { return GuestScope(s.guest) }

func (s *memoryStore) CreateSession(_ context.Context, feature, title string) (*model.ChatSession, error) {
	if err := validateNew(feature, title); err != nil {
		return nil, err
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	sess := s.insertLocked(feature, title)
	out := cloneSession(sess, false)
	return &out, nil
}

func (s *memoryStore) OpenSession(_ context.Context, feature, title string, user, bot model.ChatMessage) (*model.ChatSession, error) {
	if err := validateNew(feature, title); err != nil {
		return nil, err
	}
	if err := validateExchange(user, bot); err != nil {
		return nil, err
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	sess := s.insertLocked(feature, title)
	s.appendLocked(sess, user, bot)
	out := cloneSession(sess, true)
	return &out, nil
}

func (s *memoryStore) AppendExchange(_ context.Context, sessionID string, user, bot model.ChatMessage) (*model.ChatSession, error) {
	if err := validateExchange(user, bot); err != nil {
		return nil, err
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, err := s.findLocked(sessionID)
	if err != nil {
		return nil, err
	}
	s.appendLocked(sess, user, bot)
	out := cloneSession(sess, true)
	return &out, nil
}

func (s *memoryStore) ListSessions(_ context.Context, feature string) ([]model.ChatSession, error) {
	b := s.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.ChatSession, 0)
	for _, sess := range b.sessions {
		if sess.GuestKey == s.guest && sess.Feature == feature {
			out = append(out, cloneSession(sess, false))
		}
	}
	sortByRecency(out)
	return out, nil
}

func (s *memoryStore) LoadSession(_ context.Context, sessionID string) (*model.ChatSession, error) {
	b := s.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	sess, err := s.findLocked(sessionID)
	if err != nil {
		return nil, err
	}
	out := cloneSession(sess, true)
	return &out, nil
}

func (s *memoryStore) DeleteSession(_ context.Context, sessionID string) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, err := s.findLocked(sessionID)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	delete(b.sessions, sess.ID)
	return nil
}

func (s *memoryStore) insertLocked(feature, title string) *model.ChatSession {
	b := s.backend
	b.evictLocked()
	now := b.now()
	sess := &model.ChatSession{
		ID:        ulid.Make().String(),
		GuestKey:  s.guest,
		Feature:   feature,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.sessions[sess.ID] = sess
	return sess
}

func (s *memoryStore) appendLocked(sess *model.ChatSession, user, bot model.ChatMessage) {
	now := s.backend.now()
	for _, m := range []model.ChatMessage{user, bot} {
		m.SessionID = sess.ID
		m.Position = len(sess.Messages)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.Sources != nil {
			m.Sources = append([]string(nil), m.Sources...)
		}
		sess.Messages = append(sess.Messages, m)
	}
	sess.UpdatedAt = laterOf(sess.UpdatedAt, now)
}

func (s *memoryStore) findLocked(sessionID string) (*model.ChatSession, error) {
	sess, ok := s.backend.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	if sess.GuestKey != s.guest {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrForbidden)
	}
	return sess, nil
}

// sortByRecency 按 UpdatedAt 倒序排列，相同时新建的在前。
func sortByRecency(sessions []model.ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
