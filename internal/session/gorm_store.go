package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBackend 是登录用户会话的持久化后端。
// 每个 ForOwner 返回的 Store 的所有查询都带 owner_id 条件，
// 访问他人会话时返回 apperr.ErrForbidden，且不携带任何数据。
type GormBackend struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormBackend 创建一个新的 GormBackend 实例。
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db, now: time.Now}
}

// AutoMigrate 创建或更新会话相关的表。
func (b *GormBackend) AutoMigrate() error {
	return b.db.AutoMigrate(&model.ChatSession{}, &model.ChatMessage{})
}

// ForOwner 返回绑定到 ownerID 的 Store。
func (b *GormBackend) ForOwner(ownerID uint) Store {
	return &gormStore{db: b.db, owner: ownerID, now: b.now}
}

type gormStore struct {
	db    *gorm.DB
	owner uint
	now   func() time.Time
}

var _ Store = (*gormStore)(nil)

func (s *gormStore) Scope() string { return OwnerScope(s.owner) }

func (s *gormStore) CreateSession(ctx context.Context, feature, title string) (*model.ChatSession, error) {
	if err := validateNew(feature, title); err != nil {
		return nil, err
	}
	sess := s.newSession(feature, title)
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, apperr.Persistence("create session", err)
	}
	return sess, nil
}

func (s *gormStore) OpenSession(ctx context.Context, feature, title string, user, bot model.ChatMessage) (*model.ChatSession, error) {
	if err := validateNew(feature, title); err != nil {
		return nil, err
	}
	if err := validateExchange(user, bot); err != nil {
		return nil, err
	}
	sess := s.newSession(feature, title)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sess).Error; err != nil {
			return err
		}
		msgs, err := s.insertExchange(tx, sess, 0, user, bot)
		if err != nil {
			return err
		}
		sess.Messages = msgs
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("open session", err)
	}
	return sess, nil
}

func (s *gormStore) AppendExchange(ctx context.Context, sessionID string, user, bot model.ChatMessage) (*model.ChatSession, error) {
	if err := validateExchange(user, bot); err != nil {
		return nil, err
	}
	var out *model.ChatSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.find(tx, sessionID)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&model.ChatMessage{}).Where("session_id = ?", sess.ID).Count(&count).Error; err != nil {
			return err
		}
		if _, err := s.insertExchange(tx, sess, int(count), user, bot); err != nil {
			return err
		}
		if err := tx.Order("position ASC").Where("session_id = ?", sess.ID).Find(&sess.Messages).Error; err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		if apperr.IsNotFound(err) || apperr.IsForbidden(err) {
			return nil, err
		}
		return nil, apperr.Persistence("append exchange", err)
	}
	return out, nil
}

func (s *gormStore) ListSessions(ctx context.Context, feature string) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND feature = ?", s.owner, feature).
		Order("updated_at DESC").Order("created_at DESC").Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, apperr.Transient("list sessions", err)
	}
	return sessions, nil
}

func (s *gormStore) LoadSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	db := s.db.WithContext(ctx)
	sess, err := s.find(db, sessionID)
	if err != nil {
		if apperr.IsNotFound(err) || apperr.IsForbidden(err) {
			return nil, err
		}
		return nil, apperr.Transient("load session", err)
	}
	if err := db.Where("session_id = ?", sess.ID).Order("position ASC").Find(&sess.Messages).Error; err != nil {
		return nil, apperr.Transient("load messages", err)
	}
	return sess, nil
}

func (s *gormStore) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.find(tx, sessionID)
		if err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sess.ID).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", sess.ID).Delete(&model.ChatSession{}).Error
	})
	switch {
	case err == nil, apperr.IsNotFound(err):
		return nil
	case apperr.IsForbidden(err):
		return err
	default:
		return apperr.Persistence("delete session", err)
	}
}

func (s *gormStore) newSession(feature, title string) *model.ChatSession {
	owner := s.owner
	now := s.now()
	return &model.ChatSession{
		ID:        uuid.NewString(),
		OwnerID:   &owner,
		Feature:   feature,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// find 按 id 读取会话行并校验归属。
func (s *gormStore) find(tx *gorm.DB, sessionID string) (*model.ChatSession, error) {
	var sess model.ChatSession
	err := tx.Where("id = ?", sessionID).Take(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if sess.OwnerID == nil || *sess.OwnerID != s.owner {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrForbidden)
	}
	return &sess, nil
}

// insertExchange 在事务中写入一轮问答并推进会话的 updated_at。
func (s *gormStore) insertExchange(tx *gorm.DB, sess *model.ChatSession, position int, user, bot model.ChatMessage) ([]model.ChatMessage, error) {
	now := s.now()
	msgs := []model.ChatMessage{user, bot}
	for i := range msgs {
		msgs[i].ID = 0
		msgs[i].SessionID = sess.ID
		msgs[i].Position = position + i
		if msgs[i].CreatedAt.IsZero() {
			msgs[i].CreatedAt = now
		}
	}
	if err := tx.Create(&msgs).Error; err != nil {
		return nil, err
	}
	sess.UpdatedAt = laterOf(sess.UpdatedAt, now)
	if err := tx.Model(&model.ChatSession{}).Where("id = ?", sess.ID).Update("updated_at", sess.UpdatedAt).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
