package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
)

// RedisBackend 把访客会话以 JSON 形式保存在 Redis 中，带 TTL，
// 适用于多实例部署下访客请求可能落到不同实例的场景。
//
// 键布局：
//
//	session:{id}                       会话 JSON（含消息）
//	guest:{guestKey}:sessions:{feature} ZSET，member 为会话 id，score 为 updated_at
type RedisBackend struct {
	redisClient *redis.Client
	ttl         time.Duration
	now         func() time.Time
}

// NewRedisBackend 创建一个新的 RedisBackend 实例。
func NewRedisBackend(redisClient *redis.Client, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisBackend{redisClient: redisClient, ttl: ttl, now: time.Now}
}

// ForGuest 返回绑定到访客上下文的 Store。
func (b *RedisBackend) ForGuest(guestKey string) Store {
	return &redisStore{backend: b, guest: guestKey}
}

// redisSession 是 Redis 中的存储格式；GuestKey 在模型里不对外序列化，这里单独保存。
type redisSession struct {
	ID        string              `json:"id"`
	GuestKey  string              `json:"guestKey"`
	Feature   string              `json:"feature"`
	Title     string              `json:"title"`
	Messages  []model.ChatMessage `json:"messages"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func (r *redisSession) toModel(withMessages bool) *model.ChatSession {
	s := &model.ChatSession{
		ID:        r.ID,
		GuestKey:  r.GuestKey,
		Feature:   r.Feature,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if withMessages {
		s.Messages = make([]model.ChatMessage, len(r.Messages))
		for i, m := range r.Messages {
			m.SessionID = r.ID
			m.Position = i
			s.Messages[i] = m
		}
	}
	return s
}

type redisStore struct {
	backend *RedisBackend
	guest   string
}

var _ Store = (*redisStore)(nil)

func (s *redisStore) Scope() string { return GuestScope(s.guest) }

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func (s *redisStore) indexKey(feature string) string {
	return fmt.Sprintf("guest:%s:sessions:%s", s.guest, feature)
}

func (s *redisStore) CreateSession(ctx context.Context, feature, title string) (*model.ChatSession, error) {
	if err := validateNew(feature, title); err != nil {
		return nil, err
	}
	rec := s.newRecord(feature, title)
	if err := s.save(ctx, rec); err != nil {
		return nil, apperr.Persistence("create session", err)
	}
	return rec.toModel(false), nil
}

func (s *redisStore) OpenSession(ctx context.Context, feature, title string, user, bot model.ChatMessage) (*model.ChatSession, error) {
	if err := validateNew(feature, title); err != nil {
		return nil, err
	}
	if err := validateExchange(user, bot); err != nil {
		return nil, err
	}
	rec := s.newRecord(feature, title)
	s.appendTo(rec, user, bot)
	if err := s.save(ctx, rec); err != nil {
		return nil, apperr.Persistence("open session", err)
	}
	return rec.toModel(true), nil
}

func (s *redisStore) AppendExchange(ctx context.Context, sessionID string, user, bot model.ChatMessage) (*model.ChatSession, error) {
	if err := validateExchange(user, bot); err != nil {
		return nil, err
	}
	rec, err := s.get(ctx, sessionID)
	if err != nil {
		if apperr.IsNotFound(err) || apperr.IsForbidden(err) {
			return nil, err
		}
		return nil, apperr.Persistence("append exchange", err)
	}
	s.appendTo(rec, user, bot)
	if err := s.save(ctx, rec); err != nil {
		return nil, apperr.Persistence("append exchange", err)
	}
	return rec.toModel(true), nil
}

func (s *redisStore) ListSessions(ctx context.Context, feature string) ([]model.ChatSession, error) {
	rdb := s.backend.redisClient
	index := s.indexKey(feature)
	ids, err := rdb.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, apperr.Transient("list sessions", err)
	}
	out := make([]model.ChatSession, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.Transient("list sessions", err)
	}
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// 会话已过期，索引中的残留顺手清理
			expired = append(expired, ids[i])
			continue
		}
		var rec redisSession
		if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.GuestKey != s.guest {
			continue
		}
		out = append(out, *rec.toModel(false))
	}
	if len(expired) > 0 {
		_ = rdb.ZRem(ctx, index, expired...).Err()
	}
	sortByRecency(out)
	return out, nil
}

func (s *redisStore) LoadSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	rec, err := s.get(ctx, sessionID)
	if err != nil {
		if apperr.IsNotFound(err) || apperr.IsForbidden(err) {
			return nil, err
		}
		return nil, apperr.Transient("load session", err)
	}
	return rec.toModel(true), nil
}

func (s *redisStore) DeleteSession(ctx context.Context, sessionID string) error {
	rec, err := s.get(ctx, sessionID)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		if apperr.IsForbidden(err) {
			return err
		}
		return apperr.Persistence("delete session", err)
	}
	_, err = s.backend.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(rec.ID))
		pipe.ZRem(ctx, s.indexKey(rec.Feature), rec.ID)
		return nil
	})
	if err != nil {
		return apperr.Persistence("delete session", err)
	}
	return nil
}

func (s *redisStore) newRecord(feature, title string) *redisSession {
	now := s.backend.now()
	return &redisSession{
		ID:        ulid.Make().String(),
		GuestKey:  s.guest,
		Feature:   feature,
		Title:     title,
		Messages:  []model.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *redisStore) appendTo(rec *redisSession, user, bot model.ChatMessage) {
	now := s.backend.now()
	for _, m := range []model.ChatMessage{user, bot} {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		rec.Messages = append(rec.Messages, m)
	}
	rec.UpdatedAt = laterOf(rec.UpdatedAt, now)
}

// get 读取会话并校验访客归属。
func (s *redisStore) get(ctx context.Context, sessionID string) (*redisSession, error) {
	raw, err := s.backend.redisClient.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var rec redisSession
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if rec.GuestKey != s.guest {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrForbidden)
	}
	return &rec, nil
}

// save 在一个 MULTI/EXEC 中写入会话体并刷新索引与 TTL，两者要么都成功要么都不生效。
func (s *redisStore) save(ctx context.Context, rec *redisSession) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := s.backend.ttl
	index := s.indexKey(rec.Feature)
	_, err = s.backend.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(rec.ID), data, ttl)
		pipe.ZAdd(ctx, index, &redis.Z{Score: float64(rec.UpdatedAt.UnixNano()), Member: rec.ID})
		pipe.Expire(ctx, index, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
