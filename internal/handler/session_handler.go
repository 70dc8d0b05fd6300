package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/feature"
	"biogenie-go/internal/middleware"
	"biogenie-go/internal/notify"
	"biogenie-go/internal/session"
	"biogenie-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SessionHandler 处理会话的列表、读取、创建、删除和刷新订阅。
type SessionHandler struct {
	selector *session.Selector
	hub      *notify.Hub
	features *feature.Registry
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(selector *session.Selector, hub *notify.Hub, features *feature.Registry) *SessionHandler {
	return &SessionHandler{selector: selector, hub: hub, features: features}
}

func (h *SessionHandler) store(c *gin.Context) (session.Store, bool) {
	store, err := h.selector.For(middleware.IdentityFrom(c))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return store, true
}

func (h *SessionHandler) feature(c *gin.Context, tag string) bool {
	if _, known := h.features.Get(tag); !known {
		fail(c, apperr.InvalidInput("unknown feature %q", tag))
		return false
	}
	return true
}

// List 处理 GET /sessions?feature=，按最近更新倒序返回不含消息的会话。
func (h *SessionHandler) List(c *gin.Context) {
	tag := c.Query("feature")
	if !h.feature(c, tag) {
		return
	}
	store, good := h.store(c)
	if !good {
		return
	}
	sessions, err := store.ListSessions(c.Request.Context(), tag)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sessions)
}

// Get 处理 GET /sessions/:id，返回会话和全部消息。
func (h *SessionHandler) Get(c *gin.Context) {
	store, good := h.store(c)
	if !good {
		return
	}
	sess, err := store.LoadSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sess)
}

// CreateSessionRequest 是新建空会话的请求体结构。
type CreateSessionRequest struct {
	Feature string `json:"feature" binding:"required"`
	Title   string `json:"title" binding:"required"`
}

// Create 处理 POST /sessions，创建一个空会话。
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：feature 和 title 不能为空")
		return
	}
	if !h.feature(c, req.Feature) {
		return
	}
	store, good := h.store(c)
	if !good {
		return
	}
	sess, err := store.CreateSession(c.Request.Context(), req.Feature, session.DeriveTitle(req.Title))
	if err != nil {
		fail(c, err)
		return
	}
	h.hub.Topic(store.Scope(), req.Feature).Publish()
	ok(c, sess)
}

// Delete 处理 DELETE /sessions/:id。会话不存在时同样返回成功。
func (h *SessionHandler) Delete(c *gin.Context) {
	store, good := h.store(c)
	if !good {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	// 先读出 feature 以便发布刷新信号
	var tag string
	if sess, err := store.LoadSession(ctx, id); err == nil {
		tag = sess.Feature
	} else if !apperr.IsNotFound(err) {
		fail(c, err)
		return
	}

	if err := store.DeleteSession(ctx, id); err != nil {
		fail(c, err)
		return
	}
	if tag != "" {
		h.hub.Topic(store.Scope(), tag).Publish()
	}
	ok(c, nil)
}

type refreshEvent struct {
	Type    string `json:"type"`
	Feature string `json:"feature"`
}

// Watch 处理 GET /sessions/watch?feature=，把调用者自己在该功能下的刷新信号推送到 WebSocket。
// 信号只表示"列表可能已变化"，客户端收到后自行重新拉取。
func (h *SessionHandler) Watch(c *gin.Context) {
	tag := c.Query("feature")
	if !h.feature(c, tag) {
		return
	}
	store, good := h.store(c)
	if !good {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[SessionHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[SessionHandler] 刷新订阅已建立, feature: %s", tag)

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, data)
	}

	payload, _ := json.Marshal(refreshEvent{Type: "refresh", Feature: tag})
	sub := h.hub.Topic(store.Scope(), tag).Subscribe(func() {
		if err := write(websocket.TextMessage, payload); err != nil {
			log.Warnf("[SessionHandler] 推送刷新信号失败: %v", err)
		}
	})
	defer sub.Unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Infof("[SessionHandler] 刷新订阅结束, feature: %s, reason: %v", tag, err)
			return
		}
	}
}
