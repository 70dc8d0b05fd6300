// Package notify 提供按 (身份, 功能) 划分的会话列表刷新信号。
//
// 写入方在会话创建、追加或删除成功后调用 Topic.Publish；观察方通过 Subscribe
// 注册回调，收到信号后重新拉取列表。投递至多一次、不等待、会合并：
// 回调尚未处理完时到达的多个信号只会再触发一次回调。
// 一个身份的写入只会通知同一身份的观察方。
package notify

import (
	"sync"
)

type topicKey struct {
	scope   string
	feature string
}

// Hub 持有所有 Topic。同一个 Hub 需同时传给写入方和观察方。
type Hub struct {
	mu      sync.Mutex
	topics  map[topicKey]*Topic
	forward func(scope, feature string)
}

// NewHub 创建一个新的 Hub 实例。
func NewHub() *Hub {
	return &Hub{topics: make(map[topicKey]*Topic)}
}

// Topic 返回 scope 下 feature 对应的 Topic，不存在时创建。
// scope 是身份的分区键（见 session.Identity.Scope）。
func (h *Hub) Topic(scope, feature string) *Topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := topicKey{scope: scope, feature: feature}
	t, ok := h.topics[key]
	if !ok {
		t = &Topic{scope: scope, feature: feature, hub: h, subs: make(map[uint64]*Subscription)}
		h.topics[key] = t
	}
	return t
}

// release 回收没有订阅者的 Topic。
func (h *Hub) release(t *Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := topicKey{scope: t.scope, feature: t.feature}
	if h.topics[key] == t && t.Subscribers() == 0 {
		delete(h.topics, key)
	}
}

// Topics 返回当前持有的 Topic 数量。
func (h *Hub) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// setForward 注册本地发布后的转发函数，供跨实例中继使用。
func (h *Hub) setForward(fn func(scope, feature string)) {
	h.mu.Lock()
	h.forward = fn
	h.mu.Unlock()
}

func (h *Hub) forwarder() func(scope, feature string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.forward
}

// Topic 是单个身份在单个功能下的发布订阅点。
type Topic struct {
	scope   string
	feature string
	hub     *Hub

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// Feature 返回 Topic 对应的功能标签。
func (t *Topic) Feature() string {
	return t.feature
}

// Scope 返回 Topic 所属的身份分区键。
func (t *Topic) Scope() string {
	return t.scope
}

// Publish 通知所有订阅者重新拉取，并在配置了中继时转发到其他实例。不会阻塞。
func (t *Topic) Publish() {
	t.deliver()
	t.hub.release(t)
	if fn := t.hub.forwarder(); fn != nil {
		fn(t.scope, t.feature)
	}
}

// deliver 只做本地投递。
func (t *Topic) deliver() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		select {
		case s.signal <- struct{}{}:
		default:
			// 已有待处理信号，合并
		}
	}
}

// Subscribe 注册回调。回调在订阅自己的 goroutine 中串行执行，应当幂等。
func (t *Topic) Subscribe(handler func()) *Subscription {
	// 以 Hub 中登记的实例为准，Topic 可能已在最后一个订阅者离开时被回收
	h := t.hub
	h.mu.Lock()
	key := topicKey{scope: t.scope, feature: t.feature}
	if cur, ok := h.topics[key]; ok {
		t = cur
	} else {
		h.topics[key] = t
	}
	s := &Subscription{
		topic:  t,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	t.mu.Lock()
	t.nextID++
	s.id = t.nextID
	t.subs[s.id] = s
	t.mu.Unlock()
	h.mu.Unlock()

	go s.loop(handler)
	return s
}

// Subscribers 返回当前订阅者数量。
func (t *Topic) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Subscription 是一次订阅，调用 Unsubscribe 结束。
type Subscription struct {
	topic  *Topic
	id     uint64
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) loop(handler func()) {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			select {
			case <-s.done:
				return
			default:
			}
			handler()
		}
	}
}

// Unsubscribe 停止接收信号，可重复调用。
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		delete(s.topic.subs, s.id)
		s.topic.mu.Unlock()
		close(s.done)
		s.topic.hub.release(s.topic)
	})
}
