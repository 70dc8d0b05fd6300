package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"biogenie-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	channelPrefix = "biogenie:refresh:"
	outboxSize    = 256
	publishWait   = 2 * time.Second
)

// RedisRelay 把本地发布转发到 Redis pub/sub，并把其他实例的信号投递给本地订阅者。
// 自己发出的消息按 instance id 跳过。转发在后台 goroutine 中进行，Publish 不等待 Redis。
type RedisRelay struct {
	hub         *Hub
	redisClient *redis.Client
	instanceID  string
	outbox      chan relayMessage
}

type relayMessage struct {
	Origin  string `json:"origin"`
	Scope   string `json:"scope"`
	Feature string `json:"feature"`
}

// NewRedisRelay 创建一个新的 RedisRelay 并挂到 hub 上。Start 之前的信号最多缓存 outboxSize 条。
func NewRedisRelay(hub *Hub, redisClient *redis.Client) *RedisRelay {
	r := &RedisRelay{
		hub:         hub,
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		outbox:      make(chan relayMessage, outboxSize),
	}
	hub.setForward(r.forward)
	return r
}

// ChannelFor 返回 (scope, feature) 对应的 Redis 频道名。
func ChannelFor(scope, feature string) string {
	return channelPrefix + feature + ":" + scope
}

// forward 只入队，队列满时丢弃。
func (r *RedisRelay) forward(scope, feature string) {
	select {
	case r.outbox <- relayMessage{Origin: r.instanceID, Scope: scope, Feature: feature}:
	default:
		log.Warnf("[RedisRelay] 转发队列已满, 丢弃刷新信号, feature: %s", feature)
	}
}

// Start 订阅所有刷新频道并启动收发 goroutine，ctx 结束时退出。
// 返回时订阅已经生效。
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.redisClient.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe refresh channels: %w", err)
	}
	log.Infof("[RedisRelay] 已订阅刷新频道, instance: %s", r.instanceID)

	go r.publishLoop(ctx)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handle(msg)
			}
		}
	}()
	return nil
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-r.outbox:
			r.publish(ctx, m)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, m relayMessage) {
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishWait)
	defer cancel()
	if err := r.redisClient.Publish(ctx, ChannelFor(m.Scope, m.Feature), payload).Err(); err != nil {
		// 至多一次：丢失的信号由下一次写入补上
		log.Warnf("[RedisRelay] 转发刷新信号失败, feature: %s, error: %v", m.Feature, err)
	}
}

func (r *RedisRelay) handle(msg *redis.Message) {
	var m relayMessage
	if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
		log.Warnf("[RedisRelay] 无法解析刷新信号: %v", err)
		return
	}
	if m.Origin == r.instanceID || m.Scope == "" || m.Feature == "" {
		return
	}
	t := r.hub.Topic(m.Scope, m.Feature)
	t.deliver()
	r.hub.release(t)
}
