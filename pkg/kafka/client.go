// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"biogenie-go/internal/config"
	"biogenie-go/pkg/log"
	"biogenie-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor 处理一个导入任务，与具体的导入流程解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ChunkIngestTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 刷新并关闭生产者。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// ProduceIngestTask 发送一个导入任务，同一来源的任务落在同一分区。
func ProduceIngestTask(ctx context.Context, task tasks.ChunkIngestTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

// AttemptTracker 用 Redis 记录任务失败次数，达到上限后放弃重试。
type AttemptTracker struct {
	rdb         *redis.Client
	maxAttempts int64
	ttl         time.Duration
}

// NewAttemptTracker 创建一个新的 AttemptTracker。maxAttempts <= 0 时取 3。
func NewAttemptTracker(rdb *redis.Client, maxAttempts int) *AttemptTracker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &AttemptTracker{rdb: rdb, maxAttempts: int64(maxAttempts), ttl: 24 * time.Hour}
}

func attemptsKey(task tasks.ChunkIngestTask) string {
	return fmt.Sprintf("kafka:attempts:%s", task.Key())
}

// Fail 记录一次失败，返回是否应当放弃该任务。
func (a *AttemptTracker) Fail(ctx context.Context, task tasks.ChunkIngestTask) (bool, error) {
	key := attemptsKey(task)
	attempts, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	_ = a.rdb.Expire(ctx, key, a.ttl).Err()
	return attempts >= a.maxAttempts, nil
}

// Reset 清理失败计数。
func (a *AttemptTracker) Reset(ctx context.Context, task tasks.ChunkIngestTask) {
	_ = a.rdb.Del(ctx, attemptsKey(task)).Err()
}

// StartConsumer 启动一个 Kafka 消费者来处理导入任务，直到 ctx 结束或读取失败。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, tracker *AttemptTracker) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if handleMessage(ctx, m.Value, processor, tracker) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// handleMessage 处理单条消息，返回是否应提交 offset。
// 处理失败且未达到上限时不提交，让 Kafka 重新投递。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, tracker *AttemptTracker) bool {
	var task tasks.ChunkIngestTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("开始处理导入任务: %s", task.Key())
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理导入任务失败: %s, Error: %v", task.Key(), err)
		giveUp, incErr := tracker.Fail(ctx, task)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			log.Warnf("记录失败次数出错: %v", incErr)
			return false
		}
		if giveUp {
			log.Errorf("导入任务多次失败(>=%d)，提交 offset 终止重试: %s", tracker.maxAttempts, task.Key())
			return true
		}
		return false
	}

	log.Infof("导入任务处理成功: %s", task.Key())
	tracker.Reset(ctx, task)
	return true
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
