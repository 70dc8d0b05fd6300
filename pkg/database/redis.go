package database

import (
	"context"

	"biogenie-go/internal/config"
	"biogenie-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// NewRedis 按配置构造 Redis 客户端，不做网络请求。
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) {
	RDB = NewRedis(cfg)

	// 测试连接
	if err := RDB.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
