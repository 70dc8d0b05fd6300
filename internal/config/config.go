// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Search        SearchConfig        `mapstructure:"search"`
	Sessions      SessionsConfig      `mapstructure:"sessions"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Health        HealthConfig        `mapstructure:"health"`
	Features      FeaturesConfig      `mapstructure:"features"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
// Driver 取值 mysql（生产）或 sqlite（单机/开发）。
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储 SQLite 数据库文件路径。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型（合成网关）相关的配置。
type LLMConfig struct {
	APIKey            string              `mapstructure:"api_key"`
	BaseURL           string              `mapstructure:"base_url"`
	Model             string              `mapstructure:"model"`
	RequestsPerMinute int                 `mapstructure:"requests_per_minute"`
	Retry             RetryConfig         `mapstructure:"retry"`
	Generation        LLMGenerationConfig `mapstructure:"generation"`
	Prompt            LLMPromptConfig     `mapstructure:"prompt"`
}

// RetryConfig 描述有界重试：固定次数、每次等待 Delay*attempt。
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置上下文包裹格式（可选）。
type LLMPromptConfig struct {
	RefStart string `mapstructure:"ref_start"`
	RefEnd   string `mapstructure:"ref_end"`
}

// RAGConfig 检索增强问答的策略参数。
type RAGConfig struct {
	Threshold      float64  `mapstructure:"threshold"`
	TopK           int      `mapstructure:"top_k"`
	Categories     []string `mapstructure:"categories"`
	MaxQuestionLen int      `mapstructure:"max_question_len"`
	NotCoveredText string   `mapstructure:"not_covered_text"`
	RefusalText    string   `mapstructure:"refusal_text"`
}

// SearchConfig 选择相似度检索的实现：linear 或 elasticsearch。
type SearchConfig struct {
	Backend string `mapstructure:"backend"`
}

// SessionsConfig 会话存储配置。guest_backend 取值 memory 或 redis。
type SessionsConfig struct {
	GuestBackend  string        `mapstructure:"guest_backend"`
	GuestCapacity int           `mapstructure:"guest_capacity"`
	GuestTTL      time.Duration `mapstructure:"guest_ttl"`
}

// NotifyConfig 会话列表刷新信号的配置。
type NotifyConfig struct {
	RedisRelay bool `mapstructure:"redis_relay"`
}

// HealthConfig 就绪探针的有界重试参数。
type HealthConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// FeaturesConfig 指向可选的功能提示词覆盖文件（YAML）。
type FeaturesConfig struct {
	ProfilesFile string `mapstructure:"profiles_file"`
}

// IngestConfig 离线导入的切块与批量参数。
type IngestConfig struct {
	ChunkSize      int `mapstructure:"chunk_size"`
	ChunkOverlap   int `mapstructure:"chunk_overlap"`
	EmbedBatchSize int `mapstructure:"embed_batch_size"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 若工作目录下存在 .env，会先加载它，环境变量以 BIOGENIE_ 为前缀覆盖配置。
func Init(configPath string) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic(fmt.Errorf("读取 .env 失败: %w", err))
	}

	setDefaults(viper.GetViper())
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("BIOGENIE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// Watch 监听配置文件变化，重新解析后回调 onChange。
func Watch(onChange func(Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var next Config
		if err := viper.Unmarshal(&next); err != nil {
			return
		}
		Conf = next
		onChange(next)
	})
	viper.WatchConfig()
}

// Load 从给定路径读取配置而不修改全局状态，供 CLI 与测试使用。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.sqlite.path", "data/biogenie.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.group_id", "biogenie-ingest")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("elasticsearch.index_name", "content_chunks")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("llm.retry.attempts", 3)
	v.SetDefault("llm.retry.delay", 2*time.Second)
	v.SetDefault("rag.threshold", 0.3)
	v.SetDefault("rag.top_k", 7)
	v.SetDefault("rag.categories", []string{"9", "10", "11", "12"})
	v.SetDefault("rag.max_question_len", 500)
	v.SetDefault("rag.not_covered_text", "This topic is not available in the official Biotechnology notes.")
	v.SetDefault("rag.refusal_text", "This topic is not available in the official Biotechnology notes.")
	v.SetDefault("search.backend", "linear")
	v.SetDefault("sessions.guest_backend", "memory")
	v.SetDefault("sessions.guest_capacity", 1000)
	v.SetDefault("sessions.guest_ttl", 7*24*time.Hour)
	v.SetDefault("health.attempts", 3)
	v.SetDefault("health.delay", time.Second)
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 150)
	v.SetDefault("ingest.embed_batch_size", 32)
}
