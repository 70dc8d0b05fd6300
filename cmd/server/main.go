// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biogenie-go/internal/config"
	"biogenie-go/internal/feature"
	"biogenie-go/internal/handler"
	"biogenie-go/internal/middleware"
	"biogenie-go/internal/model"
	"biogenie-go/internal/notify"
	"biogenie-go/internal/repository"
	"biogenie-go/internal/search"
	"biogenie-go/internal/service"
	"biogenie-go/internal/session"
	"biogenie-go/pkg/database"
	"biogenie-go/pkg/embedding"
	"biogenie-go/pkg/es"
	"biogenie-go/pkg/llm"
	"biogenie-go/pkg/log"
	"biogenie-go/pkg/retry"
	"biogenie-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := "./configs/config.yaml"
	if p := os.Getenv("BIOGENIE_CONFIG"); p != "" {
		configPath = p
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 配置文件变化时只热更新日志级别，其余配置需要重启
	config.Watch(func(next config.Config) {
		log.SetLevel(next.Log.Level)
		log.Infof("配置已重新加载, log.level=%s", next.Log.Level)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database)
	if err := database.DB.AutoMigrate(&model.User{}, &model.ContentChunk{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	durable := session.NewGormBackend(database.DB)
	if err := durable.AutoMigrate(); err != nil {
		log.Fatal("会话表迁移失败", err)
	}
	needRedis := cfg.Sessions.GuestBackend == "redis" || cfg.Notify.RedisRelay
	if needRedis {
		database.InitRedis(cfg.Database.Redis)
	}

	// 4. 会话存储：登录用户走数据库，访客走内存或 Redis
	var guests session.GuestBackend
	switch cfg.Sessions.GuestBackend {
	case "redis":
		guests = session.NewRedisBackend(database.RDB, cfg.Sessions.GuestTTL)
	case "", "memory":
		guests = session.NewMemoryBackend(cfg.Sessions.GuestCapacity)
	default:
		log.Fatalf("未知的 sessions.guest_backend: %s", cfg.Sessions.GuestBackend)
	}
	selector := session.NewSelector(durable, guests)
	log.Infof("会话存储就绪, guest_backend=%s", cfg.Sessions.GuestBackend)

	// 5. 刷新信号
	hub := notify.NewHub()
	if cfg.Notify.RedisRelay {
		relay := notify.NewRedisRelay(hub, database.RDB)
		if err := relay.Start(ctx); err != nil {
			log.Fatal("启动刷新信号中继失败", err)
		}
	}

	// 6. 检索引擎
	chunkRepo := repository.NewChunkRepository(database.DB)
	probes := map[string]service.Probe{
		"database": func(ctx context.Context) error { return database.Ping(ctx, database.DB) },
	}
	if needRedis {
		probes["redis"] = func(ctx context.Context) error { return database.RDB.Ping(ctx).Err() }
	}

	var engine search.Engine
	var linear *search.LinearEngine
	switch cfg.Search.Backend {
	case "elasticsearch":
		if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
			log.Fatal("es 初始化失败", err)
		}
		engine = search.NewElasticEngine(es.ESClient, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions)
		probes["elasticsearch"] = func(ctx context.Context) error { return es.Ping(ctx, es.ESClient) }
	case "", "linear":
		linear = search.NewLinearEngine(chunkRepo, cfg.Embedding.Dimensions)
		if err := linear.Reload(ctx); err != nil {
			log.Fatal("加载分块快照失败", err)
		}
		log.Infof("分块快照已加载, 共 %d 块", linear.Len())
		engine = linear
	default:
		log.Fatalf("未知的 search.backend: %s", cfg.Search.Backend)
	}

	// 7. 功能配置
	features := feature.Defaults()
	if cfg.Features.ProfilesFile != "" {
		var err error
		features, err = feature.LoadOverrides(features, cfg.Features.ProfilesFile)
		if err != nil {
			log.Fatal("加载功能配置失败", err)
		}
	}

	// 8. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	policy := service.PolicyFromConfig(cfg.RAG)

	userService := service.NewUserService(repository.NewUserRepository(database.DB), jwtManager)
	searchService := service.NewSearchService(embeddingClient, engine, policy)
	healthService := service.NewHealthService(chunkRepo, probes, retry.Policy{Attempts: cfg.Health.Attempts, Delay: cfg.Health.Delay})
	exchangeService, err := service.NewExchangeService(
		embeddingClient,
		engine,
		service.NewLLMGateway(llmClient, cfg.LLM.Prompt),
		features,
		hub,
		policy,
	)
	if err != nil {
		log.Fatal("初始化问答服务失败", err)
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, handler.Handlers{
		User:     handler.NewUserHandler(userService),
		Auth:     handler.NewAuthHandler(userService),
		Exchange: handler.NewExchangeHandler(exchangeService, selector, features),
		Session:  handler.NewSessionHandler(selector, hub, features),
		Search:   handler.NewSearchHandler(searchService),
		Health:   handler.NewHealthHandler(healthService),
	}, jwtManager)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// SIGHUP 重新加载分块快照，用于离线导入之后
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig != syscall.SIGHUP {
			break
		}
		if linear == nil {
			continue
		}
		if err := linear.Reload(ctx); err != nil {
			log.Errorf("重新加载分块快照失败: %v", err)
			continue
		}
		log.Infof("分块快照已重新加载, 共 %d 块", linear.Len())
	}
	log.Info("接收到停机信号，正在关闭服务...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
