// Package main 是离线导入工具的入口：本地文件、存储桶批量投递和队列消费者。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"biogenie-go/internal/config"
	"biogenie-go/internal/model"
	"biogenie-go/internal/pipeline"
	"biogenie-go/internal/repository"
	"biogenie-go/pkg/database"
	"biogenie-go/pkg/embedding"
	"biogenie-go/pkg/es"
	"biogenie-go/pkg/kafka"
	"biogenie-go/pkg/log"
	"biogenie-go/pkg/storage"
	"biogenie-go/pkg/tasks"
	"biogenie-go/pkg/tika"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load textbook PDFs into the chunk store",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init(configPath)
		log.Init(config.Conf.Log.Level, config.Conf.Log.Format, config.Conf.Log.OutputPath)
		database.InitDB(config.Conf.Database)
		if err := database.DB.AutoMigrate(&model.ContentChunk{}); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "config file path")

	fileCmd := &cobra.Command{
		Use:   "file",
		Short: "Ingest one local file",
		Run:   runFile,
	}
	fileCmd.Flags().String("path", "", "file to ingest")
	fileCmd.Flags().String("category", "", "category tag, e.g. class_10")
	fileCmd.Flags().String("group", "", "chapter name (default: derived from the file name)")
	_ = fileCmd.MarkFlagRequired("path")
	_ = fileCmd.MarkFlagRequired("category")

	bucketCmd := &cobra.Command{
		Use:   "bucket",
		Short: "Scan the bucket and enqueue every source not yet ingested",
		Run:   runBucket,
	}
	bucketCmd.Flags().Bool("direct", false, "process inline instead of producing Kafka tasks")
	bucketCmd.Flags().Bool("force", false, "re-ingest sources that already have chunks")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume ingest tasks from Kafka",
		Run:   runWorker,
	}

	rootCmd.AddCommand(fileCmd, bucketCmd, workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func exitErr(msg string, err error) {
	log.Error(msg, err)
	log.Sync()
	os.Exit(1)
}

// newProcessor 按配置组装导入流程；withStorage 为 true 时连接 MinIO。
func newProcessor(withStorage bool) *pipeline.Processor {
	cfg := config.Conf

	var fetcher pipeline.Fetcher
	if withStorage {
		storage.InitMinIO(cfg.MinIO)
		fetcher = storage.Fetcher{Client: storage.MinioClient}
	}

	var indexer pipeline.Indexer
	if cfg.Search.Backend == "elasticsearch" {
		if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
			exitErr("es 初始化失败", err)
		}
		indexer = es.ChunkIndexer{Client: es.ESClient, Index: cfg.Elasticsearch.IndexName}
	}

	return pipeline.NewProcessor(
		tika.NewClient(cfg.Tika),
		embedding.NewClient(cfg.Embedding),
		repository.NewChunkRepository(database.DB),
		fetcher,
		indexer,
		cfg.Ingest,
		cfg.RAG.Categories,
	)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runFile(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("path")
	category, _ := cmd.Flags().GetString("category")
	group, _ := cmd.Flags().GetString("group")

	ctx, cancel := signalContext()
	defer cancel()

	n, err := newProcessor(false).IngestFile(ctx, path, category, group)
	if err != nil {
		exitErr("导入文件失败", err)
	}
	fmt.Printf("ingested %s: %d chunks\n", path, n)
}

func runBucket(cmd *cobra.Command, args []string) {
	direct, _ := cmd.Flags().GetBool("direct")
	force, _ := cmd.Flags().GetBool("force")
	cfg := config.Conf

	ctx, cancel := signalContext()
	defer cancel()

	processor := newProcessor(true)
	sources, err := storage.ListSources(ctx, storage.MinioClient, cfg.MinIO.BucketName, cfg.RAG.Categories)
	if err != nil {
		exitErr("列出存储桶对象失败", err)
	}
	log.Infof("[Ingest] 存储桶 %s 中共发现 %d 个来源文件", cfg.MinIO.BucketName, len(sources))

	if !direct {
		kafka.InitProducer(cfg.Kafka)
		defer func() {
			if err := kafka.CloseProducer(); err != nil {
				log.Warnf("[Ingest] 关闭 Kafka 生产者失败: %v", err)
			}
		}()
	}

	var queued, skipped, failed int
	for _, obj := range sources {
		if !force {
			done, err := processor.AlreadyIngested(ctx, obj.Source, obj.Category)
			if err != nil {
				exitErr("查询已导入来源失败", err)
			}
			if done {
				skipped++
				continue
			}
		}

		task := tasks.ChunkIngestTask{
			Bucket:     cfg.MinIO.BucketName,
			ObjectName: obj.Name,
			Source:     obj.Source,
			Category:   obj.Category,
			Group:      pipeline.GuessGroup(obj.Source),
		}
		if direct {
			err = processor.Process(ctx, task)
		} else {
			err = kafka.ProduceIngestTask(ctx, task)
		}
		if err != nil {
			log.Errorf("[Ingest] 处理 %s 失败: %v", obj.Name, err)
			failed++
			continue
		}
		queued++
	}
	fmt.Printf("bucket %s: %d processed, %d skipped, %d failed\n", cfg.MinIO.BucketName, queued, skipped, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) {
	cfg := config.Conf

	ctx, cancel := signalContext()
	defer cancel()

	database.InitRedis(cfg.Database.Redis)
	tracker := kafka.NewAttemptTracker(database.RDB, cfg.Kafka.MaxAttempts)

	log.Infof("[Ingest] 消费者启动, topic=%s, group=%s", cfg.Kafka.Topic, cfg.Kafka.GroupID)
	if err := kafka.StartConsumer(ctx, cfg.Kafka, newProcessor(true), tracker); err != nil && ctx.Err() == nil {
		exitErr("消费者异常退出", err)
	}
	log.Info("[Ingest] 消费者已停止")
}
