// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
//
// 来源 PDF 按年级放在 class_<N>/ 目录下，例如 class_10/genetic_engineering.pdf。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"biogenie-go/internal/config"
	"biogenie-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

const classPrefix = "class_"

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error
	MinioClient, err = NewClient(cfg)
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := MinioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
}

// NewClient 按配置构造客户端，不做网络请求。
func NewClient(cfg config.MinIOConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
}

// SourceObject 是存储桶中的一个来源文件。
type SourceObject struct {
	Name     string // 完整对象名
	Source   string // 文件名，用作分块的 Source
	Category string
}

// CategoryOf 从 class_<N>/file.pdf 形式的对象名中解析年级。
func CategoryOf(objectName string) (category, source string, ok bool) {
	dir, file := path.Split(objectName)
	dir = strings.TrimSuffix(dir, "/")
	if file == "" || strings.Contains(dir, "/") || !strings.HasPrefix(dir, classPrefix) {
		return "", "", false
	}
	category = strings.TrimPrefix(dir, classPrefix)
	if category == "" {
		return "", "", false
	}
	return category, file, true
}

// ListSources 列出 categories 对应目录下的全部 PDF。
func ListSources(ctx context.Context, client *minio.Client, bucket string, categories []string) ([]SourceObject, error) {
	var out []SourceObject
	for _, cat := range categories {
		prefix := classPrefix + cat + "/"
		for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
			if obj.Err != nil {
				return nil, fmt.Errorf("列出 %s/%s 失败: %w", bucket, prefix, obj.Err)
			}
			if !strings.EqualFold(path.Ext(obj.Key), ".pdf") {
				continue
			}
			category, source, ok := CategoryOf(obj.Key)
			if !ok {
				continue
			}
			out = append(out, SourceObject{Name: obj.Key, Source: source, Category: category})
		}
	}
	log.Infof("[Storage] 存储桶 '%s' 中找到 %d 个来源文件", bucket, len(out))
	return out, nil
}

// FetchObject 下载整个对象。
func FetchObject(ctx context.Context, client *minio.Client, bucket, objectName string) ([]byte, error) {
	object, err := client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	return buf.Bytes(), nil
}

// Fetcher 把全局客户端适配为导入流程使用的下载接口。
type Fetcher struct {
	Client *minio.Client
}

// Fetch 下载 bucket 中的对象。
func (f Fetcher) Fetch(ctx context.Context, bucket, objectName string) ([]byte, error) {
	return FetchObject(ctx, f.Client, bucket, objectName)
}
