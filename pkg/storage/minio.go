// Package storage 提供了与对象存储服务（如 MinIO）交互的功能，
// 用于分发离线构建好的索引和元数据文件。
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore 在存储桶的 prefix 目录下保存索引产物。
type ArtifactStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewArtifactStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewArtifactStore(ctx context.Context, cfg config.MinIOConfig) (*ArtifactStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("[Storage] 存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	log.Infof("[Storage] MinIO 客户端初始化成功, bucket: %s", cfg.BucketName)
	return &ArtifactStore{client: client, bucket: cfg.BucketName, prefix: cfg.Prefix}, nil
}

// ObjectName 返回文件在桶中的对象名。
func (s *ArtifactStore) ObjectName(file string) string {
	return path.Join(s.prefix, file)
}

// Upload 上传单个本地文件，对象名取文件的 base name。
func (s *ArtifactStore) Upload(ctx context.Context, localPath string) error {
	object := s.ObjectName(filepath.Base(localPath))
	info, err := s.client.FPutObject(ctx, s.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	log.Infof("[Storage] 已上传 %s (%d bytes)", object, info.Size)
	return nil
}

// Download 把对象下载到 localPath。
func (s *ArtifactStore) Download(ctx context.Context, file, localPath string) error {
	object := s.ObjectName(file)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	if err := s.client.FGetObject(ctx, s.bucket, object, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s: %w", object, err)
	}
	log.Infof("[Storage] 已下载 %s -> %s", object, localPath)
	return nil
}

// FetchArtifacts 下载本地缺失的索引和元数据文件，已存在的文件不覆盖。
func (s *ArtifactStore) FetchArtifacts(ctx context.Context, dataDir, version string) error {
	for _, file := range artifactFiles(version) {
		local := filepath.Join(dataDir, file)
		if _, err := os.Stat(local); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := s.Download(ctx, file, local); err != nil {
			return err
		}
	}
	return nil
}

// UploadArtifacts 上传某个版本的索引和元数据文件。
func (s *ArtifactStore) UploadArtifacts(ctx context.Context, dataDir, version string) error {
	for _, file := range artifactFiles(version) {
		if err := s.Upload(ctx, filepath.Join(dataDir, file)); err != nil {
			return err
		}
	}
	return nil
}

func artifactFiles(version string) []string {
	return []string{config.IndexFileName(version), config.MetadataFileName(version)}
}

func contentType(p string) string {
	if filepath.Ext(p) == ".json" {
		return "application/json"
	}
	return "application/octet-stream"
}
