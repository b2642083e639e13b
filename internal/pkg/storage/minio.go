package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinIOBlobStore struct {
	client *minio.Client
	cfg    *config.MinIOConfig // MinIO的配置信息
}

// NewMinIOBlobStore 创建并返回一个 MinIOBlobStore 实例
// 启动时确保存储桶存在
func NewMinIOBlobStore(cfg *config.MinIOConfig) (*MinIOBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL, // 根据配置决定是否使用 HTTPS
	})
	if err != nil {
		logger.Error("初始化 MinIO 客户端失败", zap.Error(err))
		return nil, fmt.Errorf("无法初始化 MinIO 客户端: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶存在性失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		logger.Info("MinIO 存储桶创建成功", zap.String("bucket", cfg.BucketName))
	}

	logger.Info("MinIO 客户端初始化成功", zap.String("endpoint", cfg.Endpoint))
	return &MinIOBlobStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *MinIOBlobStore) PutBlob(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutBlobResult, error) {
	info, err := s.client.PutObject(ctx, s.cfg.BucketName, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return PutBlobResult{}, fmt.Errorf("MinIO 上传文件失败: %w", err)
	}
	return PutBlobResult{
		Key:  info.Key,
		Size: info.Size,
		ETag: info.ETag,
	}, nil
}

func (s *MinIOBlobStore) GetBlob(ctx context.Context, key string) (GetBlobResult, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return GetBlobResult{}, fmt.Errorf("MinIO 获取文件失败: %w", err)
	}

	// GetObject 是惰性的，Stat 才会真正发请求，对象不存在在这里暴露
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isMinioNotFound(err) {
			return GetBlobResult{}, ErrContentMissing
		}
		return GetBlobResult{}, fmt.Errorf("获取 MinIO 对象信息失败: %w", err)
	}

	return GetBlobResult{
		Reader:   obj,
		Size:     stat.Size,
		MimeType: stat.ContentType,
	}, nil
}

func (s *MinIOBlobStore) RemoveBlob(ctx context.Context, key string) error {
	// MinIO 删除不存在的对象不报错，天然幂等
	err := s.client.RemoveObject(ctx, s.cfg.BucketName, key, minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return fmt.Errorf("MinIO 删除文件失败: %w", err)
	}
	return nil
}

func (s *MinIOBlobStore) BlobExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.BucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("检查 MinIO 对象存在性失败: %w", err)
	}
	return true, nil
}

func isMinioNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
