package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"
)

type AliyunOSSBlobStore struct {
	client *oss.Client
	cfg    *config.AliyunOSSConfig // 阿里云OSS的配置信息
}

// NewAliyunOSSBlobStore 创建并返回一个 AliyunOSSBlobStore 实例
func NewAliyunOSSBlobStore(cfg *config.AliyunOSSConfig) (*AliyunOSSBlobStore, error) {
	// OSS Endpoint 应该包含 http:// 或 https:// 前缀
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		logger.Error("初始化阿里云OSS客户端失败", zap.Error(err))
		return nil, fmt.Errorf("无法初始化阿里云OSS客户端: %w", err)
	}
	logger.Info("阿里云OSS客户端初始化成功", zap.String("endpoint", cfg.Endpoint))
	return &AliyunOSSBlobStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *AliyunOSSBlobStore) bucket() (*oss.Bucket, error) {
	bucket, err := s.client.Bucket(s.cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("获取OSS存储桶失败: %w", err)
	}
	return bucket, nil
}

func (s *AliyunOSSBlobStore) PutBlob(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutBlobResult, error) {
	bucket, err := s.bucket()
	if err != nil {
		return PutBlobResult{}, err
	}

	if err := bucket.PutObject(key, reader, oss.ContentType(contentType)); err != nil {
		return PutBlobResult{}, fmt.Errorf("阿里云OSS上传文件失败: %w", err)
	}

	// PutObject 本身不返回对象信息，沿用传入的大小
	return PutBlobResult{Key: key, Size: size}, nil
}

func (s *AliyunOSSBlobStore) GetBlob(ctx context.Context, key string) (GetBlobResult, error) {
	bucket, err := s.bucket()
	if err != nil {
		return GetBlobResult{}, err
	}

	reader, err := bucket.GetObject(key)
	if err != nil {
		if isOSSNotFound(err) {
			return GetBlobResult{}, ErrContentMissing
		}
		return GetBlobResult{}, fmt.Errorf("阿里云OSS获取文件失败: %w", err)
	}

	// 获取对象元数据以拿到大小和类型
	size := int64(-1)
	mimeType := ""
	props, err := bucket.GetObjectDetailedMeta(key)
	if err != nil {
		logger.Warn("获取OSS对象元数据失败", zap.String("object", key), zap.Error(err))
	} else {
		if val := props.Get(oss.HTTPHeaderContentLength); val != "" {
			size, _ = strconv.ParseInt(val, 10, 64)
		}
		mimeType = props.Get(oss.HTTPHeaderContentType)
	}

	return GetBlobResult{
		Reader:   reader,
		Size:     size,
		MimeType: mimeType,
	}, nil
}

func (s *AliyunOSSBlobStore) RemoveBlob(ctx context.Context, key string) error {
	bucket, err := s.bucket()
	if err != nil {
		return err
	}
	// OSS 删除不存在的对象返回成功，天然幂等
	if err := bucket.DeleteObject(key); err != nil {
		return fmt.Errorf("阿里云OSS删除文件失败: %w", err)
	}
	return nil
}

func (s *AliyunOSSBlobStore) BlobExists(ctx context.Context, key string) (bool, error) {
	bucket, err := s.bucket()
	if err != nil {
		return false, err
	}
	exists, err := bucket.IsObjectExist(key)
	if err != nil {
		return false, fmt.Errorf("检查OSS对象存在性失败: %w", err)
	}
	return exists, nil
}

func isOSSNotFound(err error) bool {
	if serviceErr, ok := err.(oss.ServiceError); ok {
		return serviceErr.StatusCode == 404
	}
	return false
}
