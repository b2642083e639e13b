package storage

import (
	"context"
	"errors"
	"io"

	"github.com/3Eeeecho/go-flashshare/internal/config"
)

// ErrContentMissing 存活记录引用的内容在存储中不存在
// 这是内部一致性故障，和"记录不存在"严格区分，绝不能被吞成 NotFound
var ErrContentMissing = errors.New("blob content missing")

// BlobStore 定义了分享内容的存储操作接口
// RemoveBlob 必须幂等：同一条记录的删除可能从浏览路径和清理路径各来一次
type BlobStore interface {
	// 写入内容，返回写入结果
	PutBlob(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutBlobResult, error)
	// 读取内容，key 不存在时返回 ErrContentMissing
	GetBlob(ctx context.Context, key string) (GetBlobResult, error)
	// 删除内容，key 不存在时是无害的空操作
	RemoveBlob(ctx context.Context, key string) error
	// 检查内容是否存在
	BlobExists(ctx context.Context, key string) (bool, error)
}

type PutBlobResult struct {
	Key  string
	Size int64
	ETag string // 对象哈希值，本地后端为空
}

type GetBlobResult struct {
	Reader   io.ReadCloser // 内容读取器，使用后需要关闭
	Size     int64         // 未知时为 -1
	MimeType string        // 后端不保存时为空，以记录里的为准
}

// NewBlobStore 根据配置选择存储后端
func NewBlobStore(cfg *config.Config) (BlobStore, error) {
	switch cfg.Storage.Type {
	case "local":
		return NewLocalBlobStore(&cfg.Storage)
	case "minio":
		return NewMinIOBlobStore(&cfg.MinIO)
	case "aliyun_oss":
		return NewAliyunOSSBlobStore(&cfg.AliyunOSS)
	default:
		return nil, errors.New("invalid storage type: " + cfg.Storage.Type)
	}
}
