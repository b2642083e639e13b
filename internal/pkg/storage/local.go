package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const gzipSuffix = ".gz"

// LocalBlobStore 本地磁盘存储后端，默认后端
// 开启 compress 后内容 gzip 落盘，读取时透明解压
type LocalBlobStore struct {
	basePath string
	compress bool
}

// NewLocalBlobStore 创建本地磁盘存储实例，启动时确保根目录存在
func NewLocalBlobStore(cfg *config.StorageConfig) (*LocalBlobStore, error) {
	if err := os.MkdirAll(cfg.LocalBasePath, 0o755); err != nil {
		logger.Error("创建本地存储目录失败", zap.String("path", cfg.LocalBasePath), zap.Error(err))
		return nil, fmt.Errorf("创建本地存储目录失败: %w", err)
	}
	logger.Info("本地存储初始化成功",
		zap.String("basePath", cfg.LocalBasePath),
		zap.Bool("compress", cfg.Compress))
	return &LocalBlobStore{
		basePath: cfg.LocalBasePath,
		compress: cfg.Compress,
	}, nil
}

// blobPath 拼出磁盘路径，key 取 Base 防止路径穿越
func (s *LocalBlobStore) blobPath(key string) string {
	return filepath.Join(s.basePath, filepath.Base(key))
}

func (s *LocalBlobStore) PutBlob(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutBlobResult, error) {
	path := s.blobPath(key)
	if s.compress {
		path += gzipSuffix
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return PutBlobResult{}, fmt.Errorf("创建本地文件失败: %w", err)
	}

	var dst io.Writer = f
	var gzw *gzip.Writer
	if s.compress {
		gzw = gzip.NewWriter(f)
		dst = gzw
	}

	written, err := io.Copy(dst, reader)
	if err == nil && gzw != nil {
		err = gzw.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// 写了一半的文件没有价值，顺手清掉
		_ = os.Remove(path)
		return PutBlobResult{}, fmt.Errorf("写入本地文件失败: %w", err)
	}

	return PutBlobResult{Key: key, Size: written}, nil
}

func (s *LocalBlobStore) GetBlob(ctx context.Context, key string) (GetBlobResult, error) {
	// 先找未压缩的，再找 gzip 的，兼容中途切换 compress 配置
	path := s.blobPath(key)
	if f, err := os.Open(path); err == nil {
		info, serr := f.Stat()
		size := int64(-1)
		if serr == nil {
			size = info.Size()
		}
		return GetBlobResult{Reader: f, Size: size}, nil
	} else if !os.IsNotExist(err) {
		return GetBlobResult{}, fmt.Errorf("打开本地文件失败: %w", err)
	}

	f, err := os.Open(path + gzipSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return GetBlobResult{}, ErrContentMissing
		}
		return GetBlobResult{}, fmt.Errorf("打开本地文件失败: %w", err)
	}
	gzr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return GetBlobResult{}, fmt.Errorf("读取压缩内容失败: %w", err)
	}
	// 解压后大小未知
	return GetBlobResult{Reader: &gzipReadCloser{gzr: gzr, f: f}, Size: -1}, nil
}

func (s *LocalBlobStore) RemoveBlob(ctx context.Context, key string) error {
	path := s.blobPath(key)
	for _, p := range []string{path, path + gzipSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除本地文件失败: %w", err)
		}
	}
	return nil
}

func (s *LocalBlobStore) BlobExists(ctx context.Context, key string) (bool, error) {
	path := s.blobPath(key)
	for _, p := range []string{path, path + gzipSuffix} {
		if _, err := os.Stat(p); err == nil {
			return true, nil
		} else if !os.IsNotExist(err) {
			return false, fmt.Errorf("检查本地文件失败: %w", err)
		}
	}
	return false, nil
}

// gzipReadCloser 同时负责关闭解压器和底层文件
type gzipReadCloser struct {
	gzr *gzip.Reader
	f   *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.gzr.Read(p)
}

func (g *gzipReadCloser) Close() error {
	gerr := g.gzr.Close()
	ferr := g.f.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}
