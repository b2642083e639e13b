package setup

import (
	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/storage"
	"go.uber.org/zap"
)

// InitBlobStore 根据配置初始化内容存储后端
func InitBlobStore(cfg *config.Config) storage.BlobStore {
	blobStore, err := storage.NewBlobStore(cfg)
	if err != nil {
		logger.Fatal("初始化内容存储失败", zap.String("type", cfg.Storage.Type), zap.Error(err))
	}
	logger.Info("内容存储已初始化", zap.String("type", cfg.Storage.Type))
	return blobStore
}
