package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"go.uber.org/zap"
)

// @title           Go FlashShare API
// @version         1.0
// @description     阅后即焚的临时分享服务，内容达到浏览次数或时间上限后自动销毁
// @host            localhost:8080
// @BasePath        /api/v1
func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// 初始化日志系统
	if err := os.MkdirAll("logs", 0755); err != nil {
		logger.Fatal("Failed to create logs directory", zap.Error(err))
	}
	logger.InitLogger(cfg.Log.OutputPath, cfg.Log.ErrorPath, cfg.Log.Level)
	defer logger.Sync() // 确保在应用退出时刷新所有缓冲的日志条目

	// 构建服务器及其所有依赖
	srv, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize server", zap.Error(err))
	}

	// 等待退出信号，优雅关机
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	srv.Run(stopChan)
}
