package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/cache"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/mq"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-flashshare/internal/repositories"
	"github.com/3Eeeecho/go-flashshare/internal/router"
	"github.com/3Eeeecho/go-flashshare/internal/services/share"
	"github.com/3Eeeecho/go-flashshare/internal/setup"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router         *gin.Engine
	httpServer     *http.Server
	rabbitMQClient *mq.RabbitMQClient
	sweeperCancel  context.CancelFunc
}

// NewServer 负责构建所有依赖
func NewServer(cfg *config.Config) (*Server, error) {
	// 初始化记录存储
	var shareRepo repositories.ShareRepository
	switch cfg.Storage.RecordStore {
	case "memory":
		// 单进程部署用内存存储，重启即全部失效，正好符合阅后即焚的语义
		shareRepo = repositories.NewMemoryShareRepository()
		logger.Info("使用内存记录存储")
	default:
		setup.InitMySQL(&cfg.MySQL)
		shareRepo = repositories.NewShareRepository(setup.DB)
	}

	// 初始化 Redis 连接（仅用于运营统计计数）
	var cacheService cache.Cache
	if cfg.Redis.Addr != "" {
		setup.InitRedis(cfg)
		cacheService = cache.NewRedisCache(setup.RedisClientGlobal)
	}

	// 初始化内容存储
	blobStore := setup.InitBlobStore(cfg)

	// 初始化 RabbitMQ（可选，关闭时删除任务退化为进程内定时器）
	var rabbitMQClient *mq.RabbitMQClient
	if cfg.RabbitMQ.Enabled {
		var err error
		rabbitMQClient, err = mq.NewRabbitMQClient(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
	}

	// 初始化 Services
	shareService := share.NewShareService(shareRepo, blobStore, cacheService, rabbitMQClient, cfg)

	// 启动所有后台 Worker
	if rabbitMQClient != nil {
		worker.StartAllWorkers(rabbitMQClient, shareService)
	}

	// 启动后台清理任务
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	sweeper := share.NewSweeper(shareService, cfg.Share.CleanupInterval)
	sweeper.Start(sweeperCtx)

	// 初始化 Gin 引擎和注册路由
	engine := router.InitRouter(router.NewRouterConfig(shareService, cfg))

	// 启动 HTTP 服务器
	addr := ":" + cfg.Server.Port
	logger.Info(fmt.Sprintf("Server is running on %s", addr))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	return &Server{
		router:         engine,
		httpServer:     httpServer,
		rabbitMQClient: rabbitMQClient,
		sweeperCancel:  sweeperCancel,
	}, nil
}

// Run 启动服务器，并处理优雅关机
func (s *Server) Run(stopChan chan os.Signal) {
	defer func() {
		s.sweeperCancel()
		if s.rabbitMQClient != nil {
			s.rabbitMQClient.Close()
		}
		setup.CloseRedis()
		setup.CloseMySQLDB()
	}()

	// 启动 HTTP 服务器
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	<-stopChan
	logger.Info("Shutting down server...")

	// 优雅关机
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}
