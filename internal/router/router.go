package router

import (
	"net/http"

	_ "github.com/3Eeeecho/go-flashshare/docs"
	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/handlers"
	"github.com/3Eeeecho/go-flashshare/internal/middlewares"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/xerr"
	"github.com/3Eeeecho/go-flashshare/internal/services/share"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterConfig 包含初始化路由所需的所有依赖
type RouterConfig struct {
	shareService share.ShareService
	cfg          *config.Config
}

func NewRouterConfig(shareService share.ShareService, cfg *config.Config) *RouterConfig {
	return &RouterConfig{
		shareService: shareService,
		cfg:          cfg,
	}
}

func InitRouter(routerCfg *RouterConfig) *gin.Engine {
	// 设置 Gin 模式，开发环境为 DebugMode，生产环境为 ReleaseMode
	if routerCfg.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.Default() // 使用默认的 Gin 引擎，包含 Logger 和 Recovery 中间件

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	shareHandler := handlers.NewShareHandler(routerCfg.shareService, routerCfg.cfg)

	v1 := router.Group("/api/v1")
	{
		// 分享相关路由 (无需认证，凭 share_id 即可访问)
		shareGroup := v1.Group("/shares")
		{
			shareGroup.POST("/text", shareHandler.CreateTextShare)
			shareGroup.POST("/file", shareHandler.CreateFileShare)
			shareGroup.GET("/:share_id", shareHandler.GetShare)
			shareGroup.GET("/:share_id/download", shareHandler.DownloadShare)
		}

		// 管理相关路由 (需要管理 Token)
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middlewares.AdminAuthMiddleware(routerCfg.cfg))
		{
			adminGroup.DELETE("/shares/:share_id", shareHandler.DeleteShare)
			adminGroup.POST("/cleanup", shareHandler.RunCleanup)
			adminGroup.GET("/stats", shareHandler.GetStats)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, http.StatusNotFound, "Route not found")
	})

	return router
}
