package share

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"go.uber.org/zap"
)

// Sweeper 周期性清理死亡记录的后台任务
// 纯时间过期且再没被访问过的分享不会经过浏览路径，只能靠它回收
type Sweeper struct {
	service  ShareService
	interval time.Duration
}

// NewSweeper 创建清理任务实例
func NewSweeper(service ShareService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		service:  service,
		interval: interval,
	}
}

// Start 启动清理循环，ctx 取消后退出
// 每条记录的删除各自独立，不会长时间阻塞在途的浏览请求
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Info("清理任务已启动", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("清理任务已停止")
				return
			case <-ticker.C:
				count, err := s.service.RunCleanupSweep(ctx)
				if err != nil {
					logger.Error("清理任务执行失败", zap.Error(err))
					continue
				}
				if count > 0 {
					logger.Info("清理任务回收了死亡分享", zap.Int("count", count))
				}
			}
		}
	}()
}
