package worker

import (
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/mq"
	"github.com/3Eeeecho/go-flashshare/internal/services/share"
)

// StartAllWorkers 启动应用中所有定义的后台 Worker
func StartAllWorkers(mqClient *mq.RabbitMQClient, shareService share.ShareService) {
	// --- 启动分享删除 Worker ---
	deleteWorker := NewDeleteWorker(mqClient, shareService)
	go deleteWorker.Start()

	// --- 在这里启动其他 Worker ---

	logger.Info("所有后台工作进程已启动。")
}
