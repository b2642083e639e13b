package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/models"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/mq"
	"github.com/3Eeeecho/go-flashshare/internal/services/share"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// DeleteWorker 消费延迟删除队列，执行最后一次浏览后的分享清理
// 删除本身幂等，消息重复投递或和后台清理撞上都是无害的
type DeleteWorker struct {
	mqClient     *mq.RabbitMQClient
	shareService share.ShareService
}

func NewDeleteWorker(mqClient *mq.RabbitMQClient, shareService share.ShareService) *DeleteWorker {
	return &DeleteWorker{
		mqClient:     mqClient,
		shareService: shareService,
	}
}

func (w *DeleteWorker) Start() {
	_, err := w.mqClient.DeclareQueue(share.ShareDeleteQueueName)
	if err != nil {
		logger.Fatal("声明删除队列失败", zap.Error(err))
	}
	if err := w.mqClient.Consume(share.ShareDeleteQueueName, w.HandleDelete); err != nil {
		logger.Fatal("启动删除队列消费失败", zap.Error(err))
	}
	logger.Info("分享删除 worker 已启动")
}

func (w *DeleteWorker) HandleDelete(msg amqp.Delivery) {
	var task models.DeleteShareTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		logger.Error("删除任务解析失败，直接丢弃", zap.Error(err))
		_ = msg.Nack(false, false) // 解析失败,重试也没用
		return
	}

	// 等待期放进独立 goroutine，消费循环不会被一条消息的 not-before 卡住
	go w.process(msg, task)
}

func (w *DeleteWorker) process(msg amqp.Delivery, task models.DeleteShareTask) {
	// 最后一次浏览的响应可能还在路上，等到任务约定的时间点再动手
	if wait := time.Until(task.NotBefore); wait > 0 {
		time.Sleep(wait)
	}

	// 任务携带内容键，行已被上一次尝试删掉时重试仍能删掉内容
	if err := w.shareService.PurgeShareTask(context.Background(), task); err != nil {
		logger.Error("删除分享失败，重新入队",
			zap.String("shareID", task.ShareID), zap.Error(err))
		_ = msg.Nack(false, true) // 重新入队重试
		return
	}

	logger.Info("删除任务处理完成", zap.String("shareID", task.ShareID))
	_ = msg.Ack(false)
}
