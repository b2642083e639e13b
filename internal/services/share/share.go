package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/models"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/cache"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/mq"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/storage"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/utils"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/xerr"
	"github.com/3Eeeecho/go-flashshare/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShareDeleteQueueName 延迟删除任务队列
const ShareDeleteQueueName = "share_delete_queue"

// 过期模式
const (
	ExpirationModeViews = "views" // 按浏览次数过期
	ExpirationModeTime  = "time"  // 按时间过期，浏览次数不限
)

// redis 统计计数器的键
const (
	statsCreatedKey  = "flashshare:stats:created"
	statsConsumedKey = "flashshare:stats:consumed"
	statsPurgedKey   = "flashshare:stats:purged"
)

// CreateTextShareRequest 创建文本分享的参数
type CreateTextShareRequest struct {
	Content        string
	Password       string
	ExpirationMode string
	MaxViews       int64
	ExpirationTime string
}

// CreateFileShareRequest 创建文件分享的参数
type CreateFileShareRequest struct {
	Reader         io.Reader
	Size           int64
	Filename       string
	MimeType       string
	Password       string
	ExpirationMode string
	MaxViews       int64
	ExpirationTime string
}

// ConsumeResult 一次成功浏览的结果
// 文件分享不直接返回字节，而是发一个短期下载令牌，下载接口不再扣浏览次数
type ConsumeResult struct {
	Kind           string
	Content        string
	Filename       string
	MimeType       string
	DownloadToken  string
	IsLastView     bool
	ViewsRemaining *int64 // 不限次数时为 nil
}

// ShareStats 分享业务的累计统计
type ShareStats struct {
	Created  int64 `json:"created"`
	Consumed int64 `json:"consumed"`
	Purged   int64 `json:"purged"`
}

// ShareService 定义了分享生命周期服务需要实现的接口
type ShareService interface {
	// CreateTextShare 创建文本分享，返回新记录
	CreateTextShare(ctx context.Context, req CreateTextShareRequest) (*models.Share, error)
	// CreateFileShare 创建文件分享，先写对象存储再写元数据
	CreateFileShare(ctx context.Context, req CreateFileShareRequest) (*models.Share, error)
	// Consume 消费一次浏览：校验密码、原子递增计数、最后一次浏览后调度删除
	Consume(ctx context.Context, id string, password string) (*ConsumeResult, error)
	// OpenBlob 打开文件分享的内容读取器，不消费浏览次数
	OpenBlob(ctx context.Context, blobKey string) (storage.GetBlobResult, error)
	// PurgeShare 幂等地删除记录和内容，重复调用无害
	PurgeShare(ctx context.Context, id string) error
	// PurgeShareTask 处理延迟删除任务：行已经不在时按任务携带的内容键补删内容
	PurgeShareTask(ctx context.Context, task models.DeleteShareTask) error
	// RunCleanupSweep 扫一遍死亡记录并删除，返回删除数量
	RunCleanupSweep(ctx context.Context) (int, error)
	// Stats 返回累计统计计数
	Stats(ctx context.Context) (*ShareStats, error)
}

// shareService 是 ShareService 接口的具体实现
type shareService struct {
	repo  repositories.ShareRepository
	blobs storage.BlobStore
	// cache 只做统计计数，nil 时跳过
	cache cache.Cache
	// mqClient 为 nil 时延迟删除退化为进程内定时器
	mqClient *mq.RabbitMQClient
	cfg      *config.Config
}

// NewShareService 创建一个新的 ShareService 实例
func NewShareService(repo repositories.ShareRepository, blobs storage.BlobStore, cacheService cache.Cache, mqClient *mq.RabbitMQClient, cfg *config.Config) ShareService {
	return &shareService{
		repo:     repo,
		blobs:    blobs,
		cache:    cacheService,
		mqClient: mqClient,
		cfg:      cfg,
	}
}

// resolveExpiration 解析过期策略
// views 模式：次数至少为 1，不设时间；time 模式：次数不限，时间取枚举值或任意正整数小时数
func resolveExpiration(mode string, maxViews int64, expirationTime string, now time.Time) (*int64, *time.Time, error) {
	switch mode {
	case ExpirationModeViews, "":
		if maxViews < 1 {
			maxViews = 1
		}
		return &maxViews, nil, nil
	case ExpirationModeTime:
		var d time.Duration
		switch expirationTime {
		case "1hour":
			d = time.Hour
		case "24hours":
			d = 24 * time.Hour
		case "7days":
			d = 7 * 24 * time.Hour
		case "30days":
			d = 30 * 24 * time.Hour
		default:
			// 允许 "48hours" 这种任意小时数，解析不出来就回退到 24 小时
			d = 24 * time.Hour
			if strings.HasSuffix(expirationTime, "hours") {
				if hours, err := strconv.Atoi(strings.TrimSuffix(expirationTime, "hours")); err == nil && hours > 0 {
					d = time.Duration(hours) * time.Hour
				}
			}
		}
		expiresAt := now.Add(d)
		return nil, &expiresAt, nil
	default:
		return nil, nil, xerr.ErrInvalidExpiration
	}
}

func (s *shareService) CreateTextShare(ctx context.Context, req CreateTextShareRequest) (*models.Share, error) {
	if req.Content == "" {
		return nil, xerr.ErrContentEmpty
	}

	now := time.Now()
	maxViews, expiresAt, err := resolveExpiration(req.ExpirationMode, req.MaxViews, req.ExpirationTime, now)
	if err != nil {
		return nil, err
	}

	newShare := &models.Share{
		ID:        uuid.New().String(),
		Kind:      models.ShareKindText,
		Content:   &req.Content,
		MaxViews:  maxViews,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	if err := s.applyPassword(newShare, req.Password); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, newShare); err != nil {
		logger.Error("CreateTextShare: 创建分享记录失败", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", xerr.ErrDatabaseError, err)
	}

	s.bumpCounter(statsCreatedKey)
	logger.Info("CreateTextShare: 分享创建成功", zap.String("shareID", newShare.ID))
	return newShare, nil
}

func (s *shareService) CreateFileShare(ctx context.Context, req CreateFileShareRequest) (*models.Share, error) {
	if req.Reader == nil || req.Filename == "" {
		return nil, xerr.ErrContentEmpty
	}
	if req.Size > s.cfg.Share.MaxUploadSize {
		return nil, xerr.ErrFileTooLarge
	}

	now := time.Now()
	maxViews, expiresAt, err := resolveExpiration(req.ExpirationMode, req.MaxViews, req.ExpirationTime, now)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	blobKey := id + filepath.Ext(req.Filename)
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// 先写内容再写元数据：崩溃最多留下孤儿内容（可被人工清理），
	// 绝不会留下指向不存在内容的元数据行
	if _, err := s.blobs.PutBlob(ctx, blobKey, req.Reader, req.Size, mimeType); err != nil {
		logger.Error("CreateFileShare: 写入内容失败", zap.String("blobKey", blobKey), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", xerr.ErrStorageError, err)
	}

	newShare := &models.Share{
		ID:        id,
		Kind:      models.ShareKindFile,
		BlobKey:   &blobKey,
		Filename:  &req.Filename,
		MimeType:  &mimeType,
		MaxViews:  maxViews,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	if err := s.applyPassword(newShare, req.Password); err != nil {
		s.rollbackBlob(blobKey)
		return nil, err
	}

	if err := s.repo.Create(ctx, newShare); err != nil {
		// 元数据写失败（包括调用方中途断开导致的取消）要把刚写的内容补偿删掉
		logger.Error("CreateFileShare: 创建分享记录失败，回滚已写入的内容",
			zap.String("shareID", id), zap.Error(err))
		s.rollbackBlob(blobKey)
		return nil, fmt.Errorf("%w: %v", xerr.ErrDatabaseError, err)
	}

	s.bumpCounter(statsCreatedKey)
	logger.Info("CreateFileShare: 分享创建成功",
		zap.String("shareID", id), zap.String("filename", req.Filename))
	return newShare, nil
}

// applyPassword 设置访问密码哈希，空密码表示无需密码
func (s *shareService) applyPassword(share *models.Share, password string) error {
	if password == "" {
		return nil
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		logger.Error("密码哈希失败", zap.Error(err))
		return fmt.Errorf("密码处理失败: %w", err)
	}
	share.PasswordHash = &hash
	return nil
}

// rollbackBlob 补偿删除已写入的内容
// 用独立的 context：请求的 context 可能已经取消，回滚不能跟着一起死
func (s *shareService) rollbackBlob(blobKey string) {
	if err := s.blobs.RemoveBlob(context.Background(), blobKey); err != nil {
		logger.Error("回滚内容失败，存储中可能残留孤儿内容",
			zap.String("blobKey", blobKey), zap.Error(err))
	}
}

func (s *shareService) Consume(ctx context.Context, id string, password string) (*ConsumeResult, error) {
	now := time.Now()

	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrShareNotFound) {
			return nil, xerr.ErrShareNotFound
		}
		return nil, fmt.Errorf("%w: %v", xerr.ErrDatabaseError, err)
	}

	// 按递增前的状态判断存活：死亡记录当场清理，对外和从未存在过一样
	if rec.IsDead(now) {
		if err := s.PurgeShare(ctx, id); err != nil {
			logger.Error("Consume: 清理死亡记录失败", zap.String("shareID", id), zap.Error(err))
		}
		return nil, xerr.ErrShareNotFound
	}

	// 密码校验在计数之前，错误密码不消耗浏览次数
	if rec.PasswordHash != nil {
		if password == "" {
			return nil, xerr.ErrSharePasswordRequired
		}
		if !utils.CheckPasswordHash(password, *rec.PasswordHash) {
			return nil, xerr.ErrSharePasswordIncorrect
		}
	}

	// 原子递增，输掉竞争（别人抢走了最后一次额度，或刚好过期）等价于死亡
	updated, err := s.repo.ConsumeView(ctx, id, now)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrShareNotFound):
			return nil, xerr.ErrShareNotFound
		case errors.Is(err, repositories.ErrShareDead):
			if perr := s.PurgeShare(ctx, id); perr != nil {
				logger.Error("Consume: 清理死亡记录失败", zap.String("shareID", id), zap.Error(perr))
			}
			return nil, xerr.ErrShareNotFound
		default:
			return nil, fmt.Errorf("%w: %v", xerr.ErrDatabaseError, err)
		}
	}

	isLast := updated.IsLastView()
	if isLast {
		// 先把内容交给本次调用方，删除延迟执行且幂等
		s.scheduleDeletion(updated.ID, updated.BlobKey)
	}

	result := &ConsumeResult{
		Kind:           updated.Kind,
		IsLastView:     isLast,
		ViewsRemaining: updated.ViewsRemaining(),
	}
	switch updated.Kind {
	case models.ShareKindText:
		if updated.Content != nil {
			result.Content = *updated.Content
		}
	case models.ShareKindFile:
		if updated.Filename != nil {
			result.Filename = *updated.Filename
		}
		if updated.MimeType != nil {
			result.MimeType = *updated.MimeType
		}
		if updated.BlobKey != nil {
			token, err := utils.GenerateDownloadToken(updated.ID, *updated.BlobKey, result.Filename,
				s.cfg.JWT.SecretKey, s.cfg.JWT.Issuer, s.cfg.JWT.DownloadTokenExpiry)
			if err != nil {
				logger.Error("Consume: 生成下载令牌失败", zap.String("shareID", id), zap.Error(err))
				return nil, fmt.Errorf("生成下载令牌失败: %w", err)
			}
			result.DownloadToken = token
		}
	}

	s.bumpCounter(statsConsumedKey)
	logger.Info("Consume: 分享浏览成功",
		zap.String("shareID", id),
		zap.Bool("isLastView", isLast),
		zap.Int64("currentViews", updated.CurrentViews))
	return result, nil
}

func (s *shareService) OpenBlob(ctx context.Context, blobKey string) (storage.GetBlobResult, error) {
	result, err := s.blobs.GetBlob(ctx, blobKey)
	if err != nil {
		if errors.Is(err, storage.ErrContentMissing) {
			// 存活记录引用的内容丢了是一致性故障，如实上报，不伪装成 NotFound
			return storage.GetBlobResult{}, xerr.ErrContentMissing
		}
		return storage.GetBlobResult{}, fmt.Errorf("%w: %v", xerr.ErrStorageError, err)
	}
	return result, nil
}

// PurgeShare 删除元数据行和内容，作为一个逻辑单元
// 浏览路径、清理路径和管理接口都走这里，重复删除是无害的空操作
func (s *shareService) PurgeShare(ctx context.Context, id string) error {
	return s.purge(ctx, id, nil, true)
}

// PurgeShareTask 是删除 worker 的入口
// 重试由消息重新投递承担，失败时不再额外调度，避免任务越积越多
func (s *shareService) PurgeShareTask(ctx context.Context, task models.DeleteShareTask) error {
	return s.purge(ctx, task.ShareID, task.BlobKey, false)
}

// purge 先删行再删内容：行一旦消失记录就对外不可见
// fallbackBlobKey 来自删除任务：行已经不在时，上一次尝试可能死在内容删除上，
// 此时仍要按任务携带的键补删，删除绝不能静默丢失
func (s *shareService) purge(ctx context.Context, id string, fallbackBlobKey *string, retryBlob bool) error {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrShareNotFound) {
			return s.removeBlob(ctx, id, fallbackBlobKey, retryBlob)
		}
		return fmt.Errorf("%w: %v", xerr.ErrDatabaseError, err)
	}

	blobKey := fallbackBlobKey
	if rec.Kind == models.ShareKindFile && rec.BlobKey != nil {
		blobKey = rec.BlobKey
	}

	// 行删失败时记录还在，后台清理会再来收，这里直接报错即可
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", xerr.ErrDatabaseError, err)
	}

	if err := s.removeBlob(ctx, id, blobKey, retryBlob); err != nil {
		return err
	}

	s.bumpCounter(statsPurgedKey)
	logger.Info("PurgeShare: 分享已删除", zap.String("shareID", id))
	return nil
}

// removeBlob 删除分享内容。调用到这里时行已经没了，内容删除失败不能指望
// 后台清理兜底（它只扫得到行），retryBlob 为真时带着内容键重新调度一次删除
func (s *shareService) removeBlob(ctx context.Context, id string, blobKey *string, retryBlob bool) error {
	if blobKey == nil {
		return nil
	}
	if err := s.blobs.RemoveBlob(ctx, *blobKey); err != nil {
		logger.Error("PurgeShare: 删除内容失败",
			zap.String("shareID", id), zap.String("blobKey", *blobKey), zap.Error(err))
		if retryBlob {
			s.scheduleDeletion(id, blobKey)
		}
		return fmt.Errorf("%w: %v", xerr.ErrStorageError, err)
	}
	return nil
}

// scheduleDeletion 调度延迟删除，任务携带内容键供行删掉后的重试使用
// 配置了 RabbitMQ 时投递任务给 worker（失败会重试），否则用进程内定时器兜底
func (s *shareService) scheduleDeletion(id string, blobKey *string) {
	notBefore := time.Now().Add(s.cfg.Share.DeleteDelay)

	if s.mqClient != nil {
		task := models.DeleteShareTask{ShareID: id, BlobKey: blobKey, NotBefore: notBefore}
		body, err := json.Marshal(task)
		if err == nil {
			if err = s.mqClient.Publish(ShareDeleteQueueName, body); err == nil {
				return
			}
		}
		logger.Error("scheduleDeletion: 投递删除任务失败，回退到进程内定时器",
			zap.String("shareID", id), zap.Error(err))
	}

	time.AfterFunc(s.cfg.Share.DeleteDelay, func() {
		// 内容删除失败会在 purge 里带着内容键重新调度，定时器路径同样不丢删除
		if err := s.purge(context.Background(), id, blobKey, true); err != nil {
			logger.Error("scheduleDeletion: 延迟删除失败，已重新调度",
				zap.String("shareID", id), zap.Error(err))
		}
	})
}

func (s *shareService) RunCleanupSweep(ctx context.Context) (int, error) {
	now := time.Now()
	dead, err := s.repo.FindDead(ctx, now, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", xerr.ErrDatabaseError, err)
	}

	count := 0
	for _, rec := range dead {
		if err := s.PurgeShare(ctx, rec.ID); err != nil {
			logger.Error("RunCleanupSweep: 删除死亡记录失败",
				zap.String("shareID", rec.ID), zap.Error(err))
			continue
		}
		count++
	}

	if count > 0 {
		logger.Info("RunCleanupSweep: 清理完成", zap.Int("deleted", count))
	}
	return count, nil
}

func (s *shareService) Stats(ctx context.Context) (*ShareStats, error) {
	stats := &ShareStats{}
	if s.cache == nil {
		return stats, nil
	}

	var err error
	if stats.Created, err = s.cache.GetInt(ctx, statsCreatedKey); err != nil {
		return nil, err
	}
	if stats.Consumed, err = s.cache.GetInt(ctx, statsConsumedKey); err != nil {
		return nil, err
	}
	if stats.Purged, err = s.cache.GetInt(ctx, statsPurgedKey); err != nil {
		return nil, err
	}
	return stats, nil
}

// bumpCounter 统计计数失败只记日志，不影响主流程
func (s *shareService) bumpCounter(key string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(context.Background(), key); err != nil {
		logger.Warn("统计计数更新失败", zap.String("key", key), zap.Error(err))
	}
}
