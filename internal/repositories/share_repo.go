package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrShareNotFound 记录不存在
	ErrShareNotFound = errors.New("share record not found")
	// ErrShareDead 记录已死亡（次数耗尽或时间过期），或者并发竞争中输给了别的请求
	ErrShareDead = errors.New("share record is dead")
)

type ShareRepository interface {
	Create(ctx context.Context, share *models.Share) error
	FindByID(ctx context.Context, id string) (*models.Share, error)
	// ConsumeView 原子地把浏览计数加一并返回加一后的记录
	// 只有记录在操作时刻仍然存活才会成功，两个并发调用不可能都吃掉最后一次浏览额度
	ConsumeView(ctx context.Context, id string, now time.Time) (*models.Share, error)
	// Delete 删除记录，记录不存在时是无害的空操作
	Delete(ctx context.Context, id string) error
	// FindDead 扫描死亡记录（次数耗尽或已过期），供后台清理使用
	FindDead(ctx context.Context, now time.Time, limit int) ([]models.Share, error)
}

type shareRepository struct {
	db *gorm.DB
}

// NewShareRepository 创建基于 MySQL 的 shareRepository 实例
func NewShareRepository(db *gorm.DB) ShareRepository {
	return &shareRepository{db: db}
}

// 创建新的数据库记录
func (r *shareRepository) Create(ctx context.Context, share *models.Share) error {
	if err := r.db.WithContext(ctx).Create(share).Error; err != nil {
		return fmt.Errorf("创建分享记录失败: %w", err)
	}
	return nil
}

// 根据id查找记录
func (r *shareRepository) FindByID(ctx context.Context, id string) (*models.Share, error) {
	var share models.Share
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("查询分享记录失败: %w", err)
	}
	return &share, nil
}

// ConsumeView 在一个事务里用行锁串行化同一条记录上的并发递增，
// 杜绝"先读计数再写计数"的丢失更新竞争
func (r *shareRepository) ConsumeView(ctx context.Context, id string, now time.Time) (*models.Share, error) {
	var share models.Share
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SELECT ... FOR UPDATE，持锁期间其他事务对同一行的递增会被阻塞
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&share).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShareNotFound
			}
			return fmt.Errorf("锁定分享记录失败: %w", err)
		}

		// 持锁后重新判断存活状态，过期或耗尽都视为竞争失败
		if share.IsDead(now) {
			return ErrShareDead
		}

		share.CurrentViews++
		if err := tx.Model(&models.Share{}).Where("id = ?", id).
			UpdateColumn("current_views", share.CurrentViews).Error; err != nil {
			return fmt.Errorf("更新浏览计数失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// 删除记录，RowsAffected 为 0 说明已经被别的路径删掉了，不算错误
func (r *shareRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Share{}).Error; err != nil {
		return fmt.Errorf("删除分享记录失败: %w", err)
	}
	return nil
}

// 查找所有死亡记录
func (r *shareRepository) FindDead(ctx context.Context, now time.Time, limit int) ([]models.Share, error) {
	var shares []models.Share
	query := r.db.WithContext(ctx).
		Where("(max_views IS NOT NULL AND current_views >= max_views) OR (expires_at IS NOT NULL AND expires_at <= ?)", now)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&shares).Error; err != nil {
		return nil, fmt.Errorf("扫描过期分享记录失败: %w", err)
	}
	return shares, nil
}
