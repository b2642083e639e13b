package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/models"
)

var _ ShareRepository = (*memoryShareRepository)(nil)

// memoryShareRepository 进程内存储，用于开发环境和测试
// 互斥锁保证 ConsumeView 的检查和递增是一个原子动作
type memoryShareRepository struct {
	mu     sync.Mutex
	shares map[string]*models.Share
}

// NewMemoryShareRepository 创建内存版 ShareRepository 实例
func NewMemoryShareRepository() ShareRepository {
	return &memoryShareRepository{
		shares: make(map[string]*models.Share),
	}
}

func (r *memoryShareRepository) Create(ctx context.Context, share *models.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *share
	r.shares[share.ID] = &cp
	return nil
}

func (r *memoryShareRepository) FindByID(ctx context.Context, id string) (*models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	share, ok := r.shares[id]
	if !ok {
		return nil, ErrShareNotFound
	}
	cp := *share
	return &cp, nil
}

func (r *memoryShareRepository) ConsumeView(ctx context.Context, id string, now time.Time) (*models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	share, ok := r.shares[id]
	if !ok {
		return nil, ErrShareNotFound
	}
	if share.IsDead(now) {
		return nil, ErrShareDead
	}

	share.CurrentViews++
	cp := *share
	return &cp, nil
}

func (r *memoryShareRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.shares, id)
	return nil
}

func (r *memoryShareRepository) FindDead(ctx context.Context, now time.Time, limit int) ([]models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dead []models.Share
	for _, share := range r.shares {
		if share.IsDead(now) {
			dead = append(dead, *share)
			if limit > 0 && len(dead) >= limit {
				break
			}
		}
	}
	return dead, nil
}
