package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/models"
)

func TestMemoryRepoCreateAndFind(t *testing.T) {
	repo := NewMemoryShareRepository()
	ctx := context.Background()

	content := "hello"
	share := &models.Share{
		ID:        "s1",
		Kind:      models.ShareKindText,
		Content:   &content,
		CreatedAt: time.Now(),
	}
	if err := repo.Create(ctx, share); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	got, err := repo.FindByID(ctx, "s1")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if got.ID != "s1" || *got.Content != "hello" {
		t.Errorf("记录不匹配: %+v", got)
	}

	// 返回的是副本，调用方改动不应污染存储
	got.CurrentViews = 99
	again, _ := repo.FindByID(ctx, "s1")
	if again.CurrentViews != 0 {
		t.Error("FindByID 应返回副本")
	}

	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrShareNotFound) {
		t.Errorf("缺失记录应返回 ErrShareNotFound: got %v", err)
	}
}

func TestMemoryRepoConsumeView(t *testing.T) {
	repo := NewMemoryShareRepository()
	ctx := context.Background()
	now := time.Now()

	two := int64(2)
	content := "countdown"
	if err := repo.Create(ctx, &models.Share{
		ID:       "s2",
		Kind:     models.ShareKindText,
		Content:  &content,
		MaxViews: &two,
	}); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	first, err := repo.ConsumeView(ctx, "s2", now)
	if err != nil {
		t.Fatalf("第一次递增失败: %v", err)
	}
	if first.CurrentViews != 1 {
		t.Errorf("计数应为 1: got %d", first.CurrentViews)
	}

	second, err := repo.ConsumeView(ctx, "s2", now)
	if err != nil {
		t.Fatalf("第二次递增失败: %v", err)
	}
	if second.CurrentViews != 2 {
		t.Errorf("计数应为 2: got %d", second.CurrentViews)
	}

	// 额度耗尽后条件递增必须失败，计数绝不越界
	if _, err := repo.ConsumeView(ctx, "s2", now); !errors.Is(err, ErrShareDead) {
		t.Errorf("耗尽后应返回 ErrShareDead: got %v", err)
	}
	final, _ := repo.FindByID(ctx, "s2")
	if final.CurrentViews != 2 {
		t.Errorf("计数不应超过上限: got %d", final.CurrentViews)
	}
}

func TestMemoryRepoConsumeViewExpired(t *testing.T) {
	repo := NewMemoryShareRepository()
	ctx := context.Background()

	past := time.Now().Add(-time.Second)
	content := "stale"
	if err := repo.Create(ctx, &models.Share{
		ID:        "s3",
		Kind:      models.ShareKindText,
		Content:   &content,
		ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	if _, err := repo.ConsumeView(ctx, "s3", time.Now()); !errors.Is(err, ErrShareDead) {
		t.Errorf("过期记录应返回 ErrShareDead: got %v", err)
	}
}

func TestMemoryRepoDeleteIdempotent(t *testing.T) {
	repo := NewMemoryShareRepository()
	ctx := context.Background()

	content := "bye"
	if err := repo.Create(ctx, &models.Share{ID: "s4", Kind: models.ShareKindText, Content: &content}); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	if err := repo.Delete(ctx, "s4"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if err := repo.Delete(ctx, "s4"); err != nil {
		t.Fatalf("重复删除应当无害: %v", err)
	}
	if err := repo.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("删除不存在的记录应当无害: %v", err)
	}
}

func TestMemoryRepoFindDead(t *testing.T) {
	repo := NewMemoryShareRepository()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	one := int64(1)
	content := "x"

	seeds := []*models.Share{
		{ID: "expired", Kind: models.ShareKindText, Content: &content, ExpiresAt: &past},
		{ID: "exhausted", Kind: models.ShareKindText, Content: &content, MaxViews: &one, CurrentViews: 1},
		{ID: "alive-future", Kind: models.ShareKindText, Content: &content, ExpiresAt: &future},
		{ID: "alive-views", Kind: models.ShareKindText, Content: &content, MaxViews: &one},
	}
	for _, s := range seeds {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("创建失败: %v", err)
		}
	}

	dead, err := repo.FindDead(ctx, now, 0)
	if err != nil {
		t.Fatalf("扫描失败: %v", err)
	}
	if len(dead) != 2 {
		t.Fatalf("应找到 2 条死亡记录: got %d", len(dead))
	}
	for _, s := range dead {
		if s.ID != "expired" && s.ID != "exhausted" {
			t.Errorf("不应出现存活记录: %s", s.ID)
		}
	}

	limited, err := repo.FindDead(ctx, now, 1)
	if err != nil {
		t.Fatalf("限量扫描失败: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit=1 时应只返回 1 条: got %d", len(limited))
	}
}
