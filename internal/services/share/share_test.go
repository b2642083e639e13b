package share

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/models"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/storage"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/utils"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/xerr"
	"github.com/3Eeeecho/go-flashshare/internal/repositories"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		JWT: config.JWTConfig{
			SecretKey:           "test-secret",
			DownloadTokenExpiry: 5 * time.Minute,
			Issuer:              "go-flashshare",
		},
		Storage: config.StorageConfig{
			Type:          "local",
			LocalBasePath: t.TempDir(),
		},
		Share: config.ShareConfig{
			BaseURL:       "http://localhost:8080",
			MaxUploadSize: 1 << 20,
			DeleteDelay:   time.Hour, // 测试里不等定时器，删除路径直接调用
		},
	}
}

func newTestService(t *testing.T) (ShareService, repositories.ShareRepository, storage.BlobStore) {
	t.Helper()
	cfg := testConfig(t)
	repo := repositories.NewMemoryShareRepository()
	blobs, err := storage.NewLocalBlobStore(&cfg.Storage)
	if err != nil {
		t.Fatalf("初始化本地存储失败: %v", err)
	}
	return NewShareService(repo, blobs, nil, nil, cfg), repo, blobs
}

func TestCreateTextShareAndConsume(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTextShare(ctx, CreateTextShareRequest{
		Content:        "hello world",
		ExpirationMode: ExpirationModeViews,
		MaxViews:       1,
	})
	if err != nil {
		t.Fatalf("创建分享失败: %v", err)
	}
	if created.ID == "" {
		t.Fatal("分享ID不能为空")
	}

	result, err := svc.Consume(ctx, created.ID, "")
	if err != nil {
		t.Fatalf("浏览分享失败: %v", err)
	}
	if result.Content != "hello world" {
		t.Errorf("内容不匹配: got %q", result.Content)
	}
	if !result.IsLastView {
		t.Error("单次分享的首次浏览应当是最后一次")
	}
	if result.ViewsRemaining == nil || *result.ViewsRemaining != 0 {
		t.Errorf("剩余次数应为 0: got %v", result.ViewsRemaining)
	}

	// 额度耗尽后再访问，对外等同于从未存在
	if _, err := svc.Consume(ctx, created.ID, ""); !errors.Is(err, xerr.ErrShareNotFound) {
		t.Errorf("耗尽后的访问应返回 ErrShareNotFound: got %v", err)
	}
}

func TestCreateTextShareEmptyContent(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.CreateTextShare(context.Background(), CreateTextShareRequest{}); !errors.Is(err, xerr.ErrContentEmpty) {
		t.Errorf("空内容应返回 ErrContentEmpty: got %v", err)
	}
}

func TestCreateShareInvalidExpirationMode(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateTextShare(context.Background(), CreateTextShareRequest{
		Content:        "hello",
		ExpirationMode: "forever",
	})
	if !errors.Is(err, xerr.ErrInvalidExpiration) {
		t.Errorf("未知过期模式应返回 ErrInvalidExpiration: got %v", err)
	}
}

func TestMaxViewsFloorsToOne(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTextShare(ctx, CreateTextShareRequest{
		Content:        "hello",
		ExpirationMode: ExpirationModeViews,
		MaxViews:       0,
	})
	if err != nil {
		t.Fatalf("创建分享失败: %v", err)
	}
	if created.MaxViews == nil || *created.MaxViews != 1 {
		t.Errorf("次数上限应被提升到 1: got %v", created.MaxViews)
	}
}

func TestConcurrentConsumeNeverExceedsMaxViews(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const maxViews = 3
	const attempts = 10

	created, err := svc.CreateTextShare(ctx, CreateTextShareRequest{
		Content:        "race me",
		ExpirationMode: ExpirationModeViews,
		MaxViews:       maxViews,
	})
	if err != nil {
		t.Fatalf("创建分享失败: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	lastViews := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Consume(ctx, created.ID, "")
			if err != nil {
				if !errors.Is(err, xerr.ErrShareNotFound) {
					t.Errorf("意外错误: %v", err)
				}
				return
			}
			mu.Lock()
			granted++
			if result.IsLastView {
				lastViews++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if granted != maxViews {
		t.Errorf("成功浏览次数应恰好等于上限 %d: got %d", maxViews, granted)
	}
	if lastViews != 1 {
		t.Errorf("应恰好有一次浏览被标记为最后一次: got %d", lastViews)
	}
}

func TestPasswordProtectedShare(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTextShare(ctx, CreateTextShareRequest{
		Content:        "secret",
		Password:       "correct horse",
		ExpirationMode: ExpirationModeViews,
		MaxViews:       1,
	})
	if err != nil {
		t.Fatalf("创建分享失败: %v", err)
	}

	// 缺密码和错密码都不消耗浏览次数
	if _, err := svc.Consume(ctx, created.ID, ""); !errors.Is(err, xerr.ErrSharePasswordRequired) {
		t.Errorf("缺密码应返回 ErrSharePasswordRequired: got %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := svc.Consume(ctx, created.ID, "wrong"); !errors.Is(err, xerr.ErrSharePasswordIncorrect) {
			t.Fatalf("错误密码应返回 ErrSharePasswordIncorrect: got %v", err)
		}
	}

	// 多次失败后正确密码仍然可用，说明失败尝试没有扣额度
	result, err := svc.Consume(ctx, created.ID, "correct horse")
	if err != nil {
		t.Fatalf("正确密码浏览失败: %v", err)
	}
	if result.Content != "secret" {
		t.Errorf("内容不匹配: got %q", result.Content)
	}
	if !result.IsLastView {
		t.Error("唯一一次有效浏览应当是最后一次")
	}
}

func TestExpiredShareIsGoneAndPurged(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	expired := &models.Share{
		ID:        "expired-share",
		Kind:      models.ShareKindText,
		Content:   strPtr("stale"),
		ExpiresAt: &past,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("预置记录失败: %v", err)
	}

	if _, err := svc.Consume(ctx, expired.ID, ""); !errors.Is(err, xerr.ErrShareNotFound) {
		t.Fatalf("过期分享应返回 ErrShareNotFound: got %v", err)
	}

	// 死亡记录被观测到时应当顺手删除
	if _, err := repo.FindByID(ctx, expired.ID); !errors.Is(err, repositories.ErrShareNotFound) {
		t.Errorf("过期记录应已被清理: got %v", err)
	}
}

func TestTimeModeShareHasUnboundedViews(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTextShare(ctx, CreateTextShareRequest{
		Content:        "read me many times",
		ExpirationMode: ExpirationModeTime,
		ExpirationTime: "24hours",
	})
	if err != nil {
		t.Fatalf("创建分享失败: %v", err)
	}
	if created.MaxViews != nil {
		t.Errorf("时间模式不应设置次数上限: got %v", *created.MaxViews)
	}
	if created.ExpiresAt == nil {
		t.Fatal("时间模式必须设置过期时间")
	}

	for i := 0; i < 5; i++ {
		result, err := svc.Consume(ctx, created.ID, "")
		if err != nil {
			t.Fatalf("第 %d 次浏览失败: %v", i+1, err)
		}
		if result.IsLastView {
			t.Error("不限次数的分享不应出现最后一次浏览")
		}
		if result.ViewsRemaining != nil {
			t.Errorf("不限次数时剩余次数应为 nil: got %v", *result.ViewsRemaining)
		}
	}
}

func TestResolveExpirationTimeEnums(t *testing.T) {
	now := time.Now()
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"1hour", time.Hour},
		{"24hours", 24 * time.Hour},
		{"7days", 7 * 24 * time.Hour},
		{"30days", 30 * 24 * time.Hour},
		{"48hours", 48 * time.Hour},
		{"", 24 * time.Hour},
		{"garbage", 24 * time.Hour},
	}
	for _, tt := range tests {
		maxViews, expiresAt, err := resolveExpiration(ExpirationModeTime, 0, tt.input, now)
		if err != nil {
			t.Errorf("%q: 意外错误 %v", tt.input, err)
			continue
		}
		if maxViews != nil {
			t.Errorf("%q: 时间模式不应有次数上限", tt.input)
		}
		if got := expiresAt.Sub(now); got != tt.want {
			t.Errorf("%q: 过期时长 = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFileShareLifecycle(t *testing.T) {
	svc, repo, blobs := newTestService(t)
	ctx := context.Background()

	payload := []byte("file payload bytes")
	created, err := svc.CreateFileShare(ctx, CreateFileShareRequest{
		Reader:         bytes.NewReader(payload),
		Size:           int64(len(payload)),
		Filename:       "notes.txt",
		MimeType:       "text/plain",
		ExpirationMode: ExpirationModeViews,
		MaxViews:       1,
	})
	if err != nil {
		t.Fatalf("创建文件分享失败: %v", err)
	}
	if created.BlobKey == nil {
		t.Fatal("文件分享必须有内容键")
	}

	result, err := svc.Consume(ctx, created.ID, "")
	if err != nil {
		t.Fatalf("浏览文件分享失败: %v", err)
	}
	if result.Kind != models.ShareKindFile {
		t.Errorf("类型不匹配: got %q", result.Kind)
	}
	if result.Content != "" {
		t.Error("文件分享不应在浏览接口返回内容字节")
	}
	if result.DownloadToken == "" {
		t.Fatal("文件分享的浏览结果必须携带下载令牌")
	}

	// 下载令牌指向正确的内容键，下载不再扣浏览次数
	claims, err := utils.ParseDownloadToken(result.DownloadToken, "test-secret")
	if err != nil {
		t.Fatalf("解析下载令牌失败: %v", err)
	}
	if claims.ShareID != created.ID || claims.BlobKey != *created.BlobKey {
		t.Errorf("令牌声明不匹配: %+v", claims)
	}
	if claims.Filename != "notes.txt" {
		t.Errorf("令牌文件名不匹配: got %q", claims.Filename)
	}

	blob, err := svc.OpenBlob(ctx, claims.BlobKey)
	if err != nil {
		t.Fatalf("打开内容失败: %v", err)
	}
	got, err := io.ReadAll(blob.Reader)
	blob.Reader.Close()
	if err != nil {
		t.Fatalf("读取内容失败: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("内容不匹配: got %q", got)
	}

	// 删除后记录和内容都应消失
	if err := svc.PurgeShare(ctx, created.ID); err != nil {
		t.Fatalf("删除分享失败: %v", err)
	}
	if _, err := repo.FindByID(ctx, created.ID); !errors.Is(err, repositories.ErrShareNotFound) {
		t.Errorf("记录应已删除: got %v", err)
	}
	exists, err := blobs.BlobExists(ctx, claims.BlobKey)
	if err != nil {
		t.Fatalf("检查内容存在性失败: %v", err)
	}
	if exists {
		t.Error("内容应已删除")
	}
}

func TestCreateFileShareTooLarge(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateFileShare(context.Background(), CreateFileShareRequest{
		Reader:   strings.NewReader("x"),
		Size:     2 << 20, // 超出测试配置的 1MB 上限
		Filename: "big.bin",
	})
	if !errors.Is(err, xerr.ErrFileTooLarge) {
		t.Errorf("超大文件应返回 ErrFileTooLarge: got %v", err)
	}
}

// failingCreateRepo 让 Create 必定失败，用于验证内容回滚
type failingCreateRepo struct {
	repositories.ShareRepository
}

func (r *failingCreateRepo) Create(ctx context.Context, share *models.Share) error {
	return errors.New("injected create failure")
}

func TestCreateFileShareRollsBackBlobOnDBFailure(t *testing.T) {
	cfg := testConfig(t)
	blobs, err := storage.NewLocalBlobStore(&cfg.Storage)
	if err != nil {
		t.Fatalf("初始化本地存储失败: %v", err)
	}
	repo := &failingCreateRepo{repositories.NewMemoryShareRepository()}
	svc := NewShareService(repo, blobs, nil, nil, cfg)

	payload := []byte("doomed bytes")
	_, err = svc.CreateFileShare(context.Background(), CreateFileShareRequest{
		Reader:   bytes.NewReader(payload),
		Size:     int64(len(payload)),
		Filename: "doomed.txt",
	})
	if !errors.Is(err, xerr.ErrDatabaseError) {
		t.Fatalf("元数据写失败应返回 ErrDatabaseError: got %v", err)
	}

	// 补偿删除后存储里不应残留内容
	dead, err := blobs.GetBlob(context.Background(), "doomed.txt")
	if err == nil {
		dead.Reader.Close()
		t.Fatal("回滚后内容不应存在")
	}
	if !errors.Is(err, storage.ErrContentMissing) {
		t.Errorf("期望 ErrContentMissing: got %v", err)
	}
}

// flakyBlobStore 让 RemoveBlob 失败指定次数，模拟存储的瞬时故障
type flakyBlobStore struct {
	storage.BlobStore
	removeFailures int
}

func (f *flakyBlobStore) RemoveBlob(ctx context.Context, key string) error {
	if f.removeFailures > 0 {
		f.removeFailures--
		return errors.New("injected transient storage failure")
	}
	return f.BlobStore.RemoveBlob(ctx, key)
}

func TestPurgeRetryRemovesBlobAfterRowGone(t *testing.T) {
	cfg := testConfig(t)
	local, err := storage.NewLocalBlobStore(&cfg.Storage)
	if err != nil {
		t.Fatalf("初始化本地存储失败: %v", err)
	}
	blobs := &flakyBlobStore{BlobStore: local, removeFailures: 1}
	repo := repositories.NewMemoryShareRepository()
	svc := NewShareService(repo, blobs, nil, nil, cfg)
	ctx := context.Background()

	payload := []byte("bytes that must not be orphaned")
	created, err := svc.CreateFileShare(ctx, CreateFileShareRequest{
		Reader:   bytes.NewReader(payload),
		Size:     int64(len(payload)),
		Filename: "orphan.bin",
	})
	if err != nil {
		t.Fatalf("创建文件分享失败: %v", err)
	}
	blobKey := *created.BlobKey

	// 第一次删除：行删掉了，内容删除被注入的故障挡住
	if err := svc.PurgeShare(ctx, created.ID); err == nil {
		t.Fatal("内容删除失败时 PurgeShare 应报错")
	}
	if _, err := repo.FindByID(ctx, created.ID); !errors.Is(err, repositories.ErrShareNotFound) {
		t.Fatalf("行应已删除: got %v", err)
	}

	// worker 的重试带着任务里的内容键，行不在了也要把内容删干净
	task := models.DeleteShareTask{ShareID: created.ID, BlobKey: &blobKey, NotBefore: time.Now()}
	if err := svc.PurgeShareTask(ctx, task); err != nil {
		t.Fatalf("重试删除失败: %v", err)
	}

	exists, err := local.BlobExists(ctx, blobKey)
	if err != nil {
		t.Fatalf("检查内容存在性失败: %v", err)
	}
	if exists {
		t.Error("重试成功后内容不应残留")
	}
}

func TestPurgeShareIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTextShare(ctx, CreateTextShareRequest{Content: "bye"})
	if err != nil {
		t.Fatalf("创建分享失败: %v", err)
	}

	if err := svc.PurgeShare(ctx, created.ID); err != nil {
		t.Fatalf("首次删除失败: %v", err)
	}
	if err := svc.PurgeShare(ctx, created.ID); err != nil {
		t.Fatalf("重复删除应当无害: %v", err)
	}
	if err := svc.PurgeShare(ctx, "never-existed"); err != nil {
		t.Fatalf("删除不存在的分享应当无害: %v", err)
	}
}

func TestRunCleanupSweep(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	one := int64(1)

	seeds := []*models.Share{
		{ID: "expired", Kind: models.ShareKindText, Content: strPtr("a"), ExpiresAt: &past},
		{ID: "exhausted", Kind: models.ShareKindText, Content: strPtr("b"), MaxViews: &one, CurrentViews: 1},
		{ID: "alive", Kind: models.ShareKindText, Content: strPtr("c"), ExpiresAt: &future},
	}
	for _, s := range seeds {
		s.CreatedAt = time.Now().Add(-2 * time.Hour)
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("预置记录失败: %v", err)
		}
	}

	count, err := svc.RunCleanupSweep(ctx)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if count != 2 {
		t.Errorf("应清理 2 条死亡记录: got %d", count)
	}

	if _, err := repo.FindByID(ctx, "alive"); err != nil {
		t.Errorf("存活记录不应被清理: %v", err)
	}
	for _, id := range []string{"expired", "exhausted"} {
		if _, err := repo.FindByID(ctx, id); !errors.Is(err, repositories.ErrShareNotFound) {
			t.Errorf("%s 应已被清理: got %v", id, err)
		}
	}
}

func strPtr(s string) *string { return &s }
