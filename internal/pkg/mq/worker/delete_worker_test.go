package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/models"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/storage"
	"github.com/3Eeeecho/go-flashshare/internal/repositories"
	"github.com/3Eeeecho/go-flashshare/internal/services/share"
	"github.com/streadway/amqp"
)

// fakeAcknowledger 记录消息的 ack/nack 结果
type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeues int
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	if requeue {
		a.requeues++
	}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) counts() (int, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks, a.requeues
}

// waitUntil 轮询等待条件成立，超时即失败
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newWorkerFixture(t *testing.T, blobs storage.BlobStore) (*DeleteWorker, share.ShareService, repositories.ShareRepository) {
	t.Helper()
	cfg := &config.Config{
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
			MaxUploadSize: 1 << 20,
			DeleteDelay:   time.Hour,
		},
	}
	repo := repositories.NewMemoryShareRepository()
	if blobs == nil {
		local, err := storage.NewLocalBlobStore(&cfg.Storage)
		if err != nil {
			t.Fatalf("初始化本地存储失败: %v", err)
		}
		blobs = local
	}
	svc := share.NewShareService(repo, blobs, nil, nil, cfg)
	return NewDeleteWorker(nil, svc), svc, repo
}

func deliveryFor(t *testing.T, ack *fakeAcknowledger, task models.DeleteShareTask) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("序列化任务失败: %v", err)
	}
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

func TestHandleDeletePurgesAfterNotBefore(t *testing.T) {
	w, svc, repo := newWorkerFixture(t, nil)
	ctx := context.Background()

	created, err := svc.CreateTextShare(ctx, share.CreateTextShareRequest{Content: "doomed"})
	if err != nil {
		t.Fatalf("创建分享失败: %v", err)
	}

	ack := &fakeAcknowledger{}
	task := models.DeleteShareTask{ShareID: created.ID, NotBefore: time.Now().Add(100 * time.Millisecond)}

	start := time.Now()
	w.HandleDelete(deliveryFor(t, ack, task))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("HandleDelete 不应阻塞在 not-before 等待上: 耗时 %v", elapsed)
	}

	// not-before 之前记录仍然存在
	if _, err := repo.FindByID(ctx, created.ID); err != nil {
		t.Errorf("等待期内记录不应被删除: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		acks, _, _ := ack.counts()
		return acks == 1
	}, "任务应在 not-before 之后完成并 ack")

	if _, err := repo.FindByID(ctx, created.ID); !errors.Is(err, repositories.ErrShareNotFound) {
		t.Errorf("记录应已删除: got %v", err)
	}
}

func TestHandleDeleteDiscardsMalformedTask(t *testing.T) {
	w, _, _ := newWorkerFixture(t, nil)

	ack := &fakeAcknowledger{}
	w.HandleDelete(amqp.Delivery{Acknowledger: ack, Body: []byte("not json")})

	_, nacks, requeues := ack.counts()
	if nacks != 1 {
		t.Errorf("解析失败应 nack: got %d", nacks)
	}
	if requeues != 0 {
		t.Errorf("解析失败不应重新入队: got %d", requeues)
	}
}

// brokenBlobStore 的 RemoveBlob 永远失败
type brokenBlobStore struct {
	storage.BlobStore
}

func (b *brokenBlobStore) RemoveBlob(ctx context.Context, key string) error {
	return errors.New("injected storage failure")
}

func TestHandleDeleteRequeuesOnFailure(t *testing.T) {
	cfg := &config.StorageConfig{LocalBasePath: t.TempDir()}
	local, err := storage.NewLocalBlobStore(cfg)
	if err != nil {
		t.Fatalf("初始化本地存储失败: %v", err)
	}
	w, _, _ := newWorkerFixture(t, &brokenBlobStore{BlobStore: local})

	// 行已经没了但任务里带着内容键，内容删不掉就必须重试，不能静默丢失
	ack := &fakeAcknowledger{}
	blobKey := "leftover.bin"
	task := models.DeleteShareTask{ShareID: "gone", BlobKey: &blobKey, NotBefore: time.Now()}
	w.HandleDelete(deliveryFor(t, ack, task))

	waitUntil(t, 2*time.Second, func() bool {
		_, nacks, requeues := ack.counts()
		return nacks == 1 && requeues == 1
	}, "删除失败应 nack 并重新入队")
}
