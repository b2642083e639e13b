package utils

import (
	"testing"
	"time"
)

func TestDownloadTokenRoundTrip(t *testing.T) {
	token, err := GenerateDownloadToken("share-1", "share-1.txt", "notes.txt", "secret", "go-flashshare", time.Minute)
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}

	claims, err := ParseDownloadToken(token, "secret")
	if err != nil {
		t.Fatalf("解析令牌失败: %v", err)
	}
	if claims.ShareID != "share-1" || claims.BlobKey != "share-1.txt" || claims.Filename != "notes.txt" {
		t.Errorf("声明不匹配: %+v", claims)
	}
}

func TestDownloadTokenWrongSecret(t *testing.T) {
	token, err := GenerateDownloadToken("share-1", "share-1.txt", "notes.txt", "secret", "go-flashshare", time.Minute)
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}

	if _, err := ParseDownloadToken(token, "other-secret"); err == nil {
		t.Error("错误密钥应解析失败")
	}
}

func TestDownloadTokenExpired(t *testing.T) {
	token, err := GenerateDownloadToken("share-1", "share-1.txt", "notes.txt", "secret", "go-flashshare", -time.Minute)
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}

	if _, err := ParseDownloadToken(token, "secret"); err == nil {
		t.Error("过期令牌应解析失败")
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := GenerateAdminToken("secret", "go-flashshare", time.Hour)
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}

	claims, err := ParseAdminToken(token, "secret")
	if err != nil {
		t.Fatalf("解析令牌失败: %v", err)
	}
	if claims.Role != "admin" {
		t.Errorf("角色不匹配: got %q", claims.Role)
	}
}

func TestDownloadTokenRejectsAdminToken(t *testing.T) {
	// 管理令牌不能当下载令牌用，audience 必须对得上
	token, err := GenerateAdminToken("secret", "go-flashshare", time.Hour)
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}

	if _, err := ParseDownloadToken(token, "secret"); err == nil {
		t.Error("audience 不是 download 的令牌应被拒绝")
	}
}

func TestAdminTokenRejectsDownloadToken(t *testing.T) {
	// 下载令牌不能当管理令牌用
	token, err := GenerateDownloadToken("share-1", "share-1.txt", "notes.txt", "secret", "go-flashshare", time.Minute)
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}

	if _, err := ParseAdminToken(token, "secret"); err == nil {
		t.Error("缺少 admin 角色的令牌应被拒绝")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("哈希失败: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("哈希不能等于明文")
	}

	if !CheckPasswordHash("hunter2", hash) {
		t.Error("正确密码校验应通过")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Error("错误密码校验不应通过")
	}
}
