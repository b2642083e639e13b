package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DownloadClaims 一次性下载令牌的声明
// 消费浏览额度发生在元数据接口，下载接口凭这个短期令牌取文件字节，
// 避免下载再扣一次浏览次数
type DownloadClaims struct {
	ShareID  string `json:"share_id"`
	BlobKey  string `json:"blob_key"`
	Filename string `json:"filename"`
	jwt.RegisteredClaims
}

// AdminClaims 管理接口的认证声明
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateDownloadToken 生成文件分享的下载令牌
func GenerateDownloadToken(shareID, blobKey, filename, secretKey, issuer string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := &DownloadClaims{
		ShareID:  shareID,
		BlobKey:  blobKey,
		Filename: filename,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   shareID,
			Audience:  []string{"download"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ParseDownloadToken 解析并校验下载令牌
// 校验 audience，管理令牌拿来下载会被拒绝
func ParseDownloadToken(tokenString, secretKey string) (*DownloadClaims, error) {
	claims := &DownloadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithAudience("download"))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GenerateAdminToken 生成管理接口的 Token，由运维在部署时签发
func GenerateAdminToken(secretKey, issuer string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := &AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Audience:  []string{"admin"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ParseAdminToken 解析并校验管理 Token
// 校验 audience，下载令牌冒充管理令牌会被拒绝
func ParseAdminToken(tokenString, secretKey string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithAudience("admin"))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Role != "admin" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
