package middlewares

import (
	"net/http"
	"strings"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/utils"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 校验管理接口的 Bearer Token
// 管理 Token 由运维通过 utils.GenerateAdminToken 签发，不走用户体系
func AdminAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Authorization header is required")
			return
		}

		// Token 格式通常是 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Invalid Authorization header format")
			return
		}
		tokenString := parts[1]

		// 2. 解析和验证 Token
		claims, err := utils.ParseAdminToken(tokenString, cfg.JWT.SecretKey)
		if err != nil {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.TokenInvalidCode, "Invalid or malformed token")
			return
		}

		c.Set("role", claims.Role)
		c.Next()
	}
}
