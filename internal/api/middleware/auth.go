package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/jwt"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/response"
)

// UserIDKey 上下文中用户 ID 的键
const UserIDKey = "user_id"

// Auth JWT 认证中间件，未认证请求直接拦截
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseBearer(c, secret)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// OptionalAuth 可选认证：有合法 token 就注入用户 ID，没有也放行
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := parseBearer(c, secret); ok {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}
}

// GetUserID 从上下文取当前用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	value, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := value.(int64)
	if !ok {
		return 0, false
	}
	return userID, true
}

func parseBearer(c *gin.Context, secret string) (int64, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return 0, false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return 0, false
	}

	claims, err := jwt.ParseToken(parts[1], secret)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}
