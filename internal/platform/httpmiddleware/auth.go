package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shortd.local/internal/platform/auth"
)

// parseBearer 解析 Authorization header 中的 Bearer token
// 返回 token 字符串，如果格式不正确返回空字符串
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthRequired 要求请求必须携带有效的 JWT token
func AuthRequired(ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := parseBearer(header)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claim, err := ts.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), auth.Identity{
			AccountID: claim.AccountID,
			Role:      claim.Role,
		}))
		c.Next()
	}
}

// AuthOptional 可选认证，有 token 则解析，无 token 或 token 无效则跳过
func AuthOptional(ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token := parseBearer(header)
		if token == "" {
			c.Next()
			return
		}
		claim, err := ts.Verify(token)
		if err != nil {
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), auth.Identity{
			AccountID: claim.AccountID,
			Role:      claim.Role,
		}))
		c.Next()
	}
}

// RequireRole 要求用户具有指定角色
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.GetIdentity(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
