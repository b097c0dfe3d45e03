package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 认证中间件
// 检查请求是否携带与配置一致的 Bearer token；token 为空时放行
func AuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token de autenticação ausente"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token de autenticação inválido"})
			c.Abort()
			return
		}

		c.Set("token", token)
		c.Next()
	}
}

// bearerToken 从 Authorization 头获取 token
// websocket 握手无法自定义请求头，允许通过 ?token= 传递
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		token := strings.TrimPrefix(h, "Bearer ")
		if token == h {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}
