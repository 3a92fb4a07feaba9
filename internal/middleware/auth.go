package middleware

import (
	"net/http"
	"strings"

	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Auth 创建一个 Gin 中间件，用于 JWT 认证。
// 校验通过后把 claims 存入上下文的 "claims" 键。
func Auth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "missing Authorization header")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			unauthorized(c, "invalid Authorization header format")
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

func unauthorized(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Unauthorized", Detail: detail})
}
