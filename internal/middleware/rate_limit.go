package middleware

import (
	"net/http"
	"strconv"

	"faq-rag-go/internal/model"
	"faq-rag-go/internal/repository"
	"faq-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RateLimit 按客户端 IP 限流。计数后端出错时放行请求。
func RateLimit(limiter repository.RateLimitRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warnf("[RateLimit] 限流计数失败，放行请求: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.ErrorResponse{
				Error:  "Too Many Requests",
				Detail: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
