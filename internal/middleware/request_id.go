// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader 是响应中回传请求 ID 的头。
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID 为每个请求生成新的 UUID，写入上下文和响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID 返回当前请求的 ID，未经过 RequestID 中间件时为空。
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
