package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// InternalError 返回统一的 500 信封，detail 只包含请求 ID。
func InternalError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{
		Error:  "Internal Server Error",
		Detail: "request_id=" + GetRequestID(c),
	})
}

// Recovery 捕获 panic，记录堆栈，并返回不含内部细节的 500 响应。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("请求处理发生 panic",
					"request_id", GetRequestID(c),
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				InternalError(c)
			}
		}()
		c.Next()
	}
}
