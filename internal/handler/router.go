package handler

import (
	"faq-rag-go/internal/middleware"
	"faq-rag-go/internal/repository"
	"faq-rag-go/internal/service"
	"faq-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// RouterOptions 描述路由依赖，JWTManager 与 Limiter 为 nil 时不启用对应中间件。
type RouterOptions struct {
	AskService service.AskService
	JWTManager *token.JWTManager
	Limiter    repository.RateLimitRepository
}

// NewRouter 注册所有路由。
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.RequestLogger())
	if opts.Limiter != nil {
		r.Use(middleware.RateLimit(opts.Limiter))
	}

	healthHandler := NewHealthHandler(opts.AskService)
	askHandler := NewAskHandler(opts.AskService)
	wsHandler := NewWSHandler(opts.AskService)

	r.GET("/healthz", healthHandler.Healthz)

	apiV1 := r.Group("/api/v1")
	if opts.JWTManager != nil {
		apiV1.Use(middleware.Auth(opts.JWTManager))
	}
	{
		apiV1.POST("/ask", askHandler.Ask)
		apiV1.GET("/ask/ws", wsHandler.Handle)
	}
	return r
}
