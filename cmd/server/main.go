// Package main 是问答服务的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faq-rag-go/internal/config"
	"faq-rag-go/internal/generator"
	"faq-rag-go/internal/handler"
	"faq-rag-go/internal/repository"
	"faq-rag-go/internal/retriever"
	"faq-rag-go/internal/service"
	"faq-rag-go/pkg/database"
	"faq-rag-go/pkg/embedding"
	"faq-rag-go/pkg/kafka"
	"faq-rag-go/pkg/log"
	"faq-rag-go/pkg/storage"
	"faq-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Infof("日志记录器初始化成功, index_version: %s", cfg.Index.Version)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStart()

	// 3. 可选基础设施
	var limiter repository.RateLimitRepository
	if cfg.RateLimit.Enabled {
		if err := database.InitRedis(startCtx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB); err != nil {
			log.Errorf("Redis 初始化失败，限流未启用: %v", err)
		} else {
			limiter = repository.NewRateLimitRepository(database.RDB, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		}
	}

	var publisher service.EventPublisher
	var kafkaPublisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		kafkaPublisher = kafka.NewPublisher(cfg.Kafka)
		publisher = kafkaPublisher
	}

	if cfg.MinIO.Enabled && cfg.Index.Backend == "flat" {
		if err := fetchArtifacts(startCtx, cfg); err != nil {
			log.Errorf("从 MinIO 拉取索引文件失败: %v", err)
		}
	}

	// 4. 检索器
	embedder, err := embedding.NewEmbedder(cfg.Embedding)
	if err != nil {
		log.Fatal("Embedding 客户端初始化失败", err)
	}
	opener, err := retriever.OpenerFromConfig(cfg)
	if err != nil {
		log.Fatal("向量库初始化失败", err)
	}
	ret := retriever.New(embedder, retriever.NewStore(), opener, cfg.Index.MetadataPath())
	if err := ret.Load(startCtx); err != nil {
		log.Errorf("检索器加载失败，服务将以未就绪状态启动: %v", err)
	}

	// 5. 生成器与问答服务
	gen := generator.NewFromConfig(cfg.LLM, cfg.Answer)
	askService := service.NewAskService(ret, gen, publisher, cfg.Index.Version)

	var jwtManager *token.JWTManager
	if cfg.Auth.Enabled {
		jwtManager = token.NewJWTManager(cfg.Auth.Secret, cfg.Auth.TokenExpireHours)
	}

	// 6. 路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.RouterOptions{
		AskService: askService,
		JWTManager: jwtManager,
		Limiter:    limiter,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Errorf("Kafka 生产者关闭失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

func fetchArtifacts(ctx context.Context, cfg config.Config) error {
	store, err := storage.NewArtifactStore(ctx, cfg.MinIO)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Index.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return store.FetchArtifacts(ctx, cfg.Index.DataDir, cfg.Index.Version)
}
