// Package service 编排一次问答请求：先检索，再生成答案。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faq-rag-go/internal/generator"
	"faq-rag-go/internal/model"
	"faq-rag-go/internal/retriever"
	"faq-rag-go/pkg/events"
	"faq-rag-go/pkg/log"
)

// Public details for not-ready responses.
const (
	DetailRetrieverNotReady = "Service not ready: Retriever is unavailable."
	DetailGeneratorNotReady = "Service not ready: Generator is unavailable."
)

// ErrNotReady matches every NotReadyError.
var ErrNotReady = errors.New("service not ready")

// NotReadyError 表示某个组件未就绪，Detail 可以直接返回给调用方。
type NotReadyError struct {
	Detail string
	Err    error
}

func (e *NotReadyError) Error() string {
	if e.Err == nil {
		return e.Detail
	}
	return fmt.Sprintf("%s: %v", e.Detail, e.Err)
}

func (e *NotReadyError) Unwrap() error { return e.Err }

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// Retriever 是 AskService 依赖的检索能力。
type Retriever interface {
	IsReady() bool
	Search(ctx context.Context, query string, k int) ([]model.RetrievalResult, error)
}

// AnswerGenerator 是 AskService 依赖的生成能力。
type AnswerGenerator interface {
	Ready() bool
	Generate(ctx context.Context, query string, chunks []model.RetrievalResult) (model.GeneratedAnswer, error)
}

// EventPublisher 接收问答审计事件，可以为 nil。
type EventPublisher interface {
	PublishAskEvent(ctx context.Context, event events.AskEvent) error
}

// AskService 接口定义了问答操作。
type AskService interface {
	Ask(ctx context.Context, requestID, query string, k int) (*model.AskResponse, error)
	Health() model.HealthResponse
}

type askService struct {
	retriever    Retriever
	generator    AnswerGenerator
	publisher    EventPublisher
	indexVersion string
	now          func() time.Time
}

// NewAskService 创建一个新的 AskService 实例。
func NewAskService(r Retriever, g AnswerGenerator, publisher EventPublisher, indexVersion string) AskService {
	return &askService{
		retriever:    r,
		generator:    g,
		publisher:    publisher,
		indexVersion: indexVersion,
		now:          time.Now,
	}
}

// Health 报告各组件的就绪状态。
func (s *askService) Health() model.HealthResponse {
	return model.HealthResponse{
		Status:         "ok",
		IndexVersion:   s.indexVersion,
		RetrieverReady: s.retriever.IsReady(),
		GeneratorReady: s.generator.Ready(),
	}
}

// Ask 检索与生成严格串行，并分别计时。
// 检索器未就绪时立即返回 NotReadyError，不触碰索引。
func (s *askService) Ask(ctx context.Context, requestID, query string, k int) (*model.AskResponse, error) {
	start := s.now()
	event := events.AskEvent{RequestID: requestID, Query: query, K: k, IndexVersion: s.indexVersion, CreatedAt: start.UTC()}

	if !s.retriever.IsReady() {
		log.Warnf("[AskService] 检索器未就绪, request_id=%s", requestID)
		s.publish(ctx, event, events.OutcomeNotReady)
		return nil, &NotReadyError{Detail: DetailRetrieverNotReady}
	}

	results, err := s.retriever.Search(ctx, query, k)
	retrievalDone := s.now()
	event.RetrievalMs = millis(retrievalDone.Sub(start))
	if err != nil {
		if errors.Is(err, retriever.ErrNotReady) {
			s.publish(ctx, event, events.OutcomeNotReady)
			return nil, &NotReadyError{Detail: DetailRetrieverNotReady, Err: err}
		}
		s.publish(ctx, event, events.OutcomeError)
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	log.Infof("[AskService] 检索完成, request_id=%s, hits=%d, %.1fms", requestID, len(results), event.RetrievalMs)

	answer, err := s.generator.Generate(ctx, query, results)
	end := s.now()
	event.GenerationMs = millis(end.Sub(retrievalDone))
	event.TotalMs = millis(end.Sub(start))
	if err != nil {
		if errors.Is(err, generator.ErrModelUnavailable) {
			s.publish(ctx, event, events.OutcomeNotReady)
			return nil, &NotReadyError{Detail: DetailGeneratorNotReady, Err: err}
		}
		s.publish(ctx, event, events.OutcomeError)
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	resp := &model.AskResponse{
		RequestID:       requestID,
		Answer:          answer.Answer,
		ConfidenceScore: answer.ConfidenceScore,
		Sources:         model.SourcesFrom(results),
		Timings: model.Timings{
			RetrievalMs:  event.RetrievalMs,
			GenerationMs: event.GenerationMs,
			TotalMs:      event.TotalMs,
		},
	}

	event.Answer = resp.Answer
	event.ConfidenceScore = resp.ConfidenceScore
	for _, src := range resp.Sources {
		event.SourceIDs = append(event.SourceIDs, src.ID)
	}
	s.publish(ctx, event, events.OutcomeAnswered)
	return resp, nil
}

func (s *askService) publish(ctx context.Context, event events.AskEvent, outcome string) {
	if s.publisher == nil {
		return
	}
	event.Outcome = outcome
	if err := s.publisher.PublishAskEvent(context.WithoutCancel(ctx), event); err != nil {
		log.Warnf("[AskService] 发布问答事件失败, request_id=%s: %v", event.RequestID, err)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
