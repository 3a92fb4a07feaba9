// Package kafka 提供了与 Kafka 消息队列交互的功能，用于问答审计事件。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/events"
	"faq-rag-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// EventHandler 处理消费到的问答事件。
type EventHandler interface {
	HandleAskEvent(ctx context.Context, event events.AskEvent) error
}

// Publisher 异步写入问答事件，写入失败只记录日志，不影响请求。
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher 初始化 Kafka 生产者。
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("[Kafka] 写入 %d 条问答事件失败: %v", len(messages), err)
			}
		},
	}
	log.Infof("[Kafka] 生产者初始化成功, topic: %s", cfg.Topic)
	return &Publisher{writer: w}
}

// PublishAskEvent 发送一个问答事件，以 request_id 作为消息 key。
func (p *Publisher) PublishAskEvent(ctx context.Context, event events.AskEvent) error {
	msg, err := encodeAskEvent(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close 刷新缓冲区并关闭生产者。
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeAskEvent(event events.AskEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal ask event: %w", err)
	}
	return kafka.Message{Key: []byte(event.RequestID), Value: value}, nil
}

func decodeAskEvent(m kafka.Message) (events.AskEvent, error) {
	var event events.AskEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return events.AskEvent{}, fmt.Errorf("failed to unmarshal ask event: %w", err)
	}
	return event, nil
}

func brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ConsumeAskEvents 启动一个消费者，直到 ctx 结束。
// 消息处理成功或格式错误时提交 offset；处理失败时不提交，等待重新投递。
func ConsumeAskEvents(ctx context.Context, cfg config.KafkaConfig, handler EventHandler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		event, err := decodeAskEvent(m)
		if err != nil {
			log.Errorf("[Kafka] 无法解析消息: %v, offset: %d", err, m.Offset)
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("[Kafka] 提交错误消息失败: %v", err)
			}
			continue
		}

		if err := handler.HandleAskEvent(ctx, event); err != nil {
			log.Errorf("[Kafka] 处理问答事件失败: request_id=%s, error: %v", event.RequestID, err)
			continue
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("[Kafka] 提交 offset 失败: %v", err)
		}
	}
}
