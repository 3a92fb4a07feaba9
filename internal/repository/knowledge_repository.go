// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"fmt"

	"faq-rag-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KnowledgeRepository 接口定义了知识库问答的持久化操作。
type KnowledgeRepository interface {
	Migrate(ctx context.Context) error
	// FindAll 按 id 顺序返回全部问答，顺序决定索引中的行号。
	FindAll(ctx context.Context) ([]model.KnowledgeEntry, error)
	Upsert(ctx context.Context, entries []model.KnowledgeEntry) error
}

// knowledgeRepository 是 KnowledgeRepository 接口的 GORM 实现。
type knowledgeRepository struct {
	db *gorm.DB
}

// NewKnowledgeRepository 创建一个新的 KnowledgeRepository 实例。
func NewKnowledgeRepository(db *gorm.DB) KnowledgeRepository {
	return &knowledgeRepository{db: db}
}

func (r *knowledgeRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.KnowledgeEntry{})
}

func (r *knowledgeRepository) FindAll(ctx context.Context) ([]model.KnowledgeEntry, error) {
	var entries []model.KnowledgeEntry
	if err := r.db.WithContext(ctx).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}
	return entries, nil
}

// Upsert 按主键插入或覆盖问答。
func (r *knowledgeRepository) Upsert(ctx context.Context, entries []model.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(entries, 100).Error
}
