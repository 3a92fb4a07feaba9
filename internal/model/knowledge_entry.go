package model

import "fmt"

// KnowledgeEntry 是一条 FAQ 问答，既对应 knowledge_base/faq.json 中的记录，
// 也对应数据库中的 knowledge_entries 表。
type KnowledgeEntry struct {
	ID       string `gorm:"primaryKey;type:varchar(64);column:id" json:"id"`
	Source   string `gorm:"type:varchar(255);column:source" json:"source"`
	Question string `gorm:"type:text;not null;column:question" json:"question"`
	Answer   string `gorm:"type:text;not null;column:answer" json:"answer"`
}

func (KnowledgeEntry) TableName() string {
	return "knowledge_entries"
}

// ChunkText 把问答合并成一段文本，使问题和答案落在同一个向量里。
func (e KnowledgeEntry) ChunkText() string {
	return fmt.Sprintf("سؤال: %s جواب: %s", e.Question, e.Answer)
}

// ToChunk 生成写入元数据文件的记录。
func (e KnowledgeEntry) ToChunk() Chunk {
	return Chunk{
		ID:        e.ID,
		Source:    e.Source,
		ChunkText: e.ChunkText(),
		Question:  e.Question,
		Answer:    e.Answer,
	}
}
