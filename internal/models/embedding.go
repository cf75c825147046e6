package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Content types an embedding record may point at. The per-type retrieval
// weights live in the search service.
const (
	ContentChat       = "chat"
	ContentTranscript = "transcript"
	ContentSummary    = "summary"
	ContentNote       = "note"
	ContentTodo       = "todo"
)

// EmbeddingRecord is append-only: re-indexing the same content inserts a new
// row, and retrieval prefers the newest row per (content_type, content_id).
type EmbeddingRecord struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      string `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	ContentType string `gorm:"column:content_type;type:text;index:idx_embeddings_content" json:"content_type"`
	ContentID   string `gorm:"column:content_id;type:uuid;index:idx_embeddings_content" json:"content_id"`

	// IndexedBy records which identity performed the write: "user" for
	// direct writes, "service:<name>" for pipeline-made ones.
	IndexedBy string `gorm:"column:indexed_by;type:text" json:"indexed_by"`

	Text      string          `gorm:"column:text;type:text" json:"text"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (EmbeddingRecord) TableName() string { return "embedding_records" }
