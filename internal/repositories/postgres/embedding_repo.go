package postgres

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/yoockh/echonote/internal/models"
)

// TaskEmbedding is an embedding row joined with the completion flag of the
// task it points at.
type TaskEmbedding struct {
	ContentID string          `gorm:"column:content_id"`
	Text      string          `gorm:"column:text"`
	Embedding pgvector.Vector `gorm:"column:embedding"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	Completed bool            `gorm:"column:completed"`
}

type EmbeddingRepository interface {
	Insert(ctx context.Context, rec *models.EmbeddingRecord) error
	// ListNewestByTypes returns the newest row per (content_type, content_id)
	// for the given user, restricted to the given content types.
	ListNewestByTypes(ctx context.Context, userID string, types []string) ([]models.EmbeddingRecord, error)
	// ListNewestTaskEmbeddings returns the newest task embedding per task for
	// tasks owned by the user, optionally including completed tasks.
	ListNewestTaskEmbeddings(ctx context.Context, userID string, includeCompleted bool) ([]TaskEmbedding, error)
	DeleteByContentIDs(ctx context.Context, contentIDs []string) error
}

type embeddingRepo struct {
	db *gorm.DB
}

func NewEmbeddingRepo(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepo{db: db}
}

func (r *embeddingRepo) Insert(ctx context.Context, rec *models.EmbeddingRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *embeddingRepo) ListNewestByTypes(ctx context.Context, userID string, types []string) ([]models.EmbeddingRecord, error) {
	var rows []models.EmbeddingRecord
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (content_type, content_id) *
		FROM embedding_records
		WHERE user_id = ? AND content_type IN ?
		ORDER BY content_type, content_id, created_at DESC`,
		userID, types,
	).Scan(&rows).Error
	return rows, err
}

func (r *embeddingRepo) ListNewestTaskEmbeddings(ctx context.Context, userID string, includeCompleted bool) ([]TaskEmbedding, error) {
	q := `
		SELECT DISTINCT ON (e.content_id)
			e.content_id, e.text, e.embedding, e.created_at, t.completed
		FROM embedding_records e
		JOIN tasks t ON t.id = e.content_id
		WHERE e.content_type = ? AND t.user_id = ?`
	args := []any{models.ContentTodo, userID}
	if !includeCompleted {
		q += ` AND t.completed = false`
	}
	q += ` ORDER BY e.content_id, e.created_at DESC`

	var rows []TaskEmbedding
	err := r.db.WithContext(ctx).Raw(q, args...).Scan(&rows).Error
	return rows, err
}

func (r *embeddingRepo) DeleteByContentIDs(ctx context.Context, contentIDs []string) error {
	if len(contentIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("content_id IN ?", contentIDs).
		Delete(&models.EmbeddingRecord{}).Error
}
