package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/yoockh/echonote/internal/models"
)

type TaskRepository interface {
	Insert(ctx context.Context, t *models.Task) error
	ListByRecording(ctx context.Context, recordingID string) ([]models.Task, error)
	DeleteByRecording(ctx context.Context, recordingID string) error
	NextPosition(ctx context.Context, userID string) (int, error)
}

type taskRepo struct {
	db *gorm.DB
}

func NewTaskRepo(db *gorm.DB) TaskRepository {
	return &taskRepo{db: db}
}

func (r *taskRepo) Insert(ctx context.Context, t *models.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *taskRepo) ListByRecording(ctx context.Context, recordingID string) ([]models.Task, error) {
	var rows []models.Task
	err := r.db.WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Order("position ASC").
		Find(&rows).Error
	return rows, err
}

func (r *taskRepo) DeleteByRecording(ctx context.Context, recordingID string) error {
	return r.db.WithContext(ctx).
		Where("recording_id = ?", recordingID).
		Delete(&models.Task{}).Error
}

func (r *taskRepo) NextPosition(ctx context.Context, userID string) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("user_id = ?", userID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}
