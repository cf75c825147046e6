package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yoockh/echonote/internal/models"
	"github.com/yoockh/echonote/internal/utils"
)

type RecordingRepository interface {
	Insert(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id string) (*models.Recording, error)
	GetByFilename(ctx context.Context, filename string) (*models.Recording, error)
	UpdateState(ctx context.Context, id, state string) error
	// UpdateDerived replaces title, transcript, summary, summary_doc, chapters
	// and state in one update.
	UpdateDerived(ctx context.Context, rec *models.Recording) error
	Delete(ctx context.Context, id string) error
}

type recordingRepo struct {
	db *gorm.DB
}

func NewRecordingRepo(db *gorm.DB) RecordingRepository {
	return &recordingRepo{db: db}
}

func (r *recordingRepo) Insert(ctx context.Context, rec *models.Recording) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *recordingRepo) GetByID(ctx context.Context, id string) (*models.Recording, error) {
	var row models.Recording
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *recordingRepo) GetByFilename(ctx context.Context, filename string) (*models.Recording, error) {
	var row models.Recording
	err := r.db.WithContext(ctx).Where("filename = ?", filename).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *recordingRepo) UpdateState(ctx context.Context, id, state string) error {
	return r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("id = ?", id).
		Update("state", state).Error
}

func (r *recordingRepo) UpdateDerived(ctx context.Context, rec *models.Recording) error {
	return r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"title":       rec.Title,
			"transcript":  rec.Transcript,
			"summary":     rec.Summary,
			"summary_doc": rec.SummaryDoc,
			"chapters":    rec.Chapters,
			"state":       rec.State,
			"updated_at":  rec.UpdatedAt,
		}).Error
}

func (r *recordingRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{}).Error
}
