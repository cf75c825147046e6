package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/echonote/internal/models"
	pgrepo "github.com/yoockh/echonote/internal/repositories/postgres"
	"github.com/yoockh/echonote/internal/storage"
	"github.com/yoockh/echonote/internal/utils"
)

type RecordingService interface {
	GetOwned(ctx context.Context, userID, id string) (*models.Recording, error)
	GetOwnedByFilename(ctx context.Context, userID, filename string) (*models.Recording, error)
	// Delete removes the recording row, its tasks, its embedding rows, and
	// the durable audio file.
	Delete(ctx context.Context, userID, id string) error
}

type recordingService struct {
	recordings pgrepo.RecordingRepository
	tasks      pgrepo.TaskRepository
	embeddings pgrepo.EmbeddingRepository
	store      storage.Store
	log        *logrus.Logger
}

func NewRecordingService(
	recordings pgrepo.RecordingRepository,
	tasks pgrepo.TaskRepository,
	embeddings pgrepo.EmbeddingRepository,
	store storage.Store,
	log *logrus.Logger,
) RecordingService {
	if log == nil {
		log = logrus.New()
	}
	return &recordingService{
		recordings: recordings,
		tasks:      tasks,
		embeddings: embeddings,
		store:      store,
		log:        log,
	}
}

func (s *recordingService) GetOwned(ctx context.Context, userID, id string) (*models.Recording, error) {
	const op = "RecordingService.GetOwned"

	if userID == "" || id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and recording id are required", nil)
	}

	rec, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "recording not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get recording", err)
	}
	if rec.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "recording belongs to another user", nil)
	}
	return rec, nil
}

func (s *recordingService) GetOwnedByFilename(ctx context.Context, userID, filename string) (*models.Recording, error) {
	const op = "RecordingService.GetOwnedByFilename"

	if userID == "" || filename == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and filename are required", nil)
	}

	rec, err := s.recordings.GetByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "recording not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get recording", err)
	}
	if rec.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "recording belongs to another user", nil)
	}
	return rec, nil
}

func (s *recordingService) Delete(ctx context.Context, userID, id string) error {
	const op = "RecordingService.Delete"

	rec, err := s.GetOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	contentIDs := []string{rec.ID}
	if tasks, err := s.tasks.ListByRecording(ctx, rec.ID); err == nil {
		for _, t := range tasks {
			contentIDs = append(contentIDs, t.ID)
		}
	}

	if err := s.embeddings.DeleteByContentIDs(ctx, contentIDs); err != nil {
		s.log.WithError(err).WithField("recording_id", rec.ID).Warn("failed to delete embedding rows")
	}
	if err := s.tasks.DeleteByRecording(ctx, rec.ID); err != nil {
		return utils.E(utils.CodePersistenceFailed, op, "failed to delete tasks", err)
	}
	if err := s.recordings.Delete(ctx, rec.ID); err != nil {
		return utils.E(utils.CodePersistenceFailed, op, "failed to delete recording", err)
	}

	if err := s.store.Remove(ctx, userID, rec.Filename); err != nil && !errors.Is(err, utils.ErrNotFound) {
		s.log.WithError(err).WithField("filename", rec.Filename).Warn("failed to delete durable file")
	}
	return nil
}
