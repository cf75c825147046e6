package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/echonote/internal/models"
	mongorepo "github.com/yoockh/echonote/internal/repositories/mongo"
	pgrepo "github.com/yoockh/echonote/internal/repositories/postgres"
	"github.com/yoockh/echonote/internal/storage"
	"github.com/yoockh/echonote/internal/utils"
)

// ChunkResult is the response for one accepted chunk upload.
type ChunkResult struct {
	Filename  string `json:"filename"`
	Finalized bool   `json:"finalized"`
}

type UploadService interface {
	// AcceptChunk stores one uploaded chunk. The final chunk triggers
	// reassembly of the whole session into the durable recording file.
	AcceptChunk(ctx context.Context, userID, sessionID string, previousChunks []string, chunk io.Reader, ext string, isLast bool) (*ChunkResult, error)
}

type uploadService struct {
	recordings pgrepo.RecordingRepository
	manifests  mongorepo.ManifestRepository
	store      storage.Store
	archiver   storage.Archiver // optional
	log        *logrus.Logger
	ttl        time.Duration
}

func NewUploadService(
	recordings pgrepo.RecordingRepository,
	manifests mongorepo.ManifestRepository,
	store storage.Store,
	archiver storage.Archiver,
	log *logrus.Logger,
	ttl time.Duration,
) UploadService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logrus.New()
	}
	return &uploadService{
		recordings: recordings,
		manifests:  manifests,
		store:      store,
		archiver:   archiver,
		log:        log,
		ttl:        ttl,
	}
}

func chunkFilename(ext string) string {
	return fmt.Sprintf("recording-%d-chunk.%s", time.Now().UTC().UnixNano(), ext)
}

func finalFilename(ext string) string {
	return fmt.Sprintf("recording-%d-final.%s", time.Now().UTC().UnixMilli(), ext)
}

func normalizeExt(ext string) string {
	if ext == "" {
		return "webm"
	}
	return ext
}

func (s *uploadService) AcceptChunk(ctx context.Context, userID, sessionID string, previousChunks []string, chunk io.Reader, ext string, isLast bool) (*ChunkResult, error) {
	const op = "UploadService.AcceptChunk"

	if userID == "" || sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}
	if chunk == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "chunk payload is required", nil)
	}
	ext = normalizeExt(ext)

	m, err := s.manifests.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to load upload session", err)
	}

	if m == nil {
		m, err = s.openSession(ctx, userID, sessionID, ext)
		if err != nil {
			return nil, err
		}
	}

	if m.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "upload session belongs to another user", nil)
	}

	if m.Status == models.ManifestFinalized {
		// Retried final call after a completed reassembly: the source chunks
		// are gone, so answer with the recorded durable filename instead.
		if isLast {
			return &ChunkResult{Filename: m.FinalFilename, Finalized: true}, nil
		}
		return nil, utils.E(utils.CodeConflict, op, "upload session already finalized", nil)
	}

	// The server manifest is authoritative; the client-held list must agree
	// with it or the session ordering can no longer be trusted.
	if !sameManifest(m.Chunks, previousChunks) {
		return nil, utils.E(utils.CodeConflict, op, "client manifest diverged from upload session", nil)
	}

	chunkName := chunkFilename(ext)
	if _, err := s.store.Save(ctx, userID, chunkName, chunk); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store chunk", err)
	}

	if !isLast {
		if err := s.manifests.AppendChunk(ctx, sessionID, chunkName, time.Now().UTC().Add(s.ttl)); err != nil {
			_ = s.store.Remove(ctx, userID, chunkName)
			return nil, utils.E(utils.CodeInternal, op, "failed to record chunk in manifest", err)
		}
		return &ChunkResult{Filename: chunkName}, nil
	}

	if err := s.reassemble(ctx, userID, m, append(append([]string{}, m.Chunks...), chunkName)); err != nil {
		// the final chunk was never recorded in the manifest, so nothing
		// else will ever reap it; remove it unless reassembly already did
		if rerr := s.store.Remove(ctx, userID, chunkName); rerr != nil && !errors.Is(rerr, utils.ErrNotFound) {
			s.log.WithError(rerr).WithField("chunk", chunkName).Warn("failed to delete final chunk after aborted reassembly")
		}
		return nil, err
	}

	if err := s.recordings.UpdateState(ctx, m.RecordingID, models.StateFinalized); err != nil {
		return nil, utils.E(utils.CodePersistenceFailed, op, "recording reassembled but state update failed", err)
	}
	if err := s.manifests.Finalize(ctx, sessionID, m.FinalFilename); err != nil {
		return nil, utils.E(utils.CodePersistenceFailed, op, "recording reassembled but session finalize failed", err)
	}

	s.archive(ctx, userID, m.FinalFilename)

	return &ChunkResult{Filename: m.FinalFilename, Finalized: true}, nil
}

func (s *uploadService) openSession(ctx context.Context, userID, sessionID, ext string) (*models.UploadManifest, error) {
	const op = "UploadService.openSession"

	now := time.Now().UTC()
	rec := &models.Recording{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filename:  finalFilename(ext),
		State:     models.StateUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.recordings.Insert(ctx, rec); err != nil {
		return nil, utils.E(utils.CodePersistenceFailed, op, "failed to create recording", err)
	}

	m := &models.UploadManifest{
		SessionID:     sessionID,
		UserID:        userID,
		RecordingID:   rec.ID,
		Chunks:        []string{},
		Status:        models.ManifestOpen,
		FinalFilename: rec.Filename,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.manifests.Create(ctx, m); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to open upload session", err)
	}
	return m, nil
}

// reassemble appends every chunk, in manifest order, into a temp object and
// promotes it to the durable filename. Source chunks are deleted as they are
// consumed; readers never see a partial durable file.
func (s *uploadService) reassemble(ctx context.Context, userID string, m *models.UploadManifest, chunks []string) error {
	const op = "UploadService.reassemble"

	w, tempName, err := s.store.CreateTemp(ctx, userID)
	if err != nil {
		return utils.E(utils.CodeReassemblyFailed, op, "failed to create reassembly target", err)
	}

	abort := func(cause error) error {
		_ = w.Close()
		_ = s.store.Discard(ctx, userID, tempName)
		return cause
	}

	for _, name := range chunks {
		rc, _, err := s.store.Open(ctx, userID, name)
		if err != nil {
			if errors.Is(err, utils.ErrNotFound) {
				return abort(utils.E(utils.CodeChunkMissing, op, "chunk "+name+" no longer exists", err))
			}
			return abort(utils.E(utils.CodeReassemblyFailed, op, "failed to open chunk "+name, err))
		}

		_, err = io.Copy(w, rc)
		_ = rc.Close()
		if err != nil {
			return abort(utils.E(utils.CodeReassemblyFailed, op, "failed to append chunk "+name, err))
		}

		if err := s.store.Remove(ctx, userID, name); err != nil && !errors.Is(err, utils.ErrNotFound) {
			s.log.WithError(err).WithField("chunk", name).Warn("failed to delete consumed chunk")
		}
	}

	if err := w.Close(); err != nil {
		_ = s.store.Discard(ctx, userID, tempName)
		return utils.E(utils.CodeReassemblyFailed, op, "failed to flush reassembled file", err)
	}
	if err := s.store.Promote(ctx, userID, tempName, m.FinalFilename); err != nil {
		_ = s.store.Discard(ctx, userID, tempName)
		return utils.E(utils.CodeReassemblyFailed, op, "failed to publish reassembled file", err)
	}
	return nil
}

// archive mirrors the durable file to secondary storage, best-effort.
func (s *uploadService) archive(ctx context.Context, userID, filename string) {
	if s.archiver == nil {
		return
	}
	rc, _, err := s.store.Open(ctx, userID, filename)
	if err != nil {
		s.log.WithError(err).WithField("filename", filename).Warn("archive skipped: cannot open recording")
		return
	}
	defer rc.Close()

	object := userID + "/" + filename
	if _, err := s.archiver.Archive(ctx, object, utils.ContentTypeByExt(filename), rc); err != nil {
		s.log.WithError(err).WithField("filename", filename).Warn("archive upload failed")
	}
}

func sameManifest(server, client []string) bool {
	if len(server) != len(client) {
		return false
	}
	for i := range server {
		if server[i] != client[i] {
			return false
		}
	}
	return true
}
