package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/echonote/internal/models"
	"github.com/yoockh/echonote/internal/providers/llm"
	"github.com/yoockh/echonote/internal/providers/stt"
	pgrepo "github.com/yoockh/echonote/internal/repositories/postgres"
	"github.com/yoockh/echonote/internal/storage"
	"github.com/yoockh/echonote/internal/utils"
)

// ProgressNotifier pushes per-stage pipeline events to interested listeners.
// Delivery is best-effort.
type ProgressNotifier interface {
	Publish(ctx context.Context, recordingID, stage, status string)
}

type ProcessOptions struct {
	Language    string // STT language, ex: "en-US"
	StylePrompt string // user-configured summary style
}

// ProcessReport tells the caller how far the pipeline got. A non-empty
// FailedStage means processing was incomplete; the recording keeps everything
// produced by earlier stages.
type ProcessReport struct {
	Recording   *models.Recording `json:"recording"`
	Tasks       []models.Task     `json:"tasks"`
	Complete    bool              `json:"complete"`
	FailedStage string            `json:"failed_stage,omitempty"`
	FailMessage string            `json:"fail_message,omitempty"`
}

type PipelineService interface {
	// Process runs the full derivation chain for one finalized recording.
	// Stages run strictly in order; a stage failure aborts the remainder but
	// never rolls back earlier output.
	Process(ctx context.Context, userID, recordingID string, opts ProcessOptions) (*ProcessReport, error)
}

type pipelineService struct {
	recordings pgrepo.RecordingRepository
	store      storage.Store
	stt        stt.Provider
	llm        llm.Provider
	tasks      TaskService
	search     SearchService
	notify     ProgressNotifier // optional
	log        *logrus.Logger
}

func NewPipelineService(
	recordings pgrepo.RecordingRepository,
	store storage.Store,
	sttProvider stt.Provider,
	llmProvider llm.Provider,
	tasks TaskService,
	search SearchService,
	notify ProgressNotifier,
	log *logrus.Logger,
) PipelineService {
	if log == nil {
		log = logrus.New()
	}
	return &pipelineService{
		recordings: recordings,
		store:      store,
		stt:        sttProvider,
		llm:        llmProvider,
		tasks:      tasks,
		search:     search,
		notify:     notify,
		log:        log,
	}
}

// pipeState carries each stage's output to the next.
type pipeState struct {
	userID string
	rec    *models.Recording
	opts   ProcessOptions

	audio     []byte
	rawText   string
	formatted string
	title     string
	summary   string
	taskLines string
	created   []models.Task
}

// One derivation stage: pure with respect to the state it receives, advancing
// the recording lifecycle on success when the stage maps to a lifecycle state.
type pipeStage struct {
	name      string
	code      utils.Code
	nextState string // lifecycle state after success; "" leaves it unchanged
	run       func(ctx context.Context, ps *pipeState) error
}

func (s *pipelineService) stages() []pipeStage {
	return []pipeStage{
		{name: "transcribe", code: utils.CodeTranscriptionFailed, nextState: models.StateTranscribed, run: s.stageTranscribe},
		{name: "format", code: utils.CodeFormattingFailed, run: s.stageFormat},
		{name: "title", code: utils.CodeTitleFailed, run: s.stageTitle},
		{name: "summarize", code: utils.CodeSummaryFailed, nextState: models.StateSummarized, run: s.stageSummarize},
		{name: "extract_tasks", code: utils.CodeTaskExtractionFailed, run: s.stageExtractTasks},
		{name: "persist", code: utils.CodePersistenceFailed, run: s.stagePersist},
		{name: "index", code: utils.CodeEmbeddingFailed, run: s.stageIndex},
	}
}

func (s *pipelineService) Process(ctx context.Context, userID, recordingID string, opts ProcessOptions) (*ProcessReport, error) {
	const op = "PipelineService.Process"

	if userID == "" || recordingID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and recording_id are required", nil)
	}

	rec, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "recording not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load recording", err)
	}
	if rec.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "recording belongs to another user", nil)
	}
	if rec.State == models.StateCapturing || rec.State == models.StateUploading {
		return nil, utils.E(utils.CodeConflict, op, "recording is not finalized yet", nil)
	}

	ps := &pipeState{userID: userID, rec: rec, opts: opts}

	for _, st := range s.stages() {
		s.publish(ctx, rec.ID, st.name, "processing")

		if err := st.run(ctx, ps); err != nil {
			s.publish(ctx, rec.ID, st.name, "failed")
			return s.fail(ctx, ps, st, err)
		}

		if st.nextState != "" {
			rec.State = st.nextState
		}
		s.publish(ctx, rec.ID, st.name, "done")
	}

	rec.State = models.StateComplete
	rec.UpdatedAt = time.Now().UTC()
	if err := s.recordings.UpdateState(ctx, rec.ID, rec.State); err != nil {
		return nil, utils.E(utils.CodePersistenceFailed, op, "failed to mark recording complete", err)
	}
	s.publish(ctx, rec.ID, "pipeline", "complete")

	return &ProcessReport{Recording: rec, Tasks: ps.created, Complete: true}, nil
}

// fail persists the best-completed state and reports incomplete processing.
// The recording is never rolled back to "no recording".
func (s *pipelineService) fail(ctx context.Context, ps *pipeState, st pipeStage, cause error) (*ProcessReport, error) {
	rec := ps.rec
	rec.State = models.StateFailedAt(st.name)
	rec.UpdatedAt = time.Now().UTC()

	if st.name == "transcribe" {
		// nothing derived yet; the recording stays saved but unprocessed
		if err := s.recordings.UpdateState(ctx, rec.ID, rec.State); err != nil {
			s.log.WithError(err).WithField("recording_id", rec.ID).Error("failed to record pipeline failure state")
		}
	} else {
		s.applyDerived(rec, ps)
		if err := s.recordings.UpdateDerived(ctx, rec); err != nil {
			s.log.WithError(err).WithField("recording_id", rec.ID).Error("failed to persist partial pipeline output")
		}
	}

	s.log.WithError(cause).WithFields(logrus.Fields{
		"recording_id": rec.ID,
		"stage":        st.name,
	}).Warn("pipeline stage failed, keeping earlier output")

	return &ProcessReport{
		Recording:   rec,
		Tasks:       ps.created,
		Complete:    false,
		FailedStage: st.name,
		FailMessage: cause.Error(),
	}, nil
}

func (s *pipelineService) applyDerived(rec *models.Recording, ps *pipeState) {
	if ps.formatted != "" {
		rec.Transcript = ps.formatted
		rec.Chapters = parseChapters(ps.formatted)
	} else if ps.rawText != "" {
		rec.Transcript = ps.rawText
	}
	if ps.title != "" {
		rec.Title = ps.title
	}
	if ps.summary != "" {
		rec.Summary = ps.summary
		rec.SummaryDoc = markupToDoc(ps.summary)
	}
}

func (s *pipelineService) publish(ctx context.Context, recordingID, stage, status string) {
	if s.notify == nil {
		return
	}
	s.notify.Publish(ctx, recordingID, stage, status)
}

// --- stages ---

func (s *pipelineService) stageTranscribe(ctx context.Context, ps *pipeState) error {
	rc, _, err := s.store.Open(ctx, ps.userID, ps.rec.Filename)
	if err != nil {
		return err
	}
	defer rc.Close()

	audio, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	ps.audio = audio

	text, _, err := s.stt.Transcribe(ctx, audio, ps.opts.Language)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("speech-to-text returned empty text")
	}
	ps.rawText = text
	return nil
}

func (s *pipelineService) stageFormat(ctx context.Context, ps *pipeState) error {
	out, err := s.llm.Complete(ctx, formatPrompt(ps.rawText))
	if err != nil {
		return err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return errors.New("formatter returned empty output")
	}
	ps.formatted = ensureLeadingChapter(out)
	return nil
}

func (s *pipelineService) stageTitle(ctx context.Context, ps *pipeState) error {
	out, err := s.llm.Complete(ctx, titlePrompt(ps.formatted))
	if err != nil {
		return err
	}
	title := normalizeTitle(out)
	if title == "" {
		return errors.New("title generator returned empty output")
	}
	ps.title = title
	return nil
}

func (s *pipelineService) stageSummarize(ctx context.Context, ps *pipeState) error {
	out, err := s.llm.Complete(ctx, summaryPrompt(ps.formatted, ps.rec.Note, ps.opts.StylePrompt))
	if err != nil {
		return err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return errors.New("summarizer returned empty output")
	}
	ps.summary = out
	return nil
}

func (s *pipelineService) stageExtractTasks(ctx context.Context, ps *pipeState) error {
	out, err := s.llm.Complete(ctx, taskPrompt(ps.formatted))
	if err != nil {
		return err
	}
	ps.taskLines = out
	return nil
}

func (s *pipelineService) stagePersist(ctx context.Context, ps *pipeState) error {
	rec := ps.rec
	s.applyDerived(rec, ps)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.recordings.UpdateDerived(ctx, rec); err != nil {
		return err
	}

	created, err := s.tasks.CreateFromExtraction(ctx, ps.userID, rec.ID, ps.taskLines)
	if err != nil {
		return err
	}
	ps.created = created
	return nil
}

// stageIndex embeds the derived artifacts. Indexing failures degrade
// retrieval, not the pipeline: they are logged and swallowed.
func (s *pipelineService) stageIndex(ctx context.Context, ps *pipeState) error {
	// the pipeline writes under its own identity, scoped to the owner
	actor := ServiceActor("pipeline", ps.userID)
	rec := ps.rec

	s.indexQuiet(ctx, actor, models.ContentTranscript, rec.ID, rec.Transcript)
	s.indexQuiet(ctx, actor, models.ContentSummary, rec.ID, rec.Summary)
	for _, t := range ps.created {
		s.indexQuiet(ctx, actor, models.ContentTodo, t.ID, t.Text)
	}
	return nil
}

func (s *pipelineService) indexQuiet(ctx context.Context, actor Actor, contentType, contentID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := s.search.Index(ctx, actor, contentType, contentID, text); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"content_type": contentType,
			"content_id":   contentID,
		}).Warn("embedding index failed")
	}
}
