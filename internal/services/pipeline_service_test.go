package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/echonote/internal/models"
	"github.com/yoockh/echonote/internal/utils"
)

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Transcribe(_ context.Context, _ []byte, _ string) (string, float64, error) {
	return f.text, 0.93, f.err
}

func (f *fakeSTT) Close() error { return nil }

// fakeLLM answers by prompt kind, recognized by a marker phrase in each
// prompt template. failOn aborts that call.
type fakeLLM struct {
	format  string
	title   string
	summary string
	tasks   string
	failOn  string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	kind := ""
	switch {
	case strings.Contains(prompt, "Re-render this transcript"):
		kind = "format"
	case strings.Contains(prompt, "Write a title"):
		kind = "title"
	case strings.Contains(prompt, "Summarize this transcript"):
		kind = "summary"
	case strings.Contains(prompt, "actionable tasks"):
		kind = "tasks"
	}
	if kind == f.failOn {
		return "", errors.New("model unavailable")
	}
	switch kind {
	case "format":
		return f.format, nil
	case "title":
		return f.title, nil
	case "summary":
		return f.summary, nil
	case "tasks":
		return f.tasks, nil
	}
	return "", errors.New("unrecognized prompt")
}

func (f *fakeLLM) Close() error { return nil }

type recordingStage struct {
	stage  string
	status string
}

type fakeNotifier struct {
	events []recordingStage
}

func (f *fakeNotifier) Publish(_ context.Context, _ string, stage, status string) {
	f.events = append(f.events, recordingStage{stage, status})
}

type pipelineFixture struct {
	recs     *fakeRecordingRepo
	tasks    *fakeTaskRepo
	store    *memStore
	stt      *fakeSTT
	llm      *fakeLLM
	search   *fakeEmbeddingRepo
	notifier *fakeNotifier
	svc      PipelineService
	rec      *models.Recording
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		recs:  newFakeRecordingRepo(),
		tasks: &fakeTaskRepo{},
		store: newMemStore(),
		stt:   &fakeSTT{text: "we need to email sam the budget and also book flights"},
		llm: &fakeLLM{
			format:  "## Budget talk\n[00:00:01.000] we need to email sam the budget and also book flights",
			title:   "Budget and travel follow-ups",
			summary: "Talked through the budget.\n- Email Sam the budget\n- Book flights",
			tasks:   "- Email Sam the budget\n- Book flights to Lisbon",
		},
		search:   &fakeEmbeddingRepo{},
		notifier: &fakeNotifier{},
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.rec = &models.Recording{
		ID:        "rec-1",
		UserID:    "u1",
		Filename:  "recording-1-final.webm",
		State:     models.StateFinalized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.recs.Insert(context.Background(), f.rec))
	_, err := f.store.Save(context.Background(), "u1", f.rec.Filename, strings.NewReader("opus-bytes"))
	require.NoError(t, err)

	taskSvc := NewTaskService(f.tasks)
	searchSvc := newTestSearchService(f.search, &fakeEmbedder{}, now)
	f.svc = NewPipelineService(f.recs, f.store, f.stt, f.llm, taskSvc, searchSvc, f.notifier, nil)
	return f
}

func TestProcess_FullRun(t *testing.T) {
	f := newPipelineFixture(t)

	report, err := f.svc.Process(context.Background(), "u1", "rec-1", ProcessOptions{Language: "en-US"})
	require.NoError(t, err)
	require.True(t, report.Complete)
	assert.Empty(t, report.FailedStage)

	rec, err := f.recs.GetByID(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateComplete, rec.State)
	assert.Equal(t, "Budget and travel follow-ups", rec.Title)
	assert.Contains(t, rec.Transcript, "## Budget talk")
	assert.Contains(t, rec.Summary, "Email Sam")
	assert.Equal(t, []string{"Budget talk"}, []string(rec.Chapters))

	require.Len(t, report.Tasks, 2)
	assert.Equal(t, "Email Sam the budget", report.Tasks[0].Text)
	assert.Equal(t, "Book flights to Lisbon", report.Tasks[1].Text)

	// transcript + summary + two tasks were indexed, under the pipeline's
	// own identity but scoped to the owner
	require.Len(t, f.search.rows, 4)
	for _, row := range f.search.rows {
		assert.Equal(t, "u1", row.UserID)
		assert.Equal(t, "service:pipeline", row.IndexedBy)
	}
}

func TestProcess_TaskExtractionFailureKeepsEarlierOutput(t *testing.T) {
	f := newPipelineFixture(t)
	f.llm.failOn = "tasks"

	report, err := f.svc.Process(context.Background(), "u1", "rec-1", ProcessOptions{})
	require.NoError(t, err)
	require.False(t, report.Complete)
	assert.Equal(t, "extract_tasks", report.FailedStage)
	assert.NotEmpty(t, report.FailMessage)

	// earlier stage output survived the failure
	rec, err := f.recs.GetByID(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailedAt("extract_tasks"), rec.State)
	assert.Contains(t, rec.Transcript, "## Budget talk")
	assert.Equal(t, "Budget and travel follow-ups", rec.Title)
	assert.Contains(t, rec.Summary, "budget")

	// no tasks and no index rows were produced
	assert.Empty(t, report.Tasks)
	assert.Empty(t, f.tasks.rows)
	assert.Empty(t, f.search.rows)
}

func TestProcess_TranscriptionFailureLeavesRecordingBare(t *testing.T) {
	f := newPipelineFixture(t)
	f.stt.err = errors.New("speech backend down")

	report, err := f.svc.Process(context.Background(), "u1", "rec-1", ProcessOptions{})
	require.NoError(t, err)
	require.False(t, report.Complete)
	assert.Equal(t, "transcribe", report.FailedStage)

	rec, err := f.recs.GetByID(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailedAt("transcribe"), rec.State)
	assert.Empty(t, rec.Transcript)
	assert.Empty(t, rec.Title)
}

func TestProcess_EmptyTaskResponseCompletes(t *testing.T) {
	f := newPipelineFixture(t)
	f.llm.tasks = "No tasks identified"

	report, err := f.svc.Process(context.Background(), "u1", "rec-1", ProcessOptions{})
	require.NoError(t, err)
	require.True(t, report.Complete)
	assert.Empty(t, report.Tasks)
	assert.Empty(t, f.tasks.rows)
}

func TestProcess_RejectsUnfinalizedRecording(t *testing.T) {
	f := newPipelineFixture(t)
	require.NoError(t, f.recs.UpdateState(context.Background(), "rec-1", models.StateUploading))

	_, err := f.svc.Process(context.Background(), "u1", "rec-1", ProcessOptions{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}

func TestProcess_RejectsForeignRecording(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.svc.Process(context.Background(), "u2", "rec-1", ProcessOptions{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
}

func TestProcess_PublishesStageEvents(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.svc.Process(context.Background(), "u1", "rec-1", ProcessOptions{})
	require.NoError(t, err)

	var done []string
	for _, e := range f.notifier.events {
		if e.status == "done" {
			done = append(done, e.stage)
		}
	}
	assert.Equal(t, []string{
		"transcribe", "format", "title", "summarize", "extract_tasks", "persist", "index",
	}, done)
	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, recordingStage{"pipeline", "complete"}, last)
}
