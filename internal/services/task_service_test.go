package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/echonote/internal/models"
)

func TestIsEmptyTaskResponse(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"No tasks identified", true},
		{"no tasks identified.", true},
		{"none found", true},
		{"NONE FOUND", true},
		{"   ", true},
		{"", true},
		{"- - -", true},
		{"There are no action items in this recording", true},
		{"I couldn't find any tasks in the transcript", true},
		{"Email Sam the budget by Friday", false},
		{"Call the dentist; nothing else matters", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsEmptyTaskResponse(tc.text), "text=%q", tc.text)
	}
}

func TestIsDuplicateTask(t *testing.T) {
	existing := []string{"Email Sam the budget", "Book flights to Lisbon"}

	assert.True(t, IsDuplicateTask("email sam the budget", existing))
	assert.True(t, IsDuplicateTask("Email  Sam   the budget", existing), "whitespace normalized")
	assert.True(t, IsDuplicateTask("Email Sam", existing), "substring of existing")
	assert.True(t, IsDuplicateTask("Email Sam the budget by Friday", existing), "existing is substring")
	assert.False(t, IsDuplicateTask("Review the quarterly report", existing))
}

func TestExtractTasks(t *testing.T) {
	raw := "- Email Sam the budget by Friday\n" +
		"* Book flights to Lisbon\n" +
		"1. Email Sam the budget by Friday\n" + // dup of line 1
		"No tasks identified\n" +
		"\n" +
		"2) Review the quarterly report"

	got := ExtractTasks(raw, nil)
	require.Equal(t, []string{
		"Email Sam the budget by Friday",
		"Book flights to Lisbon",
		"Review the quarterly report",
	}, got)
}

func TestExtractTasks_EmptyResponse(t *testing.T) {
	assert.Nil(t, ExtractTasks("No tasks identified", nil))
	assert.Nil(t, ExtractTasks("   ", nil))
}

func TestExtractTasks_SkipsExisting(t *testing.T) {
	got := ExtractTasks("- Email Sam the budget\n- Walk the dog", []string{"email sam the budget"})
	require.Equal(t, []string{"Walk the dog"}, got)
}

// fakeTaskRepo is an in-memory TaskRepository.
type fakeTaskRepo struct {
	rows []models.Task
}

func (f *fakeTaskRepo) Insert(_ context.Context, t *models.Task) error {
	f.rows = append(f.rows, *t)
	return nil
}

func (f *fakeTaskRepo) ListByRecording(_ context.Context, recordingID string) ([]models.Task, error) {
	var out []models.Task
	for _, t := range f.rows {
		if t.RecordingID != nil && *t.RecordingID == recordingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) DeleteByRecording(_ context.Context, recordingID string) error {
	kept := f.rows[:0]
	for _, t := range f.rows {
		if t.RecordingID == nil || *t.RecordingID != recordingID {
			kept = append(kept, t)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeTaskRepo) NextPosition(_ context.Context, userID string) (int, error) {
	max := -1
	for _, t := range f.rows {
		if t.UserID == userID && t.Position > max {
			max = t.Position
		}
	}
	return max + 1, nil
}

func TestTaskService_CreateFromExtraction(t *testing.T) {
	repo := &fakeTaskRepo{}
	svc := NewTaskService(repo)

	created, err := svc.CreateFromExtraction(context.Background(), "u1", "rec1",
		"- Email Sam the budget\n- Walk the dog")
	require.NoError(t, err)
	require.Len(t, created, 2)

	// array order preserved through positions
	assert.Equal(t, "Email Sam the budget", created[0].Text)
	assert.Equal(t, "Walk the dog", created[1].Text)
	assert.Equal(t, created[0].Position+1, created[1].Position)

	// re-run with overlapping output only creates the new task
	more, err := svc.CreateFromExtraction(context.Background(), "u1", "rec1",
		"- Email Sam the budget\n- Buy milk")
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, "Buy milk", more[0].Text)
	assert.Greater(t, more[0].Position, created[1].Position)
}

func TestTaskService_CreateFromExtraction_NoTasks(t *testing.T) {
	repo := &fakeTaskRepo{}
	svc := NewTaskService(repo)

	created, err := svc.CreateFromExtraction(context.Background(), "u1", "rec1", "No tasks identified")
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, repo.rows)
}
