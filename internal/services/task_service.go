package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yoockh/echonote/internal/models"
	pgrepo "github.com/yoockh/echonote/internal/repositories/postgres"
	"github.com/yoockh/echonote/internal/utils"
)

// Phrasings models emit when they found nothing actionable. Matched after
// trimming and lower-casing, by exact match or containment.
var noTaskPhrases = []string{
	"no tasks identified",
	"no tasks found",
	"no tasks",
	"no task items",
	"no action items",
	"no actionable items",
	"no actionable tasks",
	"none found",
	"none identified",
	"nothing to do",
	"nothing actionable",
}

var (
	noTaskPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^no\b.*\b(found|identified|detected)`),
		regexp.MustCompile(`\bcould\s*n[o']t\s+(identify|find|detect)\s+any\b`),
		regexp.MustCompile(`^there\s+(are|were)\s+no\b`),
	}
	punctOnly     = regexp.MustCompile(`^[\p{P}\p{S}\s]*$`)
	bulletPrefix  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	spaceCollapse = regexp.MustCompile(`\s+`)
)

// IsEmptyTaskResponse reports whether text is a "no tasks found" style
// response rather than an actual task. Applied to whole model responses and
// to individual lines.
func IsEmptyTaskResponse(text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" || punctOnly.MatchString(norm) {
		return true
	}
	for _, p := range noTaskPhrases {
		if norm == p || strings.Contains(norm, p) {
			return true
		}
	}
	for _, re := range noTaskPatterns {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

func normalizeTaskText(text string) string {
	return spaceCollapse.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

// IsDuplicateTask reports whether candidate duplicates any of existing:
// normalized texts are equal, or one contains the other.
func IsDuplicateTask(candidate string, existing []string) bool {
	cn := normalizeTaskText(candidate)
	if cn == "" {
		return true
	}
	for _, e := range existing {
		en := normalizeTaskText(e)
		if en == "" {
			continue
		}
		if cn == en || strings.Contains(cn, en) || strings.Contains(en, cn) {
			return true
		}
	}
	return false
}

// ExtractTasks turns raw model output into clean task texts: one per line,
// bullets stripped, negative lines dropped, duplicates (against existing and
// among themselves) suppressed. Order follows the input.
func ExtractTasks(raw string, existing []string) []string {
	if IsEmptyTaskResponse(raw) {
		return nil
	}

	seen := append([]string{}, existing...)
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = bulletPrefix.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" || IsEmptyTaskResponse(line) {
			continue
		}
		if IsDuplicateTask(line, seen) {
			continue
		}
		out = append(out, line)
		seen = append(seen, line)
	}
	return out
}

type TaskService interface {
	// CreateFromExtraction persists extracted task texts for a recording in
	// array order, skipping duplicates of the recording's existing tasks.
	CreateFromExtraction(ctx context.Context, userID, recordingID, raw string) ([]models.Task, error)
	ListByRecording(ctx context.Context, recordingID string) ([]models.Task, error)
}

type taskService struct {
	tasks pgrepo.TaskRepository
}

func NewTaskService(tasks pgrepo.TaskRepository) TaskService {
	return &taskService{tasks: tasks}
}

func (s *taskService) CreateFromExtraction(ctx context.Context, userID, recordingID, raw string) ([]models.Task, error) {
	const op = "TaskService.CreateFromExtraction"

	if userID == "" || recordingID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and recording_id are required", nil)
	}

	existingRows, err := s.tasks.ListByRecording(ctx, recordingID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list existing tasks", err)
	}
	existing := make([]string, 0, len(existingRows))
	for _, t := range existingRows {
		existing = append(existing, t.Text)
	}

	texts := ExtractTasks(raw, existing)
	if len(texts) == 0 {
		return nil, nil
	}

	pos, err := s.tasks.NextPosition(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to compute task position", err)
	}

	now := time.Now().UTC()
	created := make([]models.Task, 0, len(texts))
	for i, text := range texts {
		recID := recordingID
		t := &models.Task{
			ID:          uuid.NewString(),
			UserID:      userID,
			RecordingID: &recID,
			Text:        text,
			Completed:   false,
			Position:    pos + i,
			CreatedAt:   now,
		}
		if err := s.tasks.Insert(ctx, t); err != nil {
			return created, utils.E(utils.CodePersistenceFailed, op, "failed to insert task", err)
		}
		created = append(created, *t)
	}
	return created, nil
}

func (s *taskService) ListByRecording(ctx context.Context, recordingID string) ([]models.Task, error) {
	const op = "TaskService.ListByRecording"

	tasks, err := s.tasks.ListByRecording(ctx, recordingID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list tasks", err)
	}
	return tasks, nil
}
