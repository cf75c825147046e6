package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Lifecycle states of a recording. Only the pipeline orchestrator advances
// them past StateFinalized.
const (
	StateCapturing   = "capturing"
	StateUploading   = "uploading"
	StateFinalized   = "finalized"
	StateTranscribed = "transcribed"
	StateSummarized  = "summarized"
	StateComplete    = "complete"

	// failed states are "failed:<stage>", see StateFailedAt / FailedStage
)

func StateFailedAt(stage string) string { return "failed:" + stage }

func FailedStage(state string) (string, bool) {
	const prefix = "failed:"
	if len(state) > len(prefix) && state[:len(prefix)] == prefix {
		return state[len(prefix):], true
	}
	return "", false
}

type Recording struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID   string `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Filename string `gorm:"column:filename;type:text;uniqueIndex" json:"filename"`
	State    string `gorm:"column:state;type:text" json:"state"`

	Title      string         `gorm:"column:title;type:text" json:"title"`
	Transcript string         `gorm:"column:transcript;type:text" json:"transcript"`
	Summary    string         `gorm:"column:summary;type:text" json:"summary"`
	SummaryDoc datatypes.JSON `gorm:"column:summary_doc;type:jsonb" json:"summary_doc,omitempty"`
	Chapters   pq.StringArray `gorm:"column:chapters;type:text[]" json:"chapters,omitempty"`

	// free-form note the user attached before processing; folded into the summary
	Note string `gorm:"column:note;type:text" json:"note,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Recording) TableName() string { return "recordings" }
