package models

import "time"

type Task struct {
	ID          string  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      string  `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	RecordingID *string `gorm:"column:recording_id;type:uuid;index" json:"recording_id,omitempty"`

	Text      string `gorm:"column:text;type:text" json:"text"`
	Completed bool   `gorm:"column:completed" json:"completed"`
	Position  int    `gorm:"column:position" json:"position"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Task) TableName() string { return "tasks" }
