package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TaskRecord status values. A record is created pending, flipped exactly
// once to succeeded or failed, and never resurrected; retries create a
// fresh record instead of reusing a terminal one.
const (
	TaskStatusPending   = "pending"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"

	// Job kinds the provider accepts. The poller treats all of them the
	// same: one external id, one terminal status.
	TaskKindVoiceClone = "voice_clone"
	TaskKindTTS        = "tts"
	TaskKindVideoGen   = "video_generation"
)

type TaskRecord struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Kind        string     `json:"kind"`
	ExternalID  string     `json:"externalId"`
	// OwnerID is the project id for voice_clone/tts, the segment id for video_generation.
	OwnerID     string     `gorm:"index" json:"ownerId"`
	ProjectId   string     `gorm:"index" json:"projectId"`
	Status      string     `json:"status"`
	Result      TaskResult `gorm:"type:json" json:"result"`
	Error       string     `json:"error"`
	Attempts    int        `json:"attempts"`
	SubmittedAt time.Time  `json:"submittedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskResult keeps the minimal artifact locators returned by the provider.
type TaskResult struct {
	ArtifactRef string `json:"artifact_ref"`
	ResourceUrl string `json:"resource_url"`
}

// driver.Valuer: Go struct -> JSON column
func (r TaskResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// sql.Scanner: JSON column -> Go struct
func (r *TaskResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("failed to unmarshal JSON value:", value))
	}
	return json.Unmarshal(bytes, r)
}

// Terminal reports whether the record reached succeeded or failed.
func (t *TaskRecord) Terminal() bool {
	return t.Status == TaskStatusSucceeded || t.Status == TaskStatusFailed
}

// Age is the wall-clock time since submission.
func (t *TaskRecord) Age(now time.Time) time.Duration {
	return now.Sub(t.SubmittedAt)
}

func (TaskRecord) TableName() string {
	return "task"
}
