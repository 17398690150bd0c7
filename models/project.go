package models

import "time"

// Project status values.
const (
	// planning: project exists, waiting for an accepted plan
	ProjectStatusPlanning = "planning"
	// in_progress: segments created, prompt/video review cycle running
	ProjectStatusInProgress = "in_progress"
	// finalizing: concatenation of approved segments is running
	ProjectStatusFinalizing = "finalizing"
	ProjectStatusCompleted  = "completed"
	ProjectStatusFailed     = "failed"
)

type Project struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Owner          string    `json:"owner"`
	Title          string    `json:"title"`
	VoiceSampleURL string    `json:"voiceSampleUrl"`
	VoiceID        string    `json:"voiceId"`
	NarrationPath  string    `json:"narrationPath"`
	Status         string    `json:"status"`
	FinalVideoPath string    `json:"finalVideoPath"`
	Reason         string    `json:"reason"`
	SegmentCount   int       `json:"segmentCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}

// VoiceRequested reports whether this project asked for narration with a cloned voice.
func (p *Project) VoiceRequested() bool {
	return p.VoiceSampleURL != ""
}
