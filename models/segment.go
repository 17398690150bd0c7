package models

import (
	"time"
)

// Segment lifecycle states. Transitions between them are owned by
// service's state machine; nothing else writes Segment.State.
const (
	SegmentStateDraft          = "draft"
	SegmentStatePromptReview   = "prompt_review"
	SegmentStatePromptApproved = "prompt_approved"
	SegmentStateGenerating     = "generating"
	SegmentStateVideoReady     = "video_ready"
	SegmentStateVideoApproved  = "video_approved"
	SegmentStateFailed         = "failed"
)

type Segment struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId     string    `gorm:"index" json:"projectId"`
	Ordinal       int       `json:"ordinal"`
	Prompt        string    `json:"prompt"`
	FirstFrameURL string    `json:"firstFrameUrl"`
	LastFrameURL  string    `json:"lastFrameUrl"`
	NarrationText string    `json:"narrationText"`
	State         string    `json:"state"`
	VideoPath     string    `json:"videoPath"`
	// ActiveTaskID points at the segment's current TaskRecord. A poller
	// result whose task id no longer matches is stale and gets discarded.
	ActiveTaskID string    `json:"activeTaskId"`
	RetryCount   int       `json:"retryCount"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Segment) TableName() string {
	return "segment"
}

// Terminal reports whether the segment needs no further automatic work.
func (s *Segment) Terminal() bool {
	return s.State == SegmentStateVideoApproved || s.State == SegmentStateFailed
}
