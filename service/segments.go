package service

import (
	"fmt"
	"strings"

	"VideoCreator-server/models"
)

// Segment transitions are all-or-nothing: every operation here either
// persists the fully updated segment or returns ErrInvalidState and leaves
// it untouched. Nothing outside this file writes Segment.State.

// SubmitPrompt moves a draft segment into review once it has prompt text.
// Editing the prompt of a segment already in review keeps it there.
func (o *Orchestrator) SubmitPrompt(segmentID, prompt string) (*models.Segment, error) {
	seg, err := o.Store.GetSegment(segmentID)
	if err != nil {
		return nil, err
	}
	if seg.State != models.SegmentStateDraft && seg.State != models.SegmentStatePromptReview {
		return nil, fmt.Errorf("%w: segment %s is %s", ErrInvalidState, seg.ID, seg.State)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidState)
	}
	seg.Prompt = prompt
	seg.State = models.SegmentStatePromptReview
	if err := o.Store.SaveSegment(seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// ApprovePrompt confirms the prompt and makes the segment eligible for
// generation.
func (o *Orchestrator) ApprovePrompt(segmentID string) (*models.Segment, error) {
	seg, err := o.Store.GetSegment(segmentID)
	if err != nil {
		return nil, err
	}
	if seg.State != models.SegmentStatePromptReview {
		return nil, fmt.Errorf("%w: segment %s is %s, want prompt_review", ErrInvalidState, seg.ID, seg.State)
	}
	seg.State = models.SegmentStatePromptApproved
	if err := o.Store.SaveSegment(seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// ApproveVideo accepts a generated video. Terminal for the segment.
func (o *Orchestrator) ApproveVideo(segmentID string) (*models.Segment, error) {
	seg, err := o.Store.GetSegment(segmentID)
	if err != nil {
		return nil, err
	}
	if seg.State != models.SegmentStateVideoReady {
		return nil, fmt.Errorf("%w: segment %s is %s, want video_ready", ErrInvalidState, seg.ID, seg.State)
	}
	seg.State = models.SegmentStateVideoApproved
	if err := o.Store.SaveSegment(seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// Regenerate re-enters prompt_approved from video_ready or failed, keeping
// the already-approved prompt. The segment drops its video and its claim
// on the prior TaskRecord; the record itself stays as audit history, and
// any late result it produces is discarded by the id mismatch.
func (o *Orchestrator) Regenerate(segmentID string) (*models.Segment, error) {
	seg, err := o.Store.GetSegment(segmentID)
	if err != nil {
		return nil, err
	}
	if seg.State != models.SegmentStateVideoReady && seg.State != models.SegmentStateFailed {
		return nil, fmt.Errorf("%w: segment %s is %s, want video_ready or failed", ErrInvalidState, seg.ID, seg.State)
	}
	seg.State = models.SegmentStatePromptApproved
	seg.VideoPath = ""
	seg.ActiveTaskID = ""
	seg.Reason = ""
	seg.RetryCount++
	if err := o.Store.SaveSegment(seg); err != nil {
		return nil, err
	}
	return seg, nil
}
