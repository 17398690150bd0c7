package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"VideoCreator-server/models"

	"github.com/google/uuid"
)

// Default generation parameters sent to the provider.
const (
	defaultDurationSec = 6
	defaultResolution  = "768P"
)

// Orchestrator owns project-level policy: plan acceptance, voice-clone
// gating, generation dispatch and finalization. Per-segment transitions
// live in segments.go; the poller feeds terminal task results back in
// through HandleTaskSuccess / HandleTaskFailure.
type Orchestrator struct {
	Store     Store
	Provider  Provider
	Artifacts Artifacts
	Concat    Assembler
	WorkDir   string
}

func NewOrchestrator(store Store, provider Provider, artifacts Artifacts, workDir string) *Orchestrator {
	return &Orchestrator{
		Store:     store,
		Provider:  provider,
		Artifacts: artifacts,
		Concat:    NewConcatenator(workDir),
		WorkDir:   workDir,
	}
}

// PlanShot is one entry of the plan generator's output. The orchestrator
// treats it as opaque structured input and only checks non-emptiness.
type PlanShot struct {
	Prompt        string `json:"prompt"`
	FirstFrame    string `json:"first_frame,omitempty"`
	LastFrame     string `json:"last_frame,omitempty"`
	NarrationText string `json:"narration_text"`
}

// CreateProject registers a new project in planning state.
func (o *Orchestrator) CreateProject(owner, title, voiceSampleURL string) (*models.Project, error) {
	p := &models.Project{
		ID:             uuid.NewString(),
		Owner:          owner,
		Title:          title,
		VoiceSampleURL: voiceSampleURL,
		Status:         models.ProjectStatusPlanning,
	}
	if err := o.Store.CreateProject(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplyPlan turns an accepted plan into one segment per shot, ordinals
// assigned by planned order (dense 0..N-1). Shots that already carry a
// prompt go straight to prompt_review.
func (o *Orchestrator) ApplyPlan(projectID string, shots []PlanShot) ([]models.Segment, error) {
	project, err := o.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectStatusPlanning {
		return nil, fmt.Errorf("%w: project %s is %s, want planning", ErrInvalidState, project.ID, project.Status)
	}
	if len(shots) == 0 {
		return nil, fmt.Errorf("%w: plan has no shots", ErrInvalidState)
	}

	now := time.Now()
	segments := make([]models.Segment, 0, len(shots))
	for i, shot := range shots {
		state := models.SegmentStateDraft
		if strings.TrimSpace(shot.Prompt) != "" {
			state = models.SegmentStatePromptReview
		}
		segments = append(segments, models.Segment{
			ID:            uuid.NewString(),
			ProjectId:     project.ID,
			Ordinal:       i,
			Prompt:        shot.Prompt,
			FirstFrameURL: shot.FirstFrame,
			LastFrameURL:  shot.LastFrame,
			NarrationText: shot.NarrationText,
			State:         state,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if err := o.Store.CreateSegments(segments); err != nil {
		return nil, err
	}

	project.Status = models.ProjectStatusInProgress
	project.SegmentCount = len(segments)
	if err := o.Store.SaveProject(project); err != nil {
		return nil, err
	}
	return segments, nil
}

// CloneVoice submits the project-scoped voice clone job. One clone per
// project; a second request while one is pending is rejected.
func (o *Orchestrator) CloneVoice(ctx context.Context, projectID string) (*models.TaskRecord, error) {
	project, err := o.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if !project.VoiceRequested() {
		return nil, fmt.Errorf("%w: project %s has no voice sample", ErrInvalidState, project.ID)
	}
	if project.VoiceID != "" {
		return nil, fmt.Errorf("%w: voice already cloned", ErrInvalidState)
	}
	existing, err := o.Store.TaskByOwner(project.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Terminal() {
		return nil, fmt.Errorf("%w: clone task %s still pending", ErrNoCapacity, existing.ID)
	}

	externalID, err := o.Provider.SubmitVoiceClone(ctx, project.VoiceSampleURL, cloneVoiceID(project.ID))
	if err != nil {
		return nil, err
	}
	task := &models.TaskRecord{
		ID:          uuid.NewString(),
		Kind:        models.TaskKindVoiceClone,
		ExternalID:  externalID,
		OwnerID:     project.ID,
		ProjectId:   project.ID,
		Status:      models.TaskStatusPending,
		SubmittedAt: time.Now(),
	}
	if err := o.Store.CreateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

func cloneVoiceID(projectID string) string {
	id := strings.ReplaceAll(projectID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "voice-" + id
}

// StartGeneration submits the video job for one approved segment. Guards:
// the prompt must be approved, the project must be alive, at most one
// non-terminal TaskRecord may exist per segment, and a segment whose
// narration depends on the cloned voice waits for the clone to finish.
func (o *Orchestrator) StartGeneration(ctx context.Context, segmentID string) (*models.Segment, error) {
	seg, err := o.Store.GetSegment(segmentID)
	if err != nil {
		return nil, err
	}
	if seg.State != models.SegmentStatePromptApproved {
		return nil, fmt.Errorf("%w: segment %s is %s, want prompt_approved", ErrInvalidState, seg.ID, seg.State)
	}
	project, err := o.Store.GetProject(seg.ProjectId)
	if err != nil {
		return nil, err
	}
	if project.Status == models.ProjectStatusFailed {
		return nil, fmt.Errorf("%w: project %s has failed", ErrInvalidState, project.ID)
	}
	if project.VoiceRequested() && seg.NarrationText != "" && project.VoiceID == "" {
		return nil, fmt.Errorf("%w: segment %s needs narration audio", ErrVoiceNotReady, seg.ID)
	}
	if seg.ActiveTaskID != "" {
		prev, err := o.Store.GetTask(seg.ActiveTaskID)
		if err != nil {
			return nil, err
		}
		if !prev.Terminal() {
			return nil, fmt.Errorf("%w: task %s still pending for segment %s", ErrNoCapacity, prev.ID, seg.ID)
		}
	}

	externalID, err := o.Provider.SubmitVideo(ctx, VideoJob{
		Prompt:     seg.Prompt,
		FirstFrame: seg.FirstFrameURL,
		LastFrame:  seg.LastFrameURL,
		Duration:   defaultDurationSec,
		Resolution: defaultResolution,
	})
	if err != nil {
		return nil, err
	}

	task := &models.TaskRecord{
		ID:          uuid.NewString(),
		Kind:        models.TaskKindVideoGen,
		ExternalID:  externalID,
		OwnerID:     seg.ID,
		ProjectId:   seg.ProjectId,
		Status:      models.TaskStatusPending,
		SubmittedAt: time.Now(),
	}
	if err := o.Store.CreateTask(task); err != nil {
		return nil, err
	}

	seg.ActiveTaskID = task.ID
	seg.State = models.SegmentStateGenerating
	seg.Reason = ""
	if err := o.Store.SaveSegment(seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// GenerateApproved submits every eligible prompt_approved segment of a
// project. Segments blocked on the voice clone are skipped, not failed.
func (o *Orchestrator) GenerateApproved(ctx context.Context, projectID string) ([]string, error) {
	segments, err := o.Store.SegmentsByProject(projectID)
	if err != nil {
		return nil, err
	}
	var submitted []string
	for _, seg := range segments {
		if seg.State != models.SegmentStatePromptApproved {
			continue
		}
		if _, err := o.StartGeneration(ctx, seg.ID); err != nil {
			if isBlocked(err) {
				log.Printf("segment %s not submitted: %v", seg.ID, err)
				continue
			}
			return submitted, err
		}
		submitted = append(submitted, seg.ID)
	}
	return submitted, nil
}

func isBlocked(err error) bool {
	return errors.Is(err, ErrVoiceNotReady) || errors.Is(err, ErrNoCapacity)
}

// HandleTaskSuccess applies one succeeded TaskRecord to its owning entity.
// finalURL is the mirrored artifact location. A video result whose task id
// no longer matches the segment's active task is a stale regeneration
// leftover and is dropped without touching the segment.
func (o *Orchestrator) HandleTaskSuccess(ctx context.Context, task *models.TaskRecord, finalURL string) error {
	switch task.Kind {
	case models.TaskKindVideoGen:
		seg, err := o.Store.GetSegment(task.OwnerID)
		if err != nil {
			return err
		}
		if seg.ActiveTaskID != task.ID {
			log.Printf("discarding stale result of task %s for segment %s", task.ID, seg.ID)
			return nil
		}
		// Already applied by a sweep whose terminal flip did not stick.
		if seg.State == models.SegmentStateVideoReady || seg.State == models.SegmentStateVideoApproved {
			return nil
		}
		if seg.State != models.SegmentStateGenerating {
			return fmt.Errorf("%w: segment %s is %s, want generating", ErrInvalidState, seg.ID, seg.State)
		}
		seg.VideoPath = finalURL
		seg.State = models.SegmentStateVideoReady
		return o.Store.SaveSegment(seg)

	case models.TaskKindVoiceClone:
		project, err := o.Store.GetProject(task.OwnerID)
		if err != nil {
			return err
		}
		if project.VoiceID == "" {
			project.VoiceID = cloneVoiceID(project.ID)
			if err := o.Store.SaveProject(project); err != nil {
				return err
			}
		}
		return o.submitNarration(ctx, project)

	case models.TaskKindTTS:
		project, err := o.Store.GetProject(task.OwnerID)
		if err != nil {
			return err
		}
		project.NarrationPath = finalURL
		return o.Store.SaveProject(project)

	default:
		return fmt.Errorf("unknown task kind: %s", task.Kind)
	}
}

// HandleTaskFailure applies one failed TaskRecord to its owning entity.
func (o *Orchestrator) HandleTaskFailure(task *models.TaskRecord, reason string) error {
	switch task.Kind {
	case models.TaskKindVideoGen:
		seg, err := o.Store.GetSegment(task.OwnerID)
		if err != nil {
			return err
		}
		if seg.ActiveTaskID != task.ID {
			log.Printf("discarding stale failure of task %s for segment %s", task.ID, seg.ID)
			return nil
		}
		if seg.State != models.SegmentStateGenerating {
			return nil
		}
		seg.State = models.SegmentStateFailed
		seg.Reason = reason
		return o.Store.SaveSegment(seg)

	case models.TaskKindVoiceClone:
		// Clone failure sinks the project: nothing depending on the
		// voice may advance past prompt_approved.
		project, err := o.Store.GetProject(task.OwnerID)
		if err != nil {
			return err
		}
		project.Status = models.ProjectStatusFailed
		project.Reason = "voice clone failed: " + reason
		return o.Store.SaveProject(project)

	case models.TaskKindTTS:
		// Narration is optional for finalize; record the failure on the
		// project without sinking it.
		project, err := o.Store.GetProject(task.OwnerID)
		if err != nil {
			return err
		}
		project.Reason = "narration generation failed: " + reason
		return o.Store.SaveProject(project)

	default:
		return fmt.Errorf("unknown task kind: %s", task.Kind)
	}
}

// submitNarration generates the project narration track with the freshly
// cloned voice. A clone result can be applied more than once when its
// terminal flip failed, so an existing narration task means we are done.
func (o *Orchestrator) submitNarration(ctx context.Context, project *models.Project) error {
	existing, err := o.Store.TaskByOwner(project.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Kind == models.TaskKindTTS {
		return nil
	}

	segments, err := o.Store.SegmentsByProject(project.ID)
	if err != nil {
		return err
	}
	var parts []string
	for _, seg := range segments {
		if strings.TrimSpace(seg.NarrationText) != "" {
			parts = append(parts, seg.NarrationText)
		}
	}
	if len(parts) == 0 {
		return nil
	}

	externalID, err := o.Provider.SubmitTTS(ctx, strings.Join(parts, "\n"), project.VoiceID)
	if err != nil {
		return err
	}
	return o.Store.CreateTask(&models.TaskRecord{
		ID:          uuid.NewString(),
		Kind:        models.TaskKindTTS,
		ExternalID:  externalID,
		OwnerID:     project.ID,
		ProjectId:   project.ID,
		Status:      models.TaskStatusPending,
		SubmittedAt: time.Now(),
	})
}

// Finalize concatenates all approved segment videos (plus narration, if
// present) into the deliverable. Precondition: every segment is
// video_approved. A failed finalize marks the project failed but leaves
// every segment approval intact, so it can simply be retried.
func (o *Orchestrator) Finalize(ctx context.Context, projectID string) (*models.Project, error) {
	project, err := o.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == models.ProjectStatusCompleted {
		return project, nil
	}
	segments, err := o.Store.SegmentsByProject(projectID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: project %s has no segments", ErrIncompleteSegments, project.ID)
	}
	for _, seg := range segments {
		if seg.State != models.SegmentStateVideoApproved {
			return nil, fmt.Errorf("%w: segment %s (ordinal %d) is %s", ErrIncompleteSegments, seg.ID, seg.Ordinal, seg.State)
		}
	}

	project.Status = models.ProjectStatusFinalizing
	if err := o.Store.SaveProject(project); err != nil {
		return nil, err
	}

	out, err := o.assemble(ctx, project, segments)
	if err != nil {
		project.Status = models.ProjectStatusFailed
		project.Reason = err.Error()
		if saveErr := o.Store.SaveProject(project); saveErr != nil {
			log.Printf("failed to record finalize error on project %s: %v", project.ID, saveErr)
		}
		return nil, err
	}

	project.Status = models.ProjectStatusCompleted
	project.FinalVideoPath = out
	project.Reason = ""
	if err := o.Store.SaveProject(project); err != nil {
		return nil, err
	}
	return project, nil
}

// assemble pulls the approved videos into the work dir, runs the
// concatenation engine and uploads the deliverable.
func (o *Orchestrator) assemble(ctx context.Context, project *models.Project, segments []models.Segment) (string, error) {
	dir := filepath.Join(o.WorkDir, "finalize", project.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create work dir: %v", ErrEncoding, err)
	}
	defer os.RemoveAll(dir)

	inputs := make([]SegmentInput, 0, len(segments))
	for _, seg := range segments {
		local := filepath.Join(dir, fmt.Sprintf("segment_%03d.mp4", seg.Ordinal))
		if err := o.Artifacts.FetchToFile(ctx, seg.VideoPath, local); err != nil {
			return "", fmt.Errorf("%w: fetch segment %d: %v", ErrEncoding, seg.Ordinal, err)
		}
		inputs = append(inputs, SegmentInput{Ordinal: seg.Ordinal, Path: local})
	}

	narration := ""
	if project.NarrationPath != "" {
		narration = filepath.Join(dir, "narration.mp3")
		if err := o.Artifacts.FetchToFile(ctx, project.NarrationPath, narration); err != nil {
			return "", fmt.Errorf("%w: fetch narration: %v", ErrEncoding, err)
		}
	}

	outPath := filepath.Join(dir, "final.mp4")
	if err := o.Concat.Assemble(ctx, inputs, narration, outPath); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("projects/%s/final.mp4", project.ID)
	return o.Artifacts.UploadFile(ctx, outPath, objectName)
}
