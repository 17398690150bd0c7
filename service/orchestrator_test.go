package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"VideoCreator-server/models"
)

func TestApplyPlanAssignsDenseOrdinals(t *testing.T) {
	orc, store, _, _, _ := newTestOrchestrator()
	seedProject(t, store, models.ProjectStatusPlanning)

	segments, err := orc.ApplyPlan("proj-1", []PlanShot{
		{Prompt: "opening shot", NarrationText: "once upon a time"},
		{Prompt: ""},
		{Prompt: "closing shot"},
	})
	if err != nil {
		t.Fatalf("apply plan: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	for i, seg := range segments {
		if seg.Ordinal != i {
			t.Fatalf("segment %d has ordinal %d", i, seg.Ordinal)
		}
	}
	if segments[0].State != models.SegmentStatePromptReview {
		t.Fatalf("shot with prompt: state = %s, want prompt_review", segments[0].State)
	}
	if segments[1].State != models.SegmentStateDraft {
		t.Fatalf("shot without prompt: state = %s, want draft", segments[1].State)
	}

	project, _ := store.GetProject("proj-1")
	if project.Status != models.ProjectStatusInProgress {
		t.Fatalf("project status = %s, want in_progress", project.Status)
	}
	if project.SegmentCount != 3 {
		t.Fatalf("segment count = %d, want 3", project.SegmentCount)
	}
}

func TestApplyPlanRejectsNonPlanningProject(t *testing.T) {
	orc, store, _, _, _ := newTestOrchestrator()
	seedProject(t, store, models.ProjectStatusInProgress)

	if _, err := orc.ApplyPlan("proj-1", []PlanShot{{Prompt: "x"}}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if _, err := orc.ApplyPlan("missing", []PlanShot{{Prompt: "x"}}); err == nil {
		t.Fatal("expected error for unknown project")
	}
}

func TestCloneVoiceGuards(t *testing.T) {
	orc, store, provider, _, _ := newTestOrchestrator()
	ctx := context.Background()

	// no sample on file
	store.projects["proj-1"] = models.Project{ID: "proj-1", Status: models.ProjectStatusPlanning}
	if _, err := orc.CloneVoice(ctx, "proj-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("no sample: err = %v, want ErrInvalidState", err)
	}

	store.projects["proj-1"] = models.Project{
		ID:             "proj-1",
		Status:         models.ProjectStatusPlanning,
		VoiceSampleURL: "https://cdn.example/sample.wav",
	}
	task, err := orc.CloneVoice(ctx, "proj-1")
	if err != nil {
		t.Fatalf("clone voice: %v", err)
	}
	if task.Kind != models.TaskKindVoiceClone || task.OwnerID != "proj-1" {
		t.Fatalf("task = %+v", task)
	}
	if len(provider.clones) != 1 || !strings.HasPrefix(provider.clones[0], "voice-") {
		t.Fatalf("clone voice ids = %v", provider.clones)
	}
	if len(provider.clones[0]) != len("voice-")+8 {
		t.Fatalf("voice id %q not derived from first 8 chars", provider.clones[0])
	}

	// second request while the first is pending
	if _, err := orc.CloneVoice(ctx, "proj-1"); !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("pending clone: err = %v, want ErrNoCapacity", err)
	}

	// already cloned
	p := store.projects["proj-1"]
	p.VoiceID = "voice-abcd1234"
	store.projects["proj-1"] = p
	if _, err := orc.CloneVoice(ctx, "proj-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("already cloned: err = %v, want ErrInvalidState", err)
	}
}

func TestGenerationWaitsForVoiceClone(t *testing.T) {
	orc, store, provider, _, _ := newTestOrchestrator()
	ctx := context.Background()
	store.projects["proj-1"] = models.Project{
		ID:             "proj-1",
		Status:         models.ProjectStatusInProgress,
		VoiceSampleURL: "https://cdn.example/sample.wav",
	}
	narrated := seedSegment(t, store, "seg-1", 0, models.SegmentStatePromptApproved)
	narrated.NarrationText = "hello there"
	store.SaveSegment(narrated)
	seedSegment(t, store, "seg-2", 1, models.SegmentStatePromptApproved)

	if _, err := orc.StartGeneration(ctx, "seg-1"); !errors.Is(err, ErrVoiceNotReady) {
		t.Fatalf("err = %v, want ErrVoiceNotReady", err)
	}

	// batch dispatch skips the blocked segment instead of failing
	submitted, err := orc.GenerateApproved(ctx, "proj-1")
	if err != nil {
		t.Fatalf("generate approved: %v", err)
	}
	if len(submitted) != 1 || submitted[0] != "seg-2" {
		t.Fatalf("submitted = %v, want [seg-2]", submitted)
	}
	if len(provider.videos) != 1 {
		t.Fatalf("provider received %d video jobs, want 1", len(provider.videos))
	}

	// once the voice exists the narrated segment goes through
	p := store.projects["proj-1"]
	p.VoiceID = "voice-abcd1234"
	store.projects["proj-1"] = p
	if _, err := orc.StartGeneration(ctx, "seg-1"); err != nil {
		t.Fatalf("start after clone: %v", err)
	}
	seg, _ := store.GetSegment("seg-1")
	if seg.State != models.SegmentStateGenerating || seg.ActiveTaskID == "" {
		t.Fatalf("segment = %+v", seg)
	}
}

func TestVoiceCloneSuccessSubmitsNarration(t *testing.T) {
	orc, store, provider, artifacts, _ := newTestOrchestrator()
	ctx := context.Background()
	store.projects["proj-1"] = models.Project{
		ID:             "proj-1",
		Status:         models.ProjectStatusInProgress,
		VoiceSampleURL: "https://cdn.example/sample.wav",
	}
	s1 := seedSegment(t, store, "seg-1", 0, models.SegmentStatePromptApproved)
	s1.NarrationText = "first line"
	store.SaveSegment(s1)
	s2 := seedSegment(t, store, "seg-2", 1, models.SegmentStatePromptApproved)
	s2.NarrationText = "second line"
	store.SaveSegment(s2)

	cloneTask, err := orc.CloneVoice(ctx, "proj-1")
	if err != nil {
		t.Fatalf("clone voice: %v", err)
	}
	provider.setSuccess(cloneTask.ExternalID, "")
	poller := newTestPoller(orc, store, provider, artifacts)
	poller.Sweep(context.Background())

	project, _ := store.GetProject("proj-1")
	if project.VoiceID == "" {
		t.Fatal("voice id not recorded after clone success")
	}
	if len(provider.ttsCalls) != 1 {
		t.Fatalf("tts calls = %d, want 1", len(provider.ttsCalls))
	}
	if provider.ttsCalls[0] != "first line\nsecond line" {
		t.Fatalf("tts text = %q", provider.ttsCalls[0])
	}
	tts, _ := store.TaskByOwner("proj-1")
	if tts.Kind != models.TaskKindTTS || tts.Status != models.TaskStatusPending {
		t.Fatalf("newest task for project = %+v", tts)
	}
}

func TestVoiceCloneFailureSinksProject(t *testing.T) {
	orc, store, provider, artifacts, _ := newTestOrchestrator()
	ctx := context.Background()
	store.projects["proj-1"] = models.Project{
		ID:             "proj-1",
		Status:         models.ProjectStatusInProgress,
		VoiceSampleURL: "https://cdn.example/sample.wav",
	}
	s := seedSegment(t, store, "seg-1", 0, models.SegmentStatePromptApproved)
	s.NarrationText = "hello"
	store.SaveSegment(s)

	cloneTask, err := orc.CloneVoice(ctx, "proj-1")
	if err != nil {
		t.Fatalf("clone voice: %v", err)
	}
	provider.setFailure(cloneTask.ExternalID, "sample too short")
	poller := newTestPoller(orc, store, provider, artifacts)
	poller.Sweep(context.Background())

	project, _ := store.GetProject("proj-1")
	if project.Status != models.ProjectStatusFailed {
		t.Fatalf("project status = %s, want failed", project.Status)
	}
	if !strings.Contains(project.Reason, "sample too short") {
		t.Fatalf("reason = %q", project.Reason)
	}
	// segments stay where they were; no cascade past prompt_approved
	seg, _ := store.GetSegment("seg-1")
	if seg.State != models.SegmentStatePromptApproved {
		t.Fatalf("segment state = %s, want prompt_approved", seg.State)
	}
	if _, err := orc.StartGeneration(ctx, "seg-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("generation on failed project: err = %v, want ErrInvalidState", err)
	}
}

func TestNarrationFailureDoesNotSinkProject(t *testing.T) {
	orc, store, _, _, _ := newTestOrchestrator()
	store.projects["proj-1"] = models.Project{
		ID:      "proj-1",
		Status:  models.ProjectStatusInProgress,
		VoiceID: "voice-abcd1234",
	}
	task := &models.TaskRecord{
		ID:        "task-tts",
		Kind:      models.TaskKindTTS,
		OwnerID:   "proj-1",
		ProjectId: "proj-1",
		Status:    models.TaskStatusFailed,
	}
	if err := orc.HandleTaskFailure(task, "quota exceeded"); err != nil {
		t.Fatalf("handle failure: %v", err)
	}
	project, _ := store.GetProject("proj-1")
	if project.Status != models.ProjectStatusInProgress {
		t.Fatalf("project status = %s, want in_progress", project.Status)
	}
	if !strings.Contains(project.Reason, "quota exceeded") {
		t.Fatalf("reason = %q", project.Reason)
	}
}

func seedApprovedProject(t *testing.T, store *memStore) {
	t.Helper()
	store.projects["proj-1"] = models.Project{
		ID:     "proj-1",
		Status: models.ProjectStatusInProgress,
	}
	for i, id := range []string{"seg-a", "seg-b", "seg-c"} {
		store.segments[id] = models.Segment{
			ID:        id,
			ProjectId: "proj-1",
			Ordinal:   i,
			Prompt:    "p",
			State:     models.SegmentStateVideoApproved,
			VideoPath: "oss://segments/" + id + "/video.mp4",
		}
	}
}

func TestFinalizeRequiresEverySegmentApproved(t *testing.T) {
	orc, store, _, _, _ := newTestOrchestrator()
	seedApprovedProject(t, store)
	lagging := store.segments["seg-b"]
	lagging.State = models.SegmentStateVideoReady
	store.segments["seg-b"] = lagging

	_, err := orc.Finalize(context.Background(), "proj-1")
	if !errors.Is(err, ErrIncompleteSegments) {
		t.Fatalf("err = %v, want ErrIncompleteSegments", err)
	}
	if !strings.Contains(err.Error(), "seg-b") {
		t.Fatalf("error does not name offending segment: %v", err)
	}
	project, _ := store.GetProject("proj-1")
	if project.Status != models.ProjectStatusInProgress {
		t.Fatalf("precondition failure must not change project status, got %s", project.Status)
	}
}

func TestFinalizeAssemblesInOrdinalOrder(t *testing.T) {
	orc, store, _, artifacts, asm := newTestOrchestrator()
	orc.WorkDir = t.TempDir()
	seedApprovedProject(t, store)

	project, err := orc.Finalize(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if project.Status != models.ProjectStatusCompleted {
		t.Fatalf("status = %s, want completed", project.Status)
	}
	if project.FinalVideoPath != "oss://projects/proj-1/final.mp4" {
		t.Fatalf("final path = %q", project.FinalVideoPath)
	}
	if len(asm.calls) != 1 {
		t.Fatalf("assembler called %d times, want 1", len(asm.calls))
	}
	inputs := asm.calls[0]
	for i, in := range inputs {
		if in.Ordinal != i {
			t.Fatalf("input %d has ordinal %d, concat order broken", i, in.Ordinal)
		}
	}
	if len(artifacts.fetched) != 3 {
		t.Fatalf("fetched %d artifacts, want 3", len(artifacts.fetched))
	}
	if asm.narration[0] != "" {
		t.Fatalf("narration passed without a narration track: %q", asm.narration[0])
	}
}

func TestFinalizeMuxesNarrationWhenPresent(t *testing.T) {
	orc, store, _, _, asm := newTestOrchestrator()
	orc.WorkDir = t.TempDir()
	seedApprovedProject(t, store)
	p := store.projects["proj-1"]
	p.NarrationPath = "oss://projects/proj-1/narration.mp3"
	store.projects["proj-1"] = p

	if _, err := orc.Finalize(context.Background(), "proj-1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if asm.narration[0] == "" {
		t.Fatal("narration track not handed to the assembler")
	}
}

func TestFinalizeFailureKeepsApprovals(t *testing.T) {
	orc, store, _, _, asm := newTestOrchestrator()
	orc.WorkDir = t.TempDir()
	seedApprovedProject(t, store)
	asm.fail = ErrEncoding

	if _, err := orc.Finalize(context.Background(), "proj-1"); !errors.Is(err, ErrEncoding) {
		t.Fatalf("err = %v, want ErrEncoding", err)
	}
	project, _ := store.GetProject("proj-1")
	if project.Status != models.ProjectStatusFailed {
		t.Fatalf("status = %s, want failed", project.Status)
	}
	for _, id := range []string{"seg-a", "seg-b", "seg-c"} {
		seg, _ := store.GetSegment(id)
		if seg.State != models.SegmentStateVideoApproved {
			t.Fatalf("segment %s lost approval: %s", id, seg.State)
		}
	}

	// retry after fixing the encoder succeeds
	asm.fail = nil
	project, err := orc.Finalize(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if project.Status != models.ProjectStatusCompleted {
		t.Fatalf("retry status = %s, want completed", project.Status)
	}
}

func TestFinalizeCompletedIsIdempotent(t *testing.T) {
	orc, store, _, artifacts, asm := newTestOrchestrator()
	store.projects["proj-1"] = models.Project{
		ID:             "proj-1",
		Status:         models.ProjectStatusCompleted,
		FinalVideoPath: "oss://projects/proj-1/final.mp4",
	}

	project, err := orc.Finalize(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if project.FinalVideoPath != "oss://projects/proj-1/final.mp4" {
		t.Fatalf("final path = %q", project.FinalVideoPath)
	}
	if len(asm.calls) != 0 || len(artifacts.uploads) != 0 {
		t.Fatal("completed project re-assembled")
	}
}

func TestPollTimeoutThenRegenerate(t *testing.T) {
	orc, store, provider, artifacts, _ := newTestOrchestrator()
	ctx := context.Background()
	seedProject(t, store, models.ProjectStatusInProgress)
	seedSegment(t, store, "seg-1", 0, models.SegmentStatePromptApproved)

	if _, err := orc.StartGeneration(ctx, "seg-1"); err != nil {
		t.Fatalf("start generation: %v", err)
	}

	poller := newTestPoller(orc, store, provider, artifacts)
	poller.MaxAge = time.Minute
	poller.Now = func() time.Time { return time.Now().Add(time.Hour) }
	poller.Sweep(ctx)

	seg, _ := store.GetSegment("seg-1")
	if seg.State != models.SegmentStateFailed {
		t.Fatalf("state = %s, want failed", seg.State)
	}

	// explicit regenerate requeues the approved prompt on a new task
	if _, err := orc.Regenerate("seg-1"); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if _, err := orc.StartGeneration(ctx, "seg-1"); err != nil {
		t.Fatalf("start after regenerate: %v", err)
	}
	seg, _ = store.GetSegment("seg-1")
	if seg.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", seg.RetryCount)
	}
	if seg.State != models.SegmentStateGenerating {
		t.Fatalf("state = %s, want generating", seg.State)
	}
}
