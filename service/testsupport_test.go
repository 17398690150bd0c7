package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"VideoCreator-server/models"

	"gorm.io/gorm"
)

// memStore is an in-memory Store for tests. The one-shot err fields make
// the next matching write fail once, simulating a transient store error.
type memStore struct {
	mu       sync.Mutex
	projects map[string]models.Project
	segments map[string]models.Segment
	tasks    map[string]models.TaskRecord

	saveSegmentErr error
	saveProjectErr error
}

func newMemStore() *memStore {
	return &memStore{
		projects: make(map[string]models.Project),
		segments: make(map[string]models.Segment),
		tasks:    make(map[string]models.TaskRecord),
	}
}

func (m *memStore) CreateProject(p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *memStore) GetProject(id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := p
	return &cp, nil
}

func (m *memStore) SaveProject(p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveProjectErr; err != nil {
		m.saveProjectErr = nil
		return err
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *memStore) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	for sid, s := range m.segments {
		if s.ProjectId == id {
			delete(m.segments, sid)
		}
	}
	for tid, t := range m.tasks {
		if t.ProjectId == id {
			delete(m.tasks, tid)
		}
	}
	return nil
}

func (m *memStore) CreateSegments(segments []models.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range segments {
		m.segments[s.ID] = s
	}
	return nil
}

func (m *memStore) GetSegment(id string) (*models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.segments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := s
	return &cp, nil
}

func (m *memStore) SegmentsByProject(projectID string) ([]models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []models.Segment
	for _, s := range m.segments {
		if s.ProjectId == projectID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Ordinal < res[j].Ordinal })
	return res, nil
}

func (m *memStore) SaveSegment(s *models.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveSegmentErr; err != nil {
		m.saveSegmentErr = nil
		return err
	}
	m.segments[s.ID] = *s
	return nil
}

func (m *memStore) CreateTask(t *models.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = *t
	return nil
}

func (m *memStore) GetTask(id string) (*models.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := t
	return &cp, nil
}

func (m *memStore) TaskByOwner(ownerID string) (*models.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *models.TaskRecord
	for _, t := range m.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		cp := t
		if newest == nil || cp.SubmittedAt.After(newest.SubmittedAt) {
			newest = &cp
		}
	}
	return newest, nil
}

func (m *memStore) PendingTasks() ([]models.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []models.TaskRecord
	for _, t := range m.tasks {
		if t.Status == models.TaskStatusPending {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SubmittedAt.Before(res[j].SubmittedAt) })
	return res, nil
}

func (m *memStore) FinishTask(id, status string, result *models.TaskResult, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != models.TaskStatusPending {
		return false, nil
	}
	t.Status = status
	t.Error = errMsg
	if result != nil {
		t.Result = *result
	}
	m.tasks[id] = t
	return true, nil
}

func (m *memStore) BumpTaskAttempts(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	t.Attempts++
	m.tasks[id] = t
	return nil
}

// fakeProvider scripts external job behavior per external id.
type fakeProvider struct {
	mu        sync.Mutex
	nextID    int
	statuses  map[string]*JobStatus
	queryErr  map[string]error
	submitErr error
	videos    []VideoJob
	ttsCalls  []string
	clones    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		statuses: make(map[string]*JobStatus),
		queryErr: make(map[string]error),
	}
}

func (f *fakeProvider) newID() string {
	f.nextID++
	return fmt.Sprintf("ext-%d", f.nextID)
}

func (f *fakeProvider) SubmitVideo(_ context.Context, job VideoJob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.videos = append(f.videos, job)
	return f.newID(), nil
}

func (f *fakeProvider) SubmitVoiceClone(_ context.Context, sampleURL, voiceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.clones = append(f.clones, voiceID)
	return f.newID(), nil
}

func (f *fakeProvider) SubmitTTS(_ context.Context, text, voiceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.ttsCalls = append(f.ttsCalls, text)
	return f.newID(), nil
}

func (f *fakeProvider) QueryStatus(_ context.Context, externalID string) (*JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.queryErr[externalID]; ok {
		return nil, err
	}
	if st, ok := f.statuses[externalID]; ok {
		return st, nil
	}
	return &JobStatus{State: JobPending}, nil
}

func (f *fakeProvider) ResolveArtifact(_ context.Context, artifactRef string) (string, error) {
	return "https://provider.example/files/" + artifactRef, nil
}

func (f *fakeProvider) setSuccess(externalID, artifactRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[externalID] = &JobStatus{State: JobSucceeded, ArtifactRef: artifactRef}
}

func (f *fakeProvider) setFailure(externalID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[externalID] = &JobStatus{State: JobFailed, Reason: reason}
}

// fakeArtifacts records mirror/upload calls without touching the network.
type fakeArtifacts struct {
	mu       sync.Mutex
	mirrored []string
	fetched  []string
	uploads  []string
}

func (f *fakeArtifacts) Mirror(_ context.Context, srcURL, objectName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrored = append(f.mirrored, objectName)
	return "oss://" + objectName, nil
}

func (f *fakeArtifacts) FetchToFile(_ context.Context, srcURL, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, srcURL)
	return nil
}

func (f *fakeArtifacts) UploadFile(_ context.Context, localPath, objectName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, objectName)
	return "oss://" + objectName, nil
}

// fakeAssembler stands in for the ffmpeg-backed engine.
type fakeAssembler struct {
	mu        sync.Mutex
	calls     [][]SegmentInput
	narration []string
	fail      error
}

func (f *fakeAssembler) Assemble(_ context.Context, inputs []SegmentInput, narrationPath, outPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]SegmentInput, len(inputs))
	copy(cp, inputs)
	f.calls = append(f.calls, cp)
	f.narration = append(f.narration, narrationPath)
	return f.fail
}

// newTestOrchestrator wires an orchestrator over in-memory fakes.
func newTestOrchestrator() (*Orchestrator, *memStore, *fakeProvider, *fakeArtifacts, *fakeAssembler) {
	store := newMemStore()
	provider := newFakeProvider()
	artifacts := &fakeArtifacts{}
	asm := &fakeAssembler{}
	orc := &Orchestrator{
		Store:     store,
		Provider:  provider,
		Artifacts: artifacts,
		Concat:    asm,
		WorkDir:   "/tmp",
	}
	return orc, store, provider, artifacts, asm
}

func newTestPoller(orc *Orchestrator, store *memStore, provider *fakeProvider, artifacts *fakeArtifacts) *Poller {
	return &Poller{
		Store:        store,
		Provider:     provider,
		Artifacts:    artifacts,
		Orchestrator: orc,
		Interval:     time.Second,
		MaxAge:       time.Hour,
		Now:          time.Now,
	}
}
