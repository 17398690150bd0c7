package service

import (
	"context"

	"VideoCreator-server/models"
)

// Store is the persistence surface the pipeline needs. models.GormStore is
// the production implementation; tests substitute an in-memory one.
type Store interface {
	CreateProject(p *models.Project) error
	GetProject(id string) (*models.Project, error)
	SaveProject(p *models.Project) error
	DeleteProject(id string) error

	CreateSegments(segments []models.Segment) error
	GetSegment(id string) (*models.Segment, error)
	SegmentsByProject(projectID string) ([]models.Segment, error)
	SaveSegment(s *models.Segment) error

	CreateTask(t *models.TaskRecord) error
	GetTask(id string) (*models.TaskRecord, error)
	TaskByOwner(ownerID string) (*models.TaskRecord, error)
	PendingTasks() ([]models.TaskRecord, error)
	FinishTask(id, status string, result *models.TaskResult, errMsg string) (bool, error)
	BumpTaskAttempts(id string) error
}

// Artifacts mirrors provider-hosted files into our own object storage and
// hands local copies to the finalizer. The MinIO client implements it.
type Artifacts interface {
	Mirror(ctx context.Context, srcURL, objectName string) (string, error)
	FetchToFile(ctx context.Context, srcURL, localPath string) error
	UploadFile(ctx context.Context, localPath, objectName string) (string, error)
}
