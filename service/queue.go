package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"VideoCreator-server/config"

	"github.com/hibiken/asynq"
)

// Background task types. Submission and finalization run through the
// queue because both sit on slow external calls; everything else is
// handled inline by the HTTP layer.
const (
	TypeSegmentGenerate = "segment:generate"
	TypeProjectGenerate = "project:generate"
	TypeVoiceClone      = "project:voice_clone"
	TypeFinalize        = "project:finalize"
)

type SegmentPayload struct {
	SegmentID string `json:"segment_id"`
}

type ProjectPayload struct {
	ProjectID string `json:"project_id"`
}

var QueueClient *asynq.Client

func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

func enqueue(taskType string, payload interface{}, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}
	task := asynq.NewTask(taskType, body,
		asynq.MaxRetry(3),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour),
	)
	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	log.Printf("[Queue] enqueued %s id=%s", taskType, info.ID)
	return nil
}

func EnqueueSegmentGenerate(segmentID string) error {
	return enqueue(TypeSegmentGenerate, SegmentPayload{SegmentID: segmentID}, 2*time.Minute)
}

func EnqueueProjectGenerate(projectID string) error {
	return enqueue(TypeProjectGenerate, ProjectPayload{ProjectID: projectID}, 5*time.Minute)
}

func EnqueueVoiceClone(projectID string) error {
	return enqueue(TypeVoiceClone, ProjectPayload{ProjectID: projectID}, 2*time.Minute)
}

func EnqueueFinalize(projectID string) error {
	// Encoding is slow; give finalize plenty of room.
	return enqueue(TypeFinalize, ProjectPayload{ProjectID: projectID}, 30*time.Minute)
}
