package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"VideoCreator-server/config"

	"github.com/hibiken/asynq"
)

// Processor consumes queued work and hands it to the orchestrator.
// Business failures (invalid state, provider rejection, gating) are final:
// they are recorded on the entity and not retried by the queue. Only
// infrastructure errors trigger asynq's retry.
type Processor struct {
	Orchestrator *Orchestrator
}

func NewProcessor(orc *Orchestrator) *Processor {
	return &Processor{Orchestrator: orc}
}

func (p *Processor) Start(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSegmentGenerate, p.HandleSegmentGenerate)
	mux.HandleFunc(TypeProjectGenerate, p.HandleProjectGenerate)
	mux.HandleFunc(TypeVoiceClone, p.HandleVoiceClone)
	mux.HandleFunc(TypeFinalize, p.HandleFinalize)

	log.Printf("starting task processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run task processor: %v", err)
		}
	}()
}

// businessFailure reports whether an error belongs to the pipeline's
// failure taxonomy, i.e. retrying the exact same call cannot help.
func businessFailure(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNoCapacity) ||
		errors.Is(err, ErrVoiceNotReady) ||
		errors.Is(err, ErrProviderRejected) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrIncompleteSegments) ||
		errors.Is(err, ErrEncoding)
}

func (p *Processor) HandleSegmentGenerate(ctx context.Context, t *asynq.Task) error {
	var payload SegmentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := p.Orchestrator.StartGeneration(ctx, payload.SegmentID); err != nil {
		if businessFailure(err) {
			p.recordSegmentError(payload.SegmentID, err)
			return fmt.Errorf("generation not started: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (p *Processor) HandleProjectGenerate(ctx context.Context, t *asynq.Task) error {
	var payload ProjectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	submitted, err := p.Orchestrator.GenerateApproved(ctx, payload.ProjectID)
	if err != nil {
		if businessFailure(err) {
			return fmt.Errorf("generation stopped after %d segments: %v: %w", len(submitted), err, asynq.SkipRetry)
		}
		return err
	}
	log.Printf("project %s: submitted %d segments", payload.ProjectID, len(submitted))
	return nil
}

func (p *Processor) HandleVoiceClone(ctx context.Context, t *asynq.Task) error {
	var payload ProjectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := p.Orchestrator.CloneVoice(ctx, payload.ProjectID); err != nil {
		if businessFailure(err) {
			p.recordProjectError(payload.ProjectID, err)
			return fmt.Errorf("voice clone not submitted: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (p *Processor) HandleFinalize(ctx context.Context, t *asynq.Task) error {
	var payload ProjectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := p.Orchestrator.Finalize(ctx, payload.ProjectID); err != nil {
		// Encoding failures already land on the project inside Finalize;
		// precondition failures would otherwise only reach the queue log.
		if businessFailure(err) {
			p.recordProjectError(payload.ProjectID, err)
			return fmt.Errorf("finalize failed: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	log.Printf("project %s finalized", payload.ProjectID)
	return nil
}

// recordSegmentError surfaces a submission failure on the segment so the
// user can see why nothing is generating. The state is left untouched.
func (p *Processor) recordSegmentError(segmentID string, cause error) {
	seg, err := p.Orchestrator.Store.GetSegment(segmentID)
	if err != nil {
		log.Printf("record error on segment %s: %v", segmentID, err)
		return
	}
	seg.Reason = cause.Error()
	if err := p.Orchestrator.Store.SaveSegment(seg); err != nil {
		log.Printf("record error on segment %s: %v", segmentID, err)
	}
}

func (p *Processor) recordProjectError(projectID string, cause error) {
	project, err := p.Orchestrator.Store.GetProject(projectID)
	if err != nil {
		log.Printf("record error on project %s: %v", projectID, err)
		return
	}
	project.Reason = cause.Error()
	if err := p.Orchestrator.Store.SaveProject(project); err != nil {
		log.Printf("record error on project %s: %v", projectID, err)
	}
}
