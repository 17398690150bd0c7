package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"VideoCreator-server/models"
)

// Poller drives every pending TaskRecord toward a terminal state with a
// recurring sweep: one pass queries each pending job once, so concurrency
// stays bounded no matter how many jobs are in flight. Terminal records
// are excluded from the sweep, which makes re-polling after a restart a
// no-op.
type Poller struct {
	Store        Store
	Provider     Provider
	Artifacts    Artifacts
	Orchestrator *Orchestrator
	Interval     time.Duration
	MaxAge       time.Duration
	Now          func() time.Time
}

func NewPoller(store Store, provider Provider, artifacts Artifacts, orc *Orchestrator, interval, maxAge time.Duration) *Poller {
	return &Poller{
		Store:        store,
		Provider:     provider,
		Artifacts:    artifacts,
		Orchestrator: orc,
		Interval:     interval,
		MaxAge:       maxAge,
		Now:          time.Now,
	}
}

// Run sweeps at a fixed interval until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	log.Printf("poller started, interval %s, max task age %s", p.Interval, p.MaxAge)
	for {
		select {
		case <-ctx.Done():
			log.Println("poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep advances every pending TaskRecord by one status query. Transient
// provider trouble leaves a record pending for the next tick; the poller
// itself never resubmits anything.
func (p *Poller) Sweep(ctx context.Context) {
	tasks, err := p.Store.PendingTasks()
	if err != nil {
		log.Printf("poller: list pending tasks: %v", err)
		return
	}
	for i := range tasks {
		if err := p.pollOne(ctx, &tasks[i]); err != nil {
			log.Printf("poller: task %s: %v", tasks[i].ID, err)
		}
	}
}

func (p *Poller) pollOne(ctx context.Context, task *models.TaskRecord) error {
	// Age out work the provider never finishes, so a lost job cannot
	// block its segment forever.
	if task.Age(p.Now()) > p.MaxAge {
		reason := fmt.Sprintf("%v after %s", ErrPollTimeout, p.MaxAge)
		return p.finishFailed(task, reason)
	}

	if err := p.Store.BumpTaskAttempts(task.ID); err != nil {
		return err
	}

	status, err := p.Provider.QueryStatus(ctx, task.ExternalID)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			// Leave pending; next sweep retries the query.
			return nil
		}
		return p.finishFailed(task, err.Error())
	}

	switch status.State {
	case JobPending:
		return nil

	case JobSucceeded:
		finalURL := ""
		if status.ArtifactRef != "" {
			url, err := p.Provider.ResolveArtifact(ctx, status.ArtifactRef)
			if err != nil {
				// Resolution is retried on the next sweep rather
				// than failing a job that already succeeded.
				return nil
			}
			finalURL = url
			if p.Artifacts != nil {
				mirrored, err := p.Artifacts.Mirror(ctx, url, objectNameFor(task))
				if err != nil {
					return nil
				}
				finalURL = mirrored
			}
		}
		// Apply the owner effect before the terminal flip. If the apply
		// fails the record stays pending and the next sweep retries it;
		// a flipped record would never be revisited and its segment
		// would sit in generating with no legal exit.
		if err := p.Orchestrator.HandleTaskSuccess(ctx, task, finalURL); err != nil {
			return err
		}
		result := &models.TaskResult{ArtifactRef: status.ArtifactRef, ResourceUrl: finalURL}
		if _, err := p.Store.FinishTask(task.ID, models.TaskStatusSucceeded, result, ""); err != nil {
			return err
		}
		task.Status = models.TaskStatusSucceeded
		task.Result = *result
		return nil

	case JobFailed:
		return p.finishFailed(task, status.Reason)

	default:
		return fmt.Errorf("unknown job state %q", status.State)
	}
}

// finishFailed applies the failure to the owner first, then flips the
// record. Apply-before-flip keeps the record pending across a transient
// store error, so the next sweep picks it up again.
func (p *Poller) finishFailed(task *models.TaskRecord, reason string) error {
	if err := p.Orchestrator.HandleTaskFailure(task, reason); err != nil {
		return err
	}
	if _, err := p.Store.FinishTask(task.ID, models.TaskStatusFailed, nil, reason); err != nil {
		return err
	}
	task.Status = models.TaskStatusFailed
	task.Error = reason
	return nil
}

func objectNameFor(task *models.TaskRecord) string {
	switch task.Kind {
	case models.TaskKindVideoGen:
		return fmt.Sprintf("segments/%s/video.mp4", task.OwnerID)
	case models.TaskKindTTS:
		return fmt.Sprintf("projects/%s/narration.mp3", task.OwnerID)
	default:
		return fmt.Sprintf("projects/%s/%s", task.OwnerID, task.Kind)
	}
}
