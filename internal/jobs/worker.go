package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
)

// Queue is the part of Repo the worker drives.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*Job, error)
	MarkDone(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
	RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error
}

type CapsulePurger interface {
	PurgeCapsule(ctx context.Context, id uuid.UUID) error
}

type BlobDeleter interface {
	Delete(ctx context.Context, keys ...string) error
}

// Worker finishes capsule cleanup that failed inline.
type Worker struct {
	ID       string
	Queue    Queue
	Capsules CapsulePurger
	Blobs    BlobDeleter

	Interval time.Duration
	Now      func() time.Time
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.Queue.Claim(ctx, w.ID)
			if err != nil {
				log.Printf("worker claim error: %v\n", err)
				continue
			}
			if job == nil {
				continue
			}
			w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	var err error
	switch job.Type {
	case TypeCapsulePurge:
		err = w.handlePurge(ctx, job)
	case TypeBlobDelete:
		err = w.handleBlobDelete(ctx, job)
	default:
		_ = w.Queue.MarkFailed(ctx, job.ID, "unknown job type")
		return
	}

	if err != nil {
		log.Printf("[CLEANUP] job=%d type=%s: %v\n", job.ID, job.Type, err)
		var perm permanentError
		if errors.As(err, &perm) {
			_ = w.Queue.MarkFailed(ctx, job.ID, perm.msg)
			return
		}
		w.retry(ctx, job, err.Error())
		return
	}
	_ = w.Queue.MarkDone(ctx, job.ID)
}

type permanentError struct{ msg string }

func (e permanentError) Error() string { return e.msg }

func (w *Worker) handlePurge(ctx context.Context, job *Job) error {
	var p purgePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return permanentError{"bad payload"}
	}
	id, err := uuid.Parse(p.CapsuleID)
	if err != nil {
		return permanentError{"bad capsule id"}
	}
	return w.Capsules.PurgeCapsule(ctx, id)
}

func (w *Worker) handleBlobDelete(ctx context.Context, job *Job) error {
	var p blobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return permanentError{"bad payload"}
	}
	if len(p.Paths) == 0 {
		return nil
	}
	return w.Blobs.Delete(ctx, p.Paths...)
}

func (w *Worker) retry(ctx context.Context, job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Queue.MarkFailed(ctx, job.ID, errMsg)
		return
	}

	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := w.now().Add(time.Duration(sec) * time.Second)

	_ = w.Queue.RetryLater(ctx, job.ID, attempts, next, errMsg)
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
