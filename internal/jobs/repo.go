package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) enqueue(ctx context.Context, userID uint64, typ string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	j := Job{
		UserID:  userID,
		Type:    typ,
		Payload: b,
		RunAt:   time.Now(),
		Status:  StatusPending,
	}
	return r.DB.WithContext(ctx).Create(&j).Error
}

// EnqueueCapsulePurge schedules removal of a capsule's rows.
func (r *Repo) EnqueueCapsulePurge(ctx context.Context, userID uint64, capsuleID uuid.UUID) error {
	return r.enqueue(ctx, userID, TypeCapsulePurge, purgePayload{CapsuleID: capsuleID.String()})
}

// EnqueueBlobDelete schedules removal of stored files.
func (r *Repo) EnqueueBlobDelete(ctx context.Context, userID uint64, paths []string) error {
	return r.enqueue(ctx, userID, TypeBlobDelete, blobPayload{Paths: paths})
}

// Claim one due job atomically using SKIP LOCKED.
// Works on Postgres.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// requeue stuck RUNNING jobs
		if err := tx.Exec(`
update jobs
set status='PENDING', locked_by=null, locked_at=null, updated_at=now()
where status='RUNNING' and locked_at is not null and locked_at < now() - interval '5 minutes'
`).Error; err != nil {
			return err
		}

		// FOR UPDATE SKIP LOCKED ensures no double-claim
		q := tx.Raw(`
with cte as (
  select id
  from jobs
  where status='PENDING' and run_at <= now()
  order by run_at asc
  for update skip locked
  limit 1
)
update jobs
set status='RUNNING', locked_by=?, locked_at=now(), updated_at=now()
where id in (select id from cte)
returning *;
`, workerID)

		return q.Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Exec(`update jobs set status='DONE', updated_at=now() where id=?`, id).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`update jobs set status='FAILED', last_error=?, updated_at=now() where id=?`, errMsg, id).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`
update jobs
set status='PENDING',
    attempts=?,
    run_at=?,
    locked_by=null,
    locked_at=null,
    last_error=?,
    updated_at=now()
where id=?`, attempts, runAt, errMsg, id).Error
}
