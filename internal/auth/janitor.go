package auth

import (
	"context"
	"log"
	"sync"
	"time"
)

type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Janitor periodically clears dead refresh sessions. Build one in main,
// Start it once and Stop it on shutdown.
type Janitor struct {
	Sweeper  Sweeper
	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}()
}

// Stop waits for an in-flight sweep to return.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.Sweeper.SweepExpired(ctx, time.Now())
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("session sweep error: %v\n", err)
		}
		return
	}
	if n > 0 {
		log.Printf("session sweep removed %d tokens\n", n)
	}
}
