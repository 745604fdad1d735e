package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mkarpov/go-list-sync/internal/logger"
)

// SyncJob runs sync passes on a ticker so queued mutations drain even when
// nothing triggers a pass explicitly.
type SyncJob interface {
	Start(ctx context.Context, interval time.Duration)
	Stop()
}

type syncJob struct {
	coordinator SyncCoordinator
	logger      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a syncJob that calls SyncNow on a ticker. The job is
// idle until Start is called.
func NewSyncJob(coordinator SyncCoordinator, lg *logger.Logger) SyncJob {
	return &syncJob{coordinator: coordinator, logger: lg}
}

// Start implements SyncJob. It stops any previously running job, then
// launches a background goroutine that runs a sync pass every interval. If
// interval is zero or negative it defaults to 30 seconds. The goroutine
// exits when ctx is cancelled or Stop is called.
func (j *syncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				if err := j.coordinator.SyncNow(jobCtx); err != nil && !errors.Is(err, ErrQueuePaused) && !errors.Is(err, context.Canceled) {
					j.logger.Error().Err(err).Msg("scheduled sync pass failed")
				}
			}
		}
	}()
}

// Stop implements SyncJob. It cancels the background goroutine's context and
// blocks until the goroutine has fully exited. Safe to call when the job is
// not running (no-op in that case).
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
