// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/mkarpov/go-list-sync/internal/adapter"
	"github.com/mkarpov/go-list-sync/internal/config"
	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

const (
	defaultConcurrency = 5

	statusBufferSize   = 16
	conflictBufferSize = 64
)

// syncCoordinator drains the mutation log for one list. A pass dequeues
// batches of eligible mutations (one per item, oldest first), submits them
// with bounded concurrency, and routes each verdict: applied → ack and
// advance the version ledger, contested → detector and resolver, transport
// error → the retry policy. Exactly one pass runs at a time; triggers that
// arrive mid-pass coalesce into one follow-up pass.
type syncCoordinator struct {
	listID   string
	clientID string

	log      MutationLog
	versions VersionStore
	detector ConflictDetector
	resolver ConflictResolver
	manual   ManualResolutionQueue
	server   adapter.ServerAdapter
	logger   *logger.Logger

	concurrency int64

	passMu sync.Mutex
	rerun  atomic.Bool
	paused atomic.Bool

	statusCh   chan models.QueueStatus
	conflictCh chan models.ConflictRecord
	dropped    atomic.Uint64
}

func NewSyncCoordinator(
	cfg config.AgentSync,
	log MutationLog,
	versions VersionStore,
	detector ConflictDetector,
	resolver ConflictResolver,
	manual ManualResolutionQueue,
	server adapter.ServerAdapter,
	lg *logger.Logger,
) *syncCoordinator {
	concurrency := int64(cfg.Concurrency)
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &syncCoordinator{
		listID:      cfg.ListID,
		clientID:    cfg.ClientID,
		log:         log,
		versions:    versions,
		detector:    detector,
		resolver:    resolver,
		manual:      manual,
		server:      server,
		logger:      lg,
		concurrency: concurrency,
		statusCh:    make(chan models.QueueStatus, statusBufferSize),
		conflictCh:  make(chan models.ConflictRecord, conflictBufferSize),
	}
}

// SyncNow runs a sync pass, or joins the one already running: if a pass is
// in flight the call only flags a follow-up and returns, so concurrent
// triggers collapse into at most one extra pass instead of stacking up.
func (c *syncCoordinator) SyncNow(ctx context.Context) error {
	if c.paused.Load() {
		return ErrQueuePaused
	}

	if !c.passMu.TryLock() {
		c.rerun.Store(true)
		return nil
	}
	defer c.passMu.Unlock()

	for {
		c.rerun.Store(false)
		if err := c.pass(ctx); err != nil {
			return err
		}
		if !c.rerun.Load() {
			return nil
		}
	}
}

// pass drains the queue until no eligible mutation remains or the queue
// pauses. Each batch holds at most one mutation per item, so per-item FIFO
// order survives the concurrent submission fan-out.
func (c *syncCoordinator) pass(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.paused.Load() {
			return nil
		}

		batch, err := c.log.DequeueNext(ctx, c.listID, int(c.concurrency))
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			c.emitStatus(ctx)
			return nil
		}

		sem := semaphore.NewWeighted(c.concurrency)
		var wg sync.WaitGroup
		for _, m := range batch {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context cancelled mid-batch; the unsent remainder
				// stays Syncing and is requeued on the next start.
				wg.Wait()
				return err
			}
			wg.Add(1)
			go func(m models.Mutation) {
				defer wg.Done()
				defer sem.Release(1)
				c.submitOne(ctx, m)
			}(m)
		}
		wg.Wait()

		c.emitStatus(ctx)
	}
}

// submitOne sends a single mutation and routes the outcome. Errors never
// abort the pass; they are absorbed into the mutation's own state.
func (c *syncCoordinator) submitOne(ctx context.Context, m models.Mutation) {
	resp, err := c.server.Submit(ctx, models.SubmitRequest{Mutation: m})

	switch {
	case err == nil && resp.Applied:
		c.handleApplied(ctx, m, resp)

	case err == nil && resp.Conflict != nil:
		c.handleContested(ctx, m, *resp.Conflict)

	case errors.Is(err, adapter.ErrAuthExpired):
		// Not the mutation's fault: pause the whole queue and put the
		// mutation back without burning a retry attempt.
		c.pause(ctx, m, err)

	case errors.Is(err, adapter.ErrPermissionDenied), errors.Is(err, adapter.ErrValidation):
		// Permanent verdicts: retrying cannot change the answer.
		if ferr := c.log.Fail(ctx, m.ID, err); ferr != nil {
			c.logger.Error().Err(ferr).Str("mutation_id", m.ID).Msg("recording permanent failure")
		}

	default:
		// Transient transport failure: schedule a retry, or mark Failed
		// once attempts run out.
		exhausted, nerr := c.log.Nack(ctx, m.ID, err)
		if nerr != nil {
			c.logger.Error().Err(nerr).Str("mutation_id", m.ID).Msg("recording submission failure")
			return
		}
		if exhausted {
			c.logger.Warn().Str("mutation_id", m.ID).Str("item_id", m.ItemID).Msg("mutation exhausted its retries")
		}
	}
}

func (c *syncCoordinator) handleApplied(ctx context.Context, m models.Mutation, resp models.SubmitResponse) {
	if err := c.versions.Set(ctx, m.ItemID, resp.AppliedVersion); err != nil {
		// Leave the mutation Syncing; the startup requeue resubmits it
		// and the server's idempotency replays the same verdict.
		c.logger.Error().Err(err).Str("item_id", m.ItemID).Msg("advancing version ledger")
		return
	}
	if err := c.log.Ack(ctx, m.ID); err != nil {
		c.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("acknowledging applied mutation")
		return
	}

	c.logger.Debug().
		Str("mutation_id", m.ID).
		Str("item_id", m.ItemID).
		Int64("version", resp.AppliedVersion).
		Msg("mutation applied")
}

// handleContested routes a conflict verdict through the detector and, where
// the rules allow, resolves it on the spot. Only delete conflicts and create
// collisions reach the manual queue.
func (c *syncCoordinator) handleContested(ctx context.Context, m models.Mutation, info models.ConflictInfo) {
	det, err := c.detector.Classify(m, info)
	if err != nil {
		if ferr := c.log.Fail(ctx, m.ID, err); ferr != nil {
			c.logger.Error().Err(ferr).Str("mutation_id", m.ID).Msg("recording classification failure")
		}
		return
	}

	switch det.Verdict {
	case VerdictConverged:
		// Both replicas arrived at the same values independently.
		if err := c.versions.Set(ctx, m.ItemID, info.CurrentVersion); err != nil {
			c.logger.Error().Err(err).Str("item_id", m.ItemID).Msg("advancing version ledger")
			return
		}
		if err := c.log.Ack(ctx, m.ID); err != nil {
			c.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("acknowledging converged mutation")
		}

	case VerdictAutoMerge:
		forced := models.Mutation{
			ItemID:        m.ItemID,
			ListID:        m.ListID,
			Type:          models.MutationUpdate,
			ChangedFields: m.ChangedFields,
			Payload:       det.Merged,
			BaseVersion:   info.CurrentVersion,
			ClientID:      m.ClientID,
			Forced:        true,
		}
		c.replace(ctx, m, info, forced)

	case VerdictFieldConflict:
		resolved, err := c.resolver.AutoResolve(*det.Record, m)
		if err != nil {
			if ferr := c.log.Fail(ctx, m.ID, err); ferr != nil {
				c.logger.Error().Err(ferr).Str("mutation_id", m.ID).Msg("recording merge failure")
			}
			return
		}
		if resolved == nil {
			// The rule table reproduced the server state exactly.
			if err := c.versions.Set(ctx, m.ItemID, info.CurrentVersion); err != nil {
				c.logger.Error().Err(err).Str("item_id", m.ItemID).Msg("advancing version ledger")
				return
			}
			if aerr := c.log.Ack(ctx, m.ID); aerr != nil {
				c.logger.Error().Err(aerr).Str("mutation_id", m.ID).Msg("acknowledging merged mutation")
			}
			return
		}
		c.replace(ctx, m, info, *resolved)

	case VerdictManual:
		if err := c.manual.Push(ctx, *det.Record); err != nil {
			c.logger.Error().Err(err).Str("item_id", m.ItemID).Msg("queueing manual conflict")
			return
		}
		c.emitConflict(*det.Record)
	}
}

// replace swaps a contested mutation for its resolved forced overwrite: the
// ledger advances to the contested server version, the original is removed,
// and the forced mutation joins the queue to be picked up by the running
// pass.
func (c *syncCoordinator) replace(ctx context.Context, m models.Mutation, info models.ConflictInfo, forced models.Mutation) {
	if err := c.versions.Set(ctx, m.ItemID, info.CurrentVersion); err != nil {
		c.logger.Error().Err(err).Str("item_id", m.ItemID).Msg("advancing version ledger")
		return
	}
	if err := c.log.Discard(ctx, m.ID); err != nil {
		c.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("discarding contested mutation")
		return
	}
	if _, err := c.log.Enqueue(ctx, forced); err != nil {
		c.logger.Error().Err(err).Str("item_id", m.ItemID).Msg("enqueueing forced overwrite")
	}
}

// pause stops the queue on an expired session. The interrupted mutation is
// requeued with a clean retry state; RefreshSession resumes draining.
func (c *syncCoordinator) pause(ctx context.Context, m models.Mutation, cause error) {
	c.paused.Store(true)
	if err := c.log.Requeue(ctx, m.ID); err != nil {
		c.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("requeueing mutation of paused queue")
	}
	c.logger.Warn().Err(cause).Msg("session expired, queue paused until refresh")
}

// Flush drops the list's retry deferrals and immediately runs a pass.
func (c *syncCoordinator) Flush(ctx context.Context) error {
	n, err := c.log.ClearBackoff(ctx, c.listID)
	if err != nil {
		return err
	}
	if n > 0 {
		c.logger.Debug().Int64("cleared", n).Msg("cancelled retry deferrals for manual flush")
	}
	return c.SyncNow(ctx)
}

// RefreshSession obtains fresh credentials, resumes the queue, and runs a
// pass to drain what accumulated while paused.
func (c *syncCoordinator) RefreshSession(ctx context.Context) error {
	if err := c.server.Session(ctx, c.clientID); err != nil {
		return err
	}
	c.paused.Store(false)
	c.logger.Info().Msg("session refreshed, queue resumed")
	return c.SyncNow(ctx)
}

// Resolve forwards the decision to the manual queue and immediately
// schedules the freed item for submission.
func (c *syncCoordinator) Resolve(ctx context.Context, conflictID string, decision models.Decision) error {
	if _, err := c.manual.Resolve(ctx, conflictID, decision); err != nil {
		return err
	}
	return c.SyncNow(ctx)
}

func (c *syncCoordinator) QueueStatus(ctx context.Context) (models.QueueStatus, error) {
	status, err := c.log.Status(ctx, c.listID)
	if err != nil {
		return models.QueueStatus{}, err
	}
	status.DroppedEvents = c.dropped.Load()
	return status, nil
}

func (c *syncCoordinator) StatusEvents() <-chan models.QueueStatus {
	return c.statusCh
}

func (c *syncCoordinator) ConflictEvents() <-chan models.ConflictRecord {
	return c.conflictCh
}

// emitStatus publishes a queue snapshot without ever blocking the pass: a
// full subscriber buffer drops the event and bumps the drop counter instead.
func (c *syncCoordinator) emitStatus(ctx context.Context) {
	status, err := c.QueueStatus(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("building queue status snapshot")
		return
	}

	select {
	case c.statusCh <- status:
	default:
		c.dropped.Add(1)
	}
}

func (c *syncCoordinator) emitConflict(rec models.ConflictRecord) {
	select {
	case c.conflictCh <- rec:
	default:
		c.dropped.Add(1)
	}
}
