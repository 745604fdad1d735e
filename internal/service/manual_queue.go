// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/store"
	"github.com/mkarpov/go-list-sync/models"
)

// manualQueue persists conflicts awaiting a human verdict. While a conflict
// is queued its item is blocked: the dequeue query skips items with an
// active record, so no further submission can race the pending decision.
type manualQueue struct {
	conflicts store.ConflictRepository
	log       MutationLog
	resolver  ConflictResolver
	logger    *logger.Logger
	now       func() time.Time
}

func NewManualQueue(conflicts store.ConflictRepository, log MutationLog, resolver ConflictResolver, lg *logger.Logger) *manualQueue {
	return &manualQueue{conflicts: conflicts, log: log, resolver: resolver, logger: lg, now: time.Now}
}

// Push persists the record and parks its mutation. The UNIQUE(item_id)
// constraint keeps at most one active conflict per item; a duplicate push
// (a resubmission racing its own verdict) collapses onto the existing
// record.
func (q *manualQueue) Push(ctx context.Context, rec models.ConflictRecord) error {
	err := q.conflicts.Create(ctx, rec)
	if errors.Is(err, store.ErrConflictExists) {
		existing, gerr := q.conflicts.GetByItem(ctx, rec.ItemID)
		if gerr != nil {
			return gerr
		}
		q.logger.Debug().
			Str("item_id", rec.ItemID).
			Str("conflict_id", existing.ID).
			Msg("item already has an active conflict")
		return q.log.Park(ctx, rec.MutationID)
	}
	if err != nil {
		return err
	}

	if err := q.log.Park(ctx, rec.MutationID); err != nil {
		return err
	}

	q.logger.Info().
		Str("conflict_id", rec.ID).
		Str("item_id", rec.ItemID).
		Str("kind", string(rec.Kind)).
		Msg("conflict queued for manual resolution")

	return nil
}

func (q *manualQueue) List(ctx context.Context, listID string) ([]models.ConflictRecord, error) {
	return q.conflicts.List(ctx, listID)
}

// Resolve applies the caller's decision: exactly one forced-overwrite
// mutation is enqueued, the original mutation and the conflict record are
// removed, and the item accepts submissions again.
func (q *manualQueue) Resolve(ctx context.Context, conflictID string, decision models.Decision) (*models.Mutation, error) {
	rec, err := q.conflicts.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	local, err := q.log.Get(ctx, rec.MutationID)
	if err != nil {
		return nil, fmt.Errorf("loading conflicted mutation %s: %w", rec.MutationID, err)
	}

	forced, err := q.resolver.BuildResolution(rec, local, decision)
	if err != nil {
		return nil, err
	}

	// Enqueue before tearing anything down: if it fails, the conflict and
	// the parked mutation survive and the caller can retry the decision.
	queued, err := q.log.Enqueue(ctx, forced)
	if err != nil {
		return nil, err
	}

	if err := q.log.Discard(ctx, local.ID); err != nil {
		return nil, err
	}
	if err := q.conflicts.Delete(ctx, rec.ID); err != nil {
		return nil, err
	}

	q.logger.Info().
		Str("conflict_id", rec.ID).
		Str("item_id", rec.ItemID).
		Str("decision", string(decision.Kind)).
		Str("resolved_by", decision.ResolvedBy).
		Msg("conflict resolved")

	return queued, nil
}
