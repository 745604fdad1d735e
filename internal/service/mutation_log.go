// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/store"
	"github.com/mkarpov/go-list-sync/internal/utils"
	"github.com/mkarpov/go-list-sync/models"
)

// mutationLog wraps the mutation repository with validation, stamping and
// the retry policy. Storage keeps the rows; this layer decides what a row is
// allowed to look like and when a nacked row turns into a Failed one.
type mutationLog struct {
	mutations store.MutationRepository
	versions  store.VersionRepository
	conflicts store.ConflictRepository
	ids       *utils.UUIDGenerator
	policy    backoffPolicy
	clientID  string
	logger    *logger.Logger
	now       func() time.Time
}

func NewMutationLog(storages *store.Storages, clientID string, log *logger.Logger) *mutationLog {
	return &mutationLog{
		mutations: storages.Mutations,
		versions:  storages.Versions,
		conflicts: storages.Conflicts,
		ids:       utils.NewUUIDGenerator(),
		policy:    defaultBackoffPolicy(),
		clientID:  clientID,
		logger:    log,
		now:       time.Now,
	}
}

// Enqueue validates the draft, stamps id/client/timestamp/base version and
// persists it. The base version is read from the version ledger at enqueue
// time so the server's optimistic check runs against what this client had
// actually seen. Forced mutations arrive pre-stamped from the resolver and
// keep their base version.
func (l *mutationLog) Enqueue(ctx context.Context, m models.Mutation) (*models.Mutation, error) {
	if err := l.validate(m); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidMutation, err)
	}

	if m.ID == "" {
		m.ID = l.ids.Generate()
	}
	if m.ClientID == "" {
		m.ClientID = l.clientID
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = l.now()
	}
	m.Status = models.StatusPending
	m.RetryCount = 0

	if !m.Forced {
		entry, err := l.versions.Get(ctx, m.ItemID)
		if err != nil {
			return nil, fmt.Errorf("reading version ledger for item %s: %w", m.ItemID, err)
		}
		m.BaseVersion = entry.Version
	}

	queued, err := l.mutations.Enqueue(ctx, m)
	if err != nil {
		return nil, err
	}
	if queued == nil {
		l.logger.Debug().Str("item_id", m.ItemID).Msg("mutation cancelled out by coalescing")
		return nil, nil
	}

	l.logger.Debug().
		Str("mutation_id", queued.ID).
		Str("item_id", queued.ItemID).
		Str("type", string(queued.Type)).
		Int64("seq", queued.Seq).
		Bool("forced", queued.Forced).
		Msg("mutation enqueued")

	return queued, nil
}

func (l *mutationLog) validate(m models.Mutation) error {
	if m.ItemID == "" {
		return ErrEmptyItemID
	}
	if m.ListID == "" {
		return ErrEmptyListID
	}

	switch m.Type {
	case models.MutationCreate:
		if m.Payload == nil {
			return ErrMissingPayload
		}
	case models.MutationUpdate:
		if m.Payload == nil {
			return ErrMissingPayload
		}
		if len(m.ChangedFields) == 0 {
			return ErrNoChangedFields
		}
		for _, f := range m.ChangedFields {
			if !models.IsKnownField(f) {
				return fmt.Errorf("%w: %q", ErrUnknownField, f)
			}
		}
	case models.MutationDelete:
		// no payload required
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}

	return nil
}

func (l *mutationLog) DequeueNext(ctx context.Context, listID string, limit int) ([]models.Mutation, error) {
	return l.mutations.DequeueEligible(ctx, listID, l.now(), limit)
}

func (l *mutationLog) Ack(ctx context.Context, id string) error {
	return l.mutations.Ack(ctx, id)
}

// Nack records a failed submission attempt. While attempts remain the
// mutation goes back to Pending, deferred by exponential backoff; once the
// policy is exhausted it is marked Failed and kept until the user retries or
// discards it.
func (l *mutationLog) Nack(ctx context.Context, id string, cause error) (bool, error) {
	m, err := l.mutations.Get(ctx, id)
	if err != nil {
		return false, err
	}

	attempts := m.RetryCount + 1
	if l.policy.exhausted(attempts) {
		if err := l.mutations.Fail(ctx, id, cause.Error()); err != nil {
			return false, err
		}
		l.logger.Warn().
			Str("mutation_id", id).
			Str("item_id", m.ItemID).
			Int("attempts", attempts).
			Err(cause).
			Msg("mutation failed, retries exhausted")
		return true, nil
	}

	delay := l.policy.delay(m.RetryCount)
	if err := l.mutations.Nack(ctx, id, l.now().Add(delay), cause.Error()); err != nil {
		return false, err
	}

	l.logger.Debug().
		Str("mutation_id", id).
		Int("attempt", attempts).
		Dur("backoff", delay).
		Err(cause).
		Msg("mutation nacked, retry scheduled")

	return false, nil
}

func (l *mutationLog) Fail(ctx context.Context, id string, cause error) error {
	if err := l.mutations.Fail(ctx, id, cause.Error()); err != nil {
		return err
	}
	l.logger.Warn().Str("mutation_id", id).Err(cause).Msg("mutation failed permanently")
	return nil
}

func (l *mutationLog) Park(ctx context.Context, id string) error {
	return l.mutations.MarkConflict(ctx, id)
}

func (l *mutationLog) Requeue(ctx context.Context, id string) error {
	return l.mutations.Retry(ctx, id)
}

func (l *mutationLog) Retry(ctx context.Context, id string) error {
	return l.mutations.Retry(ctx, id)
}

func (l *mutationLog) ClearBackoff(ctx context.Context, listID string) (int64, error) {
	return l.mutations.ClearBackoff(ctx, listID)
}

func (l *mutationLog) Discard(ctx context.Context, id string) error {
	return l.mutations.Discard(ctx, id)
}

func (l *mutationLog) Get(ctx context.Context, id string) (models.Mutation, error) {
	return l.mutations.Get(ctx, id)
}

func (l *mutationLog) Status(ctx context.Context, listID string) (models.QueueStatus, error) {
	status, err := l.mutations.CountByStatus(ctx, listID)
	if err != nil {
		return models.QueueStatus{}, err
	}

	blocked, err := l.conflicts.BlockedItems(ctx, listID)
	if err != nil {
		return models.QueueStatus{}, err
	}
	status.Conflicts = len(blocked)

	return status, nil
}

// Recover restores the at-least-once contract after a crash: any mutation
// still marked Syncing belonged to an interrupted submission whose outcome
// is unknown, so it is returned to Pending. The server deduplicates on
// mutation id, making the possible resubmission harmless.
func (l *mutationLog) Recover(ctx context.Context) (int64, error) {
	n, err := l.mutations.RequeueSyncing(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info().Int64("requeued", n).Msg("requeued in-flight mutations from previous run")
	}
	return n, nil
}
