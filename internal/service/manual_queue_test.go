// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/store"
	"github.com/mkarpov/go-list-sync/models"
)

func newTestManualQueue(t *testing.T) (*manualQueue, *mutationLog, *store.Storages) {
	t.Helper()

	log, storages := newTestLog(t)
	resolver := NewConflictResolver(logger.Nop())
	q := NewManualQueue(storages.Conflicts, log, resolver, logger.Nop())
	return q, log, storages
}

func queuedConflict(t *testing.T, q *manualQueue, log *mutationLog, itemID string) (models.ConflictRecord, *models.Mutation) {
	t.Helper()
	ctx := context.Background()

	queued, err := log.Enqueue(ctx, draft(itemID, models.MutationUpdate, map[string]any{models.FieldName: "milk"}))
	require.NoError(t, err)

	rec := models.ConflictRecord{
		ID:         "conf-" + itemID,
		ItemID:     itemID,
		ListID:     testList,
		MutationID: queued.ID,
		Kind:       models.KindDeleteConflict,
		Direction:  models.LocalUpdateServerDelete,

		ServerDeleted: true,
		ServerVersion: 4,
		DetectedAt:    time.Now(),
	}
	require.NoError(t, q.Push(ctx, rec))
	return rec, queued
}

func TestPush_ParksMutationAndBlocksItem(t *testing.T) {
	q, log, _ := newTestManualQueue(t)
	ctx := context.Background()

	_, queued := queuedConflict(t, q, log, "x")

	m, err := log.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConflict, m.Status)

	batch, err := log.DequeueNext(ctx, testList, 10)
	require.NoError(t, err)
	assert.Empty(t, batch, "blocked item yields nothing")

	list, err := q.List(ctx, testList)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "x", list[0].ItemID)
}

func TestPush_DuplicateCollapsesOntoExisting(t *testing.T) {
	q, log, _ := newTestManualQueue(t)
	ctx := context.Background()

	rec, queued := queuedConflict(t, q, log, "x")

	dup := rec
	dup.ID = "conf-other"
	dup.MutationID = queued.ID
	require.NoError(t, q.Push(ctx, dup))

	list, err := q.List(ctx, testList)
	require.NoError(t, err)
	assert.Len(t, list, 1, "one active conflict per item")
	assert.Equal(t, rec.ID, list[0].ID)
}

func TestResolve_ProducesSingleForcedMutation(t *testing.T) {
	q, log, storages := newTestManualQueue(t)
	ctx := context.Background()

	rec, queued := queuedConflict(t, q, log, "x")

	forced, err := q.Resolve(ctx, rec.ID, models.Decision{Kind: models.DecisionUseLocal, ResolvedBy: "alice"})
	require.NoError(t, err)
	require.NotNil(t, forced)

	assert.True(t, forced.Forced)
	assert.Equal(t, int64(4), forced.BaseVersion, "based on the server version at detection")
	assert.Equal(t, models.MutationCreate, forced.Type, "recreates the item the server deleted")

	// original mutation and conflict record are gone
	_, err = log.Get(ctx, queued.ID)
	assert.ErrorIs(t, err, store.ErrMutationNotFound)
	_, err = storages.Conflicts.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, store.ErrConflictNotFound)

	// the item is unblocked and the forced mutation is eligible
	batch, err := log.DequeueNext(ctx, testList, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, forced.ID, batch[0].ID)
}

func TestResolve_WithEditQueuedBehindConflict(t *testing.T) {
	q, log, storages := newTestManualQueue(t)
	ctx := context.Background()

	rec, queued := queuedConflict(t, q, log, "x")

	// a further edit arrives while the item is blocked
	sibling, err := log.Enqueue(ctx, draft("x", models.MutationUpdate, map[string]any{
		models.FieldNotes: "organic if available",
	}))
	require.NoError(t, err)

	forced, err := q.Resolve(ctx, rec.ID, models.Decision{Kind: models.DecisionUseLocal, ResolvedBy: "alice"})
	require.NoError(t, err)
	require.NotNil(t, forced)
	assert.True(t, forced.Forced)
	assert.Equal(t, models.MutationCreate, forced.Type)
	assert.Equal(t, int64(4), forced.BaseVersion)

	// the original is gone, the record is gone, the sibling edit survives
	_, err = log.Get(ctx, queued.ID)
	assert.ErrorIs(t, err, store.ErrMutationNotFound)
	_, err = storages.Conflicts.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, store.ErrConflictNotFound)

	kept, err := log.Get(ctx, sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, kept.Status)
	assert.Equal(t, "organic if available", kept.Payload.Notes)

	// the resolution submits before the queued edit
	batch, err := log.DequeueNext(ctx, testList, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, forced.ID, batch[0].ID)
}

func TestResolve_UnknownConflict(t *testing.T) {
	q, _, _ := newTestManualQueue(t)

	_, err := q.Resolve(context.Background(), "missing", models.Decision{Kind: models.DecisionUseLocal})
	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}
