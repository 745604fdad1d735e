// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mkarpov/go-list-sync/internal/adapter"
	"github.com/mkarpov/go-list-sync/internal/config"
	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/mock"
	"github.com/mkarpov/go-list-sync/internal/store"
	"github.com/mkarpov/go-list-sync/models"
)

func newTestCoordinator(t *testing.T) (*syncCoordinator, *mutationLog, *store.Storages, *mock.MockServerAdapter) {
	t.Helper()

	ctrl := gomock.NewController(t)
	serverMock := mock.NewMockServerAdapter(ctrl)

	log, storages := newTestLog(t)
	lg := logger.Nop()
	versions := NewVersionStore(storages.Versions, lg)
	detector := NewConflictDetector(lg)
	resolver := NewConflictResolver(lg)
	manual := NewManualQueue(storages.Conflicts, log, resolver, lg)

	cfg := config.AgentSync{ListID: testList, ClientID: "client-a", Concurrency: 2}
	c := NewSyncCoordinator(cfg, log, versions, detector, resolver, manual, serverMock, lg)

	return c, log, storages, serverMock
}

func TestSyncNow_AppliedAcksAndAdvancesLedger(t *testing.T) {
	c, log, storages, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	queued, err := log.Enqueue(ctx, draft("x", models.MutationCreate, map[string]any{models.FieldName: "milk"}))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
			assert.Equal(t, queued.ID, req.Mutation.ID)
			return models.SubmitResponse{Applied: true, AppliedVersion: 1}, nil
		})

	require.NoError(t, c.SyncNow(ctx))

	status, err := c.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.Syncing)

	entry, err := storages.Versions.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Version)
}

func TestSyncNow_TransientErrorSchedulesRetry(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	log.policy = backoffPolicy{base: time.Hour, cap: time.Hour, maxAttempts: defaultMaxAttempts}

	queued, err := log.Enqueue(ctx, draft("x", models.MutationDelete, nil))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{}, fmt.Errorf("%w: dial tcp: connection refused", adapter.ErrTransientNetwork)).
		Times(1)

	require.NoError(t, c.SyncNow(ctx))

	m, err := log.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, m.Status)
	assert.Equal(t, 1, m.RetryCount)
	assert.False(t, m.NextAttemptAt.IsZero())

	// the deferred mutation is not eligible, so a second pass submits nothing
	require.NoError(t, c.SyncNow(ctx))
}

func TestSyncNow_AuthExpiredPausesUntilRefresh(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	queued, err := log.Enqueue(ctx, draft("x", models.MutationDelete, nil))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{}, adapter.ErrAuthExpired)

	require.NoError(t, c.SyncNow(ctx))

	// the interrupted mutation keeps a clean retry state
	m, err := log.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, m.Status)
	assert.Zero(t, m.RetryCount)

	assert.ErrorIs(t, c.SyncNow(ctx), ErrQueuePaused)

	serverMock.EXPECT().Session(gomock.Any(), "client-a").Return(nil)
	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{Applied: true, AppliedVersion: 2}, nil)

	require.NoError(t, c.RefreshSession(ctx))

	status, err := c.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
}

func TestSyncNow_PermanentErrorFailsImmediately(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	queued, err := log.Enqueue(ctx, draft("x", models.MutationDelete, nil))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{}, fmt.Errorf("%w: unknown mutation type", adapter.ErrValidation)).
		Times(1)

	require.NoError(t, c.SyncNow(ctx))

	m, err := log.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, m.Status)
	assert.Zero(t, m.RetryCount, "no retries were spent")
}

// A conflict verdict for an update must carry the server item. When it
// carries neither a snapshot nor a tombstone the mutation fails instead of
// being acknowledged as converged.
func TestSyncNow_EmptyConflictInfoFailsMutation(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	queued, err := log.Enqueue(ctx, draft("x", models.MutationUpdate, map[string]any{models.FieldQuantity: 5}))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{Conflict: &models.ConflictInfo{CurrentVersion: 2}}, nil).
		Times(1)

	require.NoError(t, c.SyncNow(ctx))

	m, err := log.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, m.Status)
	assert.Contains(t, m.LastError, ErrMissingConflictInfo.Error())
}

// A stale quantity edit loses to nothing: the forced overwrite produced by
// the rule table lands after the server's version and carries the local
// value.
func TestSyncNow_StaleQuantityResolvedByLastWrite(t *testing.T) {
	c, log, storages, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := log.Enqueue(ctx, draft("x", models.MutationUpdate, map[string]any{models.FieldQuantity: 5}))
	require.NoError(t, err)

	var forcedSeen models.Mutation
	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
			if !req.Mutation.Forced {
				return models.SubmitResponse{Conflict: &models.ConflictInfo{
					CurrentVersion: 2,
					CurrentItem:    item("x", map[string]any{models.FieldName: "milk", models.FieldQuantity: 3}),
					ChangedFields:  []string{models.FieldQuantity},
				}}, nil
			}
			forcedSeen = req.Mutation
			return models.SubmitResponse{Applied: true, AppliedVersion: 3}, nil
		}).
		Times(2)

	require.NoError(t, c.SyncNow(ctx))

	assert.True(t, forcedSeen.Forced)
	assert.Equal(t, int64(2), forcedSeen.BaseVersion)
	assert.Equal(t, int64(5), forcedSeen.Payload.Quantity)
	assert.Equal(t, "milk", forcedSeen.Payload.Name, "server-only fields survive")

	entry, err := storages.Versions.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), entry.Version)

	status, err := c.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.Conflicts)
}

// Checking an item off wins over a concurrent un-check: a purchase on either
// replica survives the merge.
func TestSyncNow_GottenMergesToTrue(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := log.Enqueue(ctx, draft("x", models.MutationUpdate, map[string]any{models.FieldGotten: true}))
	require.NoError(t, err)

	var forcedSeen models.Mutation
	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
			if !req.Mutation.Forced {
				return models.SubmitResponse{Conflict: &models.ConflictInfo{
					CurrentVersion: 4,
					CurrentItem:    item("x", map[string]any{models.FieldName: "milk", models.FieldGotten: false}),
					ChangedFields:  []string{models.FieldGotten},
				}}, nil
			}
			forcedSeen = req.Mutation
			return models.SubmitResponse{Applied: true, AppliedVersion: 5}, nil
		}).
		Times(2)

	require.NoError(t, c.SyncNow(ctx))

	assert.True(t, forcedSeen.Payload.Gotten)
}

func TestSyncNow_NotesConcatenated(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := log.Enqueue(ctx, draft("x", models.MutationUpdate, map[string]any{models.FieldNotes: "organic if available"}))
	require.NoError(t, err)

	var forcedSeen models.Mutation
	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
			if !req.Mutation.Forced {
				return models.SubmitResponse{Conflict: &models.ConflictInfo{
					CurrentVersion: 2,
					CurrentItem:    item("x", map[string]any{models.FieldNotes: "get the bulk size"}),
					ChangedFields:  []string{models.FieldNotes},
				}}, nil
			}
			forcedSeen = req.Mutation
			return models.SubmitResponse{Applied: true, AppliedVersion: 3}, nil
		}).
		Times(2)

	require.NoError(t, c.SyncNow(ctx))

	assert.Equal(t, "get the bulk size\n---\norganic if available", forcedSeen.Payload.Notes)
}

// A delete conflict parks only its own item; the rest of the queue drains.
func TestSyncNow_DeleteConflictBlocksSingleItem(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := log.Enqueue(ctx, draft("x", models.MutationUpdate, map[string]any{models.FieldName: "milk"}))
	require.NoError(t, err)
	_, err = log.Enqueue(ctx, draft("y", models.MutationUpdate, map[string]any{models.FieldName: "eggs"}))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
			if req.Mutation.ItemID == "x" {
				return models.SubmitResponse{Conflict: &models.ConflictInfo{
					CurrentVersion: 6,
					Deleted:        true,
				}}, nil
			}
			return models.SubmitResponse{Applied: true, AppliedVersion: 2}, nil
		}).
		Times(2)

	require.NoError(t, c.SyncNow(ctx))

	status, err := c.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending, "the unrelated item synced")
	assert.Equal(t, 1, status.Conflicts)

	select {
	case rec := <-c.ConflictEvents():
		assert.Equal(t, "x", rec.ItemID)
		assert.Equal(t, models.KindDeleteConflict, rec.Kind)
		assert.Equal(t, models.LocalUpdateServerDelete, rec.Direction)
	default:
		t.Fatal("expected a conflict event")
	}
}

func TestResolve_SubmitsForcedOverwrite(t *testing.T) {
	c, log, storages, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := log.Enqueue(ctx, draft("x", models.MutationUpdate, map[string]any{models.FieldName: "milk"}))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{Conflict: &models.ConflictInfo{CurrentVersion: 6, Deleted: true}}, nil)

	require.NoError(t, c.SyncNow(ctx))

	conflicts, err := storages.Conflicts.List(ctx, testList)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
			assert.True(t, req.Mutation.Forced)
			assert.Equal(t, models.MutationCreate, req.Mutation.Type)
			assert.Equal(t, int64(6), req.Mutation.BaseVersion)
			return models.SubmitResponse{Applied: true, AppliedVersion: 7}, nil
		})

	decision := models.Decision{Kind: models.DecisionUseLocal, ResolvedBy: "alice"}
	require.NoError(t, c.Resolve(ctx, conflicts[0].ID, decision))

	status, err := c.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.Conflicts)
}

// A manual flush cancels backoff deferrals so "sync now" means now.
func TestFlush_CancelsBackoffAndSubmits(t *testing.T) {
	c, log, _, serverMock := newTestCoordinator(t)
	ctx := context.Background()

	// a long backoff keeps the deferral from expiring mid-test
	log.policy = backoffPolicy{base: time.Hour, cap: time.Hour, maxAttempts: defaultMaxAttempts}

	_, err := log.Enqueue(ctx, draft("x", models.MutationDelete, nil))
	require.NoError(t, err)

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{}, fmt.Errorf("%w: timeout", adapter.ErrTransientNetwork))

	require.NoError(t, c.SyncNow(ctx))

	// still deferred: a plain pass submits nothing
	require.NoError(t, c.SyncNow(ctx))

	serverMock.EXPECT().
		Submit(gomock.Any(), gomock.Any()).
		Return(models.SubmitResponse{Applied: true, AppliedVersion: 2}, nil)

	require.NoError(t, c.Flush(ctx))

	status, err := c.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending)
}

func TestQueueStatus_CountsDroppedEvents(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < statusBufferSize+3; i++ {
		c.emitStatus(ctx)
	}

	status, err := c.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), status.DroppedEvents)
}
