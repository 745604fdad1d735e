// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

func fieldConflict(itemID string, server *models.Item, version int64) models.ConflictRecord {
	return models.ConflictRecord{
		ID:             "conf-1",
		ItemID:         itemID,
		ListID:         "list-1",
		MutationID:     "mut-" + itemID,
		Kind:           models.KindFieldConflict,
		ServerSnapshot: server,
		ServerVersion:  version,
	}
}

func TestAutoResolve_GottenEitherSideWins(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	tests := []struct {
		name          string
		serverGotten  bool
		localGotten   bool
		want          bool
		wantSubmitted bool
	}{
		{name: "local checked off", serverGotten: false, localGotten: true, want: true, wantSubmitted: true},
		// when the server side is already checked off the merge reproduces
		// the server state and nothing needs submitting
		{name: "server checked off", serverGotten: true, localGotten: false, want: true, wantSubmitted: false},
		{name: "both checked off", serverGotten: true, localGotten: true, want: true, wantSubmitted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := item("x", map[string]any{models.FieldName: "milk", models.FieldGotten: tt.serverGotten})
			local := update("x", map[string]any{models.FieldGotten: tt.localGotten})

			forced, err := r.AutoResolve(fieldConflict("x", server, 3), local)
			require.NoError(t, err)

			if !tt.wantSubmitted {
				assert.Nil(t, forced, "merge equal to server state needs no submission")
				return
			}
			require.NotNil(t, forced)
			assert.True(t, forced.Forced)
			assert.Equal(t, int64(3), forced.BaseVersion)
			assert.Equal(t, tt.want, forced.Payload.Gotten)
		})
	}
}

func TestAutoResolve_NotesConcatenatedServerFirst(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	server := item("x", map[string]any{models.FieldNotes: "get the bulk size"})
	local := update("x", map[string]any{models.FieldNotes: "organic if available"})

	forced, err := r.AutoResolve(fieldConflict("x", server, 2), local)
	require.NoError(t, err)
	require.NotNil(t, forced)

	assert.Equal(t, "get the bulk size\n---\norganic if available", forced.Payload.Notes)
}

func TestAutoResolve_NotesOneSideEmpty(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	server := item("x", nil)
	local := update("x", map[string]any{models.FieldNotes: "organic if available"})

	forced, err := r.AutoResolve(fieldConflict("x", server, 2), local)
	require.NoError(t, err)
	require.NotNil(t, forced)

	assert.Equal(t, "organic if available", forced.Payload.Notes)
}

func TestAutoResolve_ScalarLastWriteWins(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	// Server holds quantity=3 at v2; the stale local edit wanted 5. The
	// forced overwrite lands after v2, making the local value the later
	// write.
	server := item("x", map[string]any{models.FieldName: "milk", models.FieldQuantity: 3})
	local := update("x", map[string]any{models.FieldQuantity: 5})

	forced, err := r.AutoResolve(fieldConflict("x", server, 2), local)
	require.NoError(t, err)
	require.NotNil(t, forced)

	assert.Equal(t, int64(5), forced.Payload.Quantity)
	assert.Equal(t, "milk", forced.Payload.Name, "untouched fields keep server values")
	assert.Equal(t, int64(2), forced.BaseVersion)
	assert.Equal(t, models.MutationUpdate, forced.Type)
}

func TestAutoResolve_MissingSides(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	local := update("x", map[string]any{models.FieldQuantity: 5})
	_, err := r.AutoResolve(fieldConflict("x", nil, 2), local)
	assert.Error(t, err)
}

func TestBuildResolution_UseLocalKeepsLocalState(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	rec := models.ConflictRecord{
		ID: "conf-1", ItemID: "x", ListID: "list-1", MutationID: "m1",
		Kind: models.KindDeleteConflict, Direction: models.LocalUpdateServerDelete,
		ServerDeleted: true, ServerVersion: 7,
	}
	local := update("x", map[string]any{models.FieldName: "milk", models.FieldQuantity: 2})

	forced, err := r.BuildResolution(rec, local, models.Decision{Kind: models.DecisionUseLocal, ResolvedBy: "alice"})
	require.NoError(t, err)

	// The server side is gone, so keeping the local edit recreates the item.
	assert.Equal(t, models.MutationCreate, forced.Type)
	assert.True(t, forced.Forced)
	assert.Equal(t, int64(7), forced.BaseVersion)
	assert.Equal(t, "milk", forced.Payload.Name)
	assert.Equal(t, "alice", forced.Payload.UpdatedBy)
}

func TestBuildResolution_UseServerOverDeletedMeansDelete(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	rec := models.ConflictRecord{
		ID: "conf-1", ItemID: "x", ListID: "list-1", MutationID: "m1",
		Kind: models.KindDeleteConflict, Direction: models.LocalUpdateServerDelete,
		ServerDeleted: true, ServerVersion: 7,
	}
	local := update("x", map[string]any{models.FieldName: "milk"})

	forced, err := r.BuildResolution(rec, local, models.Decision{Kind: models.DecisionUseServer, ResolvedBy: "alice"})
	require.NoError(t, err)

	assert.Equal(t, models.MutationDelete, forced.Type)
	assert.Nil(t, forced.Payload)
	assert.True(t, forced.Forced)
}

func TestBuildResolution_UseServerKeepsSnapshot(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	snapshot := item("x", map[string]any{models.FieldName: "whole milk", models.FieldQuantity: 1})
	rec := models.ConflictRecord{
		ID: "conf-1", ItemID: "x", ListID: "list-1", MutationID: "m1",
		Kind: models.KindCreateCollision, ServerSnapshot: snapshot, ServerVersion: 1,
	}
	local := models.Mutation{
		ID: "m1", ItemID: "x", ListID: "list-1", Type: models.MutationCreate,
		Payload: item("x", map[string]any{models.FieldName: "milk"}),
	}

	forced, err := r.BuildResolution(rec, local, models.Decision{Kind: models.DecisionUseServer, ResolvedBy: "bob"})
	require.NoError(t, err)

	assert.Equal(t, models.MutationUpdate, forced.Type)
	assert.Equal(t, "whole milk", forced.Payload.Name)
}

func TestBuildResolution_FieldByField(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	snapshot := item("x", map[string]any{
		models.FieldName: "whole milk", models.FieldQuantity: 1, models.FieldCategory: "dairy",
	})
	rec := models.ConflictRecord{
		ID: "conf-1", ItemID: "x", ListID: "list-1", MutationID: "m1",
		Kind: models.KindCreateCollision, ServerSnapshot: snapshot, ServerVersion: 1,
	}
	local := models.Mutation{
		ID: "m1", ItemID: "x", ListID: "list-1", Type: models.MutationCreate,
		Payload: item("x", map[string]any{models.FieldName: "milk", models.FieldQuantity: 4}),
	}

	decision := models.Decision{
		Kind: models.DecisionFieldByField,
		Fields: map[string]models.FieldSource{
			models.FieldQuantity: models.SourceLocal,
			models.FieldName:     models.SourceServer,
		},
		ResolvedBy: "alice",
	}

	forced, err := r.BuildResolution(rec, local, decision)
	require.NoError(t, err)

	assert.Equal(t, "whole milk", forced.Payload.Name)
	assert.Equal(t, int64(4), forced.Payload.Quantity)
	assert.Equal(t, "dairy", forced.Payload.Category, "unmentioned fields default to server")
}

func TestBuildResolution_UnknownDecision(t *testing.T) {
	r := NewConflictResolver(logger.Nop())

	rec := models.ConflictRecord{ID: "conf-1", ItemID: "x"}
	_, err := r.BuildResolution(rec, models.Mutation{}, models.Decision{Kind: "coin_flip"})
	assert.ErrorIs(t, err, ErrUnknownDecision)
}
