// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

func newServer() *Server {
	return New("test-key", time.Hour, logger.Nop())
}

func payload(id string, fields map[string]any) *models.Item {
	it := &models.Item{ID: id, ListID: "list-1"}
	for f, v := range fields {
		it.SetField(f, v)
	}
	return it
}

func createMut(mutID, itemID string, fields map[string]any) models.Mutation {
	return models.Mutation{
		ID: mutID, ItemID: itemID, ListID: "list-1",
		Type: models.MutationCreate, Payload: payload(itemID, fields),
	}
}

func updateMut(mutID, itemID string, base int64, fields map[string]any) models.Mutation {
	m := models.Mutation{
		ID: mutID, ItemID: itemID, ListID: "list-1",
		Type: models.MutationUpdate, BaseVersion: base, Payload: payload(itemID, fields),
	}
	for f := range fields {
		m.ChangedFields = append(m.ChangedFields, f)
	}
	return m
}

func TestApply_CreateAssignsVersionOne(t *testing.T) {
	s := newServer()

	resp := s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "client-a", time.Now())

	assert.True(t, resp.Applied)
	assert.Equal(t, int64(1), resp.AppliedVersion)

	item, ok := s.Item("x")
	require.True(t, ok)
	assert.Equal(t, "milk", item.Name)
	assert.Equal(t, "client-a", item.UpdatedBy)
}

func TestApply_ReplayReturnsRecordedVerdict(t *testing.T) {
	s := newServer()
	m := createMut("m1", "x", map[string]any{models.FieldName: "milk"})

	first := s.apply(m, "client-a", time.Now())
	replay := s.apply(m, "client-a", time.Now())

	assert.Equal(t, first, replay)

	item, _ := s.Item("x")
	assert.Equal(t, int64(1), item.Version, "replay did not bump the version")
}

func TestApply_StaleUpdateReportsChangedFields(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)
	require.True(t, s.apply(updateMut("m2", "x", 1, map[string]any{models.FieldQuantity: 3}), "b", time.Now()).Applied)

	// still based on v1
	resp := s.apply(updateMut("m3", "x", 1, map[string]any{models.FieldNotes: "organic"}), "a", time.Now())

	require.NotNil(t, resp.Conflict)
	assert.False(t, resp.Applied)
	assert.Equal(t, int64(2), resp.Conflict.CurrentVersion)
	require.NotNil(t, resp.Conflict.CurrentItem)
	assert.Equal(t, int64(3), resp.Conflict.CurrentItem.Quantity)
	assert.Equal(t, []string{models.FieldQuantity}, resp.Conflict.ChangedFields)
}

func TestApply_UpdateOnDeletedItem(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)
	del := models.Mutation{ID: "m2", ItemID: "x", ListID: "list-1", Type: models.MutationDelete, BaseVersion: 1}
	require.True(t, s.apply(del, "b", time.Now()).Applied)

	resp := s.apply(updateMut("m3", "x", 1, map[string]any{models.FieldQuantity: 2}), "a", time.Now())

	require.NotNil(t, resp.Conflict)
	assert.True(t, resp.Conflict.Deleted)
	assert.Nil(t, resp.Conflict.CurrentItem)
	assert.True(t, s.Deleted("x"))
}

func TestApply_CreateOnTombstone(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)
	del := models.Mutation{ID: "m2", ItemID: "x", ListID: "list-1", Type: models.MutationDelete, BaseVersion: 1}
	require.True(t, s.apply(del, "a", time.Now()).Applied)

	resp := s.apply(createMut("m3", "x", map[string]any{models.FieldName: "milk again"}), "b", time.Now())

	require.NotNil(t, resp.Conflict)
	assert.True(t, resp.Conflict.Deleted)
}

func TestApply_CreateCollision(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)

	resp := s.apply(createMut("m2", "x", map[string]any{models.FieldName: "whole milk"}), "b", time.Now())

	require.NotNil(t, resp.Conflict)
	assert.Equal(t, int64(1), resp.Conflict.CurrentVersion)
	assert.Equal(t, "milk", resp.Conflict.CurrentItem.Name)
}

func TestApply_IdenticalCreateConverges(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)

	resp := s.apply(createMut("m2", "x", map[string]any{models.FieldName: "milk"}), "b", time.Now())

	assert.True(t, resp.Applied)
	assert.Equal(t, int64(1), resp.AppliedVersion)
}

func TestApply_DeleteOnDeletedConverges(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)
	del := models.Mutation{ID: "m2", ItemID: "x", ListID: "list-1", Type: models.MutationDelete, BaseVersion: 1}
	require.True(t, s.apply(del, "a", time.Now()).Applied)

	again := models.Mutation{ID: "m3", ItemID: "x", ListID: "list-1", Type: models.MutationDelete, BaseVersion: 1}
	resp := s.apply(again, "b", time.Now())

	assert.True(t, resp.Applied)
}

func TestApply_ContestedDelete(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)
	require.True(t, s.apply(updateMut("m2", "x", 1, map[string]any{models.FieldQuantity: 3}), "b", time.Now()).Applied)

	del := models.Mutation{ID: "m3", ItemID: "x", ListID: "list-1", Type: models.MutationDelete, BaseVersion: 1}
	resp := s.apply(del, "a", time.Now())

	require.NotNil(t, resp.Conflict)
	assert.Equal(t, int64(2), resp.Conflict.CurrentVersion)
}

func TestApply_ForcedSkipsVersionCheck(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)
	require.True(t, s.apply(updateMut("m2", "x", 1, map[string]any{models.FieldQuantity: 3}), "b", time.Now()).Applied)

	forced := updateMut("m3", "x", 1, map[string]any{models.FieldQuantity: 5})
	forced.Forced = true
	resp := s.apply(forced, "a", time.Now())

	assert.True(t, resp.Applied)
	assert.Equal(t, int64(3), resp.AppliedVersion)

	item, _ := s.Item("x")
	assert.Equal(t, int64(5), item.Quantity)
}

func TestApply_ForcedCreateRevivesTombstone(t *testing.T) {
	s := newServer()

	require.True(t, s.apply(createMut("m1", "x", map[string]any{models.FieldName: "milk"}), "a", time.Now()).Applied)
	del := models.Mutation{ID: "m2", ItemID: "x", ListID: "list-1", Type: models.MutationDelete, BaseVersion: 1}
	require.True(t, s.apply(del, "a", time.Now()).Applied)

	forced := createMut("m3", "x", map[string]any{models.FieldName: "milk"})
	forced.Forced = true
	resp := s.apply(forced, "b", time.Now())

	assert.True(t, resp.Applied)
	assert.Equal(t, int64(3), resp.AppliedVersion, "continues after the tombstone version")
	assert.False(t, s.Deleted("x"))
}

func TestFetch_ByListAndByID(t *testing.T) {
	s := newServer()
	s.Seed(models.Item{ID: "x", ListID: "list-1", Name: "milk"})
	s.Seed(models.Item{ID: "y", ListID: "list-2", Name: "eggs"})

	all := s.fetch(models.FetchRequest{ListID: "list-1"})
	require.Len(t, all, 1)
	assert.Equal(t, "x", all[0].ID)

	byID := s.fetch(models.FetchRequest{ItemIDs: []string{"y", "missing"}})
	require.Len(t, byID, 1)
	assert.Equal(t, "y", byID[0].ID)
}
