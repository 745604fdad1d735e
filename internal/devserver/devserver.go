// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

// Package devserver is an in-memory reference implementation of the
// authoritative sync server. It exists for integration tests and local
// development: it honors the submit contract the engine relies on —
// idempotency on mutation id, optimistic version checks, conflict payloads
// with changed-field history, and forced overwrites — without any external
// storage.
package devserver

import (
	"sync"
	"time"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

type versionChange struct {
	version int64
	fields  []string
}

// Server holds the authoritative list state.
type Server struct {
	signKey  []byte
	tokenTTL time.Duration
	logger   *logger.Logger

	mu        sync.Mutex
	items     map[string]models.Item
	tombstone map[string]int64           // item id → version the delete was applied at
	history   map[string][]versionChange // item id → per-version changed fields
	applied   map[string]models.SubmitResponse
}

// New constructs a Server signing session tokens with signKey. A zero
// tokenTTL defaults to one hour.
func New(signKey string, tokenTTL time.Duration, log *logger.Logger) *Server {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Server{
		signKey:   []byte(signKey),
		tokenTTL:  tokenTTL,
		logger:    log,
		items:     make(map[string]models.Item),
		tombstone: make(map[string]int64),
		history:   make(map[string][]versionChange),
		applied:   make(map[string]models.SubmitResponse),
	}
}

// Seed installs an item as already-synced server state. Intended for tests.
func (s *Server) Seed(item models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.Version == 0 {
		item.Version = 1
	}
	s.items[item.ID] = item
	s.history[item.ID] = append(s.history[item.ID], versionChange{
		version: item.Version,
		fields:  models.AllFields,
	})
}

// Item returns the current authoritative state of one item. Intended for
// tests and debugging.
func (s *Server) Item(id string) (models.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// Deleted reports whether the item has a tombstone.
func (s *Server) Deleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tombstone[id]
	return ok
}

// apply executes one submission under the state lock.
func (s *Server) apply(m models.Mutation, clientID string, now time.Time) models.SubmitResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	// idempotency: a replayed mutation returns the recorded verdict
	// instead of being applied twice
	if resp, ok := s.applied[m.ID]; ok {
		return resp
	}

	resp := s.applyLocked(m, clientID, now)
	if resp.Applied {
		s.applied[m.ID] = resp
	}
	return resp
}

func (s *Server) applyLocked(m models.Mutation, clientID string, now time.Time) models.SubmitResponse {
	current, exists := s.items[m.ItemID]
	deletedAt, deleted := s.tombstone[m.ItemID]

	if m.Forced {
		return s.applyForcedLocked(m, clientID, now)
	}

	switch m.Type {
	case models.MutationCreate:
		if deleted {
			return models.SubmitResponse{Conflict: &models.ConflictInfo{
				CurrentVersion: deletedAt,
				Deleted:        true,
			}}
		}
		if exists {
			if payloadEqual(current, m.Payload) {
				// both creates converged to the same values
				return models.SubmitResponse{Applied: true, AppliedVersion: current.Version}
			}
			return models.SubmitResponse{Conflict: &models.ConflictInfo{
				CurrentVersion: current.Version,
				CurrentItem:    &current,
				ChangedFields:  s.changedSinceLocked(m.ItemID, 0),
			}}
		}
		return s.storeLocked(m, clientID, now, 1, models.AllFields)

	case models.MutationUpdate:
		if deleted {
			return models.SubmitResponse{Conflict: &models.ConflictInfo{
				CurrentVersion: deletedAt,
				Deleted:        true,
			}}
		}
		if !exists {
			// unknown item, surfaced as a validation problem by the handler
			return models.SubmitResponse{}
		}
		if m.BaseVersion != current.Version {
			return models.SubmitResponse{Conflict: &models.ConflictInfo{
				CurrentVersion: current.Version,
				CurrentItem:    &current,
				ChangedFields:  s.changedSinceLocked(m.ItemID, m.BaseVersion),
			}}
		}
		next := current
		for _, f := range m.ChangedFields {
			if m.Payload != nil {
				next.SetField(f, m.Payload.Field(f))
			}
		}
		return s.storeItemLocked(next, clientID, now, current.Version+1, m.ChangedFields)

	default: // delete
		if deleted {
			// converged: the item is already gone
			return models.SubmitResponse{Applied: true, AppliedVersion: deletedAt}
		}
		if !exists {
			return models.SubmitResponse{Applied: true, AppliedVersion: m.BaseVersion}
		}
		if m.BaseVersion != current.Version {
			return models.SubmitResponse{Conflict: &models.ConflictInfo{
				CurrentVersion: current.Version,
				CurrentItem:    &current,
				ChangedFields:  s.changedSinceLocked(m.ItemID, m.BaseVersion),
			}}
		}
		return s.deleteLocked(m.ItemID, current.Version+1)
	}
}

func (s *Server) applyForcedLocked(m models.Mutation, clientID string, now time.Time) models.SubmitResponse {
	version := int64(1)
	if current, ok := s.items[m.ItemID]; ok {
		version = current.Version + 1
	} else if deletedAt, ok := s.tombstone[m.ItemID]; ok {
		version = deletedAt + 1
	}

	if m.Type == models.MutationDelete {
		return s.deleteLocked(m.ItemID, version)
	}
	return s.storeLocked(m, clientID, now, version, models.AllFields)
}

func (s *Server) storeLocked(m models.Mutation, clientID string, now time.Time, version int64, fields []string) models.SubmitResponse {
	item := models.Item{ID: m.ItemID, ListID: m.ListID}
	if m.Payload != nil {
		item = *m.Payload
		item.ID = m.ItemID
		item.ListID = m.ListID
	}
	return s.storeItemLocked(item, clientID, now, version, fields)
}

func (s *Server) storeItemLocked(item models.Item, clientID string, now time.Time, version int64, fields []string) models.SubmitResponse {
	item.Version = version
	item.UpdatedAt = now
	item.UpdatedBy = clientID
	s.items[item.ID] = item
	delete(s.tombstone, item.ID)
	s.history[item.ID] = append(s.history[item.ID], versionChange{version: version, fields: fields})

	return models.SubmitResponse{Applied: true, AppliedVersion: version}
}

func (s *Server) deleteLocked(itemID string, version int64) models.SubmitResponse {
	delete(s.items, itemID)
	s.tombstone[itemID] = version
	s.history[itemID] = append(s.history[itemID], versionChange{version: version})

	return models.SubmitResponse{Applied: true, AppliedVersion: version}
}

// changedSinceLocked returns the union of fields changed by versions newer
// than base.
func (s *Server) changedSinceLocked(itemID string, base int64) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ch := range s.history[itemID] {
		if ch.version <= base {
			continue
		}
		for _, f := range ch.fields {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func (s *Server) fetch(req models.FetchRequest) []models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Item
	if len(req.ItemIDs) == 0 {
		for _, item := range s.items {
			if req.ListID == "" || item.ListID == req.ListID {
				out = append(out, item)
			}
		}
		return out
	}

	for _, id := range req.ItemIDs {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

func payloadEqual(current models.Item, payload *models.Item) bool {
	if payload == nil {
		return false
	}
	for _, f := range models.AllFields {
		if current.Field(f) != payload.Field(f) {
			return false
		}
	}
	return true
}
