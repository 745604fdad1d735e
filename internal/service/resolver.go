// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package service

import (
	"fmt"
	"time"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/utils"
	"github.com/mkarpov/go-list-sync/models"
)

// mergeRule resolves one field of a divergent concurrent edit. server and
// local are the two competing item states; the returned value is the one the
// merged item keeps.
type mergeRule func(server, local models.Item) any

// autoMergeRules is the deterministic per-field rule table applied to field
// conflicts, checked most-specific first:
//
//   - gotten: an item checked off on either replica stays checked off. A
//     purchase is a physical fact; un-checking it because another replica
//     raced an unrelated edit would lose information.
//   - notes: divergent free text cannot be ranked, so both survive as
//     "{server}\n---\n{local}" and a human tidies it up on screen.
//   - everything else: last-writer-wins ordered by server-assigned version.
//     The forced overwrite produced here lands after the server's current
//     version, so the local value is the later write and wins. Client
//     clocks are never consulted.
var autoMergeRules = map[string]mergeRule{
	models.FieldGotten: func(server, local models.Item) any {
		return server.Gotten || local.Gotten
	},
	models.FieldNotes: func(server, local models.Item) any {
		switch {
		case server.Notes == local.Notes:
			return server.Notes
		case server.Notes == "":
			return local.Notes
		case local.Notes == "":
			return server.Notes
		default:
			return server.Notes + "\n---\n" + local.Notes
		}
	},
}

// conflictResolver turns conflicts into forced-overwrite mutations: the rule
// table for field conflicts, the caller's decision for manual ones. Every
// resolution produces exactly one mutation based on the server version
// captured in the conflict record.
type conflictResolver struct {
	ids    *utils.UUIDGenerator
	logger *logger.Logger
	now    func() time.Time
}

func NewConflictResolver(log *logger.Logger) *conflictResolver {
	return &conflictResolver{ids: utils.NewUUIDGenerator(), logger: log, now: time.Now}
}

// AutoResolve merges a field conflict with the rule table. Fields only the
// local side changed keep the local value; fields both sides changed go
// through autoMergeRules, defaulting to the local value (the later-versioned
// write once the forced overwrite lands). A nil result means the merge
// reproduced the server state exactly and nothing needs submitting.
func (r *conflictResolver) AutoResolve(rec models.ConflictRecord, local models.Mutation) (*models.Mutation, error) {
	if rec.ServerSnapshot == nil || local.Payload == nil {
		return nil, fmt.Errorf("field conflict %s is missing a side to merge", rec.ID)
	}

	server := *rec.ServerSnapshot
	merged := server
	for _, f := range local.ChangedFields {
		if rule, ok := autoMergeRules[f]; ok {
			merged.SetField(f, rule(server, *local.Payload))
			continue
		}
		merged.SetField(f, local.Payload.Field(f))
	}

	if itemsConverge(models.AllFields, merged, server) {
		r.logger.Debug().
			Str("conflict_id", rec.ID).
			Str("item_id", rec.ItemID).
			Msg("field conflict merged to server state, nothing to submit")
		return nil, nil
	}

	forced := r.forced(rec, local.ListID, models.MutationUpdate, &merged, local.ChangedFields, local.ClientID)

	r.logger.Info().
		Str("conflict_id", rec.ID).
		Str("item_id", rec.ItemID).
		Str("forced_mutation_id", forced.ID).
		Msg("field conflict auto-resolved")

	return &forced, nil
}

// BuildResolution converts a manual decision into the single forced
// mutation that ends the conflict. UseServer over a deleted server side (or
// UseLocal when the local side was the delete) yields a forced delete;
// every other combination yields a forced update carrying the chosen item
// state.
func (r *conflictResolver) BuildResolution(rec models.ConflictRecord, local models.Mutation, decision models.Decision) (models.Mutation, error) {
	switch decision.Kind {
	case models.DecisionUseLocal:
		if local.Type == models.MutationDelete {
			return r.forced(rec, local.ListID, models.MutationDelete, nil, nil, decision.ResolvedBy), nil
		}
		if local.Payload == nil {
			return models.Mutation{}, fmt.Errorf("mutation %s carries no payload to keep", local.ID)
		}
		payload := *local.Payload
		return r.forced(rec, local.ListID, r.typeFor(rec, local), &payload, local.ChangedFields, decision.ResolvedBy), nil

	case models.DecisionUseServer:
		if rec.ServerDeleted {
			return r.forced(rec, local.ListID, models.MutationDelete, nil, nil, decision.ResolvedBy), nil
		}
		if rec.ServerSnapshot == nil {
			return models.Mutation{}, fmt.Errorf("conflict %s has no server snapshot to keep", rec.ID)
		}
		payload := *rec.ServerSnapshot
		return r.forced(rec, local.ListID, models.MutationUpdate, &payload, models.AllFields, decision.ResolvedBy), nil

	case models.DecisionFieldByField:
		return r.fieldByField(rec, local, decision)

	default:
		return models.Mutation{}, fmt.Errorf("%w: %q", ErrUnknownDecision, decision.Kind)
	}
}

// fieldByField assembles the winner per field. It requires both sides to be
// item states; delete conflicts offer no per-field choice and must be
// resolved whole-sided.
func (r *conflictResolver) fieldByField(rec models.ConflictRecord, local models.Mutation, decision models.Decision) (models.Mutation, error) {
	if rec.ServerSnapshot == nil || local.Payload == nil {
		return models.Mutation{}, fmt.Errorf("%w: conflict %s has only one item state", ErrIncompleteVerdict, rec.ID)
	}

	merged := *rec.ServerSnapshot
	for _, f := range models.AllFields {
		if decision.Fields[f] == models.SourceLocal {
			merged.SetField(f, local.Payload.Field(f))
		}
	}

	return r.forced(rec, local.ListID, models.MutationUpdate, &merged, models.AllFields, decision.ResolvedBy), nil
}

// typeFor picks the forced mutation type for a kept local side: recreating
// an item the server deleted is a create, everything else an update.
func (r *conflictResolver) typeFor(rec models.ConflictRecord, local models.Mutation) models.MutationType {
	if rec.ServerDeleted || local.Type == models.MutationCreate {
		return models.MutationCreate
	}
	return models.MutationUpdate
}

// forced builds the overwrite mutation. Its base version is the latest
// server version the conflict was detected against, and the Forced flag
// tells the server to apply it without the optimistic check.
func (r *conflictResolver) forced(rec models.ConflictRecord, listID string, typ models.MutationType, payload *models.Item, changed []string, by string) models.Mutation {
	if payload != nil {
		p := *payload
		p.UpdatedAt = r.now()
		if by != "" {
			p.UpdatedBy = by
		}
		payload = &p
	}

	return models.Mutation{
		ID:            r.ids.Generate(),
		ItemID:        rec.ItemID,
		ListID:        listID,
		Type:          typ,
		ChangedFields: changed,
		Payload:       payload,
		BaseVersion:   rec.ServerVersion,
		Timestamp:     r.now(),
		ClientID:      by,
		Forced:        true,
	}
}
