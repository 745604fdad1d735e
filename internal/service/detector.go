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

// Verdict is the detector's classification of a contested submission.
type Verdict int

const (
	// VerdictConverged — the server already holds the values the mutation
	// wanted; acknowledge and advance the version ledger.
	VerdictConverged Verdict = iota

	// VerdictAutoMerge — local and server edits touch disjoint fields (or
	// overlap only where both sides agree); the merged payload in
	// Detection.Merged can be force-applied without human input.
	VerdictAutoMerge

	// VerdictFieldConflict — overlapping fields diverge; resolvable by the
	// automatic rule table. Detection.Record describes the conflict.
	VerdictFieldConflict

	// VerdictManual — a delete conflict or create collision; no automatic
	// rule applies and the record goes to the manual resolution queue.
	VerdictManual
)

// Detection is the detector's full answer: the verdict plus whichever of
// the merged payload or conflict record the verdict calls for.
type Detection struct {
	Verdict Verdict

	// Merged is set for VerdictAutoMerge: the server's current state with
	// the local edits layered on top.
	Merged *models.Item

	// Record is set for VerdictFieldConflict and VerdictManual.
	Record *models.ConflictRecord
}

// conflictDetector classifies the server's conflict info against the local
// mutation. It is stateless; all inputs arrive per call.
type conflictDetector struct {
	ids    *utils.UUIDGenerator
	logger *logger.Logger
	now    func() time.Time
}

func NewConflictDetector(log *logger.Logger) *conflictDetector {
	return &conflictDetector{ids: utils.NewUUIDGenerator(), logger: log, now: time.Now}
}

// Classify decides what a contested submission actually is. The taxonomy is
// exhaustive: delete-vs-edit in either direction and duplicate creates go to
// the manual queue; concurrent edits split into converged, disjoint
// (auto-merged) and genuinely divergent (rule table).
func (d *conflictDetector) Classify(m models.Mutation, info models.ConflictInfo) (Detection, error) {
	// Both replicas deleted the item; the tombstone already is the state
	// the mutation wanted.
	if info.Deleted && m.Type == models.MutationDelete {
		return Detection{Verdict: VerdictConverged}, nil
	}

	// One side deleted while the other edited or created.
	if info.Deleted {
		return Detection{
			Verdict: VerdictManual,
			Record:  d.record(m, info, models.KindDeleteConflict, models.LocalUpdateServerDelete),
		}, nil
	}
	if m.Type == models.MutationDelete {
		return Detection{
			Verdict: VerdictManual,
			Record:  d.record(m, info, models.KindDeleteConflict, models.LocalDeleteServerUpdate),
		}, nil
	}

	// Two creates raced for the same id.
	if m.Type == models.MutationCreate {
		if info.CurrentItem != nil && m.Payload != nil && itemsConverge(models.AllFields, *m.Payload, *info.CurrentItem) {
			return Detection{Verdict: VerdictConverged}, nil
		}
		return Detection{
			Verdict: VerdictManual,
			Record:  d.record(m, info, models.KindCreateCollision, ""),
		}, nil
	}

	// Concurrent updates. A contested update must carry both item states;
	// without them nothing can be merged and acknowledging would drop the
	// local edit.
	if m.Payload == nil || info.CurrentItem == nil {
		return Detection{}, fmt.Errorf("%w: mutation %s on item %s", ErrMissingConflictInfo, m.ID, m.ItemID)
	}

	// Split the local field set into fields the server also changed with
	// a different value (divergent) and everything else.
	divergent := divergentFields(m, info)
	if len(divergent) > 0 {
		rec := d.record(m, info, models.KindFieldConflict, "")
		return Detection{Verdict: VerdictFieldConflict, Record: rec}, nil
	}

	if itemsConverge(m.ChangedFields, *m.Payload, *info.CurrentItem) {
		return Detection{Verdict: VerdictConverged}, nil
	}

	merged := d.merge(m, info)
	return Detection{Verdict: VerdictAutoMerge, Merged: merged}, nil
}

// divergentFields returns the fields both sides changed since the base
// version and for which the resulting values differ. Fields touched by both
// sides but landing on the same value do not count as divergence.
func divergentFields(m models.Mutation, info models.ConflictInfo) []string {
	if m.Payload == nil || info.CurrentItem == nil {
		return nil
	}

	serverChanged := make(map[string]struct{}, len(info.ChangedFields))
	for _, f := range info.ChangedFields {
		serverChanged[f] = struct{}{}
	}

	var out []string
	for _, f := range m.ChangedFields {
		if _, ok := serverChanged[f]; !ok {
			continue
		}
		if m.Payload.Field(f) != info.CurrentItem.Field(f) {
			out = append(out, f)
		}
	}
	return out
}

// itemsConverge reports whether local and server already agree on every
// listed field.
func itemsConverge(fields []string, local, server models.Item) bool {
	for _, f := range fields {
		if local.Field(f) != server.Field(f) {
			return false
		}
	}
	return true
}

// merge layers the local edits over the server's current state.
func (d *conflictDetector) merge(m models.Mutation, info models.ConflictInfo) *models.Item {
	merged := *info.CurrentItem
	for _, f := range m.ChangedFields {
		merged.SetField(f, m.Payload.Field(f))
	}
	merged.Version = info.CurrentVersion
	return &merged
}

func (d *conflictDetector) record(m models.Mutation, info models.ConflictInfo, kind models.ConflictKind, dir models.DeleteDirection) *models.ConflictRecord {
	rec := &models.ConflictRecord{
		ID:            d.ids.Generate(),
		ItemID:        m.ItemID,
		ListID:        m.ListID,
		MutationID:    m.ID,
		Kind:          kind,
		Direction:     dir,
		ServerVersion: info.CurrentVersion,
		ServerDeleted: info.Deleted,
		DetectedAt:    d.now(),
	}
	if info.CurrentItem != nil {
		snapshot := *info.CurrentItem
		rec.ServerSnapshot = &snapshot
	}

	d.logger.Info().
		Str("item_id", m.ItemID).
		Str("mutation_id", m.ID).
		Str("kind", string(kind)).
		Str("direction", string(dir)).
		Int64("server_version", info.CurrentVersion).
		Msg("conflict detected")

	return rec
}
