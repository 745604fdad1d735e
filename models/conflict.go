// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package models

import "time"

// ConflictKind is an exhaustive tagged enumeration of divergence classes.
// The resolver switches over it exhaustively, so adding a kind is a
// compile-time-visible change.
type ConflictKind string

const (
	// KindFieldConflict — both sides changed an overlapping field set to
	// different values since the mutation's base version.
	KindFieldConflict ConflictKind = "field_conflict"

	// KindDeleteConflict — one side deleted the item while the other
	// updated or created it. The direction is carried separately.
	KindDeleteConflict ConflictKind = "delete_conflict"

	// KindCreateCollision — two creates targeted the same id with
	// differing payloads.
	KindCreateCollision ConflictKind = "create_collision"
)

// DeleteDirection tags which side of a DeleteConflict issued the delete.
type DeleteDirection string

const (
	LocalUpdateServerDelete DeleteDirection = "local_update_server_delete"
	LocalDeleteServerUpdate DeleteDirection = "local_delete_server_update"
)

// ConflictRecord captures a contested submission that could not be applied
// automatically. It holds an opaque MutationID rather than the mutation
// itself; the mutation stays in the log table and is looked up on demand,
// avoiding an ownership cycle between the two records.
type ConflictRecord struct {
	ID         string       `json:"id"`
	ItemID     string       `json:"item_id"`
	ListID     string       `json:"list_id"`
	MutationID string       `json:"mutation_id"`
	Kind       ConflictKind `json:"kind"`

	// Direction is set only for KindDeleteConflict.
	Direction DeleteDirection `json:"direction,omitempty"`

	// ServerSnapshot is the authoritative item state at detection time.
	// Nil when the server side is a delete.
	ServerSnapshot *Item `json:"server_snapshot,omitempty"`

	// ServerVersion is the authoritative version at detection time; it is
	// the base version for the forced-overwrite mutation produced by
	// resolution.
	ServerVersion int64 `json:"server_version"`

	// ServerDeleted reports whether the server side no longer has the item.
	ServerDeleted bool `json:"server_deleted"`

	DetectedAt time.Time `json:"detected_at"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}

// DecisionKind selects how a manual conflict is resolved.
type DecisionKind string

const (
	DecisionUseLocal     DecisionKind = "use_local"
	DecisionUseServer    DecisionKind = "use_server"
	DecisionFieldByField DecisionKind = "field_by_field"
)

// FieldSource picks the winning side for one field of a FieldByField decision.
type FieldSource string

const (
	SourceLocal  FieldSource = "local"
	SourceServer FieldSource = "server"
)

// Decision is the caller's verdict for a manually resolved conflict.
// Fields is consulted only when Kind is DecisionFieldByField; fields absent
// from the map default to the server value.
type Decision struct {
	Kind       DecisionKind           `json:"kind"`
	Fields     map[string]FieldSource `json:"fields,omitempty"`
	ResolvedBy string                 `json:"resolved_by"`
}
