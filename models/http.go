// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package models

import "time"

// SubmitRequest carries one queued mutation to the server. The server must
// treat Mutation.ID idempotently: resubmitting an already-applied id returns
// the original outcome instead of applying the change twice, which makes the
// queue's at-least-once delivery safe.
type SubmitRequest struct {
	Mutation Mutation `json:"mutation"`
}

// SubmitResponse is the server's verdict on a submitted mutation.
// Exactly one of Applied or Conflict describes the outcome: either the
// change passed the optimistic version check and AppliedVersion holds the
// new authoritative version, or Conflict carries everything the client's
// detector needs to classify the divergence.
type SubmitResponse struct {
	Applied        bool          `json:"applied"`
	AppliedVersion int64         `json:"applied_version,omitempty"`
	Conflict       *ConflictInfo `json:"conflict,omitempty"`
}

// ConflictInfo is the server's description of why a submission was contested.
type ConflictInfo struct {
	// CurrentVersion is the authoritative version of the item.
	CurrentVersion int64 `json:"current_version"`

	// CurrentItem is the authoritative item state; nil when Deleted.
	CurrentItem *Item `json:"current_item,omitempty"`

	// Deleted reports that the item no longer exists on the server.
	Deleted bool `json:"deleted"`

	// ChangedFields lists the fields the server has changed since the
	// mutation's base version, letting the client detect disjoint edits.
	ChangedFields []string `json:"changed_fields,omitempty"`
}

// FetchRequest asks the server for the current state of the listed items.
// An empty ItemIDs slice requests every item of the list.
type FetchRequest struct {
	ListID  string   `json:"list_id"`
	ItemIDs []string `json:"item_ids,omitempty"`
}

// FetchResponse returns authoritative item states for a FetchRequest.
type FetchResponse struct {
	Items  []Item `json:"items"`
	Length int    `json:"length"`
}

// Token is a signed credential returned by the server's session endpoint.
type Token struct {
	SignedString string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
