// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package models

import "time"

// MutationType enumerates the intent of a queued local change.
type MutationType string

const (
	MutationCreate MutationType = "create"
	MutationUpdate MutationType = "update"
	MutationDelete MutationType = "delete"
)

// MutationStatus is the lifecycle state of a queued mutation.
//
//	Pending → Syncing → Synced
//	                  ↘ Conflict (routed to the resolver)
//	                  ↘ Pending  (nack, retried after backoff)
//	                  ↘ Failed   (retries exhausted; kept until retried or discarded)
type MutationStatus string

const (
	StatusPending  MutationStatus = "pending"
	StatusSyncing  MutationStatus = "syncing"
	StatusSynced   MutationStatus = "synced"
	StatusConflict MutationStatus = "conflict"
	StatusFailed   MutationStatus = "failed"
)

// Mutation is a single intended create/update/delete, queued locally before
// server confirmation. BaseVersion is the server version the change was made
// against, stamped from the version ledger at enqueue time; the server uses
// it for its optimistic concurrency check. Timestamp is the client wall
// clock and is informational metadata only — conflict resolution compares
// server-assigned versions, never client clocks.
type Mutation struct {
	ID            string         `json:"id"`
	ItemID        string         `json:"item_id"`
	ListID        string         `json:"list_id"`
	Type          MutationType   `json:"type"`
	ChangedFields []string       `json:"changed_fields"`
	Payload       *Item          `json:"payload,omitempty"`
	BaseVersion   int64          `json:"base_version"`
	Timestamp     time.Time      `json:"timestamp"`
	ClientID      string         `json:"client_id"`
	Status        MutationStatus `json:"status"`
	RetryCount    int            `json:"retry_count"`

	// Seq is the log-assigned monotonic sequence number; it orders
	// mutations of one item for FIFO draining.
	Seq int64 `json:"seq"`

	// Forced marks a conflict-resolution overwrite: the server applies it
	// without an optimistic version check.
	Forced bool `json:"forced"`

	// NextAttemptAt defers a nacked mutation until the backoff delay has
	// elapsed. Zero means eligible immediately.
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`

	// LastError records the most recent submission failure, if any.
	LastError string `json:"last_error,omitempty"`
}

// Changed reports whether the mutation declares a change to the named field.
func (m Mutation) Changed(field string) bool {
	for _, f := range m.ChangedFields {
		if f == field {
			return true
		}
	}
	return false
}
