package models

import "time"

// VersionEntry is one row of the per-item version ledger: the last
// server-confirmed version and when it was synced. Versions never decrease.
type VersionEntry struct {
	ItemID       string    `json:"item_id"`
	Version      int64     `json:"version"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// QueueStatus is a point-in-time snapshot of the mutation queue, emitted on
// every change during a sync pass.
type QueueStatus struct {
	ListID  string `json:"list_id"`
	Pending int    `json:"pending"`
	Syncing int    `json:"syncing"`
	Failed  int    `json:"failed"`

	// Conflicts is the number of unresolved manual conflicts blocking items.
	Conflicts int `json:"conflicts"`

	// DroppedEvents counts status and conflict events discarded because a
	// subscriber's buffer was full; a non-zero value means the consumer is
	// lagging behind the queue.
	DroppedEvents uint64 `json:"dropped_events"`
}
