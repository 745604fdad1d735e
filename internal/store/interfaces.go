package store

//go:generate mockgen -source=interfaces.go -destination=../mock/store_mock.go -package=mock

import (
	"context"
	"time"

	"github.com/mkarpov/go-list-sync/models"
)

// MutationRepository is the durable, ordered, per-item FIFO queue of pending
// local operations.
//
// Enqueue and DequeueEligible run inside scoped transactions: every exit
// path either commits or rolls back, so a crash mid-call leaves the previous
// committed state intact. Any mutation found in the Syncing state at startup
// is requeued Pending via RequeueSyncing, giving at-least-once delivery.
type MutationRepository interface {
	// Enqueue persists the mutation, coalescing it with pending
	// same-item operations when safe. The returned mutation carries the
	// assigned sequence number; a nil result means the operation was
	// cancelled out entirely (Create+Delete). Forced mutations never
	// coalesce: they are inserted ahead of any pending same-item sibling
	// so the resolved state reaches the server first.
	Enqueue(ctx context.Context, m models.Mutation) (*models.Mutation, error)

	// DequeueEligible returns up to limit oldest-Pending-per-item
	// mutations that are ready to submit (backoff elapsed, no in-flight
	// sibling, no active conflict on the item) and marks them Syncing.
	DequeueEligible(ctx context.Context, listID string, now time.Time, limit int) ([]models.Mutation, error)

	// Get looks up a mutation by id.
	Get(ctx context.Context, id string) (models.Mutation, error)

	// Ack marks the mutation Synced and removes it from the log.
	Ack(ctx context.Context, id string) error

	// Nack returns a Syncing mutation to Pending with an incremented retry
	// count, the given deferral, and the submission error recorded.
	Nack(ctx context.Context, id string, nextAttemptAt time.Time, cause string) error

	// Fail marks the mutation Failed. Failed mutations are retained until
	// explicitly retried or discarded.
	Fail(ctx context.Context, id string, cause string) error

	// MarkConflict marks the mutation Conflict, parking it while its
	// conflict record awaits resolution.
	MarkConflict(ctx context.Context, id string) error

	// Retry returns a Failed or Conflict mutation to Pending with a clean
	// retry state.
	Retry(ctx context.Context, id string) error

	// Discard removes a mutation from the log regardless of status.
	Discard(ctx context.Context, id string) error

	// ClearBackoff cancels pending retry deferrals for a list so a manual
	// flush submits immediately; returns the number of cleared rows.
	ClearBackoff(ctx context.Context, listID string) (int64, error)

	// RequeueSyncing flips every Syncing mutation back to Pending.
	// Called once at startup; returns the number of requeued rows.
	RequeueSyncing(ctx context.Context) (int64, error)

	// CountByStatus reports pending/syncing/failed totals for one list.
	CountByStatus(ctx context.Context, listID string) (models.QueueStatus, error)

	// PendingByItem returns the item's queued mutations in seq order.
	PendingByItem(ctx context.Context, itemID string) ([]models.Mutation, error)
}

// VersionRepository is the per-item last-known-server-version ledger.
type VersionRepository interface {
	// Get returns the ledger entry for itemID; a zero entry when unknown.
	Get(ctx context.Context, itemID string) (models.VersionEntry, error)

	// Set records a new server-confirmed version. Writes that would lower
	// the stored version return ErrStaleVersion.
	Set(ctx context.Context, itemID string, version int64, syncedAt time.Time) error
}

// ConflictRepository persists unresolved conflict records. The table keeps
// at most one active conflict per item.
type ConflictRepository interface {
	Create(ctx context.Context, rec models.ConflictRecord) error
	Get(ctx context.Context, id string) (models.ConflictRecord, error)
	GetByItem(ctx context.Context, itemID string) (models.ConflictRecord, error)
	List(ctx context.Context, listID string) ([]models.ConflictRecord, error)
	// Delete removes a resolved conflict record.
	Delete(ctx context.Context, id string) error
	// BlockedItems returns the item ids with an active conflict.
	BlockedItems(ctx context.Context, listID string) ([]string, error)
}
