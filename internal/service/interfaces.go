package service

//go:generate mockgen -source=interfaces.go -destination=../mock/service_mock.go -package=mock

import (
	"context"

	"github.com/mkarpov/go-list-sync/models"
)

// MutationLog is the engine's view of the durable local queue. Enqueue
// validates and stamps the mutation (id, timestamp, base version) before
// handing it to storage; the delivery bookkeeping (ack/nack/backoff) wraps
// the repository with the retry policy.
type MutationLog interface {
	// Enqueue validates, stamps, and durably persists a mutation,
	// coalescing with pending same-item operations when safe. A nil
	// result with nil error means the operation cancelled out entirely.
	Enqueue(ctx context.Context, m models.Mutation) (*models.Mutation, error)

	// DequeueNext returns up to limit oldest-pending-per-item mutations
	// ready for submission and marks them Syncing.
	DequeueNext(ctx context.Context, listID string, limit int) ([]models.Mutation, error)

	// Ack marks a mutation Synced and removes it from the log.
	Ack(ctx context.Context, id string) error

	// Nack records a failed submission. It either schedules a retry after
	// exponential backoff or, once attempts are exhausted, marks the
	// mutation Failed; exhausted reports which.
	Nack(ctx context.Context, id string, cause error) (exhausted bool, err error)

	// Fail marks a mutation Failed immediately, bypassing the retry
	// policy. Used for permanent server verdicts.
	Fail(ctx context.Context, id string, cause error) error

	// Park marks a mutation Conflict while its conflict record awaits
	// manual resolution.
	Park(ctx context.Context, id string) error

	// Requeue returns a mutation to Pending with a clean retry state.
	// Used when submission was interrupted for reasons unrelated to the
	// mutation itself (paused queue, expired credentials).
	Requeue(ctx context.Context, id string) error

	// Retry returns a Failed mutation to Pending at the user's request.
	Retry(ctx context.Context, id string) error

	// ClearBackoff cancels every retry deferral of a list, making nacked
	// mutations immediately eligible again.
	ClearBackoff(ctx context.Context, listID string) (int64, error)

	// Discard drops a mutation at the user's request.
	Discard(ctx context.Context, id string) error

	// Get looks up one mutation.
	Get(ctx context.Context, id string) (models.Mutation, error)

	// Status reports pending/syncing/failed counts for a list.
	Status(ctx context.Context, listID string) (models.QueueStatus, error)

	// Recover requeues mutations left Syncing by a previous process,
	// restoring the at-least-once contract after a crash.
	Recover(ctx context.Context) (int64, error)
}

// VersionStore is the per-item last-known-server-version ledger used to
// stamp base versions on new mutations and to detect staleness.
type VersionStore interface {
	Get(ctx context.Context, itemID string) (models.VersionEntry, error)
	Set(ctx context.Context, itemID string, version int64) error
}

// ConflictDetector classifies a contested submission against the server's
// conflict info. Classify returns ErrMissingConflictInfo when the info
// carries neither an item snapshot nor a tombstone, so the caller can fail
// the mutation instead of silently acknowledging it.
type ConflictDetector interface {
	Classify(m models.Mutation, info models.ConflictInfo) (Detection, error)
}

// ConflictResolver applies the automatic rule table to field conflicts and
// builds forced-overwrite mutations out of manual decisions.
type ConflictResolver interface {
	// AutoResolve merges a field conflict deterministically. A nil
	// mutation means both sides already converged and the local mutation
	// can simply be acknowledged.
	AutoResolve(rec models.ConflictRecord, local models.Mutation) (*models.Mutation, error)

	// BuildResolution turns a manual decision into exactly one
	// forced-overwrite mutation.
	BuildResolution(rec models.ConflictRecord, local models.Mutation, decision models.Decision) (models.Mutation, error)
}

// ManualResolutionQueue holds conflicts that require a human verdict. An
// item with a queued conflict accepts no further submissions until resolved.
type ManualResolutionQueue interface {
	// Push persists the conflict record and parks its mutation.
	Push(ctx context.Context, rec models.ConflictRecord) error

	// List returns the unresolved conflicts of a list.
	List(ctx context.Context, listID string) ([]models.ConflictRecord, error)

	// Resolve applies the caller's decision: the original mutation is
	// removed, one forced-overwrite mutation re-enters the log, and the
	// item is unblocked. Returns the enqueued mutation.
	Resolve(ctx context.Context, conflictID string, decision models.Decision) (*models.Mutation, error)
}

// SyncCoordinator drains the queue for one list. Exactly one pass runs at a
// time; concurrent triggers coalesce into the in-flight pass.
type SyncCoordinator interface {
	// SyncNow runs (or joins) a sync pass.
	SyncNow(ctx context.Context) error

	// Flush cancels the list's retry deferrals and runs a pass, so a
	// user-initiated "sync now" does not sit out the remaining backoff.
	Flush(ctx context.Context) error

	// Resolve forwards a manual decision and immediately schedules the
	// freed item for submission.
	Resolve(ctx context.Context, conflictID string, decision models.Decision) error

	// RefreshSession obtains fresh credentials and resumes a queue paused
	// by an expired session.
	RefreshSession(ctx context.Context) error

	// QueueStatus reports a snapshot of the queue.
	QueueStatus(ctx context.Context) (models.QueueStatus, error)

	// StatusEvents streams queue snapshots emitted during passes.
	StatusEvents() <-chan models.QueueStatus

	// ConflictEvents streams conflicts that require manual resolution.
	ConflictEvents() <-chan models.ConflictRecord
}
