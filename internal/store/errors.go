package store

import "errors"

// Sentinel errors returned by repository methods to signal well-known failure
// conditions. Callers should use [errors.Is] to match against these values.
var (
	// ErrMutationNotFound is returned when a query or update targets a
	// mutation id that is not present in the log.
	ErrMutationNotFound = errors.New("mutation was not found")

	// ErrConflictNotFound is returned when a resolution targets a conflict
	// id that is not present in the conflicts table.
	ErrConflictNotFound = errors.New("conflict record was not found")

	// ErrConflictExists is returned when a second conflict record is
	// created for an item that already has an active one. The table keeps
	// at most one active conflict per item.
	ErrConflictExists = errors.New("item already has an active conflict")

	// ErrStaleVersion is returned when a version ledger write would lower
	// an item's last known server version. Versions never decrease.
	ErrStaleVersion = errors.New("version ledger update is stale")

	// ErrInvalidMutation is returned when an enqueued mutation fails basic
	// validation (missing item id, unknown type, bad field names).
	ErrInvalidMutation = errors.New("invalid mutation")
)

// Low-level database operation errors. These are returned (or wrapped) by
// repository methods when a SQL-level operation fails before any domain
// logic can be applied.
var (
	// ErrBuildingSQLQuery is returned when constructing a parameterised
	// SQL query fails.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a read-only query
	// against the database fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the database driver cannot
	// start a new transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommitingTransaction is returned when committing an open
	// transaction fails. The transaction is considered rolled back.
	ErrCommitingTransaction = errors.New("failed to commit transaction")

	// ErrExecutingStatement is returned when executing a DML statement
	// (INSERT, UPDATE, DELETE) fails.
	ErrExecutingStatement = errors.New("failed to execute statement")

	// ErrScanningRow is returned when scanning column values from a result
	// row fails.
	ErrScanningRow = errors.New("failed to scan row")
)
