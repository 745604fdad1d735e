package store

import (
	"context"
	"fmt"

	"github.com/mkarpov/go-list-sync/internal/config"
	"github.com/mkarpov/go-list-sync/internal/logger"
)

// Storages groups the local storage repositories into a single value that is
// passed around the service layer.
type Storages struct {
	// Mutations is the durable mutation log.
	Mutations MutationRepository
	// Versions is the per-item server version ledger.
	Versions VersionRepository
	// Conflicts holds unresolved conflict records.
	Conflicts ConflictRepository
}

// NewStorages initialises the local storage layer using the supplied
// configuration and logger. It performs the following steps:
//  1. Opens an SQLite connection to the file path in cfg.DSN, creating the
//     database file if it does not yet exist.
//  2. Runs pending schema migrations via [DB.Migrate].
//  3. Constructs a [Storages] value wired to fresh repositories.
//
// Returns an error if the connection cannot be established or migration fails.
func NewStorages(cfg config.AgentStorage, logger *logger.Logger) (*Storages, error) {
	logger.Info().Msg("creating new storages...")

	db, err := NewConnectSQLite(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sqlite connection error: %w", err)
	}

	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return NewStoragesWithDB(db, logger), nil
}

// NewStoragesWithDB wires repositories over an already opened database.
// Used by tests with [NewMemoryDB].
func NewStoragesWithDB(db *DB, logger *logger.Logger) *Storages {
	return &Storages{
		Mutations: NewMutationRepository(db, logger),
		Versions:  NewVersionRepository(db, logger),
		Conflicts: NewConflictRepository(db, logger),
	}
}
