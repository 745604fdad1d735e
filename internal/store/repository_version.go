package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

// versionRepository is the SQLite-backed per-item version ledger. The upsert
// carries a monotonic guard in SQL, so a concurrent stale write can never
// lower a stored version.
type versionRepository struct {
	*DB
	logger *logger.Logger
}

// NewVersionRepository constructs a [VersionRepository] backed by the
// provided database connection and logger.
func NewVersionRepository(db *DB, logger *logger.Logger) VersionRepository {
	return &versionRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *versionRepository) Get(ctx context.Context, itemID string) (models.VersionEntry, error) {
	var entry models.VersionEntry

	err := r.DB.QueryRowContext(ctx, getVersionEntry, itemID).
		Scan(&entry.ItemID, &entry.Version, &entry.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// unknown item: version 0, never synced
		return models.VersionEntry{ItemID: itemID}, nil
	}
	if err != nil {
		return models.VersionEntry{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return entry, nil
}

func (r *versionRepository) Set(ctx context.Context, itemID string, version int64, syncedAt time.Time) error {
	log := logger.FromContext(ctx)

	current, err := r.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if version < current.Version {
		log.Warn().
			Str("item_id", itemID).
			Int64("stored", current.Version).
			Int64("offered", version).
			Msg("refusing to lower ledger version")
		return ErrStaleVersion
	}

	if _, err = r.DB.ExecContext(ctx, upsertVersionEntry, itemID, version, syncedAt); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}
