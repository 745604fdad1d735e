package service

import (
	"context"
	"errors"
	"time"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/internal/store"
	"github.com/mkarpov/go-list-sync/models"
)

// versionStore fronts the version ledger. Versions are written only with
// server-confirmed values; the repository rejects writes that would move a
// version backwards, so replayed acknowledgements cannot corrupt the ledger.
type versionStore struct {
	versions store.VersionRepository
	logger   *logger.Logger
	now      func() time.Time
}

func NewVersionStore(versions store.VersionRepository, log *logger.Logger) *versionStore {
	return &versionStore{versions: versions, logger: log, now: time.Now}
}

func (s *versionStore) Get(ctx context.Context, itemID string) (models.VersionEntry, error) {
	return s.versions.Get(ctx, itemID)
}

func (s *versionStore) Set(ctx context.Context, itemID string, version int64) error {
	err := s.versions.Set(ctx, itemID, version, s.now())
	if errors.Is(err, store.ErrStaleVersion) {
		// A replayed acknowledgement carrying an older version; the ledger
		// already holds something newer.
		s.logger.Debug().Str("item_id", itemID).Int64("version", version).Msg("ignoring stale version write")
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Debug().Str("item_id", itemID).Int64("version", version).Msg("version ledger updated")
	return nil
}
