package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

// conflictRepository persists unresolved conflict records. A UNIQUE
// constraint on item_id enforces the one-active-conflict-per-item invariant
// at the schema level.
type conflictRepository struct {
	*DB
	logger *logger.Logger
}

// NewConflictRepository constructs a [ConflictRepository] backed by the
// provided database connection and logger.
func NewConflictRepository(db *DB, logger *logger.Logger) ConflictRepository {
	return &conflictRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *conflictRepository) Create(ctx context.Context, rec models.ConflictRecord) error {
	log := logger.FromContext(ctx)

	var snapshot any
	if rec.ServerSnapshot != nil {
		raw, err := json.Marshal(rec.ServerSnapshot)
		if err != nil {
			return fmt.Errorf("encode server snapshot: %w", err)
		}
		snapshot = string(raw)
	}

	_, err := r.DB.ExecContext(ctx, insertConflict,
		rec.ID, rec.ItemID, rec.ListID, rec.MutationID, string(rec.Kind),
		string(rec.Direction), snapshot, rec.ServerVersion, rec.ServerDeleted,
		rec.DetectedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			log.Warn().
				Str("item_id", rec.ItemID).
				Msg("conflict already recorded for item")
			return ErrConflictExists
		}
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func (r *conflictRepository) Get(ctx context.Context, id string) (models.ConflictRecord, error) {
	query, args, err := sq.Select(conflictColumns).From("conflicts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.ConflictRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getOne(ctx, query, args...)
}

func (r *conflictRepository) GetByItem(ctx context.Context, itemID string) (models.ConflictRecord, error) {
	query, args, err := sq.Select(conflictColumns).From("conflicts").Where(sq.Eq{"item_id": itemID}).ToSql()
	if err != nil {
		return models.ConflictRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.getOne(ctx, query, args...)
}

func (r *conflictRepository) getOne(ctx context.Context, query string, args ...any) (models.ConflictRecord, error) {
	rec, err := scanConflict(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConflictRecord{}, ErrConflictNotFound
	}
	return rec, err
}

func (r *conflictRepository) List(ctx context.Context, listID string) ([]models.ConflictRecord, error) {
	query, args, err := sq.Select(conflictColumns).From("conflicts").
		Where(sq.Eq{"list_id": listID}).
		OrderBy("detected_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.ConflictRecord
	for rows.Next() {
		rec, scanErr := scanConflict(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *conflictRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, deleteConflict, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflictNotFound
	}
	return nil
}

func (r *conflictRepository) BlockedItems(ctx context.Context, listID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, getBlockedItems, listID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanConflict(row rowScanner) (models.ConflictRecord, error) {
	var rec models.ConflictRecord
	var kind, direction string
	var snapshot sql.NullString

	err := row.Scan(
		&rec.ID, &rec.ItemID, &rec.ListID, &rec.MutationID, &kind, &direction,
		&snapshot, &rec.ServerVersion, &rec.ServerDeleted, &rec.DetectedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ConflictRecord{}, err
		}
		return models.ConflictRecord{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	rec.Kind = models.ConflictKind(kind)
	rec.Direction = models.DeleteDirection(direction)
	if snapshot.Valid {
		var item models.Item
		if err = json.Unmarshal([]byte(snapshot.String), &item); err != nil {
			return models.ConflictRecord{}, fmt.Errorf("decode server snapshot: %w", err)
		}
		rec.ServerSnapshot = &item
	}

	return rec, nil
}
