// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mkarpov/go-list-sync/internal/logger"
	"github.com/mkarpov/go-list-sync/models"
)

// mutationRepository is the SQLite-backed implementation of
// [MutationRepository]. All multi-statement operations run inside a single
// transaction with rollback deferred on every path, so a crash or error
// mid-operation never leaves a partially applied enqueue or dequeue.
type mutationRepository struct {
	*DB
	logger *logger.Logger
}

// NewMutationRepository constructs a [MutationRepository] backed by the
// provided database connection and logger.
func NewMutationRepository(db *DB, logger *logger.Logger) MutationRepository {
	return &mutationRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *mutationRepository) Enqueue(ctx context.Context, m models.Mutation) (*models.Mutation, error) {
	log := logger.FromContext(ctx)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	pending, err := scanMutations(tx.QueryContext(ctx, getPendingByItem, m.ItemID))
	if err != nil {
		return nil, err
	}

	if m.Forced {
		// Resolution output. It never coalesces with user drafts and must
		// reach the server before any edit queued behind the conflict, so
		// it takes the slot ahead of the pending head.
		if len(pending) > 0 {
			m.Seq = pending[0].Seq - 1
		} else if err = tx.QueryRowContext(ctx, nextSeq).Scan(&m.Seq); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		m.Status = models.StatusPending
		if err = r.insertTx(ctx, tx, m); err != nil {
			return nil, err
		}
		if commitErr := tx.Commit(); commitErr != nil {
			log.Err(commitErr).
				Str("func", "mutationRepository.Enqueue").
				Str("item_id", m.ItemID).
				Msg("failed to commit enqueue transaction")
			return nil, fmt.Errorf("%w: %w", ErrCommitingTransaction, commitErr)
		}
		return &m, nil
	}

	outcome, err := coalesce(pending, m)
	if err != nil {
		return nil, err
	}

	var result *models.Mutation
	switch outcome.action {
	case actCancelAll:
		// Create+Delete on an uncommitted item: neither is ever transmitted.
		for _, id := range outcome.dropIDs {
			if _, err = tx.ExecContext(ctx, deleteMutation, id); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
			}
		}
		log.Debug().
			Str("item_id", m.ItemID).
			Msg("create+delete cancelled out, nothing queued")

	case actMerge:
		merged := outcome.merged
		if err = r.updateMergedTx(ctx, tx, merged); err != nil {
			return nil, err
		}
		result = merged

	case actInsert:
		for _, id := range outcome.dropIDs {
			if _, err = tx.ExecContext(ctx, deleteMutation, id); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
			}
		}
		if err = tx.QueryRowContext(ctx, nextSeq).Scan(&m.Seq); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		m.Status = models.StatusPending
		if err = r.insertTx(ctx, tx, m); err != nil {
			return nil, err
		}
		result = &m
	}

	if commitErr := tx.Commit(); commitErr != nil {
		log.Err(commitErr).
			Str("func", "mutationRepository.Enqueue").
			Str("item_id", m.ItemID).
			Msg("failed to commit enqueue transaction")
		return nil, fmt.Errorf("%w: %w", ErrCommitingTransaction, commitErr)
	}

	return result, nil
}

func (r *mutationRepository) DequeueEligible(ctx context.Context, listID string, now time.Time, limit int) ([]models.Mutation, error) {
	log := logger.FromContext(ctx)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	eligible, err := scanMutations(tx.QueryContext(ctx, getEligibleMutations, listID, now, limit))
	if err != nil {
		return nil, err
	}

	for i := range eligible {
		eligible[i].Status = models.StatusSyncing
		if err = execStatusUpdateTx(ctx, tx, eligible[i].ID, map[string]any{
			"status": string(models.StatusSyncing),
		}); err != nil {
			return nil, err
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		log.Err(commitErr).
			Str("func", "mutationRepository.DequeueEligible").
			Str("list_id", listID).
			Msg("failed to commit dequeue transaction")
		return nil, fmt.Errorf("%w: %w", ErrCommitingTransaction, commitErr)
	}

	return eligible, nil
}

func (r *mutationRepository) Get(ctx context.Context, id string) (models.Mutation, error) {
	m, err := scanMutation(r.DB.QueryRowContext(ctx, getMutationByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Mutation{}, ErrMutationNotFound
	}
	return m, err
}

func (r *mutationRepository) Ack(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, deleteMutation, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMutationNotFound
	}
	return nil
}

func (r *mutationRepository) Nack(ctx context.Context, id string, nextAttemptAt time.Time, cause string) error {
	return r.statusUpdate(ctx, id, map[string]any{
		"status":          string(models.StatusPending),
		"retry_count":     sq.Expr("retry_count + 1"),
		"next_attempt_at": nextAttemptAt,
		"last_error":      cause,
	})
}

func (r *mutationRepository) Fail(ctx context.Context, id string, cause string) error {
	return r.statusUpdate(ctx, id, map[string]any{
		"status":     string(models.StatusFailed),
		"last_error": cause,
	})
}

func (r *mutationRepository) MarkConflict(ctx context.Context, id string) error {
	return r.statusUpdate(ctx, id, map[string]any{
		"status": string(models.StatusConflict),
	})
}

func (r *mutationRepository) Retry(ctx context.Context, id string) error {
	return r.statusUpdate(ctx, id, map[string]any{
		"status":          string(models.StatusPending),
		"retry_count":     0,
		"next_attempt_at": nil,
		"last_error":      "",
	})
}

func (r *mutationRepository) Discard(ctx context.Context, id string) error {
	return r.Ack(ctx, id)
}

func (r *mutationRepository) RequeueSyncing(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, requeueSyncing)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *mutationRepository) ClearBackoff(ctx context.Context, listID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, clearBackoff, listID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *mutationRepository) CountByStatus(ctx context.Context, listID string) (models.QueueStatus, error) {
	status := models.QueueStatus{ListID: listID}

	rows, err := r.DB.QueryContext(ctx, countByStatus, listID)
	if err != nil {
		return status, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s string
		var n int
		if err = rows.Scan(&s, &n); err != nil {
			return status, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		switch models.MutationStatus(s) {
		case models.StatusPending:
			status.Pending = n
		case models.StatusSyncing:
			status.Syncing = n
		case models.StatusFailed:
			status.Failed = n
		}
	}

	return status, rows.Err()
}

func (r *mutationRepository) PendingByItem(ctx context.Context, itemID string) ([]models.Mutation, error) {
	return scanMutations(r.DB.QueryContext(ctx, getQueuedByItem, itemID))
}

// ── coalescing ───────────────────────────────────────────────────────────────

type coalesceAction int

const (
	actInsert coalesceAction = iota
	actMerge
	actCancelAll
)

type coalesceOutcome struct {
	action  coalesceAction
	merged  *models.Mutation
	dropIDs []string
}

// coalesce decides how a new mutation combines with the item's pending one.
// Repeated coalescing keeps the invariant that an item has at most one
// Pending mutation, so only the head of pending matters; extra rows (possible
// after a manual Retry) are superseded where safe.
func coalesce(pending []models.Mutation, next models.Mutation) (coalesceOutcome, error) {
	if len(pending) == 0 {
		return coalesceOutcome{action: actInsert}, nil
	}

	head := pending[0]
	allIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		allIDs = append(allIDs, p.ID)
	}

	switch head.Type {
	case models.MutationCreate:
		switch next.Type {
		case models.MutationUpdate:
			merged := head
			mergeFields(&merged, next)
			return coalesceOutcome{action: actMerge, merged: &merged}, nil
		case models.MutationDelete:
			return coalesceOutcome{action: actCancelAll, dropIDs: allIDs}, nil
		default: // second Create for the same id
			return coalesceOutcome{}, fmt.Errorf("%w: item %s already has a pending create", ErrInvalidMutation, next.ItemID)
		}

	case models.MutationUpdate:
		switch next.Type {
		case models.MutationUpdate:
			merged := head
			mergeFields(&merged, next)
			return coalesceOutcome{action: actMerge, merged: &merged}, nil
		case models.MutationDelete:
			// the delete makes queued updates unobservable
			return coalesceOutcome{action: actInsert, dropIDs: allIDs}, nil
		default:
			return coalesceOutcome{}, fmt.Errorf("%w: create on item %s with pending update", ErrInvalidMutation, next.ItemID)
		}

	default: // pending delete
		if next.Type == models.MutationCreate {
			// recreate after a queued delete keeps FIFO order
			return coalesceOutcome{action: actInsert}, nil
		}
		return coalesceOutcome{}, fmt.Errorf("%w: item %s has a pending delete", ErrInvalidMutation, next.ItemID)
	}
}

// mergeFields folds next's changed fields into dst, keeping dst's identity
// and queue position.
func mergeFields(dst *models.Mutation, next models.Mutation) {
	if dst.Payload == nil && next.Payload != nil {
		cp := *next.Payload
		dst.Payload = &cp
	}
	for _, f := range next.ChangedFields {
		if dst.Payload != nil && next.Payload != nil {
			dst.Payload.SetField(f, next.Payload.Field(f))
		}
		if !dst.Changed(f) {
			dst.ChangedFields = append(dst.ChangedFields, f)
		}
	}
	dst.Timestamp = next.Timestamp
}

// ── row helpers ──────────────────────────────────────────────────────────────

func (r *mutationRepository) insertTx(ctx context.Context, tx *sql.Tx, m models.Mutation) error {
	fieldsJSON, err := json.Marshal(m.ChangedFields)
	if err != nil {
		return fmt.Errorf("encode changed fields: %w", err)
	}

	var payload any
	if m.Payload != nil {
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = string(raw)
	}

	var nextAttempt any
	if !m.NextAttemptAt.IsZero() {
		nextAttempt = m.NextAttemptAt
	}

	_, err = tx.ExecContext(ctx, insertMutation,
		m.ID, m.ItemID, m.ListID, string(m.Type), string(fieldsJSON), payload,
		m.BaseVersion, m.Timestamp, m.ClientID, string(m.Status),
		m.RetryCount, m.Seq, m.Forced, nextAttempt, m.LastError,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func (r *mutationRepository) updateMergedTx(ctx context.Context, tx *sql.Tx, m *models.Mutation) error {
	fieldsJSON, err := json.Marshal(m.ChangedFields)
	if err != nil {
		return fmt.Errorf("encode changed fields: %w", err)
	}

	var payload any
	if m.Payload != nil {
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = string(raw)
	}

	return execStatusUpdateTx(ctx, tx, m.ID, map[string]any{
		"changed_fields": string(fieldsJSON),
		"payload":        payload,
		"ts":             m.Timestamp,
	})
}

func (r *mutationRepository) statusUpdate(ctx context.Context, id string, set map[string]any) error {
	query, args, err := sq.Update("mutations").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMutationNotFound
	}
	return nil
}

func execStatusUpdateTx(ctx context.Context, tx *sql.Tx, id string, set map[string]any) error {
	query, args, err := sq.Update("mutations").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (models.Mutation, error) {
	var m models.Mutation
	var mType, status, fieldsJSON string
	var payload sql.NullString
	var nextAttempt sql.NullTime
	var forced bool

	err := row.Scan(
		&m.ID, &m.ItemID, &m.ListID, &mType, &fieldsJSON, &payload,
		&m.BaseVersion, &m.Timestamp, &m.ClientID, &status,
		&m.RetryCount, &m.Seq, &forced, &nextAttempt, &m.LastError,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Mutation{}, err
		}
		return models.Mutation{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	m.Type = models.MutationType(mType)
	m.Status = models.MutationStatus(status)
	m.Forced = forced
	if nextAttempt.Valid {
		m.NextAttemptAt = nextAttempt.Time
	}
	if err = json.Unmarshal([]byte(fieldsJSON), &m.ChangedFields); err != nil {
		return models.Mutation{}, fmt.Errorf("decode changed fields: %w", err)
	}
	if payload.Valid {
		var item models.Item
		if err = json.Unmarshal([]byte(payload.String), &item); err != nil {
			return models.Mutation{}, fmt.Errorf("decode payload: %w", err)
		}
		m.Payload = &item
	}

	return m, nil
}

func scanMutations(rows *sql.Rows, err error) ([]models.Mutation, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.Mutation
	for rows.Next() {
		m, scanErr := scanMutation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
