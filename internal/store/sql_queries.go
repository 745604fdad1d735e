package store

const (
	mutationColumns = `id, item_id, list_id, type, changed_fields, payload, base_version, ts,
		client_id, status, retry_count, seq, forced, next_attempt_at, last_error`

	insertMutation = `INSERT INTO mutations (id, item_id, list_id, type, changed_fields, payload,
		base_version, ts, client_id, status, retry_count, seq, forced, next_attempt_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	getMutationByID = `SELECT id, item_id, list_id, type, changed_fields, payload, base_version, ts,
		client_id, status, retry_count, seq, forced, next_attempt_at, last_error
		FROM mutations WHERE id = ?;`

	getPendingByItem = `SELECT id, item_id, list_id, type, changed_fields, payload, base_version, ts,
		client_id, status, retry_count, seq, forced, next_attempt_at, last_error
		FROM mutations WHERE item_id = ? AND status = 'pending' ORDER BY seq;`

	getQueuedByItem = `SELECT id, item_id, list_id, type, changed_fields, payload, base_version, ts,
		client_id, status, retry_count, seq, forced, next_attempt_at, last_error
		FROM mutations WHERE item_id = ? AND status IN ('pending', 'syncing', 'conflict', 'failed')
		ORDER BY seq;`

	nextSeq = `SELECT COALESCE(MAX(seq), 0) + 1 FROM mutations;`

	// Oldest pending mutation per item, skipping items with an in-flight
	// sibling, an active conflict, or an unexpired backoff deferral.
	// Cross-item ordering follows the global sequence.
	getEligibleMutations = `SELECT id, item_id, list_id, type, changed_fields, payload, base_version, ts,
		client_id, status, retry_count, seq, forced, next_attempt_at, last_error
		FROM mutations m
		WHERE m.list_id = ?
		  AND m.status = 'pending'
		  AND (m.next_attempt_at IS NULL OR m.next_attempt_at <= ?)
		  AND NOT EXISTS (SELECT 1 FROM mutations s
				WHERE s.item_id = m.item_id AND s.status = 'syncing')
		  AND NOT EXISTS (SELECT 1 FROM conflicts c
				WHERE c.item_id = m.item_id)
		  AND m.seq = (SELECT MIN(p.seq) FROM mutations p
				WHERE p.item_id = m.item_id AND p.status = 'pending')
		ORDER BY m.seq
		LIMIT ?;`

	deleteMutation = `DELETE FROM mutations WHERE id = ?;`

	requeueSyncing = `UPDATE mutations SET status = 'pending' WHERE status = 'syncing';`

	clearBackoff = `UPDATE mutations SET next_attempt_at = NULL
		WHERE list_id = ? AND status = 'pending' AND next_attempt_at IS NOT NULL;`

	countByStatus = `SELECT status, COUNT(*) FROM mutations WHERE list_id = ? GROUP BY status;`

	insertConflict = `INSERT INTO conflicts (id, item_id, list_id, mutation_id, kind, direction,
		server_snapshot, server_version, server_deleted, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	conflictColumns = `id, item_id, list_id, mutation_id, kind, direction, server_snapshot,
		server_version, server_deleted, detected_at`

	deleteConflict = `DELETE FROM conflicts WHERE id = ?;`

	getBlockedItems = `SELECT item_id FROM conflicts WHERE list_id = ?;`

	getVersionEntry = `SELECT item_id, version, last_synced_at FROM item_versions WHERE item_id = ?;`

	// The WHERE guard keeps the ledger monotonic under concurrent writers.
	upsertVersionEntry = `INSERT INTO item_versions (item_id, version, last_synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET
			version = excluded.version,
			last_synced_at = excluded.last_synced_at
		WHERE excluded.version >= item_versions.version;`
)
