package store

import (
	"database/sql"
	"fmt"
)

// GetSyncState returns the sync record for a conversation, or nil if none
// exists yet.
func (db *DB) GetSyncState(conversationID string) (*SyncState, error) {
	row := db.QueryRow(`
		SELECT conversation_id, local_min_seq, local_max_seq, last_known_backend_seq,
		       sync_state, last_validated_at, message_count
		FROM chat_sync_state WHERE conversation_id = ?`, conversationID)
	s, err := scanSyncState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ListSyncStates returns every conversation's sync record.
func (db *DB) ListSyncStates() ([]*SyncState, error) {
	rows, err := db.Query(`
		SELECT conversation_id, local_min_seq, local_max_seq, last_known_backend_seq,
		       sync_state, last_validated_at, message_count
		FROM chat_sync_state ORDER BY conversation_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var states []*SyncState
	for rows.Next() {
		s, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

func scanSyncState(row rowScanner) (*SyncState, error) {
	var (
		s         SyncState
		minSeq    sql.NullInt64
		maxSeq    sql.NullInt64
		remoteSeq sql.NullInt64
		verdict   string
	)
	err := row.Scan(&s.ConversationID, &minSeq, &maxSeq, &remoteSeq, &verdict, &s.LastValidatedAt, &s.MessageCount)
	if err != nil {
		return nil, err
	}
	s.Verdict = SyncVerdict(verdict)
	if minSeq.Valid {
		v := minSeq.Int64
		s.LocalMinSeq = &v
	}
	if maxSeq.Valid {
		v := maxSeq.Int64
		s.LocalMaxSeq = &v
	}
	if remoteSeq.Valid {
		v := remoteSeq.Int64
		s.LastKnownRemoteSeq = &v
	}
	return &s, nil
}

// SetRemoteSequence records the authoritative latest sequence reported by
// the backend and forces the verdict back to UNKNOWN until the next
// validation run.
func (db *DB) SetRemoteSequence(conversationID string, seq int64) error {
	_, err := db.Exec(`
		INSERT INTO chat_sync_state (conversation_id, last_known_backend_seq, sync_state, last_validated_at)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_known_backend_seq = excluded.last_known_backend_seq,
			sync_state = excluded.sync_state`,
		conversationID, seq, string(SyncUnknown))
	if err != nil {
		return fmt.Errorf("set remote sequence: %w", err)
	}
	return nil
}

// MarkAllSyncUnknown resets every conversation's verdict to UNKNOWN.
// Called on reconnect, when nothing cached can be trusted until revalidated.
func (db *DB) MarkAllSyncUnknown() error {
	_, err := db.Exec(`UPDATE chat_sync_state SET sync_state = ?`, string(SyncUnknown))
	return err
}

// SetSyncVerdict stores a validation outcome. Only the validation algorithm
// calls this; bound recomputation never touches the verdict.
func (db *DB) SetSyncVerdict(conversationID string, verdict SyncVerdict, validatedAt int64) error {
	_, err := db.Exec(`
		INSERT INTO chat_sync_state (conversation_id, sync_state, last_validated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			sync_state = excluded.sync_state,
			last_validated_at = excluded.last_validated_at`,
		conversationID, string(verdict), validatedAt)
	return err
}

// RecomputeSyncBounds rederives local_min_seq, local_max_seq and
// message_count from the cached rows that carry a sequence number. The
// verdict is left untouched: new bounds alone do not imply a fresh
// validation.
func (db *DB) RecomputeSyncBounds(conversationID string) error {
	var (
		minSeq sql.NullInt64
		maxSeq sql.NullInt64
		count  int64
	)
	err := db.QueryRow(`
		SELECT MIN(sequence_number), MAX(sequence_number), COUNT(sequence_number)
		FROM messages
		WHERE conversation_id = ? AND sequence_number IS NOT NULL`, conversationID).
		Scan(&minSeq, &maxSeq, &count)
	if err != nil {
		return fmt.Errorf("aggregate sync bounds: %w", err)
	}

	var minArg, maxArg any
	if minSeq.Valid {
		minArg = minSeq.Int64
	}
	if maxSeq.Valid {
		maxArg = maxSeq.Int64
	}
	_, err = db.Exec(`
		INSERT INTO chat_sync_state (conversation_id, local_min_seq, local_max_seq, sync_state, message_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			local_min_seq = excluded.local_min_seq,
			local_max_seq = excluded.local_max_seq,
			message_count = excluded.message_count`,
		conversationID, minArg, maxArg, string(SyncUnknown), count)
	if err != nil {
		return fmt.Errorf("upsert sync bounds: %w", err)
	}
	return nil
}

// SequencedNumbers returns the sequence numbers cached for a conversation
// in ascending order, skipping pending rows without one.
func (db *DB) SequencedNumbers(conversationID string) ([]int64, error) {
	rows, err := db.Query(`
		SELECT sequence_number FROM messages
		WHERE conversation_id = ? AND sequence_number IS NOT NULL
		ORDER BY sequence_number ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var seqs []int64
	for rows.Next() {
		var s int64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		seqs = append(seqs, s)
	}
	return seqs, rows.Err()
}

// DeleteOrphanSyncStates removes sync records for conversations that no
// longer have any cached messages. Used by the retention sweeper.
func (db *DB) DeleteOrphanSyncStates() (int64, error) {
	res, err := db.Exec(`
		DELETE FROM chat_sync_state
		WHERE conversation_id NOT IN (SELECT DISTINCT conversation_id FROM messages)`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
