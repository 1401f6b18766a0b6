package store

import (
	"fmt"
	"time"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// GetMessages returns all cached messages for a conversation ordered by
// sequence number ascending. Messages without a sequence number (pending
// local sends) sort after all sequenced ones, in insertion order.
func (db *DB) GetMessages(conversationID string) ([]*CachedMessage, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY (sequence_number IS NULL), sequence_number ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []*CachedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ReplaceAll swaps the cached message set for a conversation with the given
// batch. An empty batch is a no-op: wiping a conversation on an empty fetch
// result would be a destructive mistake, so the existing cache is kept.
func (db *DB) ReplaceAll(conversationID string, msgs []*CachedMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	now := nowMs()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear previous messages: %w", err)
	}

	var latest *int64
	for _, m := range msgs {
		args, err := encodeMessage(m, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO messages (`+messageColumns+`) VALUES (`+messagePlaceholders+`)`, args...); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
		if m.SequenceNumber != nil && (latest == nil || *m.SequenceNumber > *latest) {
			v := *m.SequenceNumber
			latest = &v
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO chat_meta (conversation_id, latest_sequence, last_updated, message_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			latest_sequence = excluded.latest_sequence,
			last_updated = excluded.last_updated,
			message_count = excluded.message_count`,
		conversationID, nullInt(latest), now, len(msgs)); err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}

	return db.RecomputeSyncBounds(conversationID)
}

// Append inserts or replaces a single message by id, then rolls the
// conversation aggregates forward.
func (db *DB) Append(m *CachedMessage) error {
	args, err := encodeMessage(m, nowMs())
	if err != nil {
		return err
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO messages (`+messageColumns+`) VALUES (`+messagePlaceholders+`)`, args...); err != nil {
		return fmt.Errorf("append message %s: %w", m.ID, err)
	}
	if err := db.refreshMeta(m.ConversationID); err != nil {
		return err
	}
	return db.RecomputeSyncBounds(m.ConversationID)
}

// ReconcileOptimistic deletes the optimistic row identified by tempID and
// appends the server-confirmed counterpart. Exactly one of the two rows
// survives even when the ids differ.
func (db *DB) ReconcileOptimistic(tempID string, confirmed *CachedMessage) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE id = ?`, tempID); err != nil {
		return fmt.Errorf("delete optimistic %s: %w", tempID, err)
	}
	return db.Append(confirmed)
}

// ClearConversation removes the conversation's messages, meta row and
// sync-state row.
func (db *DB) ClearConversation(conversationID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM chat_meta WHERE conversation_id = ?`,
		`DELETE FROM chat_sync_state WHERE conversation_id = ?`,
	} {
		if _, err := tx.Exec(q, conversationID); err != nil {
			return fmt.Errorf("clear conversation %s: %w", conversationID, err)
		}
	}
	return tx.Commit()
}

// ClearAll wipes every cached row across all three tables.
func (db *DB) ClearAll() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin clear all: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages`,
		`DELETE FROM chat_meta`,
		`DELETE FROM chat_sync_state`,
	} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("clear all: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteByDateRange removes messages whose created_at falls inside the
// closed [from, to] window, across all conversations. Returns the number of
// rows removed. Aggregates for the touched conversations are recomputed.
func (db *DB) DeleteByDateRange(fromTs, toTs int64) (int64, error) {
	rows, err := db.Query(`
		SELECT DISTINCT conversation_id FROM messages
		WHERE created_at >= ? AND created_at <= ?`, fromTs, toTs)
	if err != nil {
		return 0, err
	}
	var touched []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, err
		}
		touched = append(touched, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	res, err := db.Exec(`DELETE FROM messages WHERE created_at >= ? AND created_at <= ?`, fromTs, toTs)
	if err != nil {
		return 0, fmt.Errorf("delete by date range: %w", err)
	}
	removed, _ := res.RowsAffected()

	for _, id := range touched {
		if err := db.refreshMeta(id); err != nil {
			return removed, err
		}
		if err := db.RecomputeSyncBounds(id); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// DeleteCachedBefore removes messages whose local insertion time is older
// than the cutoff. Used by the retention sweeper.
func (db *DB) DeleteCachedBefore(cutoff int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM messages WHERE cached_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PendingMessages returns locally originated messages still awaiting a send
// confirmation, oldest first.
func (db *DB) PendingMessages() ([]*CachedMessage, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = ?
		ORDER BY created_at ASC, rowid ASC`, StatusPending)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []*CachedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessageFailed flips a locally originated message to failed status.
func (db *DB) MarkMessageFailed(id string) error {
	_, err := db.Exec(`UPDATE messages SET status = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, nowMs(), id)
	return err
}
