package store

import (
	"database/sql"
	"fmt"
)

// GetMeta returns the per-conversation cache aggregate, or nil if the
// conversation has never been cached.
func (db *DB) GetMeta(conversationID string) (*ConversationMeta, error) {
	var (
		m      ConversationMeta
		latest sql.NullInt64
	)
	err := db.QueryRow(`
		SELECT conversation_id, latest_sequence, last_updated, message_count
		FROM chat_meta WHERE conversation_id = ?`, conversationID).
		Scan(&m.ConversationID, &latest, &m.LastUpdated, &m.MessageCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if latest.Valid {
		v := latest.Int64
		m.LatestSequence = &v
	}
	return &m, nil
}

// ListMeta returns the aggregate row for every cached conversation.
func (db *DB) ListMeta() ([]ConversationMeta, error) {
	rows, err := db.Query(`
		SELECT conversation_id, latest_sequence, last_updated, message_count
		FROM chat_meta ORDER BY conversation_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var metas []ConversationMeta
	for rows.Next() {
		var (
			m      ConversationMeta
			latest sql.NullInt64
		)
		if err := rows.Scan(&m.ConversationID, &latest, &m.LastUpdated, &m.MessageCount); err != nil {
			return nil, err
		}
		if latest.Valid {
			v := latest.Int64
			m.LatestSequence = &v
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// refreshMeta recomputes the aggregate from the message rows. The latest
// sequence only ever moves forward here; ReplaceAll overwrites it with the
// batch maximum instead, since a fetched batch is authoritative.
func (db *DB) refreshMeta(conversationID string) error {
	var (
		latest sql.NullInt64
		count  int64
	)
	err := db.QueryRow(`
		SELECT MAX(sequence_number), COUNT(*) FROM messages WHERE conversation_id = ?`,
		conversationID).Scan(&latest, &count)
	if err != nil {
		return fmt.Errorf("aggregate meta: %w", err)
	}

	var latestArg any
	if latest.Valid {
		latestArg = latest.Int64
	}
	_, err = db.Exec(`
		INSERT INTO chat_meta (conversation_id, latest_sequence, last_updated, message_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			latest_sequence = CASE
				WHEN excluded.latest_sequence IS NULL THEN chat_meta.latest_sequence
				ELSE MAX(COALESCE(chat_meta.latest_sequence, 0), excluded.latest_sequence)
			END,
			last_updated = excluded.last_updated,
			message_count = excluded.message_count`,
		conversationID, latestArg, nowMs(), count)
	if err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}
	return nil
}

// DeleteMetaBefore removes aggregate rows whose last update is older than
// the cutoff. Used by the retention sweeper.
func (db *DB) DeleteMetaBefore(cutoff int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM chat_meta WHERE last_updated < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
