package store

// CountConversations returns the number of conversations with cached rows.
func (db *DB) CountConversations() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(DISTINCT conversation_id) FROM messages`).Scan(&n)
	return n, err
}

// CountMessages returns the total number of cached messages.
func (db *DB) CountMessages() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// EstimateSize returns a rough byte count of cached payload: content plus
// the serialized sender blobs. Not the on-disk file size.
func (db *DB) EstimateSize() (int64, error) {
	var n int64
	err := db.QueryRow(`
		SELECT COALESCE(SUM(LENGTH(content) + COALESCE(LENGTH(sender_json), 0)), 0)
		FROM messages`).Scan(&n)
	return n, err
}

// LastValidated returns the most recent validation timestamp across all
// conversations, 0 if nothing has been validated.
func (db *DB) LastValidated() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COALESCE(MAX(last_validated_at), 0) FROM chat_sync_state`).Scan(&n)
	return n, err
}
