package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// messageColumns is the canonical column list shared by every query that
// reads or writes full message rows. Order must match encodeMessage and
// scanMessage.
const messageColumns = `id, conversation_id, sender_id, sender_json, content, sequence_number,
	is_screenshot, screenshot_file_name, is_read_by_current_user, created_at, updated_at,
	status, temp_id, client_temp_id, is_system_message, file_name, file_size, file_mime_type, cached_at`

const messagePlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

// encodeMessage flattens a message into SQL arguments. Booleans become 0/1
// via the driver; absent optional fields become NULL, never a zero value
// that could be mistaken for real data.
func encodeMessage(m *CachedMessage, cachedAt int64) ([]any, error) {
	var senderJSON any
	if m.SenderInfo != nil {
		raw, err := json.Marshal(m.SenderInfo)
		if err != nil {
			return nil, fmt.Errorf("encode sender info: %w", err)
		}
		senderJSON = string(raw)
	}

	return []any{
		m.ID,
		m.ConversationID,
		nullText(m.SenderID),
		senderJSON,
		m.Content,
		nullInt(m.SequenceNumber),
		m.IsScreenshot,
		nullText(m.ScreenshotFileName),
		m.IsReadByCurrentUser,
		m.CreatedAt,
		m.UpdatedAt,
		nullText(m.Status),
		nullText(m.TempID),
		nullText(m.ClientTempID),
		m.IsSystemMessage,
		nullText(m.FileName),
		nullInt(m.FileSize),
		nullText(m.FileMimeType),
		cachedAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMessage reads one row back into a message, preserving the null vs.
// present distinction for sequence number, sender info and file size.
func scanMessage(row rowScanner) (*CachedMessage, error) {
	var (
		m          CachedMessage
		senderID   sql.NullString
		senderJSON sql.NullString
		seq        sql.NullInt64
		shotName   sql.NullString
		status     sql.NullString
		tempID     sql.NullString
		clientTmp  sql.NullString
		fileName   sql.NullString
		fileSize   sql.NullInt64
		fileMime   sql.NullString
	)

	err := row.Scan(
		&m.ID, &m.ConversationID, &senderID, &senderJSON, &m.Content, &seq,
		&m.IsScreenshot, &shotName, &m.IsReadByCurrentUser, &m.CreatedAt, &m.UpdatedAt,
		&status, &tempID, &clientTmp, &m.IsSystemMessage, &fileName, &fileSize, &fileMime, &m.CachedAt,
	)
	if err != nil {
		return nil, err
	}

	m.SenderID = senderID.String
	m.ScreenshotFileName = shotName.String
	m.Status = status.String
	m.TempID = tempID.String
	m.ClientTempID = clientTmp.String
	m.FileName = fileName.String
	m.FileMimeType = fileMime.String

	if seq.Valid {
		v := seq.Int64
		m.SequenceNumber = &v
	}
	if fileSize.Valid {
		v := fileSize.Int64
		m.FileSize = &v
	}
	if senderJSON.Valid {
		var info SenderInfo
		if err := json.Unmarshal([]byte(senderJSON.String), &info); err != nil {
			return nil, fmt.Errorf("decode sender info: %w", err)
		}
		m.SenderInfo = &info
	}

	return &m, nil
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
