package store

// Message statuses for locally originated rows. Server-confirmed rows carry
// no status at all (empty string maps to NULL in the row form).
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// SyncVerdict is the tri-state sync conclusion for one conversation.
type SyncVerdict string

const (
	SyncUnknown   SyncVerdict = "UNKNOWN"
	SyncSynced    SyncVerdict = "SYNCED"
	SyncOutOfSync SyncVerdict = "OUT_OF_SYNC"
)

// SenderInfo is the structured sender payload embedded in a cached message.
// It is stored serialized as JSON in the sender_json column.
type SenderInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// CachedMessage is one chat message belonging to exactly one conversation.
//
// SequenceNumber is nil until the server assigns one; it must never be
// collapsed to 0, since 0 would be indistinguishable from a real (if
// impossible) sequence. Status is non-empty only for locally originated
// messages. CachedAt is the local insertion time; the store sets it on
// write and only the retention sweeper looks at it.
type CachedMessage struct {
	ID                  string
	ConversationID      string
	SenderID            string
	SenderInfo          *SenderInfo
	Content             string
	SequenceNumber      *int64
	IsScreenshot        bool
	ScreenshotFileName  string
	IsReadByCurrentUser bool
	CreatedAt           int64
	UpdatedAt           int64
	Status              string
	TempID              string
	ClientTempID        string
	IsSystemMessage     bool
	FileName            string
	FileSize            *int64
	FileMimeType        string
	CachedAt            int64
}

// ConversationMeta is the per-conversation cache aggregate.
// LatestSequence is nil when no cached message has a sequence number.
type ConversationMeta struct {
	ConversationID string
	LatestSequence *int64
	LastUpdated    int64
	MessageCount   int64
}

// SyncState is the per-conversation synchronization record. The local
// bounds are derived from cached messages with non-nil sequence numbers;
// LastKnownRemoteSeq is supplied by the remote collaborator. Verdict is a
// pure function of the other fields, recomputed by sync.Tracker.Validate.
type SyncState struct {
	ConversationID     string
	LocalMinSeq        *int64
	LocalMaxSeq        *int64
	LastKnownRemoteSeq *int64
	Verdict            SyncVerdict
	LastValidatedAt    int64
	MessageCount       int64
}
