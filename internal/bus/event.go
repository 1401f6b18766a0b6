package bus

import "time"

// Event kinds published inside the daemon. Subscribers filter by namespace
// prefix ("cache.", "net.", "outbox.", "prime.").
const (
	KindMessagesReplaced  = "cache.messages_replaced"
	KindMessageAdded      = "cache.message_added"
	KindMessageReconciled = "cache.message_reconciled"
	KindCacheCleared      = "cache.cleared"
	KindOutOfSync         = "cache.out_of_sync"
	KindNetStatusChanged  = "net.status_changed"
	KindSendAck           = "outbox.send_ack"
	KindSendFailed        = "outbox.send_failed"
	KindPrimeProgress     = "prime.progress"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
