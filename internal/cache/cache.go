// Package cache is the single entry point the rest of the client uses to
// read and write locally cached conversation messages. The cache is a
// performance layer over the remote backend, never the system of record:
// reads degrade to empty results and failed writes leave prior state
// intact, so no failure here should take down a caller.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/helpwire/deskd/internal/bus"
	"github.com/helpwire/deskd/internal/store"
	intsync "github.com/helpwire/deskd/internal/sync"
	"go.uber.org/zap"
)

// Cache composes the message store, sync tracker and event bus behind the
// facade the UI-facing layers call.
type Cache struct {
	db      *store.DB
	tracker *intsync.Tracker
	bus     *bus.Bus
	logger  *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates the cache facade over an already opened and migrated store.
func New(db *store.DB, tracker *intsync.Tracker, b *bus.Bus, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{db: db, tracker: tracker, bus: b, logger: logger}
}

// Messages returns the cached messages for a conversation, sequence order
// ascending with pending rows last. Never fails: a read error degrades to
// an empty result, which upstream treats as an ordinary cache miss.
func (c *Cache) Messages(conversationID string) []*store.CachedMessage {
	msgs, err := c.db.GetMessages(conversationID)
	if err != nil {
		c.logger.Error("cache read degraded to empty",
			zap.String("conversation_id", conversationID), zap.Error(err))
		c.misses.Add(1)
		return nil
	}
	if len(msgs) == 0 {
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}
	return msgs
}

// CacheMessages bulk-replaces a conversation's cached messages with a batch
// fetched from the backend. An empty batch keeps the existing cache.
func (c *Cache) CacheMessages(conversationID string, msgs []*store.CachedMessage) error {
	if err := c.db.ReplaceAll(conversationID, msgs); err != nil {
		c.logger.Error("bulk cache write failed",
			zap.String("conversation_id", conversationID), zap.Int("count", len(msgs)), zap.Error(err))
		return err
	}
	if len(msgs) > 0 {
		c.publish(bus.KindMessagesReplaced, map[string]any{
			"conversation_id": conversationID,
			"count":           len(msgs),
		})
	}
	return nil
}

// AddMessage appends a single message, typically one delivered over the
// real-time push transport or an optimistic local send.
func (c *Cache) AddMessage(m *store.CachedMessage) error {
	if err := c.db.Append(m); err != nil {
		c.logger.Error("message append failed",
			zap.String("conversation_id", m.ConversationID), zap.String("id", m.ID), zap.Error(err))
		return err
	}
	c.publish(bus.KindMessageAdded, map[string]any{
		"conversation_id": m.ConversationID,
		"id":              m.ID,
	})
	return nil
}

// ReplaceOptimisticMessage swaps the locally synthesized row at tempID for
// its server-confirmed counterpart.
func (c *Cache) ReplaceOptimisticMessage(tempID string, confirmed *store.CachedMessage) error {
	if err := c.db.ReconcileOptimistic(tempID, confirmed); err != nil {
		c.logger.Error("optimistic reconciliation failed",
			zap.String("temp_id", tempID), zap.String("id", confirmed.ID), zap.Error(err))
		return err
	}
	c.publish(bus.KindMessageReconciled, map[string]any{
		"conversation_id": confirmed.ConversationID,
		"temp_id":         tempID,
		"id":              confirmed.ID,
	})
	return nil
}

// ClearConversation drops everything cached for one conversation.
func (c *Cache) ClearConversation(conversationID string) error {
	if err := c.db.ClearConversation(conversationID); err != nil {
		c.logger.Error("clear conversation failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return err
	}
	c.publish(bus.KindCacheCleared, map[string]any{"conversation_id": conversationID})
	return nil
}

// ClearAll wipes the whole cache. Wired to the settings screen's clear
// action.
func (c *Cache) ClearAll() error {
	if err := c.db.ClearAll(); err != nil {
		c.logger.Error("clear all failed", zap.Error(err))
		return err
	}
	c.publish(bus.KindCacheCleared, map[string]any{"conversation_id": ""})
	return nil
}

// ClearByDateRange deletes cached messages whose created_at falls inside
// the closed [fromTs, toTs] window across all conversations and returns
// the number removed.
func (c *Cache) ClearByDateRange(fromTs, toTs int64) (int64, error) {
	removed, err := c.db.DeleteByDateRange(fromTs, toTs)
	if err != nil {
		c.logger.Error("clear by date range failed",
			zap.Int64("from", fromTs), zap.Int64("to", toTs), zap.Error(err))
		return removed, err
	}
	if removed > 0 {
		c.publish(bus.KindCacheCleared, map[string]any{"removed": removed})
	}
	return removed, nil
}

// UpdateRemoteSequence records the backend's latest sequence for a
// conversation, forcing its verdict back to UNKNOWN.
func (c *Cache) UpdateRemoteSequence(conversationID string, seq int64) error {
	return c.tracker.UpdateRemoteSequence(conversationID, seq)
}

// ValidateSequences runs the validation algorithm for a conversation and
// publishes an out-of-sync event when the verdict is negative, so the
// conversation view can schedule a re-fetch.
func (c *Cache) ValidateSequences(conversationID string) (*intsync.Result, error) {
	result, err := c.tracker.Validate(conversationID)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		c.publish(bus.KindOutOfSync, map[string]any{
			"conversation_id": conversationID,
			"reason":          string(result.Reason),
		})
	}
	return result, nil
}

// FindMissingSequenceRanges returns the closed sequence ranges that must be
// re-fetched to make the conversation contiguous.
func (c *Cache) FindMissingSequenceRanges(conversationID string) ([]intsync.SeqRange, error) {
	return c.tracker.FindMissingRanges(conversationID)
}

// NeedsResync reports whether the last validation left the conversation
// OUT_OF_SYNC. Errors degrade to false with a log line.
func (c *Cache) NeedsResync(conversationID string) bool {
	out, err := c.tracker.NeedsResync(conversationID)
	if err != nil {
		c.logger.Error("needs-resync check failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return false
	}
	return out
}

// MarkAllUnknown resets every conversation's verdict to UNKNOWN. Called on
// connectivity recovery, when nothing cached can be trusted until the
// backend sequences are re-fetched.
func (c *Cache) MarkAllUnknown() error {
	return c.tracker.MarkAllUnknown()
}

func (c *Cache) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
