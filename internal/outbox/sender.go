// Package outbox drains optimistic local sends and reconciles them with
// their server-confirmed counterparts.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/helpwire/deskd/internal/bus"
	"github.com/helpwire/deskd/internal/cache"
	"github.com/helpwire/deskd/internal/store"
	"go.uber.org/zap"
)

// MessageSender delivers a pending message to the backend and returns the
// server-confirmed row (server id, assigned sequence number, timestamps).
type MessageSender interface {
	Send(ctx context.Context, m *store.CachedMessage) (*store.CachedMessage, error)
}

// Sender polls the cache for pending messages and pushes them out. On
// confirmation the optimistic row is swapped for the confirmed one; on
// failure it is marked failed and left for the user to retry.
type Sender struct {
	db     *store.DB
	cache  *cache.Cache
	sender MessageSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, c *cache.Cache, sender MessageSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{db: db, cache: c, sender: sender, bus: b, logger: logger}
}

// Queue caches an optimistic message for a conversation and returns it.
// The row shows up in the conversation immediately, sorted after all
// sequenced messages, until the drain loop confirms it.
func (s *Sender) Queue(conversationID, content string) (*store.CachedMessage, error) {
	now := time.Now().UnixMilli()
	tempID := uuid.NewString()
	m := &store.CachedMessage{
		ID:             tempID,
		ConversationID: conversationID,
		Content:        content,
		Status:         store.StatusPending,
		TempID:         tempID,
		ClientTempID:   tempID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.cache.AddMessage(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Start begins polling for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the drain loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingMessages()
	if err != nil {
		s.logger.Error("failed to read pending messages", zap.Error(err))
		return
	}

	for _, m := range pending {
		confirmed, err := s.sender.Send(ctx, m)
		if err != nil {
			s.logger.Error("send failed", zap.Error(err),
				zap.String("temp_id", m.ID), zap.String("conversation_id", m.ConversationID))
			if err := s.db.MarkMessageFailed(m.ID); err != nil {
				s.logger.Error("failed to mark message failed", zap.Error(err), zap.String("temp_id", m.ID))
			}
			s.publish(bus.KindSendFailed, map[string]string{
				"temp_id": m.ID,
				"error":   err.Error(),
			})
			continue
		}

		// Carry the correlation token so the push transport can match a
		// duplicate delivery of the same confirmation.
		if confirmed.ClientTempID == "" {
			confirmed.ClientTempID = m.ClientTempID
		}
		if err := s.cache.ReplaceOptimisticMessage(m.ID, confirmed); err != nil {
			continue
		}

		s.logger.Info("message confirmed",
			zap.String("temp_id", m.ID), zap.String("id", confirmed.ID))
		s.publish(bus.KindSendAck, map[string]string{
			"temp_id": m.ID,
			"id":      confirmed.ID,
		})
	}
}

func (s *Sender) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
