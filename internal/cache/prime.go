package cache

import (
	"context"

	"github.com/helpwire/deskd/internal/bus"
	"github.com/helpwire/deskd/internal/remote"
	"go.uber.org/zap"
)

// Progress reports bulk-priming advancement after each conversation.
type Progress struct {
	ConversationID string
	Done           int
	Total          int
}

// Primer pre-downloads every conversation into the cache so the client
// works offline. Triggered from the settings screen.
type Primer struct {
	cache  *Cache
	client remote.Client
	logger *zap.Logger
}

// NewPrimer creates a primer over the facade and the backend client.
func NewPrimer(c *Cache, client remote.Client, logger *zap.Logger) *Primer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Primer{cache: c, client: client, logger: logger}
}

// DownloadAll fetches and caches every conversation, recording the
// backend's latest sequence as it goes. Cancellation is checked between
// conversations; a single conversation failing is logged and skipped so
// one bad thread cannot abort the whole priming run.
func (p *Primer) DownloadAll(ctx context.Context, onProgress func(Progress)) error {
	ids, err := p.client.ListConversations(ctx)
	if err != nil {
		return err
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := p.client.FetchMessages(ctx, id)
		if err != nil {
			p.logger.Warn("priming fetch failed, skipping conversation",
				zap.String("conversation_id", id), zap.Error(err))
			continue
		}
		if err := p.cache.CacheMessages(id, msgs); err != nil {
			continue
		}

		seq, err := p.client.LatestSequence(ctx, id)
		if err != nil {
			p.logger.Warn("latest sequence unavailable during priming",
				zap.String("conversation_id", id), zap.Error(err))
		} else if err := p.cache.UpdateRemoteSequence(id, seq); err != nil {
			p.logger.Warn("recording remote sequence failed",
				zap.String("conversation_id", id), zap.Error(err))
		}

		progress := Progress{ConversationID: id, Done: i + 1, Total: len(ids)}
		if onProgress != nil {
			onProgress(progress)
		}
		p.cache.publish(bus.KindPrimeProgress, progress)
	}

	p.logger.Info("bulk priming finished", zap.Int("conversations", len(ids)))
	return nil
}
