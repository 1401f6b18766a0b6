// Package remote declares the interfaces the daemon consumes from the
// backend API client. The backend is the source of truth for messages and
// sequence numbers; the cache only mirrors it.
package remote

import (
	"context"

	"github.com/helpwire/deskd/internal/store"
)

// Client fetches message history and authoritative sequence numbers.
type Client interface {
	// ListConversations returns the ids of the requester's conversations.
	ListConversations(ctx context.Context) ([]string, error)
	// FetchMessages returns a conversation's full message history.
	FetchMessages(ctx context.Context, conversationID string) ([]*store.CachedMessage, error)
	// LatestSequence returns the highest sequence number the backend has
	// assigned in the conversation.
	LatestSequence(ctx context.Context, conversationID string) (int64, error)
}
