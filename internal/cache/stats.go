package cache

import "github.com/helpwire/deskd/internal/store"

// Stats is the global cache summary shown on the diagnostics screen.
type Stats struct {
	Conversations   int64
	Messages        int64
	SizeBytes       int64
	Hits            int64
	Misses          int64
	LastValidatedAt int64
}

// ConversationStats is the per-conversation diagnostic breakdown.
type ConversationStats struct {
	ConversationID  string
	MessageCount    int64
	LatestSequence  *int64
	LastUpdated     int64
	Verdict         store.SyncVerdict
	LastValidatedAt int64
}

// Stats returns global cache counters. Hit/miss bookkeeping is in-memory
// and resets with the process.
func (c *Cache) Stats() (*Stats, error) {
	conversations, err := c.db.CountConversations()
	if err != nil {
		return nil, err
	}
	messages, err := c.db.CountMessages()
	if err != nil {
		return nil, err
	}
	size, err := c.db.EstimateSize()
	if err != nil {
		return nil, err
	}
	lastValidated, err := c.db.LastValidated()
	if err != nil {
		return nil, err
	}
	return &Stats{
		Conversations:   conversations,
		Messages:        messages,
		SizeBytes:       size,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		LastValidatedAt: lastValidated,
	}, nil
}

// ConversationBreakdown joins the meta and sync rows into one diagnostic
// record per conversation.
func (c *Cache) ConversationBreakdown() ([]ConversationStats, error) {
	metas, err := c.db.ListMeta()
	if err != nil {
		return nil, err
	}
	states, err := c.db.ListSyncStates()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*store.SyncState, len(states))
	for _, s := range states {
		byID[s.ConversationID] = s
	}

	var out []ConversationStats
	for _, m := range metas {
		cs := ConversationStats{
			ConversationID: m.ConversationID,
			MessageCount:   m.MessageCount,
			LatestSequence: m.LatestSequence,
			LastUpdated:    m.LastUpdated,
			Verdict:        store.SyncUnknown,
		}
		if s, ok := byID[m.ConversationID]; ok {
			cs.Verdict = s.Verdict
			cs.LastValidatedAt = s.LastValidatedAt
		}
		out = append(out, cs)
	}
	return out, nil
}
