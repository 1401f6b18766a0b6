// Package sync derives the per-conversation sync verdict from the cached
// sequence numbers and the last sequence the backend reported.
package sync

import (
	"fmt"
	"time"

	"github.com/helpwire/deskd/internal/store"
	"go.uber.org/zap"
)

// Reason explains a validation outcome.
type Reason string

const (
	// ReasonBackendSeqUnknown means validation is deferred: the backend's
	// latest sequence has not been reported yet, so there is nothing to
	// compare against. Not a failure.
	ReasonBackendSeqUnknown Reason = "backend_seq_unknown"
	ReasonNoMessages        Reason = "no_messages"
	ReasonGapDetected       Reason = "gap_detected"
	ReasonSequenceMismatch  Reason = "sequence_mismatch"
	ReasonValidated         Reason = "validated"
)

// Result is the outcome of a validation run.
type Result struct {
	Valid   bool
	Reason  Reason
	Details string
}

// SeqRange is a closed range of missing sequence numbers to re-fetch.
type SeqRange struct {
	From int64
	To   int64
}

// Tracker owns the validation and gap-finding algorithms over the sync
// state rows. It is the only writer of the sync verdict.
type Tracker struct {
	db     *store.DB
	logger *zap.Logger
}

// NewTracker creates a tracker over the given store.
func NewTracker(db *store.DB, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{db: db, logger: logger}
}

// Validate recomputes the sync verdict for a conversation.
//
// The deferred check must come first: until the backend sequence is known
// there is no basis for reporting a gap or mismatch, and doing so would be
// a false negative against a backend that simply has not been asked yet.
func (t *Tracker) Validate(conversationID string) (*Result, error) {
	state, err := t.db.GetSyncState(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	if state == nil || state.LastKnownRemoteSeq == nil {
		return &Result{Valid: true, Reason: ReasonBackendSeqUnknown}, nil
	}
	remoteSeq := *state.LastKnownRemoteSeq

	seqs, err := t.db.SequencedNumbers(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}

	result := t.check(seqs, remoteSeq)

	verdict := store.SyncOutOfSync
	if result.Valid {
		verdict = store.SyncSynced
	}
	now := time.Now().UnixMilli()
	if err := t.db.SetSyncVerdict(conversationID, verdict, now); err != nil {
		return nil, fmt.Errorf("store verdict: %w", err)
	}

	if !result.Valid {
		t.logger.Warn("conversation out of sync",
			zap.String("conversation_id", conversationID),
			zap.String("reason", string(result.Reason)),
			zap.String("details", result.Details))
	}
	return result, nil
}

func (t *Tracker) check(seqs []int64, remoteSeq int64) *Result {
	if len(seqs) == 0 {
		return &Result{Valid: false, Reason: ReasonNoMessages}
	}

	minSeq := seqs[0]
	maxSeq := seqs[len(seqs)-1]

	if maxSeq-minSeq+1 != int64(len(seqs)) {
		for i := 1; i < len(seqs); i++ {
			if seqs[i] != seqs[i-1]+1 {
				return &Result{
					Valid:   false,
					Reason:  ReasonGapDetected,
					Details: fmt.Sprintf("gap between %d and %d", seqs[i-1], seqs[i]),
				}
			}
		}
	}

	if maxSeq != remoteSeq {
		return &Result{
			Valid:   false,
			Reason:  ReasonSequenceMismatch,
			Details: fmt.Sprintf("local max %d, backend expects %d", maxSeq, remoteSeq),
		}
	}

	return &Result{Valid: true, Reason: ReasonValidated}
}

// FindMissingRanges computes the closed sequence ranges that must be
// re-fetched to make the cache contiguous up to the backend's latest
// sequence. Never mutates state; ranges come back ascending.
func (t *Tracker) FindMissingRanges(conversationID string) ([]SeqRange, error) {
	state, err := t.db.GetSyncState(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	if state == nil {
		return nil, nil
	}

	seqs, err := t.db.SequencedNumbers(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}

	if len(seqs) == 0 {
		if state.LastKnownRemoteSeq != nil && *state.LastKnownRemoteSeq >= 1 {
			// Full history missing.
			return []SeqRange{{From: 1, To: *state.LastKnownRemoteSeq}}, nil
		}
		return nil, nil
	}

	var ranges []SeqRange
	if seqs[0] > 1 {
		ranges = append(ranges, SeqRange{From: 1, To: seqs[0] - 1})
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] > seqs[i-1]+1 {
			ranges = append(ranges, SeqRange{From: seqs[i-1] + 1, To: seqs[i] - 1})
		}
	}
	if state.LastKnownRemoteSeq != nil && *state.LastKnownRemoteSeq > seqs[len(seqs)-1] {
		ranges = append(ranges, SeqRange{From: seqs[len(seqs)-1] + 1, To: *state.LastKnownRemoteSeq})
	}
	return ranges, nil
}

// NeedsResync reports whether the last validation concluded OUT_OF_SYNC.
func (t *Tracker) NeedsResync(conversationID string) (bool, error) {
	state, err := t.db.GetSyncState(conversationID)
	if err != nil {
		return false, err
	}
	return state != nil && state.Verdict == store.SyncOutOfSync, nil
}

// UpdateRemoteSequence records a freshly reported backend sequence and
// forces the verdict back to UNKNOWN until revalidated.
func (t *Tracker) UpdateRemoteSequence(conversationID string, seq int64) error {
	return t.db.SetRemoteSequence(conversationID, seq)
}

// MarkAllUnknown bulk-resets every verdict to UNKNOWN. Reconnect hook.
func (t *Tracker) MarkAllUnknown() error {
	return t.db.MarkAllSyncUnknown()
}
