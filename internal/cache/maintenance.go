package cache

import (
	"context"
	"time"

	"github.com/helpwire/deskd/internal/store"
	"go.uber.org/zap"
)

// DefaultRetention is how long a cached message survives before the
// sweeper evicts it.
const DefaultRetention = 7 * 24 * time.Hour

// DefaultSweepDelay is how long after startup the first sweep runs.
const DefaultSweepDelay = 15 * time.Second

// Sweeper evicts stale cache rows: messages past the retention window,
// aggregate rows nobody updated within it, and sync records whose
// conversation no longer has any cached messages.
type Sweeper struct {
	db        *store.DB
	logger    *zap.Logger
	retention time.Duration
	delay     time.Duration
	cancel    context.CancelFunc
}

// NewSweeper creates a sweeper. Zero retention or delay fall back to the
// defaults.
func NewSweeper(db *store.DB, logger *zap.Logger, retention, delay time.Duration) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if delay <= 0 {
		delay = DefaultSweepDelay
	}
	return &Sweeper{db: db, logger: logger, retention: retention, delay: delay}
}

// StartMaintenance schedules one sweep after the startup delay. The sweep
// is fire-and-forget: a failure is logged and never surfaced to callers of
// unrelated cache operations.
func (s *Sweeper) StartMaintenance(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if err := s.Sweep(); err != nil {
				s.logger.Error("maintenance sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
		}
	}()
}

// StopMaintenance cancels a sweep that has not fired yet.
func (s *Sweeper) StopMaintenance() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Sweep runs the eviction pass immediately. Idempotent and safe to invoke
// manually.
func (s *Sweeper) Sweep() error {
	cutoff := time.Now().Add(-s.retention).UnixMilli()

	messages, err := s.db.DeleteCachedBefore(cutoff)
	if err != nil {
		return err
	}
	metas, err := s.db.DeleteMetaBefore(cutoff)
	if err != nil {
		return err
	}
	orphans, err := s.db.DeleteOrphanSyncStates()
	if err != nil {
		return err
	}

	s.logger.Info("maintenance sweep completed",
		zap.Int64("messages_evicted", messages),
		zap.Int64("meta_evicted", metas),
		zap.Int64("orphan_sync_rows", orphans))
	return nil
}
