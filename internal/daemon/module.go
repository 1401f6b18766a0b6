package daemon

import (
	"context"
	"time"

	"github.com/helpwire/deskd/internal/appdir"
	"github.com/helpwire/deskd/internal/bus"
	"github.com/helpwire/deskd/internal/cache"
	"github.com/helpwire/deskd/internal/lock"
	"github.com/helpwire/deskd/internal/logging"
	"github.com/helpwire/deskd/internal/outbox"
	"github.com/helpwire/deskd/internal/remote"
	"github.com/helpwire/deskd/internal/status"
	"github.com/helpwire/deskd/internal/store"
	intsync "github.com/helpwire/deskd/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration and collaborators passed to the
// fx module. Remote and Sender are the backend-facing collaborators; either
// may be nil in tests or while the transport layer is unauthenticated.
type Params struct {
	DataDir    string
	Retention  time.Duration
	SweepDelay time.Duration
	Remote     remote.Client
	Sender     outbox.MessageSender
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideMachine,
			provideLock,
			provideStore,
			provideTracker,
			provideCache,
			provideSweeper,
			providePrimer,
			provideSender,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(appdir.LogPath(p.DataDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := appdir.EnsureDirs(p.DataDir); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("data_dir", p.DataDir))
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := appdir.DBPath(p.DataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTracker(db *store.DB, logger *zap.Logger) *intsync.Tracker {
	return intsync.NewTracker(db, logger)
}

func provideCache(db *store.DB, tracker *intsync.Tracker, b *bus.Bus, logger *zap.Logger) *cache.Cache {
	return cache.New(db, tracker, b, logger)
}

func provideSweeper(p Params, db *store.DB, logger *zap.Logger) *cache.Sweeper {
	return cache.NewSweeper(db, logger, p.Retention, p.SweepDelay)
}

func providePrimer(p Params, c *cache.Cache, logger *zap.Logger) *cache.Primer {
	if p.Remote == nil {
		return nil
	}
	return cache.NewPrimer(c, p.Remote, logger)
}

func provideSender(p Params, db *store.DB, c *cache.Cache, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	if p.Sender == nil {
		return nil
	}
	return outbox.NewSender(db, c, p.Sender, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, c *cache.Cache, sweeper *cache.Sweeper, sender *outbox.Sender, primer *cache.Primer, machine *status.Machine, b *bus.Bus, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	var cancelWatch context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("daemon starting", zap.String("connectivity", string(machine.Current())))

			sweeper.StartMaintenance(context.Background())

			if sender != nil {
				sender.Start(context.Background())
			}

			// Reconnect hook: when the transport comes back online, no
			// cached conversation can be trusted until revalidated.
			watchCtx, cancel := context.WithCancel(context.Background())
			cancelWatch = cancel
			go watchConnectivity(watchCtx, b, c, logger)

			if primer != nil {
				go func() {
					if err := primer.DownloadAll(watchCtx, nil); err != nil {
						logger.Warn("startup cache priming aborted", zap.Error(err))
					}
				}()
			}

			return nil
		},
		OnStop: func(_ context.Context) error {
			if cancelWatch != nil {
				cancelWatch()
			}
			if sender != nil {
				sender.Stop()
			}
			sweeper.StopMaintenance()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

func watchConnectivity(ctx context.Context, b *bus.Bus, c *cache.Cache, logger *zap.Logger) {
	ch, unsub := b.Subscribe("net.", 16)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok || change.To != status.Online {
				continue
			}
			if err := c.MarkAllUnknown(); err != nil {
				logger.Error("failed to reset sync verdicts on reconnect", zap.Error(err))
			} else {
				logger.Info("connectivity restored, sync verdicts reset")
			}
		case <-ctx.Done():
			return
		}
	}
}
