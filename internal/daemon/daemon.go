package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"memebox/internal/bot"
	"memebox/internal/history"
	"memebox/internal/logging"
	"memebox/internal/notifications"
)

// ErrAlreadyRunning means another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another memebox daemon instance is already running")

const (
	// staleScratchAge is how old an ingestion scratch file must be before
	// maintenance removes it. It exceeds any transcode timeout.
	staleScratchAge  = time.Hour
	maintenanceEvery = 30 * time.Minute
)

// Dispatcher consumes platform events.
type Dispatcher interface {
	Run(ctx context.Context, src bot.Source) error
}

// Server is a component that serves until its context ends.
type Server interface {
	Serve(ctx context.Context) error
}

// Watcher follows external edits to the catalogue.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Recoverer marks ingestions interrupted by a previous run as failed.
type Recoverer interface {
	FailInFlight(ctx context.Context, reason string) (int64, error)
}

// Sweeper removes stale ingestion scratch files.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// Closer drops pending work on shutdown.
type Closer interface {
	Close()
}

// Options wires the daemon's collaborators. Server, Watcher, History and
// Notifier are optional.
type Options struct {
	LockPath   string
	Dispatcher Dispatcher
	Source     bot.Source
	Server     Server
	Watcher    Watcher
	History    Recoverer
	Assets     Sweeper
	Pipeline   Closer
	Notifier   notifications.Service
	Logger     *slog.Logger
}

// Daemon runs the bot until its context is cancelled.
type Daemon struct {
	opts     Options
	lock     *flock.Flock
	logger   *slog.Logger
	notifier notifications.Service

	running atomic.Bool
}

// New constructs a daemon.
func New(opts Options) (*Daemon, error) {
	switch {
	case opts.LockPath == "":
		return nil, errors.New("daemon requires a lock path")
	case opts.Dispatcher == nil || opts.Source == nil:
		return nil, errors.New("daemon requires a dispatcher and an event source")
	case opts.Assets == nil || opts.Pipeline == nil:
		return nil, errors.New("daemon requires an asset store and an ingestion pipeline")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Daemon{
		opts:     opts,
		lock:     flock.New(opts.LockPath),
		logger:   logging.NewComponentLogger(opts.Logger, "daemon"),
		notifier: notifier,
	}, nil
}

// Running reports whether Run is in progress in this process.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Run acquires the single-instance lock, recovers leftover state and serves
// until ctx is cancelled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.recoverState(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.opts.Dispatcher.Run(gctx, d.opts.Source)
	})
	if d.opts.Server != nil {
		g.Go(func() error {
			return d.opts.Server.Serve(gctx)
		})
	}
	if d.opts.Watcher != nil {
		g.Go(func() error {
			if err := d.opts.Watcher.Watch(gctx); err != nil {
				logging.WarnWithContext(d.logger, "catalogue watcher stopped", "watcher_stopped",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "restart the daemon after editing the catalogue by hand"),
					logging.String(logging.FieldImpact, "external catalogue edits are not picked up"),
				)
			}
			return nil
		})
	}
	g.Go(func() error {
		d.maintain(gctx)
		return nil
	})

	d.logger.Info("memebox daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.opts.LockPath),
	)

	err = g.Wait()
	d.opts.Pipeline.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.ErrorWithContext(d.logger, "memebox daemon failed", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the listen address and network access"),
		)
		d.publish(context.WithoutCancel(ctx), notifications.EventError, notifications.Payload{
			"context": "daemon",
			"error":   err.Error(),
		})
		return err
	}
	d.logger.Info("memebox daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

// recoverState cleans up after a previous process that died mid-ingestion.
func (d *Daemon) recoverState(ctx context.Context) {
	if d.opts.History != nil {
		n, err := d.opts.History.FailInFlight(ctx, history.DaemonRestartReason)
		if err != nil {
			logging.WarnWithContext(d.logger, "failed to reset interrupted ingestions", "history_recovery_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "history may list stale in-flight ingestions"),
			)
		} else if n > 0 {
			d.logger.Info("marked interrupted ingestions as failed",
				logging.String(logging.FieldEventType, "history_recovered"),
				logging.Int64("count", n),
			)
		}
	}
	d.sweep()
}

func (d *Daemon) maintain(ctx context.Context) {
	ticker := time.NewTicker(maintenanceEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Daemon) sweep() {
	if _, err := d.opts.Assets.Sweep(staleScratchAge); err != nil {
		d.logger.Warn("failed to sweep ingestion scratch files", logging.Error(err))
	}
}

func (d *Daemon) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := d.notifier.Publish(ctx, event, payload); err != nil {
		d.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// Probe reports whether a daemon currently holds the lock at lockPath.
func Probe(lockPath string) (bool, error) {
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	if err := lock.Unlock(); err != nil {
		return false, fmt.Errorf("release probe lock: %w", err)
	}
	return false, nil
}
