package daemon_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"memebox/internal/bot"
	"memebox/internal/daemon"
	"memebox/internal/logging"
)

type blockingDispatcher struct {
	started chan struct{}
}

func (d *blockingDispatcher) Run(ctx context.Context, _ bot.Source) error {
	close(d.started)
	<-ctx.Done()
	return nil
}

type nopSource struct{}

func (nopSource) Updates(context.Context) (<-chan bot.Event, error) {
	return make(chan bot.Event), nil
}

type failingServer struct{ err error }

func (s failingServer) Serve(context.Context) error { return s.err }

type recorder struct {
	reason string
	swept  atomic.Int32
	closed atomic.Bool
}

func (r *recorder) FailInFlight(_ context.Context, reason string) (int64, error) {
	r.reason = reason
	return 2, nil
}

func (r *recorder) Sweep(time.Duration) (int, error) {
	r.swept.Add(1)
	return 0, nil
}

func (r *recorder) Close() { r.closed.Store(true) }

func newDaemon(t *testing.T, lockPath string, disp daemon.Dispatcher, srv daemon.Server, rec *recorder) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(daemon.Options{
		LockPath:   lockPath,
		Dispatcher: disp,
		Source:     nopSource{},
		Server:     srv,
		History:    rec,
		Assets:     rec,
		Pipeline:   rec,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonRunRecoversAndStops(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "memebox.lock")
	rec := &recorder{}
	disp := &blockingDispatcher{started: make(chan struct{})}
	d := newDaemon(t, lockPath, disp, nil, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-disp.started:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not start")
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}
	if running, err := daemon.Probe(lockPath); err != nil || !running {
		t.Fatalf("expected lock to be held, running=%v err=%v", running, err)
	}

	// A second daemon on the same lock must refuse to start.
	other := newDaemon(t, lockPath, &blockingDispatcher{started: make(chan struct{})}, nil, &recorder{})
	if err := other.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}

	if rec.reason == "" || rec.swept.Load() == 0 || !rec.closed.Load() {
		t.Fatalf("expected recovery, sweep and close; got reason=%q swept=%d closed=%v",
			rec.reason, rec.swept.Load(), rec.closed.Load())
	}
	if running, err := daemon.Probe(lockPath); err != nil || running {
		t.Fatalf("expected lock to be released, running=%v err=%v", running, err)
	}
}

func TestDaemonRunFailsWhenServerFails(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "memebox.lock")
	rec := &recorder{}
	boom := errors.New("address already in use")
	d := newDaemon(t, lockPath, &blockingDispatcher{started: make(chan struct{})}, failingServer{err: boom}, rec)

	err := d.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected server error, got %v", err)
	}
	if !rec.closed.Load() {
		t.Fatal("expected pipeline to be closed")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := daemon.New(daemon.Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}
