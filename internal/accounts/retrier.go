package accounts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CascadeRunner resumes a deletion cascade.
type CascadeRunner interface {
	Cascade(ctx context.Context, uid string) error
}

// PendingLister lists cascades left unfinished.
type PendingLister interface {
	PendingDeletions(ctx context.Context) ([]string, error)
}

// RetrierConfig controls the concurrency and pacing of the retrier.
type RetrierConfig struct {
	QueueSize   int
	Workers     int
	Interval    time.Duration
	MaxAttempts int
	StepTimeout time.Duration
}

// Retrier finishes failed account deletions in the background.
type Retrier struct {
	runner CascadeRunner
	cfg    RetrierConfig
	logger *slog.Logger

	jobs   chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// mu guards closed; senders hold it for reading so jobs is never closed under them.
	mu     sync.RWMutex
	closed bool
}

var errRetrierClosed = errors.New("deletion retrier closed")

// NewRetrier starts the worker pool.
func NewRetrier(runner CascadeRunner, cfg RetrierConfig, logger *slog.Logger) *Retrier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Retrier{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan string, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.worker()
	}

	return r
}

// Enqueue schedules the cascade of uid.
func (r *Retrier) Enqueue(ctx context.Context, uid string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errRetrierClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return errRetrierClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return errRetrierClosed
	case r.jobs <- uid:
		return nil
	}
}

// ResumePending enqueues every unfinished cascade and returns how many were scheduled.
func (r *Retrier) ResumePending(ctx context.Context, lister PendingLister) (int, error) {
	uids, err := lister.PendingDeletions(ctx)
	if err != nil {
		return 0, err
	}
	for i, uid := range uids {
		if err := r.Enqueue(ctx, uid); err != nil {
			return i, err
		}
	}
	return len(uids), nil
}

// Shutdown stops the workers and waits for in-flight cascades.
func (r *Retrier) Shutdown(ctx context.Context) error {
	r.once.Do(func() {
		r.cancel()
		r.mu.Lock()
		r.closed = true
		close(r.jobs)
		r.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *Retrier) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case uid, ok := <-r.jobs:
			if !ok {
				return
			}
			r.handleJob(uid)
		}
	}
}

func (r *Retrier) handleJob(uid string) {
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := r.runOnce(uid)
		if err == nil {
			r.logger.Info("account deletion resumed", "uid", uid, "attempt", attempt)
			return
		}
		r.logger.Warn("account deletion retry failed", "uid", uid, "attempt", attempt, "error", err)

		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	r.logger.Error("account deletion abandoned until next startup", "uid", uid, "attempts", r.cfg.MaxAttempts)
}

func (r *Retrier) runOnce(uid string) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.StepTimeout)
	defer cancel()
	return r.runner.Cascade(ctx, uid)
}
