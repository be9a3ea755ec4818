package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultInterval is used by callers that have no configured interval.
const DefaultInterval = 10 * time.Minute

// Job is invoked once per firing. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSkipOverlap skips a firing while the previous run of the same job is
// still in progress. By default overlapping firings run concurrently.
func WithSkipOverlap() Option {
	return func(s *Scheduler) { s.skipOverlap = true }
}

// Scheduler runs named jobs at fixed intervals.
type Scheduler struct {
	cron        *cron.Cron
	log         *zap.Logger
	logAdapter  cron.Logger
	skipOverlap bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a new scheduler with nothing scheduled
func New(log *zap.Logger, opts ...Option) *Scheduler {
	adapter := cronLogger{log: log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		log:        log,
		logAdapter: adapter,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers job under name to fire every interval, replacing any
// job previously registered under the same name.
func (s *Scheduler) Schedule(name string, interval time.Duration, job Job) error {
	if name == "" {
		return errors.New("job name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for job %q", interval, name)
	}
	if job == nil {
		return fmt.Errorf("job %q is nil", name)
	}

	var wrapped cron.Job = cron.FuncJob(func() {
		started := time.Now()
		job(s.ctx)
		s.log.Debug("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(started)))
	})
	if s.skipOverlap {
		wrapped = cron.NewChain(cron.SkipIfStillRunning(s.logAdapter)).Then(wrapped)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.entries[name] = s.cron.Schedule(cron.Every(interval), wrapped)

	s.log.Info("Job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// Unschedule removes the named job. Unknown names are ignored.
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Scheduled reports whether a job is registered under name.
func (s *Scheduler) Scheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Start begins firing jobs in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing and waits for running jobs until ctx is done. The
// context handed to jobs is cancelled once Stop returns.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.cancel()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
