// Package scheduler runs ingestion jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonathan/tender-radar/internal/logger"
)

// Job is one scheduled run.
type Job func(ctx context.Context) error

// Scheduler triggers a Job on a standard 5-field cron expression. A trigger that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	job     Job
	log     logger.Logger
	running atomic.Bool
	runs    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New parses spec and prepares a scheduler. Nothing runs until Start.
func New(spec string, job Job, log logger.Logger) (*Scheduler, error) {
	log = logger.OrNop(log)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		job:    job,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	s.cron = cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{log})))
	id, err := s.cron.AddFunc(spec, s.trigger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}
	s.entry = id
	return s, nil
}

// Start begins triggering. It returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", logger.String("next_run", s.Next().Format(time.RFC3339)))
}

// Stop stops triggering, cancels a run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped", logger.Int("runs", int(s.runs.Load())))
}

// Next returns the next trigger time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Runs returns how many runs have completed.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *Scheduler) trigger() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("Previous run still in progress, skipping trigger")
		return
	}
	s.wg.Add(1)
	defer func() {
		s.running.Store(false)
		s.wg.Done()
	}()

	start := time.Now()
	err := s.job(s.ctx)
	s.runs.Add(1)
	if err != nil {
		s.log.Error("Scheduled run failed", logger.Error(err), logger.Duration("duration", time.Since(start)))
		return
	}
	s.log.Info("Scheduled run finished", logger.Duration("duration", time.Since(start)))
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, logger.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, logger.Error(err), logger.Any("details", keysAndValues))
}
