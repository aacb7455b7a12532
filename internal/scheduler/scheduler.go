// Package scheduler fires ingestion runs on a cron schedule and on demand.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/EVODENUBY/DYPSE-sub000/internal/ingest"
)

// Defaults for the daily ingestion run.
const (
	DefaultSpec     = "0 2 * * *"
	DefaultTimezone = "Africa/Kigali"
)

// Runner performs one ingestion run.
type Runner interface {
	Run(ctx context.Context) (*ingest.RunStats, error)
}

// Config configures a Scheduler.
type Config struct {
	Spec     string
	Timezone string
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Spec     string           `json:"schedule"`
	Timezone string           `json:"timezone"`
	Next     *time.Time       `json:"nextRun,omitempty"`
	Running  int              `json:"running"`
	LastRun  *ingest.RunStats `json:"lastRun,omitempty"`
}

// Scheduler owns a single cron entry that invokes the runner.
// Runs may overlap; each gets a context that is cancelled by Stop.
type Scheduler struct {
	runner   Runner
	logger   *zap.Logger
	cron     *cron.Cron
	location *time.Location

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	spec    string
	entry   cron.EntryID
	stopped bool
	running int
	lastRun *ingest.RunStats
}

// New creates a scheduler armed with cfg.Spec. It does not fire until Start.
func New(runner Runner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:   runner,
		logger:   logger,
		location: loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.Reschedule(cfg.Spec); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("schedule", s.Spec()),
		zap.String("timezone", s.location.String()))
}

// Stop halts the schedule, cancels in-flight runs and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ingestion runs: %w", ctx.Err())
	}
}

// Reschedule replaces the cron entry with spec. An invalid spec leaves the
// current entry in place.
func (s *Scheduler) Reschedule(spec string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run("schedule") }))
	s.spec = spec
	return nil
}

// TriggerNow starts a run in the background and returns immediately.
// It reports false once the scheduler is stopped.
func (s *Scheduler) TriggerNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("ingestion run panicked", zap.Any("panic", r), zap.String("trigger", "manual"))
			}
		}()
		s.execute("manual")
	}()
	return true
}

// LastRun returns the stats of the most recently finished run, or nil.
func (s *Scheduler) LastRun() *ingest.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	stats := *s.lastRun
	return &stats
}

// Spec returns the active cron expression.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Status reports the schedule, the next fire time and the last run.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Spec:     s.spec,
		Timezone: s.location.String(),
		Running:  s.running,
	}
	entry := s.entry
	s.mu.Unlock()

	if next := s.cron.Entry(entry).Next; !next.IsZero() {
		st.Next = &next
	}
	st.LastRun = s.LastRun()
	return st
}

// run is the cron job body. Panics are handled by the cron recover chain.
func (s *Scheduler) run(trigger string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.execute(trigger)
}

func (s *Scheduler) execute(trigger string) {
	s.mu.Lock()
	s.running++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()

	s.logger.Info("ingestion run triggered", zap.String("trigger", trigger))
	stats, err := s.runner.Run(s.ctx)
	if err != nil {
		s.logger.Error("ingestion run failed", zap.String("trigger", trigger), zap.Error(err))
	}
	if stats != nil {
		s.mu.Lock()
		s.lastRun = stats
		s.mu.Unlock()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
