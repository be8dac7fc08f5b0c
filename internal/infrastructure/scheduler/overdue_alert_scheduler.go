// Package scheduler runs periodic background jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	// ErrSchedulerNotRunning is returned by TriggerManualRun before Start
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	// ErrInvalidConfig wraps schedule and wiring errors from the constructor
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)

// DefaultOverdueAlertCron runs the sweep every day at 08:00
const DefaultOverdueAlertCron = "0 8 * * *"

// Sweeper computes overdue exposure for every tenant
type Sweeper interface {
	Sweep(ctx context.Context) ([]appfinance.SweepResult, error)
}

// OverdueAlertConfig holds configuration for the overdue alert scheduler
type OverdueAlertConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule string
	// Timezone is an IANA zone name; unknown zones fall back to UTC
	Timezone string
	// JobTimeout bounds a single sweep
	JobTimeout time.Duration
}

// DefaultOverdueAlertConfig returns the default configuration
func DefaultOverdueAlertConfig() OverdueAlertConfig {
	return OverdueAlertConfig{
		Schedule:   DefaultOverdueAlertCron,
		Timezone:   "UTC",
		JobTimeout: 10 * time.Minute,
	}
}

// OverdueAlertScheduler triggers the overdue sweep on a cron schedule.
// A sweep still running when the next tick arrives causes that tick to be skipped.
type OverdueAlertScheduler struct {
	config   OverdueAlertConfig
	sweeper  Sweeper
	logger   *zap.Logger
	cron     *cron.Cron
	entryID  cron.EntryID
	location *time.Location

	mu        sync.Mutex
	isRunning bool
	lastRunAt *time.Time
	lastErr   error
}

// NewOverdueAlertScheduler validates the schedule and registers the sweep job.
// The scheduler does not run until Start.
func NewOverdueAlertScheduler(cfg OverdueAlertConfig, sweeper Sweeper, logger *zap.Logger) (*OverdueAlertScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sweeper == nil {
		return nil, fmt.Errorf("%w: sweeper is required", ErrInvalidConfig)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultOverdueAlertCron
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultOverdueAlertConfig().JobTimeout
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Warn("unknown scheduler timezone, using UTC",
				zap.String("timezone", cfg.Timezone),
				zap.Error(err),
			)
		} else {
			loc = l
		}
	}

	cronLog := &zapCronLogger{logger: logger.Sugar()}
	s := &OverdueAlertScheduler{
		config:   cfg,
		sweeper:  sweeper,
		logger:   logger,
		location: loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}

	id, err := s.cron.AddFunc(cfg.Schedule, func() { s.run(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	s.entryID = id
	return s, nil
}

// Start starts the cron loop. Calling Start twice is a no-op.
func (s *OverdueAlertScheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.cron.Start()

	s.logger.Info("Overdue alert scheduler started",
		zap.String("schedule", s.config.Schedule),
		zap.String("timezone", s.location.String()),
		zap.Time("next_run_at", s.cron.Entry(s.entryID).Next),
	)
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish, or for ctx
func (s *OverdueAlertScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("Overdue alert scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Overdue alert scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerManualRun runs one sweep synchronously outside the schedule
func (s *OverdueAlertScheduler) TriggerManualRun(ctx context.Context) error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}
	return s.run(ctx)
}

func (s *OverdueAlertScheduler) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	started := time.Now()
	results, err := s.sweeper.Sweep(ctx)

	s.mu.Lock()
	s.lastRunAt = &started
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Overdue alert sweep failed", zap.Error(err), zap.Duration("duration", time.Since(started)))
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info("Overdue alert sweep finished",
		zap.Int("tenants", len(results)),
		zap.Int("failed_tenants", failed),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// Status describes the scheduler for the health endpoint
type Status struct {
	Running   bool       `json:"running"`
	Schedule  string     `json:"schedule"`
	Timezone  string     `json:"timezone"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// GetStatus returns the current scheduler status
func (s *OverdueAlertScheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:   s.isRunning,
		Schedule:  s.config.Schedule,
		Timezone:  s.location.String(),
		LastRunAt: s.lastRunAt,
	}
	if s.isRunning {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			st.NextRunAt = &next
		}
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// zapCronLogger routes cron's internal logging through zap
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
