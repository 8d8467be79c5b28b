// Package trigger runs every due recurring journal on a cron schedule.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/middleware"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DefaultPassTimeout bounds a single pass over the due definitions.
const DefaultPassTimeout = 10 * time.Minute

// CronTrigger calls RunDue on a cron schedule. Passes never overlap; a tick that fires
// while the previous pass is still running is skipped.
type CronTrigger struct {
	cron        *cron.Cron
	runs        portssvc.RunSvc
	logger      *slog.Logger
	clock       gateways.Clock
	passTimeout time.Duration
	spec        string
}

// Option configures a CronTrigger.
type Option func(*CronTrigger)

// WithClock sets the clock that decides the as-of date of each pass.
func WithClock(clock gateways.Clock) Option {
	return func(t *CronTrigger) {
		t.clock = clock
	}
}

// WithPassTimeout bounds how long one pass may take.
func WithPassTimeout(d time.Duration) Option {
	return func(t *CronTrigger) {
		t.passTimeout = d
	}
}

// NewCronTrigger parses spec (standard five-field cron, or a descriptor such as @daily)
// and prepares the trigger. It does not start until Start is called.
func NewCronTrigger(spec string, runs portssvc.RunSvc, logger *slog.Logger, opts ...Option) (*CronTrigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid trigger schedule %q: %w", spec, err)
	}

	t := &CronTrigger{
		runs:        runs,
		logger:      logger,
		clock:       gateways.SystemClock,
		passTimeout: DefaultPassTimeout,
		spec:        spec,
	}
	for _, opt := range opts {
		opt(t)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	t.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := t.cron.AddFunc(spec, t.tick); err != nil {
		return nil, fmt.Errorf("failed to schedule trigger %q: %w", spec, err)
	}
	return t, nil
}

// Start begins firing in the background.
func (t *CronTrigger) Start() {
	t.logger.Info("Recurring journal trigger started", slog.String("schedule", t.spec))
	t.cron.Start()
}

// Stop stops firing and waits for a pass in progress to finish or ctx to expire.
func (t *CronTrigger) Stop(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		t.logger.Info("Recurring journal trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *CronTrigger) tick() {
	passID := uuid.NewString()
	logger := t.logger.With(slog.String("trigger_pass_id", passID))

	ctx, cancel := context.WithTimeout(context.Background(), t.passTimeout)
	defer cancel()
	ctx = middleware.WithLogger(ctx, logger)

	asOf := t.clock.Now()
	batch, err := t.runs.RunDue(ctx, asOf)
	if err != nil {
		logger.Error("Recurring journal pass failed", slog.String("error", err.Error()))
		if batch == nil {
			return
		}
	}
	logger.Info("Recurring journal pass finished",
		slog.Time("as_of", asOf),
		slog.Int("attempted", batch.Attempted),
		slog.Int("succeeded", batch.Succeeded),
		slog.Int("failed", batch.Failed),
	)
}
