package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Runnable is anything a Trigger can run on schedule.
type Runnable interface {
	Run(ctx context.Context) error
}

// Trigger runs a Runnable on a cron schedule until its context is cancelled.
//
//	trigger, err := escalation.NewTrigger("*/5 * * * *", sweeper, logger)
//	if err != nil {
//	    return err
//	}
//	trigger.Start(ctx)
type Trigger struct {
	spec     string
	schedule cron.Schedule
	runnable Runnable
	logger   *log.Logger
	now      func() time.Time
}

// NewTrigger parses a standard 5-field cron spec (minute hour dom month dow).
// Descriptors such as "@every 5m" and "@hourly" are accepted too.
func NewTrigger(spec string, runnable Runnable, logger *log.Logger) (*Trigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Trigger{
		spec:     spec,
		schedule: schedule,
		runnable: runnable,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (t *Trigger) Spec() string { return t.spec }

// Start launches the scheduling loop and returns immediately.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run after now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(t.now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.schedule.Next(t.now())
		wait := time.Until(next)
		t.logger.Debug("waiting for next sweep", "next_run", next, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info("sweep trigger shutting down")
			return
		case <-timer.C:
			t.execute(ctx)
		}
	}
}

func (t *Trigger) execute(ctx context.Context) {
	if err := t.runnable.Run(ctx); err != nil {
		t.logger.Warn("scheduled sweep failed", "err", err)
	}
}
