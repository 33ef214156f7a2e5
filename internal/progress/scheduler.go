package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skillswap/backend/internal/logging"
)

// DefaultResetSchedule fires every Monday at noon.
const DefaultResetSchedule = "0 12 * * 1"

// Resetter clears every member's week.
type Resetter interface {
	ResetAll(ctx context.Context) (int64, error)
}

// WeeklyReset runs a Resetter on a cron schedule.
type WeeklyReset struct {
	cron     *cron.Cron
	schedule cron.Schedule
	resetter Resetter
	logger   *slog.Logger
	timeout  time.Duration
}

// NewWeeklyReset validates spec (standard five-field cron syntax) and registers the
// reset job. The scheduler does not run until Start is called.
func NewWeeklyReset(resetter Resetter, spec string, loc *time.Location, logger *slog.Logger) (*WeeklyReset, error) {
	if spec == "" {
		spec = DefaultResetSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", spec, err)
	}

	w := &WeeklyReset{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		resetter: resetter,
		logger:   logger,
		timeout:  time.Minute,
	}
	if _, err := w.cron.AddFunc(spec, w.run); err != nil {
		return nil, fmt.Errorf("register reset job: %w", err)
	}
	return w, nil
}

// Next reports when the reset will next fire after t.
func (w *WeeklyReset) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}

// Start launches the scheduler in the background.
func (w *WeeklyReset) Start() {
	w.cron.Start()
}

// Stop halts the scheduler and waits for a running reset, bounded by ctx.
func (w *WeeklyReset) Stop(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WeeklyReset) run() {
	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), w.logger), w.timeout)
	defer cancel()

	ctx, span := logging.StartSpan(ctx, "progress.weekly_reset")
	defer span.End()

	n, err := w.resetter.ResetAll(ctx)
	if err != nil {
		span.Fail(err)
		return
	}
	logging.FromContext(ctx).Info("weekly progress reset", "users", n)
}
