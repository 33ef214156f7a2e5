// Package progress tracks each member's weekly completion percentages.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/metrics"
	"github.com/skillswap/backend/internal/models"
)

// ErrOutOfRange is returned for values outside 0..100.
var ErrOutOfRange = errors.New("progress must be between 0 and 100")

// Day indexes a WeeklyProgress, Monday first.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [...]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func (d Day) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNames[d]
}

// DayOf maps t's weekday onto a Monday-first index.
func DayOf(t time.Time) Day {
	return Day((int(t.Weekday()) + 6) % 7)
}

// Apply records value for today. On Monday the whole week starts over; on other days
// every later slot is cleared. Earlier slots are left alone and today's slot takes
// value as given, even when that lowers it.
func Apply(week models.WeeklyProgress, today Day, value int) (models.WeeklyProgress, error) {
	if value < 0 || value > 100 {
		return week, ErrOutOfRange
	}
	if today < Monday || today > Sunday {
		return week, fmt.Errorf("invalid day %d", today)
	}

	if today == Monday {
		week = Reset()
	}
	for i := int(today) + 1; i < len(week); i++ {
		week[i] = 0
	}
	week[today] = value
	return week, nil
}

// Reset returns an all-zero week.
func Reset() models.WeeklyProgress {
	return models.WeeklyProgress{}
}

// Store persists weekly progress.
type Store interface {
	Progress(ctx context.Context, userID string) (models.WeeklyProgress, error)
	UpdateProgress(ctx context.Context, userID string, fn func(models.WeeklyProgress) (models.WeeklyProgress, error)) (models.WeeklyProgress, error)
	ResetAllProgress(ctx context.Context) (int64, error)
}

// Snapshot describes a member's progress as of today.
type Snapshot struct {
	Day      string                `json:"day"`
	Index    Day                   `json:"index"`
	Progress int                   `json:"progress"`
	Week     models.WeeklyProgress `json:"week"`
}

// Tracker applies progress updates in the configured timezone.
type Tracker struct {
	Store    Store
	Location *time.Location
	NowFunc  func() time.Time
}

func (t Tracker) today() Day {
	now := time.Now
	if t.NowFunc != nil {
		now = t.NowFunc
	}
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	return DayOf(now().In(loc))
}

// Update records value as today's progress for userID.
func (t Tracker) Update(ctx context.Context, userID string, value int) (Snapshot, error) {
	if value < 0 || value > 100 {
		return Snapshot{}, ErrOutOfRange
	}

	day := t.today()
	week, err := t.Store.UpdateProgress(ctx, userID, func(current models.WeeklyProgress) (models.WeeklyProgress, error) {
		return Apply(current, day, value)
	})
	if err != nil {
		return Snapshot{}, err
	}

	if day == Monday {
		metrics.ProgressResets.WithLabelValues("monday_update").Inc()
	}
	logging.FromContext(ctx).Debug("progress updated", "day", day.String(), "value", value)

	return snapshot(day, week), nil
}

// Today reports the stored progress for userID.
func (t Tracker) Today(ctx context.Context, userID string) (Snapshot, error) {
	week, err := t.Store.Progress(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot(t.today(), week), nil
}

// ResetAll zeroes the week of every member and reports how many were touched.
func (t Tracker) ResetAll(ctx context.Context) (int64, error) {
	n, err := t.Store.ResetAllProgress(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset all progress: %w", err)
	}
	metrics.ProgressResets.WithLabelValues("schedule").Inc()
	return n, nil
}

func snapshot(day Day, week models.WeeklyProgress) Snapshot {
	return Snapshot{Day: day.String(), Index: day, Progress: week[day], Week: week}
}
