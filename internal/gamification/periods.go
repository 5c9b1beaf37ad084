package gamification

import (
	"time"

	"github.com/learnhub/backend/internal/models"
)

// midnight truncates t to the start of its calendar day in UTC.
func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodWindow returns the [start, end) window containing now for the given
// period. The weekly window starts on the most recent Sunday. The all_time
// window starts at the epoch and has no end.
func PeriodWindow(period string, now time.Time) (time.Time, *time.Time) {
	day := midnight(now)
	switch period {
	case models.PeriodDaily:
		end := day.AddDate(0, 0, 1)
		return day, &end
	case models.PeriodWeekly:
		start := day.AddDate(0, 0, -int(day.Weekday()))
		end := start.AddDate(0, 0, 7)
		return start, &end
	case models.PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		return start, &end
	default: // all_time
		return time.Unix(0, 0).UTC(), nil
	}
}

// periodLabel formats a window the way leaderboard responses report it.
func periodLabel(period string, start time.Time, end *time.Time) string {
	if end == nil {
		return period
	}
	// end is exclusive; report the last day inside the window.
	last := end.AddDate(0, 0, -1)
	return start.Format("2006-01-02") + " to " + last.Format("2006-01-02")
}
