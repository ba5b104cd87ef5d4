package aggregate

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Calendar fixes the timezone used to decide which day, and therefore which
// week, a timestamp belongs to. Every sync and the cron job share one.
type Calendar struct {
	Loc *time.Location
}

func NewCalendar(tz string) (Calendar, error) {
	if tz == "" {
		return Calendar{Loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Calendar{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return Calendar{Loc: loc}, nil
}

func (c Calendar) loc() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// Day returns the calendar date of t as UTC midnight.
func (c Calendar) Day(t time.Time) time.Time {
	y, m, d := t.In(c.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of t's week (as a UTC-midnight date).
// Sunday belongs to the week that started six days earlier.
func (c Calendar) WeekStart(t time.Time) time.Time {
	day := c.Day(t)
	wd := int(day.Weekday())
	shift := wd - 1
	if wd == 0 {
		shift = 6
	}
	return day.AddDate(0, 0, -shift)
}

// ParseDay parses a YYYY-MM-DD report date as midnight in the calendar's
// timezone, so WeekStart keeps it on the same day.
func (c Calendar) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(dayLayout, s, c.loc())
}

// WeekStart buckets t with the UTC calendar.
func WeekStart(t time.Time) time.Time { return Calendar{}.WeekStart(t) }

func FormatDay(t time.Time) string { return t.Format(dayLayout) }
