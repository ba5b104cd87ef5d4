package reports

import (
	"context"
	"time"
)

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) StartDate() string { return r.Start.Format("2006-01-02") }
func (r DateRange) EndDate() string   { return r.End.Format("2006-01-02") }

// Days counts the days in the range, both ends included.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Ranges splits [today-days, today] into non-overlapping chunks of at most
// chunk days, newest first. today is now's calendar date.
func Ranges(now time.Time, days, chunk int) []DateRange {
	if days < 0 {
		days = 0
	}
	if chunk <= 0 {
		chunk = days + 1
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	earliest := today.AddDate(0, 0, -days)

	var out []DateRange
	for end := today; !end.Before(earliest); {
		start := end.AddDate(0, 0, -(chunk - 1))
		if start.Before(earliest) {
			start = earliest
		}
		out = append(out, DateRange{Start: start, End: end})
		end = start.AddDate(0, 0, -1)
	}
	return out
}

// FetchChunked calls fetch once per range and concatenates the rows. An
// empty chunk does not stop the others; a cancelled ctx does.
func FetchChunked[T any](ctx context.Context, ranges []DateRange, fetch func(context.Context, DateRange) []T) []T {
	var all []T
	for _, r := range ranges {
		if ctx.Err() != nil {
			break
		}
		all = append(all, fetch(ctx, r)...)
	}
	return all
}
