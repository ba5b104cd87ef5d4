package aggregate

import (
	"sort"
	"strings"
	"time"
)

// Metrics are the additive counters every dataset sums per bucket.
type Metrics struct {
	Impressions int
	Clicks      int
	Spend       float64
	Sales       float64
	Orders      int
	Units       int
	Revenue     float64
}

func (m *Metrics) add(o Metrics) {
	m.Impressions += max0(o.Impressions)
	m.Clicks += max0(o.Clicks)
	m.Spend += maxf(o.Spend)
	m.Sales += maxf(o.Sales)
	m.Orders += max0(o.Orders)
	m.Units += max0(o.Units)
	m.Revenue += maxf(o.Revenue)
}

// Record is the normalized shape every raw report row is turned into
// before bucketing.
type Record struct {
	Date    time.Time
	Keys    []string
	OrderID string
	Metrics
}

type Bucket struct {
	WeekStart time.Time
	Keys      []string
	Metrics
	orderIDs map[string]struct{}
}

// Key returns the i-th group key, or "" when out of range.
func (b Bucket) Key(i int) string {
	if i < 0 || i >= len(b.Keys) {
		return ""
	}
	return b.Keys[i]
}

// DistinctOrders counts unique order ids seen in the bucket.
func (b Bucket) DistinctOrders() int { return len(b.orderIDs) }

// Aggregator groups records by (week start, keys...). Not safe for
// concurrent use.
type Aggregator struct {
	cal     Calendar
	buckets map[string]*Bucket
	dropped int
}

func New(cal Calendar) *Aggregator {
	return &Aggregator{cal: cal, buckets: make(map[string]*Bucket)}
}

// Add folds r into its bucket. Records with an empty group key are dropped
// and counted; Add reports whether r was kept.
func (a *Aggregator) Add(r Record) bool {
	if len(r.Keys) == 0 {
		a.dropped++
		return false
	}
	for _, k := range r.Keys {
		if strings.TrimSpace(k) == "" {
			a.dropped++
			return false
		}
	}
	ws := a.cal.WeekStart(r.Date)
	id := FormatDay(ws) + "|" + strings.Join(r.Keys, "|")
	b, ok := a.buckets[id]
	if !ok {
		b = &Bucket{WeekStart: ws, Keys: append([]string(nil), r.Keys...), orderIDs: map[string]struct{}{}}
		a.buckets[id] = b
	}
	b.Metrics.add(r.Metrics)
	if r.OrderID != "" {
		b.orderIDs[r.OrderID] = struct{}{}
	}
	return true
}

func (a *Aggregator) Dropped() int { return a.dropped }
func (a *Aggregator) Len() int     { return len(a.buckets) }

// Buckets returns a snapshot ordered by week, then keys.
func (a *Aggregator) Buckets() []Bucket {
	out := make([]Bucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekStart.Equal(out[j].WeekStart) {
			return out[i].WeekStart.Before(out[j].WeekStart)
		}
		return strings.Join(out[i].Keys, "|") < strings.Join(out[j].Keys, "|")
	})
	return out
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}
func maxf(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
