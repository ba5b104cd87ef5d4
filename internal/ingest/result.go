package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AngelCh415/amazon-brain/internal/metrics"
)

type Status string

const (
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one dataset sync.
type Result struct {
	Dataset  Dataset       `json:"dataset"`
	Status   Status        `json:"status"`
	Rows     int           `json:"rows"`
	Unmapped int           `json:"unmapped"`
	Deferred int           `json:"deferred"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

type Summary struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"-"`
	Results  []Result      `json:"results"`
}

func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			n++
		}
	}
	return n
}

func (s Summary) Result(d Dataset) (Result, bool) {
	for _, r := range s.Results {
		if r.Dataset == d {
			return r, true
		}
	}
	return Result{}, false
}

func (s Summary) log(l *slog.Logger) {
	rows, unmapped, deferred := 0, 0, 0
	for _, r := range s.Results {
		rows += r.Rows
		unmapped += r.Unmapped
		deferred += r.Deferred
	}
	l.Info("sync complete",
		slog.Int("datasets", len(s.Results)),
		slog.Int("failed", s.Failed()),
		slog.Int("rows", rows),
		slog.Int("unmapped", unmapped),
		slog.Int("deferred", deferred),
		slog.Duration("took", s.Duration))
}

// Phase is the lifecycle state of a dataset sync.
type Phase string

const (
	PhasePending     Phase = "PENDING"
	PhaseFetching    Phase = "FETCHING"
	PhaseAggregating Phase = "AGGREGATING"
	PhaseWriting     Phase = "WRITING"
	PhaseDone        Phase = "DONE"
	PhaseFailed      Phase = "FAILED"
)

var transitions = map[Phase][]Phase{
	PhasePending:     {PhaseFetching},
	PhaseFetching:    {PhaseAggregating, PhaseDone, PhaseFailed},
	PhaseAggregating: {PhaseWriting},
	PhaseWriting:     {PhaseDone, PhaseFailed},
}

// tracker walks one dataset through its phases and collects its counters.
type tracker struct {
	res   Result
	phase Phase
	bad   error
	start time.Time
	log   *slog.Logger
}

func newTracker(d Dataset, log *slog.Logger) *tracker {
	return &tracker{
		res:   Result{Dataset: d},
		phase: PhasePending,
		start: time.Now(),
		log:   log.With(slog.String("dataset", string(d))),
	}
}

// to moves to p. An illegal move is kept and fails the dataset at finish.
func (t *tracker) to(p Phase) {
	for _, next := range transitions[t.phase] {
		if next == p {
			t.log.Debug("phase", slog.String("from", string(t.phase)), slog.String("to", string(p)))
			t.phase = p
			return
		}
	}
	if t.bad == nil {
		t.bad = fmt.Errorf("invalid phase transition %s -> %s", t.phase, p)
	}
}

// finish closes the dataset: err moves it to FAILED, otherwise DONE.
func (t *tracker) finish(err error) Result {
	t.res.Duration = time.Since(t.start)
	if err == nil {
		t.to(PhaseDone)
		err = t.bad
	}
	if err != nil {
		t.phase = PhaseFailed
		t.res.Status = StatusFailed
		t.res.Err, t.res.Error = err, err.Error()
		t.log.Error("dataset failed", slog.Any("err", err), slog.Duration("took", t.res.Duration))
		return t.res
	}
	t.res.Status = StatusDone
	t.log.Info("dataset synced",
		slog.Int("rows", t.res.Rows),
		slog.Int("unmapped", t.res.Unmapped),
		slog.Int("deferred", t.res.Deferred),
		slog.Duration("took", t.res.Duration))
	return t.res
}

func observe(r Result) {
	ds := string(r.Dataset)
	metrics.DatasetDuration.WithLabelValues(ds, string(r.Status)).Observe(r.Duration.Seconds())
	metrics.RowsWritten.WithLabelValues(ds).Add(float64(r.Rows))
	metrics.UnmappedRecords.WithLabelValues(ds).Add(float64(r.Unmapped))
}
