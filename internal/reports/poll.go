package reports

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"time"
)

var ErrPollTimeout = errors.New("report not ready after max attempts")

// PollConfig bounds how long a report may take to generate.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

var DefaultPoll = PollConfig{Interval: 6 * time.Second, MaxAttempts: 90}

func (p PollConfig) orDefault(def PollConfig) PollConfig {
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// Poll calls check until it reports done, returns an error, the attempts
// run out (ErrPollTimeout) or ctx ends.
func Poll(ctx context.Context, pc PollConfig, check func(ctx context.Context, attempt int) (bool, error)) error {
	pc = pc.orDefault(DefaultPoll)
	for attempt := 1; attempt <= pc.MaxAttempts; attempt++ {
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == pc.MaxAttempts {
			break
		}
		t := time.NewTimer(pc.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return ErrPollTimeout
}

// Decompress gunzips b, falling back to the raw payload when b is not gzip.
func Decompress(b []byte) []byte {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return b
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return b
	}
	return out
}
