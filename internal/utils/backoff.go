package utils

import (
	"context"
	"math/rand"
	"time"
)

type Backoff struct {
	base       time.Duration
	maxRetries int
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries}
}

// Do calls fn until it succeeds or maxRetries retries were spent, sleeping
// base*2^i plus jitter between attempts. Returns the last error.
func (b Backoff) Do(ctx context.Context, fn func(i int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		if i == b.maxRetries {
			break
		}
		// backoff exponencial + jitter
		t := time.Duration(1<<i) * b.base
		if b.base > 0 {
			t += time.Duration(rand.Int63n(int64(b.base)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t):
		}
	}
	return err
}
