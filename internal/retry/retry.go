// Package retry is the single retry/backoff utility shared by the listing,
// enrichment, and download stages.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy controls how often an operation is reattempted and how long to wait
// between attempts. Waits grow exponentially from BaseDelay up to MaxDelay,
// with up to 25% random jitter added on top.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Classify decides whether an error is worth another attempt. A nil
	// classifier treats every error as transient.
	Classify func(error) Class
}

type Class int

const (
	Transient Class = iota
	Fatal
)

// ErrFatal can be wrapped by operations to abort retrying without a custom
// classifier.
var ErrFatal = errors.New("fatal")

// Do runs op until it succeeds, the attempt budget is exhausted, a fatal
// error is returned, or ctx is cancelled. The last error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if classify(p, lastErr) == Fatal {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := Backoff(p, attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// Backoff returns the wait before the attempt following attempt n (1-based).
// Growth is strictly exponential until MaxDelay caps it.
func Backoff(p Policy, attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	wait := base << (attempt - 1)
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(wait)/4 + 1))
	if p.MaxDelay > 0 && wait+jitter > p.MaxDelay {
		return p.MaxDelay
	}
	return wait + jitter
}

func classify(p Policy, err error) Class {
	if errors.Is(err, ErrFatal) {
		return Fatal
	}
	if p.Classify == nil {
		return Transient
	}
	return p.Classify(err)
}
