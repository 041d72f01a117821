// Package poll waits for an asynchronous remote operation to finish, with the
// check interval and the overall deadline as explicit parameters.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when MaxWait elapses before the condition holds.
var ErrTimeout = errors.New("condition not met before deadline")

// CheckFunc reports whether the awaited condition holds. A non-nil error
// aborts the wait.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Options bounds a wait
type Options struct {
	Interval time.Duration
	MaxWait  time.Duration
	// Immediate runs the first check before waiting one interval.
	Immediate bool
}

// Until runs check every Interval until it reports done, returns an error, the
// MaxWait deadline passes (ErrTimeout) or ctx is cancelled (ctx.Err()). It
// returns the number of checks performed.
//
// Each check receives a context that expires at the MaxWait deadline, and no
// check is started once the deadline has passed. A check that fails because
// the deadline expired under it yields ErrTimeout.
func Until(ctx context.Context, opts Options, check CheckFunc) (int, error) {
	if opts.Interval <= 0 {
		return 0, errors.New("poll interval must be positive")
	}

	dctx, cancel := context.WithTimeout(ctx, opts.MaxWait)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	checks := 0
	expired := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrTimeout
	}
	run := func() (bool, error) {
		checks++
		done, err := check(dctx)
		if err != nil && dctx.Err() != nil {
			return false, expired()
		}
		return done, err
	}

	if opts.Immediate && dctx.Err() == nil {
		if done, err := run(); err != nil || done {
			return checks, err
		}
	}

	for {
		select {
		case <-dctx.Done():
			return checks, expired()
		case <-ticker.C:
			// the deadline may have passed while the tick was pending
			if dctx.Err() != nil {
				return checks, expired()
			}
			done, err := run()
			if err != nil || done {
				return checks, err
			}
		}
	}
}
