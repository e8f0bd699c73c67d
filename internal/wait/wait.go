// Package wait provides a bounded-retry condition wait that does not depend on
// any browser engine's own wait helpers.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kuitang/mango3-e2e/internal/errs"
)

const (
	// MinInterval is one animation frame. Polling faster than the page can
	// repaint only burns driver round trips.
	MinInterval = 16 * time.Millisecond

	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = 5 * time.Second
)

// Policy bounds a wait.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultPolicy returns the policy used when a caller passes the zero Policy.
func DefaultPolicy() Policy {
	return Policy{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

func (p Policy) normalized() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Interval < MinInterval {
		p.Interval = MinInterval
	}
	return p
}

// Condition reports whether the awaited state has been reached. observed is a
// human-readable description of what was seen, kept for the timeout
// diagnostic. A non-nil error that is not wrapped with Permanent is treated
// as "not yet" and retried.
type Condition func(ctx context.Context) (done bool, observed string, err error)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Until polls cond until it reports done, returns a permanent error, or the
// policy timeout elapses. On timeout the error is errs.DeadlineExceeded and
// names what was expected and the last observed state.
func Until(parent context.Context, expected string, policy Policy, cond Condition) error {
	policy = policy.normalized()
	ctx, cancel := context.WithTimeout(parent, policy.Timeout)
	defer cancel()

	var (
		lastObserved string
		lastErr      error
		permErr      error
		attempts     int
	)
	errNotYet := errors.New("condition not met")

	op := func() error {
		attempts++
		done, observed, err := cond(ctx)
		if observed != "" {
			lastObserved = observed
		}
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				permErr = perm.Err
				return err
			}
			lastErr = err
			return err
		}
		if !done {
			return errNotYet
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(policy.Interval), ctx)
	err := backoff.Retry(op, b)
	if err == nil {
		return nil
	}

	if permErr != nil {
		return permErr
	}
	if ctx.Err() == nil {
		return err
	}
	if parent.Err() != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("wait for %s abandoned", expected), parent.Err())
	}

	msg := fmt.Sprintf("timed out after %s waiting for %s (%d attempts)", policy.Timeout, expected, attempts)
	if lastObserved != "" {
		msg += "; last observed: " + lastObserved
	}
	if lastErr != nil {
		return errs.Wrap(errs.DeadlineExceeded, msg, lastErr)
	}
	return errs.New(errs.DeadlineExceeded, msg)
}
