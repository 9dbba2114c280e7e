package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kenvote/registry/internal/domain"
)

// RetryPolicy bounds how often a failing store I/O operation is retried.
type RetryPolicy struct {
	Retries  int           // additional attempts after the first
	Interval time.Duration // initial backoff interval
}

// DefaultRetryPolicy retries three times starting at 20ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Interval: 20 * time.Millisecond}
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Interval
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = time.Millisecond
	}
	eb.MaxInterval = 20 * eb.InitialInterval
	eb.MaxElapsedTime = 0
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// rejection marks an error returned by the caller's fn. It ends the retry
// loop and is handed back to the caller unchanged.
type rejection struct{ err error }

func (r *rejection) Error() string { return r.err.Error() }

func reject(err error) error { return &rejection{err: err} }

// transact runs op under the retry policy. Errors wrapped with reject are
// returned as-is without retrying; anything else counts as a transient I/O
// failure and becomes a StoreError once the policy is exhausted.
func (p RetryPolicy) transact(ctx context.Context, what string, op func() error) error {
	var rejected error
	err := backoff.Retry(func() error {
		err := op()
		var r *rejection
		if errors.As(err, &r) {
			rejected = r.err
			return backoff.Permanent(err)
		}
		return err
	}, p.backoff(ctx))
	if rejected != nil {
		return rejected
	}
	if err != nil {
		return domain.ErrStore(what+" failed", err)
	}
	return nil
}
