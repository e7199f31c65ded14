package service

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"chatcore/internal/domain"
	"chatcore/internal/metrics"
)

// StorePolicy bounds every store call made by a service.
type StorePolicy struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Runtime carries the collaborators shared by all services.
type Runtime struct {
	Store   StorePolicy
	Metrics *metrics.Metrics
	Logger  *log.Logger
	Now     func() time.Time
}

func (r Runtime) withDefaults() Runtime {
	if r.Store.Timeout <= 0 {
		r.Store.Timeout = 5 * time.Second
	}
	if r.Store.Retries < 1 {
		r.Store.Retries = 3
	}
	if r.Store.Backoff <= 0 {
		r.Store.Backoff = 20 * time.Millisecond
	}
	if r.Logger == nil {
		r.Logger = log.Default()
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	return r
}

func (r Runtime) now() time.Time { return r.Now().UTC() }

// readStore runs a read with a per-attempt timeout. Reads are idempotent, so
// both transient store errors and attempt timeouts are retried.
func readStore[T any](ctx context.Context, rt Runtime, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retryStore(ctx, rt, op, func(err error) bool {
		return errors.Is(err, domain.ErrTransient) || errors.Is(err, context.DeadlineExceeded)
	}, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// writeStore runs a write with a per-attempt timeout. It is retried only
// when the store reports that nothing was applied.
func writeStore(ctx context.Context, rt Runtime, op string, fn func(context.Context) error) error {
	return retryStore(ctx, rt, op, func(err error) bool {
		return errors.Is(err, domain.ErrTransient)
	}, fn)
}

func retryStore(ctx context.Context, rt Runtime, op string, retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, rt.Store.Timeout)
		err = fn(attemptCtx)
		cancel()

		if err == nil || attempt >= rt.Store.Retries || !retryable(err) || ctx.Err() != nil {
			return err
		}

		rt.Metrics.StoreRetry(op)
		rt.Logger.Debug("retrying store call", "op", op, "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * rt.Store.Backoff):
		}
	}
}
