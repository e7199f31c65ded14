package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/metrics"
)

func testRuntime(reg prometheus.Registerer) Runtime {
	return Runtime{
		Store:   StorePolicy{Timeout: 50 * time.Millisecond, Retries: 3, Backoff: time.Millisecond},
		Metrics: metrics.New(reg),
		Logger:  log.New(io.Discard),
	}.withDefaults()
}

func TestReadRetriesTransientAndTimeouts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := testRuntime(reg)

	calls := 0
	got, err := readStore(context.Background(), rt, "users.get", func(ctx context.Context) (string, error) {
		calls++
		switch calls {
		case 1:
			return "", fmt.Errorf("busy: %w", domain.ErrTransient)
		case 2:
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)

	expected := `
# HELP chatcore_store_retries_total Store calls retried after a transient failure
# TYPE chatcore_store_retries_total counter
chatcore_store_retries_total{op="users.get"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "chatcore_store_retries_total"))
}

func TestReadGivesUpAfterRetries(t *testing.T) {
	rt := testRuntime(prometheus.NewRegistry())

	calls := 0
	_, err := readStore(context.Background(), rt, "users.get", func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrTransient
	})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 3, calls)
}

func TestWriteRetriesOnlyTransient(t *testing.T) {
	rt := testRuntime(prometheus.NewRegistry())

	calls := 0
	err := writeStore(context.Background(), rt, "messages.create", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls, "a timed out write may have been applied")

	calls = 0
	err = writeStore(context.Background(), rt, "messages.create", func(context.Context) error {
		calls++
		if calls == 1 {
			return domain.ErrTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = writeStore(context.Background(), rt, "messages.create", func(context.Context) error {
		calls++
		return domain.ErrConflict
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsWithCallerContext(t *testing.T) {
	rt := testRuntime(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := writeStore(ctx, rt, "messages.create", func(context.Context) error {
		calls++
		cancel()
		return domain.ErrTransient
	})
	assert.True(t, errors.Is(err, domain.ErrTransient))
	assert.Equal(t, 1, calls)
}
