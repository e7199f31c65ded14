package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/metrics"
)

func TestAccessDecisionsAreCountedByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.AccessDecision("read", true)
	m.AccessDecision("read", false)
	m.AccessDecision("read", false)

	expected := `
# HELP chatcore_access_decisions_total Access control decisions by operation and outcome
# TYPE chatcore_access_decisions_total counter
chatcore_access_decisions_total{decision="allow",operation="read"} 1
chatcore_access_decisions_total{decision="deny",operation="read"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "chatcore_access_decisions_total"))
}

func TestNotificationCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.NotificationsCreated(3)
	m.NotificationsCreated(0)
	m.NotificationFailure()

	count, err := testutil.GatherAndCount(reg, "chatcore_notifications_created_total", "chatcore_notification_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.AccessDecision("read", true)
		m.NotificationsCreated(1)
		m.NotificationFailure()
		m.CacheLookup("hit")
		m.StoreRetry("get message")
	})
}
