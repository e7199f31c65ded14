package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors recorded by the service layer. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	accessDecisions      *prometheus.CounterVec
	notificationsCreated prometheus.Counter
	notificationFailures prometheus.Counter
	cacheLookups         *prometheus.CounterVec
	storeRetries         *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		accessDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_access_decisions_total",
				Help: "Access control decisions by operation and outcome",
			},
			[]string{"operation", "decision"},
		),
		notificationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "chatcore_notifications_created_total",
			Help: "Notifications newly created for message receivers",
		}),
		notificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "chatcore_notification_failures_total",
			Help: "Notification dispatches that failed and were swallowed",
		}),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_conversation_view_cache_total",
				Help: "Conversation view cache lookups by result",
			},
			[]string{"result"},
		),
		storeRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_store_retries_total",
				Help: "Store calls retried after a transient failure",
			},
			[]string{"op"},
		),
	}
}

func (m *Metrics) AccessDecision(operation string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.accessDecisions.WithLabelValues(operation, decision).Inc()
}

func (m *Metrics) NotificationsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notificationsCreated.Add(float64(n))
}

func (m *Metrics) NotificationFailure() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}

// CacheLookup records a hit, miss or error on the conversation view cache.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreRetry(op string) {
	if m == nil {
		return
	}
	m.storeRetries.WithLabelValues(op).Inc()
}
