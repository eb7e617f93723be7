// Package metrics exposes Prometheus metrics for watchers, notifications and
// operator mutations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sosconsole"

// Mutation results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds every collector of the plugin on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	deliveries    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	audioFailures prometheus.Counter
	mutations     *prometheus.CounterVec
	connectivity  *prometheus.GaugeVec
	activeAlerts  *prometheus.GaugeVec
}

// New creates and registers the collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of snapshot deliveries received",
		},
		[]string{"watcher"},
	)
	m.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of new-alert notifications fired",
		},
		[]string{"watcher"},
	)
	m.audioFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_failures_total",
			Help:      "Total number of tone cues that could not be emitted",
		},
	)
	m.mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total number of acknowledge and resolve operations",
		},
		[]string{"op", "result"}, // op: acknowledge, resolve; result: success, failure
	)
	m.connectivity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity",
			Help:      "1 when the watcher subscription is online, 0 otherwise",
		},
		[]string{"watcher"},
	)
	m.activeAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Number of alerts currently in the operator-visible list",
		},
		[]string{"watcher"},
	)

	for _, c := range []prometheus.Collector{
		m.deliveries,
		m.notifications,
		m.audioFailures,
		m.mutations,
		m.connectivity,
		m.activeAlerts,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordDelivery(watcherID string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(watcherID).Inc()
}

func (m *Metrics) RecordNotification(watcherID string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(watcherID).Inc()
}

func (m *Metrics) RecordAudioFailure() {
	if m == nil {
		return
	}
	m.audioFailures.Inc()
}

func (m *Metrics) RecordMutation(op string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.mutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetOnline(watcherID string, online bool) {
	if m == nil {
		return
	}
	v := 0.0
	if online {
		v = 1
	}
	m.connectivity.WithLabelValues(watcherID).Set(v)
}

func (m *Metrics) SetActiveAlerts(watcherID string, n int) {
	if m == nil {
		return
	}
	m.activeAlerts.WithLabelValues(watcherID).Set(float64(n))
}

// Forget drops the per-watcher series of a removed watcher.
func (m *Metrics) Forget(watcherID string) {
	if m == nil {
		return
	}
	m.deliveries.DeleteLabelValues(watcherID)
	m.notifications.DeleteLabelValues(watcherID)
	m.connectivity.DeleteLabelValues(watcherID)
	m.activeAlerts.DeleteLabelValues(watcherID)
}
