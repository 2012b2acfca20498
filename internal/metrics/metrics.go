// metrics — Prometheus-метрики клиента: REST-вызовы (счётчик и гистограмма
// длительности по аналогии с grpc_prometheus), refresh, push-события,
// загрузки снапшотов и переподключения канала.
//
// Все методы безопасны для nil *Metrics (метрики отключены).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forum_client"

type Metrics struct {
	requests      *prometheus.CounterVec
	handlingTime  *prometheus.HistogramVec
	refresh       *prometheus.CounterVec
	pushEvents    *prometheus.CounterVec
	snapshotLoads *prometheus.CounterVec
	reconnects    prometheus.Counter
}

// New создаёт метрики и регистрирует их в reg.
// reg == nil — используется prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "REST calls to the forum backend by method and status code.",
		}, []string{"method", "code"}),
		handlingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "REST call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Credential refresh attempts by result.",
		}, []string{"result"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_total",
			Help:      "Push events by topic kind and outcome (applied, duplicate, dropped).",
		}, []string{"kind", "outcome"}),
		snapshotLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_loads_total",
			Help:      "Transcript snapshot loads by topic kind and result.",
		}, []string{"kind", "result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Realtime channel reconnections.",
		}),
	}

	reg.MustRegister(m.requests, m.handlingTime, m.refresh, m.pushEvents, m.snapshotLoads, m.reconnects)
	return m
}

// Request учитывает завершённый REST-вызов. code == 0 — сетевая ошибка.
func (m *Metrics) Request(method string, code int, dur time.Duration) {
	if m == nil {
		return
	}

	c := "error"
	if code > 0 {
		c = strconv.Itoa(code)
	}

	m.requests.WithLabelValues(method, c).Inc()
	m.handlingTime.WithLabelValues(method).Observe(dur.Seconds())
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(result).Inc()
}

func (m *Metrics) PushEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SnapshotLoad(kind, result string) {
	if m == nil {
		return
	}
	m.snapshotLoads.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
