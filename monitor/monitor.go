// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 动作结果标签
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

type Metrics struct {
	OnlinePlayers   prometheus.Gauge
	ActiveRooms     prometheus.Gauge
	Actions         *prometheus.CounterVec
	WriteConflicts  prometheus.Counter
	StoreLatency    *prometheus.HistogramVec
	MatchesFinished *prometheus.CounterVec
	Anomalies       prometheus.Counter
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected websocket clients",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of session actors running in this process",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Player actions by kind and outcome",
		}, []string{"action", "outcome"}),
		WriteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_conflicts_total",
			Help:      "Session writes rejected because the record changed underneath",
		}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_latency_seconds",
			Help:      "Session store call latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		MatchesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Finished matches by board",
		}, []string{"map"}),
		Anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_anomalies_total",
			Help:      "Change notifications that could not follow from the local view",
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.Actions,
		m.WriteConflicts,
		m.StoreLatency,
		m.MatchesFinished,
		m.Anomalies,
	)

	return m
}

var publishOnce sync.Once

// Monitor wraps the metrics; a nil *Monitor records nothing.
type Monitor struct {
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	startTime time.Time
}

// NewMonitor registers the metrics on reg. Pass prometheus.NewRegistry() in tests.
func NewMonitor(namespace string, reg *prometheus.Registry) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		gatherer:  reg,
		startTime: time.Now(),
	}
	publishOnce.Do(func() {
		// 添加expvar指标
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
	})
	return m
}

func (m *Monitor) Metrics() *Metrics { return m.metrics }

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Monitor) IncOnlinePlayers() {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	m.metrics.Actions.WithLabelValues(action, outcome).Inc()
}

func (m *Monitor) IncWriteConflicts() {
	if m == nil {
		return
	}
	m.metrics.WriteConflicts.Inc()
}

func (m *Monitor) ObserveStoreLatency(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.StoreLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Monitor) IncMatchesFinished(mapID string) {
	if m == nil {
		return
	}
	m.metrics.MatchesFinished.WithLabelValues(mapID).Inc()
}

func (m *Monitor) IncAnomalies() {
	if m == nil {
		return
	}
	m.metrics.Anomalies.Inc()
}
