package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("gonu", prometheus.NewRegistry())

	m.IncOnlinePlayers()
	m.IncOnlinePlayers()
	m.DecOnlinePlayers()
	m.SetActiveRooms(3)
	m.ObserveAction("place", OutcomeOK)
	m.ObserveAction("place", OutcomeOK)
	m.ObserveAction("move", OutcomeRejected)
	m.IncWriteConflicts()
	m.IncMatchesFinished("pumpkin")
	m.IncAnomalies()

	metrics := m.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OnlinePlayers))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ActiveRooms))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Actions.WithLabelValues("place", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Actions.WithLabelValues("move", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WriteConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MatchesFinished.WithLabelValues("pumpkin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Anomalies))
}

func TestMonitor_TwoRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMonitor("gonu", prometheus.NewRegistry())
		NewMonitor("gonu", prometheus.NewRegistry())
	})
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.IncOnlinePlayers()
		m.ObserveAction("ready", OutcomeOK)
		m.ObserveStoreLatency("write", time.Millisecond)
		m.SetActiveRooms(1)
	})
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("gonu", prometheus.NewRegistry())
	m.ObserveStoreLatency("write", 2*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `gonu_store_latency_seconds_count{op="write"} 1`))
}
