package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestEngineMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.ObserveHold("created")
	m.ObserveHold("created")
	m.ObserveHold("conflict")
	m.ObserveSwept(3)
	m.ObserveSwept(0) // no-op
	m.ObserveTransition("confirmed", "ok")

	require.Equal(t, float64(2), testutil.ToFloat64(m.holdsTotal.WithLabelValues("created")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.holdsTotal.WithLabelValues("conflict")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.sweptTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(m.transitionsTotal.WithLabelValues("confirmed", "ok")))
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics

	require.NotPanics(t, func() {
		m.ObserveHold("created")
		m.ObserveRedeem("ok")
		m.ObserveRelease()
		m.ObserveSwept(1)
		m.ObserveTransition("confirmed", "ok")
		m.ObserveBooking("ok")
	})
}
