package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters for the booking engine. All observe
// methods are nil-safe so wiring stays optional in workers and tests.
type EngineMetrics struct {
	holdsTotal       *prometheus.CounterVec
	redeemsTotal     *prometheus.CounterVec
	releasesTotal    prometheus.Counter
	sweptTotal       prometheus.Counter
	transitionsTotal *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		holdsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "holds_total",
			Help:      "Slot hold attempts by result",
		}, []string{"result"}),
		redeemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "hold_redeems_total",
			Help:      "Hold redemptions by result",
		}, []string{"result"}),
		releasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "hold_releases_total",
			Help:      "Explicit early hold releases",
		}),
		sweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "holds_swept_total",
			Help:      "Expired holds removed by the sweeper",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target and result",
		}, []string{"target", "result"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Completed public bookings by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.holdsTotal,
		m.redeemsTotal,
		m.releasesTotal,
		m.sweptTotal,
		m.transitionsTotal,
		m.bookingsTotal,
	)
	return m
}

func (m *EngineMetrics) ObserveHold(result string) {
	if m == nil {
		return
	}
	m.holdsTotal.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveRedeem(result string) {
	if m == nil {
		return
	}
	m.redeemsTotal.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveRelease() {
	if m == nil {
		return
	}
	m.releasesTotal.Inc()
}

func (m *EngineMetrics) ObserveSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTotal.Add(float64(n))
}

func (m *EngineMetrics) ObserveTransition(target, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(target, result).Inc()
}

func (m *EngineMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}
