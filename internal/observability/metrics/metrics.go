package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flows.
type BookingMetrics struct {
	transitionsTotal *prometheus.CounterVec
	conflictsTotal   prometheus.Counter
	searchLatency    prometheus.Histogram
	searchEmptyTotal prometheus.Counter
	tasksTotal       *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Booking status transitions committed",
		}, []string{"to_status", "reporter_role"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "bookings",
			Name:      "create_conflicts_total",
			Help:      "Booking creates rejected because the slot was taken",
		}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Latency of availability searches",
			Buckets:   prometheus.DefBuckets,
		}),
		searchEmptyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "search",
			Name:      "empty_results_total",
			Help:      "Availability searches returning no practitioners",
		}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduler",
			Name:      "tasks_total",
			Help:      "Background tasks processed by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.conflictsTotal, m.searchLatency, m.searchEmptyTotal, m.tasksTotal)
	return m
}

func (m *BookingMetrics) ObserveTransition(toStatus, reporterRole string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(toStatus, reporterRole).Inc()
}

func (m *BookingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *BookingMetrics) ObserveSearch(seconds float64, empty bool) {
	if m == nil {
		return
	}
	m.searchLatency.Observe(seconds)
	if empty {
		m.searchEmptyTotal.Inc()
	}
}

func (m *BookingMetrics) ObserveTask(kind, outcome string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(kind, outcome).Inc()
}
