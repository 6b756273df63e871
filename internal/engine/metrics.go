package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/stepnav/internal/ir"
)

// Metrics exposes Prometheus collectors that report navigation activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions    *prometheus.CounterVec
	terminations   *prometheus.CounterVec
	presentations  *prometheus.CounterVec
	backNavs       *prometheus.CounterVec
	typeMismatches *prometheus.CounterVec
	activeRuns     prometheus.Gauge
}

// MustNewMetrics constructs Metrics on reg. Collectors already registered on
// reg are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepnav",
			Subsystem: "navigator",
			Name:      "transitions_total",
			Help:      "Forward transitions computed, by how the destination was chosen.",
		}, []string{"task", "via"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepnav",
			Subsystem: "run",
			Name:      "terminations_total",
			Help:      "Runs that reached a terminal state, by reason.",
		}, []string{"task", "reason"}),
		presentations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepnav",
			Subsystem: "run",
			Name:      "presentations_total",
			Help:      "Steps handed to the presenter.",
		}, []string{"task"}),
		backNavs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepnav",
			Subsystem: "run",
			Name:      "back_navigations_total",
			Help:      "Back-navigation requests, by outcome.",
		}, []string{"task", "outcome"}),
		typeMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepnav",
			Subsystem: "navigator",
			Name:      "predicate_errors_total",
			Help:      "Predicate evaluations that failed and were treated as no match.",
		}, []string{"task", "trigger"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stepnav",
			Subsystem: "run",
			Name:      "active",
			Help:      "Runs started and not yet terminated.",
		}),
	}

	counters := []**prometheus.CounterVec{
		&m.transitions, &m.terminations, &m.presentations, &m.backNavs, &m.typeMismatches,
	}
	for _, c := range counters {
		if err := reg.Register(*c); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			*c = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	if err := reg.Register(m.activeRuns); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		m.activeRuns = already.ExistingCollector.(prometheus.Gauge)
	}
	return m
}

// ObserveTransition counts a computed transition.
func (m *Metrics) ObserveTransition(task string, via Via) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(task, string(via)).Inc()
}

// ObserveTermination counts a finished run.
func (m *Metrics) ObserveTermination(task string, reason ir.TerminationReason) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(task, string(reason)).Inc()
}

// ObservePresentation counts a step handed to the presenter.
func (m *Metrics) ObservePresentation(task string) {
	if m == nil {
		return
	}
	m.presentations.WithLabelValues(task).Inc()
}

// ObserveBack counts a back-navigation request. outcome is "ok" or an error code.
func (m *Metrics) ObserveBack(task, outcome string) {
	if m == nil {
		return
	}
	m.backNavs.WithLabelValues(task, outcome).Inc()
}

// ObservePredicateError counts a predicate that could not be evaluated.
func (m *Metrics) ObservePredicateError(task string, trigger ir.StepID) {
	if m == nil {
		return
	}
	m.typeMismatches.WithLabelValues(task, string(trigger)).Inc()
}

// IncActiveRuns marks a run as started.
func (m *Metrics) IncActiveRuns() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// DecActiveRuns marks a run as no longer active.
func (m *Metrics) DecActiveRuns() {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
}
