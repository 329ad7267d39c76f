package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for detector activity.
//
// Metrics:
//   - tailor_stage_transitions_total{stage,to} - committed stage transitions
//   - tailor_detector_results_total{outcome} - CheckAndAdvance outcomes
//   - tailor_detector_errors_total{kind} - CheckAndAdvance failures by error kind
//   - tailor_stalled_stages - stages past the stall timeout at the last poll
//   - tailor_active_jobs - jobs in the poll set at the last poll
type Metrics struct {
	Transitions   *prometheus.CounterVec
	Results       *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	StalledStages prometheus.Gauge
	ActiveJobs    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailor_stage_transitions_total",
			Help: "Total number of committed stage transitions",
		}, []string{"stage", "to"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailor_detector_results_total",
			Help: "Total number of completion detector results by outcome",
		}, []string{"outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailor_detector_errors_total",
			Help: "Total number of completion detector errors by kind",
		}, []string{"kind"}),
		StalledStages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tailor_stalled_stages",
			Help: "Number of stages waiting on agent output past the stall timeout",
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tailor_active_jobs",
			Help: "Number of jobs the poller visits each cycle",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Results, m.Errors, m.StalledStages, m.ActiveJobs)
	}
	return m
}

func (m *Metrics) observeResult(result Result) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(string(result.Outcome)).Inc()
}

func (m *Metrics) observeTransition(stage, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(stage, to).Inc()
}

func (m *Metrics) observeError(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) setPollGauges(active, stalled int) {
	if m == nil {
		return
	}
	m.ActiveJobs.Set(float64(active))
	m.StalledStages.Set(float64(stalled))
}
