package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunLoopCollector exposes Prometheus metrics for the simulator's outer run
// loop: wall-clock cost per step, simulation time reached, and operator
// console activity.
type RunLoopCollector struct {
	gatherer prometheus.Gatherer

	StepDuration     prometheus.Histogram
	SimTimeHours     prometheus.Gauge
	OperatorActions  *prometheus.CounterVec
	RejectedRequests prometheus.Counter
}

// NewRunLoopCollector registers run-loop metrics against the provided registerer.
func NewRunLoopCollector(reg prometheus.Registerer) (*RunLoopCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stepHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_step_duration_seconds",
		Help:    "Wall-clock duration of one simulation step including bookkeeping.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	stepHistogram, err := registerHistogram(reg, stepHistogram, "sim_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	simTime := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_time_hours",
		Help: "Simulation time reached so far, in hours.",
	})
	simTime, err = registerGauge(reg, simTime, "sim_time_hours")
	if err != nil {
		return nil, err
	}

	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_operator_actions_total",
		Help: "Scripted or console operator actions applied, labeled by action.",
	}, []string{"action"})
	actions, err = registerCounterVec(reg, actions, "sim_operator_actions_total")
	if err != nil {
		return nil, err
	}

	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_rejected_requests_total",
		Help: "Cumulative operator requests ignored because their permissive guards did not hold.",
	})
	rejected, err = registerCounter(reg, rejected, "sim_rejected_requests_total")
	if err != nil {
		return nil, err
	}

	return &RunLoopCollector{
		gatherer:         gatherer,
		StepDuration:     stepHistogram,
		SimTimeHours:     simTime,
		OperatorActions:  actions,
		RejectedRequests: rejected,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RunLoopCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveStep records the wall-clock duration of one simulation step.
func (c *RunLoopCollector) ObserveStep(d time.Duration) {
	if c == nil || c.StepDuration == nil {
		return
	}
	c.StepDuration.Observe(d.Seconds())
}

// SetSimHours updates the simulation time gauge.
func (c *RunLoopCollector) SetSimHours(hours float64) {
	if c == nil || c.SimTimeHours == nil {
		return
	}
	c.SimTimeHours.Set(hours)
}

// IncOperatorAction counts one applied operator action.
func (c *RunLoopCollector) IncOperatorAction(action string) {
	if c == nil || c.OperatorActions == nil {
		return
	}
	c.OperatorActions.WithLabelValues(action).Inc()
}

// AddRejectedRequests accumulates newly observed rejected operator requests.
func (c *RunLoopCollector) AddRejectedRequests(n int) {
	if c == nil || c.RejectedRequests == nil || n <= 0 {
		return
	}
	c.RejectedRequests.Add(float64(n))
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
