package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles Prometheus metrics for the simulation engine and
// provides a ready-to-serve /metrics handler.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Ticks            *prometheus.CounterVec
	SolverIterations prometheus.Histogram

	PressurizerPressure prometheus.Gauge
	PressurizerLevel    prometheus.Gauge
	LoopTavg            prometheus.Gauge
	SGPressure          *prometheus.GaugeVec
	PlantState          *prometheus.GaugeVec

	lastMode, lastBridge string
}

// NewEngineCollector registers engine Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total number of processed simulation ticks, labeled by outcome.",
	}, []string{"outcome"})
	ticks, err := registerCounterVec(reg, ticks, "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	iterations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_solver_iterations",
		Help:    "Pressurizer equilibrium solver iterations per tick.",
		Buckets: []float64{1, 2, 4, 8, 16, 24, 32, 48, 64},
	}), "sim_solver_iterations")
	if err != nil {
		return nil, err
	}

	pressure, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_pressurizer_pressure_psia",
		Help: "Pressurizer pressure in psia.",
	}), "sim_pressurizer_pressure_psia")
	if err != nil {
		return nil, err
	}
	level, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_pressurizer_level_pct",
		Help: "Pressurizer indicated level in percent.",
	}), "sim_pressurizer_level_pct")
	if err != nil {
		return nil, err
	}
	tavg, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_loop_tavg_f",
		Help: "Reactor coolant loop average temperature in degrees Fahrenheit.",
	}), "sim_loop_tavg_f")
	if err != nil {
		return nil, err
	}

	sgPressure := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_sg_pressure_psia",
		Help: "Steam generator secondary pressure in psia, labeled by generator index.",
	}, []string{"generator"})
	sgPressure, err = registerGaugeVec(reg, sgPressure, "sim_sg_pressure_psia")
	if err != nil {
		return nil, err
	}

	plantState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_plant_state",
		Help: "Current startup mode and heat-sink bridge state; the active combination holds value 1.",
	}, []string{"mode", "bridge"})
	plantState, err = registerGaugeVec(reg, plantState, "sim_plant_state")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:            gatherer,
		Ticks:               ticks,
		SolverIterations:    iterations,
		PressurizerPressure: pressure,
		PressurizerLevel:    level,
		LoopTavg:            tavg,
		SGPressure:          sgPressure,
		PlantState:          plantState,
	}, nil
}

// TickProcessed counts one engine tick by outcome ("ok", "degraded",
// "aborted", or "fatal").
func (c *EngineCollector) TickProcessed(outcome string) {
	if c == nil || c.Ticks == nil {
		return
	}
	c.Ticks.WithLabelValues(outcome).Inc()
}

// ObserveSolverIterations records the iteration count of one equilibrium
// solve.
func (c *EngineCollector) ObserveSolverIterations(n int) {
	if c == nil || c.SolverIterations == nil {
		return
	}
	c.SolverIterations.Observe(float64(n))
}

// RecordPlant publishes the headline plant state after a successful tick.
func (c *EngineCollector) RecordPlant(mode, bridge string, pressurePSIA, tavgF, levelPct float64) {
	if c == nil {
		return
	}
	if c.PressurizerPressure != nil {
		c.PressurizerPressure.Set(pressurePSIA)
	}
	if c.LoopTavg != nil {
		c.LoopTavg.Set(tavgF)
	}
	if c.PressurizerLevel != nil {
		c.PressurizerLevel.Set(levelPct)
	}
	if c.PlantState != nil {
		if c.lastMode != "" && (c.lastMode != mode || c.lastBridge != bridge) {
			c.PlantState.WithLabelValues(c.lastMode, c.lastBridge).Set(0)
		}
		c.PlantState.WithLabelValues(mode, bridge).Set(1)
		c.lastMode, c.lastBridge = mode, bridge
	}
}

// RecordSGPressure publishes one steam generator's secondary pressure.
func (c *EngineCollector) RecordSGPressure(index int, pressurePSIA float64) {
	if c == nil || c.SGPressure == nil {
		return
	}
	c.SGPressure.WithLabelValues(fmt.Sprintf("%d", index)).Set(pressurePSIA)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
