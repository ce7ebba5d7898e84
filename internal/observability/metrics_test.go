package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestTickOutcomesAndIterationsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.TickProcessed("ok")
	collector.TickProcessed("ok")
	collector.TickProcessed("degraded")
	collector.ObserveSolverIterations(7)
	collector.ObserveSolverIterations(12)

	if got := testutil.ToFloat64(collector.Ticks.WithLabelValues("ok")); got != 2 {
		t.Fatalf("sim_ticks_total{outcome=ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Ticks.WithLabelValues("degraded")); got != 1 {
		t.Fatalf("sim_ticks_total{outcome=degraded} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "sim_solver_iterations", nil); count != 2 {
		t.Fatalf("sim_solver_iterations sample_count = %d, want 2", count)
	}
}

func TestPlantStateGaugeTracksCurrentModeOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.RecordPlant("ColdShutdownSolid", "Unavailable", 94.7, 120, 100)
	collector.RecordPlant("BubbleFormation/Detection", "Unavailable", 427, 130, 100)

	if got := testutil.ToFloat64(collector.PlantState.WithLabelValues("ColdShutdownSolid", "Unavailable")); got != 0 {
		t.Fatalf("stale plant state still set: %v", got)
	}
	if got := testutil.ToFloat64(collector.PlantState.WithLabelValues("BubbleFormation/Detection", "Unavailable")); got != 1 {
		t.Fatalf("current plant state = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.PressurizerPressure); got != 427 {
		t.Fatalf("sim_pressurizer_pressure_psia = %v, want 427", got)
	}
}

func TestMetricsHandlerExposesEngineSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.TickProcessed("ok")
	collector.ObserveSolverIterations(3)
	collector.RecordPlant("ColdShutdownSolid", "Unavailable", 94.7, 120, 100)
	collector.RecordSGPressure(0, 14.7)
	collector.RecordSGPressure(1, 15.2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_ticks_total",
		"sim_solver_iterations",
		"sim_pressurizer_pressure_psia",
		"sim_pressurizer_level_pct",
		"sim_loop_tavg_f",
		"sim_sg_pressure_psia",
		"sim_plant_state",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, `generator="1"`) {
		t.Fatalf("/metrics output missing per-generator series: %s", body)
	}
}

func TestRegistrationIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewEngineCollector(reg); err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	if _, err := NewEngineCollector(reg); err != nil {
		t.Fatalf("second NewEngineCollector on same registry: %v", err)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
