package core

import (
	"math"
	"strings"
	"testing"

	"github.com/meridiansim/plant-startup-simulator/model"
	"github.com/meridiansim/plant-startup-simulator/props"
)

func newTestSecondary(t *testing.T) (*SecondaryModel, *SteamGeneratorState, *props.SteamTable, model.PlantConfig) {
	t.Helper()
	st, err := props.NewSteamTable()
	if err != nil {
		t.Fatalf("steam table: %v", err)
	}
	cfg := model.DefaultPlantConfig()
	return NewSecondaryModel(st, cfg), newSteamGeneratorState(cfg), st, cfg
}

func TestSecondary_ThermoclineNeverRetreats(t *testing.T) {
	sm, sg, _, _ := newTestSecondary(t)

	prevFracs := make([]float64, len(sg.Nodes))
	for i, n := range sg.Nodes {
		prevFracs[i] = n.AreaFraction
	}

	bc := model.HeatSinkBoundary{Available: false}
	for tick := 0; tick < 400; tick++ {
		if _, err := sm.Step(sg, 420, bc, false, false, 0.01); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		for i, n := range sg.Nodes {
			if n.AreaFraction < prevFracs[i] {
				t.Fatalf("tick %d node %d: area fraction retreated %.3f -> %.3f",
					tick, i, prevFracs[i], n.AreaFraction)
			}
			prevFracs[i] = n.AreaFraction
		}
	}

	// With sustained heat input the thermocline must actually advance.
	advanced := 0
	for _, f := range prevFracs {
		if f == 1.0 {
			advanced++
		}
	}
	if advanced < 2 {
		t.Fatalf("thermocline never advanced past the top node: %v", prevFracs)
	}
}

func TestSecondary_PressureIsSaturationOfHottestNode(t *testing.T) {
	sm, sg, st, _ := newTestSecondary(t)

	bc := model.HeatSinkBoundary{Available: false}
	for tick := 0; tick < 600; tick++ {
		if _, err := sm.Step(sg, 480, bc, false, false, 0.01); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
	}
	hot := sg.HottestNodeTempF()
	if hot < 250 {
		t.Fatalf("expected secondary heatup past 250°F, got %.1f", hot)
	}
	want, err := st.SaturationPressure(hot)
	if err != nil {
		t.Fatalf("saturation pressure: %v", err)
	}
	if math.Abs(sg.PressurePSIA-want) > 1e-9 {
		t.Fatalf("pressure %.3f psia is not the saturation value %.3f for hottest node %.1f°F",
			sg.PressurePSIA, want, hot)
	}

	// A primary temperature step with the heat sink unavailable must not pull
	// pressure below the hottest node's saturation-consistent value.
	if _, err := sm.Step(sg, 560, bc, false, false, 0.01); err != nil {
		t.Fatalf("step increase: %v", err)
	}
	hot = sg.HottestNodeTempF()
	want, err = st.SaturationPressure(hot)
	if err != nil {
		t.Fatalf("saturation pressure: %v", err)
	}
	if sg.PressurePSIA < want-1e-9 {
		t.Fatalf("pressure %.3f psia fell below saturation-consistent %.3f", sg.PressurePSIA, want)
	}
}

func TestSecondary_NegativeHeatFlowFreezesNodes(t *testing.T) {
	sm, sg, _, _ := newTestSecondary(t)

	for i := range sg.Nodes {
		sg.Nodes[i].TempF = 300
	}
	before := make([]float64, len(sg.Nodes))
	for i, n := range sg.Nodes {
		before[i] = n.TempF
	}

	res, err := sm.Step(sg, 150, model.HeatSinkBoundary{}, false, false, 0.01)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !sg.Frozen {
		t.Fatalf("expected frozen state on negative heat flow")
	}
	if len(res.Discrepancies) == 0 {
		t.Fatalf("expected reported discrepancies")
	}
	if !strings.Contains(res.Discrepancies[0], "negative heat flow") {
		t.Fatalf("discrepancy should name the condition: %q", res.Discrepancies[0])
	}
	for i, n := range sg.Nodes {
		if n.TempF != before[i] {
			t.Fatalf("node %d temperature changed on frozen tick: %.2f -> %.2f", i, before[i], n.TempF)
		}
	}
	if res.HeatAbsorbedBTU != 0 {
		t.Fatalf("frozen tick must not absorb heat, got %v", res.HeatAbsorbedBTU)
	}
}

func TestSecondary_LineWarmingOffsetDecays(t *testing.T) {
	sm, sg, st, cfg := newTestSecondary(t)

	// Put the top node well into boiling territory.
	sg.Nodes[0].TempF = 320
	bc := model.HeatSinkBoundary{Available: false}

	if _, err := sm.Step(sg, 420, bc, true, false, 0.01); err != nil {
		t.Fatalf("first step: %v", err)
	}
	satHot, err := st.SaturationPressure(sg.HottestNodeTempF())
	if err != nil {
		t.Fatalf("saturation: %v", err)
	}
	if sg.PressurePSIA >= satHot {
		t.Fatalf("line warming should hold pressure below hot-node saturation: %.2f vs %.2f",
			sg.PressurePSIA, satHot)
	}

	// tempGap recovers the effective temperature offset from the derived
	// pressure; it must decay monotonically and stay within the configured
	// bound as boiling heat accumulates.
	tempGap := func() float64 {
		tsat, err := st.SaturationTemperature(sg.PressurePSIA)
		if err != nil {
			t.Fatalf("saturation temperature: %v", err)
		}
		return sg.HottestNodeTempF() - tsat
	}

	firstGap := tempGap()
	if firstGap <= 0 || firstGap > cfg.LineWarmingOffsetF+0.5 {
		t.Fatalf("initial offset %.2f°F outside (0, %.1f]", firstGap, cfg.LineWarmingOffsetF)
	}
	prevGap := firstGap
	for tick := 0; tick < 200; tick++ {
		if _, err := sm.Step(sg, 420, bc, true, false, 0.01); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		gap := tempGap()
		// Small slack covers the piecewise-linear forward/inverse mismatch.
		if gap > prevGap+0.2 {
			t.Fatalf("tick %d: line-warming offset grew %.4f -> %.4f °F", tick, prevGap, gap)
		}
		prevGap = gap
	}
	if prevGap > 0.5*firstGap {
		t.Fatalf("offset barely decayed: %.3f -> %.3f °F", firstGap, prevGap)
	}
}

func TestSecondary_DumpRequiresAvailabilityAndModulation(t *testing.T) {
	sm, sg, _, _ := newTestSecondary(t)

	for i := range sg.Nodes {
		sg.Nodes[i].TempF = 400
		sg.Nodes[i].Boiling = true
	}
	sg.PressurePSIA = 240

	// Unavailable sink: no dumping even when asked for.
	res, err := sm.Step(sg, 500, model.HeatSinkBoundary{Available: false}, false, true, 0.01)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.HeatDumpedBTU != 0 {
		t.Fatalf("dump with unavailable sink must reject no heat, got %v", res.HeatDumpedBTU)
	}

	res, err = sm.Step(sg, 500, model.HeatSinkBoundary{Available: true}, false, true, 0.01)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.HeatDumpedBTU <= 0 {
		t.Fatalf("available sink with modulating bridge should dump heat")
	}
}

func TestSecondary_DumpSetpointOutOfRangeSurfacesError(t *testing.T) {
	st, err := props.NewSteamTable()
	if err != nil {
		t.Fatalf("steam table: %v", err)
	}
	cfg := model.DefaultPlantConfig()
	cfg.SteamDumpArmPSIA = 0.25
	sm := NewSecondaryModel(st, cfg)
	sg := newSteamGeneratorState(cfg)
	for i := range sg.Nodes {
		sg.Nodes[i].TempF = 400
		sg.Nodes[i].Boiling = true
	}

	if _, err := sm.Step(sg, 500, model.HeatSinkBoundary{Available: true}, false, true, 0.01); err == nil {
		t.Fatalf("dump setpoint below the validated pressure range must surface an error")
	}
}

func TestSecondary_InventoryPreserved(t *testing.T) {
	sm, sg, _, cfg := newTestSecondary(t)

	bc := model.HeatSinkBoundary{Available: true, ReturnFlowLbmPerHr: 80000, ReturnTempF: 120}
	for tick := 0; tick < 100; tick++ {
		if _, err := sm.Step(sg, 420, bc, false, false, 0.01); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
	}
	if got := sg.InventoryLbm(); math.Abs(got-cfg.SGSecondaryInventoryLb) > 1e-6 {
		t.Fatalf("node masses no longer sum to inventory: %v vs %v", got, cfg.SGSecondaryInventoryLb)
	}
}
