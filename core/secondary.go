package core

import (
	"fmt"
	"math"

	"github.com/meridiansim/plant-startup-simulator/model"
	"github.com/meridiansim/plant-startup-simulator/props"
)

// Secondary side is vented to atmosphere until it makes its own pressure.
const atmosphericPSIA = 14.696

// Specific heat used for secondary water sensible heating.
const secondaryCpBTUPerLbmF = 1.0

// SecondaryNodeState is one thermally stratified layer of a steam
// generator's secondary inventory, ordered top (tube bundle exit, heated
// first) to bottom.
type SecondaryNodeState struct {
	// TempF is the local water temperature.
	TempF float64
	// AreaFraction is the participating fraction of this node's share of
	// tube area. Nodes below the thermocline sit at the stratified floor.
	AreaFraction float64
	// MassLbm is the local water mass. Node masses sum to the steam
	// generator inventory.
	MassLbm float64
	// Boiling reports whether this node is at or above local saturation.
	Boiling bool
}

// SteamGeneratorState is the per-steam-generator secondary state. Pressure
// is always a derived quantity: the saturation pressure of the hottest
// participating node (less the line-warming offset), never an independently
// integrated variable.
type SteamGeneratorState struct {
	Nodes []SecondaryNodeState

	// PressurePSIA is the derived secondary pressure.
	PressurePSIA float64

	// CumulativeHeatBTU is total heat absorbed since initialization; it
	// drives thermocline advance and only ever grows.
	CumulativeHeatBTU float64

	// BoilingHeatBTU is heat absorbed while any node boils; it decays the
	// line-warming offset.
	BoilingHeatBTU float64

	// Frozen reports that the last step saw a non-physical input (negative
	// heat flow) and held the prior state.
	Frozen bool
}

// Boiling reports whether any node in the steam generator is boiling.
func (sg *SteamGeneratorState) Boiling() bool {
	for _, n := range sg.Nodes {
		if n.Boiling {
			return true
		}
	}
	return false
}

// HottestNodeTempF returns the hottest participating node temperature.
func (sg *SteamGeneratorState) HottestNodeTempF() float64 {
	hot := 0.0
	for _, n := range sg.Nodes {
		if n.AreaFraction > 0 && n.TempF > hot {
			hot = n.TempF
		}
	}
	return hot
}

// newSteamGeneratorState seeds a steam generator at a uniform temperature
// with the inventory split evenly across nodes and only the top node fully
// participating.
func newSteamGeneratorState(cfg model.PlantConfig) *SteamGeneratorState {
	nodes := make([]SecondaryNodeState, cfg.SGNodeCount)
	nodeMass := cfg.SGSecondaryInventoryLb / float64(cfg.SGNodeCount)
	for i := range nodes {
		frac := cfg.StratifiedAreaFraction
		if i == 0 {
			frac = 1.0
		}
		nodes[i] = SecondaryNodeState{
			TempF:        cfg.InitialSGTempF,
			AreaFraction: frac,
			MassLbm:      nodeMass,
		}
	}
	return &SteamGeneratorState{
		Nodes:        nodes,
		PressurePSIA: atmosphericPSIA,
	}
}

// clone deep-copies the state so a tick can run on scratch and commit only
// on success.
func (sg *SteamGeneratorState) clone() *SteamGeneratorState {
	out := *sg
	out.Nodes = make([]SecondaryNodeState, len(sg.Nodes))
	copy(out.Nodes, sg.Nodes)
	return &out
}

// SecondaryStepResult reports one steam generator tick.
type SecondaryStepResult struct {
	// HeatAbsorbedBTU is the heat pulled from the primary this tick. The
	// engine posts it to the ledger for the next tick's energy balance.
	HeatAbsorbedBTU float64
	// HeatDumpedBTU is heat rejected through the steam dump this tick.
	HeatDumpedBTU float64
	// Discrepancies lists non-physical conditions that froze node state.
	Discrepancies []string
}

// SecondaryModel advances steam generator secondary state against the
// primary loop temperature and the external heat-sink boundary.
type SecondaryModel struct {
	oracle props.Oracle
	cfg    model.PlantConfig
}

// NewSecondaryModel builds the model over a property oracle.
func NewSecondaryModel(oracle props.Oracle, cfg model.PlantConfig) *SecondaryModel {
	return &SecondaryModel{oracle: oracle, cfg: cfg}
}

// Step advances one steam generator by dt hours. primaryTempF is the loop
// bulk temperature; lineWarming enables the decaying cold-piping offset;
// dumping enables heat rejection to the sink (only when the heat-sink bridge
// is Modulating). Non-physical inputs freeze the affected node state and are
// reported, never guessed around.
func (sm *SecondaryModel) Step(sg *SteamGeneratorState, primaryTempF float64, bc model.HeatSinkBoundary, lineWarming, dumping bool, dtHours float64) (SecondaryStepResult, error) {
	var res SecondaryStepResult
	sg.Frozen = false

	tsatSec, err := sm.oracle.SaturationTemperature(math.Max(sg.PressurePSIA, props.MinPressurePSIA))
	if err != nil {
		return res, err
	}

	// Thermocline position from cumulative heat input: monotone, advances
	// only toward full participation.
	participating := 1 + int(sg.CumulativeHeatBTU/sm.cfg.ThermoclineHeatPerNode)
	if participating > len(sg.Nodes) {
		participating = len(sg.Nodes)
	}

	nodeArea := sm.cfg.SGTubeAreaFt2 / float64(len(sg.Nodes))
	tickHeat := 0.0

	for i := range sg.Nodes {
		node := &sg.Nodes[i]

		// Area participation never retreats.
		frac := sm.cfg.StratifiedAreaFraction
		if i < participating {
			frac = 1.0
		}
		if frac > node.AreaFraction {
			node.AreaFraction = frac
		}

		// Tube wall sits between primary bulk and the local fluid; the
		// driving ΔT is wall minus local, never primary bulk minus local
		// saturation.
		wallT := node.TempF + (primaryTempF-node.TempF)*sm.cfg.SGWallFactor

		node.Boiling = node.TempF >= tsatSec-0.5

		var q float64 // BTU/hr into this node
		if node.Boiling {
			q = sm.cfg.SGBoilingHTCBTUHrFt2F * nodeArea * node.AreaFraction * (wallT - tsatSec)
		} else {
			q = sm.cfg.SGConvectiveHTCBTUHrF * nodeArea * node.AreaFraction * (wallT - node.TempF)
		}
		if q < 0 {
			// Primary colder than this node: no convergent stratified state.
			// Hold the node and surface the discrepancy.
			sg.Frozen = true
			res.Discrepancies = append(res.Discrepancies,
				fmt.Sprintf("node %d: negative heat flow %.3e BTU/hr (primary %.1f°F, node %.1f°F)", i, q, primaryTempF, node.TempF))
			continue
		}

		// Heat transfer stops at wall equilibrium; never heat a node past
		// its local wall temperature inside one tick.
		newT := node.TempF + q*dtHours/(node.MassLbm*secondaryCpBTUPerLbmF)
		if newT > wallT {
			newT = wallT
		}
		dQ := (newT - node.TempF) * node.MassLbm * secondaryCpBTUPerLbmF
		node.TempF = newT
		tickHeat += dQ
	}

	// Feedwater/AFW return mixes into the bottom node.
	if bc.ReturnFlowLbmPerHr > 0 {
		bottom := &sg.Nodes[len(sg.Nodes)-1]
		perSG := bc.ReturnFlowLbmPerHr / float64(sm.cfg.SGCount)
		blend := perSG * dtHours / bottom.MassLbm
		if blend > 1 {
			blend = 1
		}
		bottom.TempF += blend * (bc.ReturnTempF - bottom.TempF)
	}

	// Steam dump: relax the hottest nodes toward the dump setpoint, bounded
	// by dump capacity. Only when the bridge is actually modulating.
	if dumping && bc.Available {
		dumped, err := sm.applyDump(sg, dtHours)
		if err != nil {
			return res, err
		}
		res.HeatDumpedBTU = dumped
	}

	sg.CumulativeHeatBTU += tickHeat
	if sg.Boiling() {
		sg.BoilingHeatBTU += tickHeat
	}
	res.HeatAbsorbedBTU = tickHeat

	// Derived pressure: saturation at the hottest participating node, with
	// the bounded line-warming offset standing in for cold downstream piping
	// condensing early steam. The offset decays monotonically with boiling
	// heat and never rate-limits pressure itself.
	hot := sg.HottestNodeTempF()
	if lineWarming {
		hot -= sm.cfg.LineWarmingOffsetF * math.Exp(-sg.BoilingHeatBTU/sm.cfg.LineWarmingDecayBTU)
	}
	pressure := atmosphericPSIA
	if hot >= props.MinTemperatureF {
		psat, err := sm.oracle.SaturationPressure(hot)
		if err != nil {
			return res, err
		}
		if psat > pressure {
			pressure = psat
		}
	}
	sg.PressurePSIA = pressure

	return res, nil
}

// applyDump removes heat from boiling nodes down toward the dump setpoint
// temperature, limited by the configured dump capacity.
func (sm *SecondaryModel) applyDump(sg *SteamGeneratorState, dtHours float64) (float64, error) {
	tsatDump, err := sm.oracle.SaturationTemperature(sm.cfg.SteamDumpArmPSIA)
	if err != nil {
		return 0, fmt.Errorf("steam dump setpoint: %w", err)
	}
	budget := sm.cfg.SteamDumpCapacityBTUPerHr * dtHours / float64(sm.cfg.SGCount)
	dumped := 0.0
	for i := range sg.Nodes {
		node := &sg.Nodes[i]
		if !node.Boiling || node.TempF <= tsatDump {
			continue
		}
		want := node.MassLbm * secondaryCpBTUPerLbmF * (node.TempF - tsatDump)
		take := math.Min(want, budget-dumped)
		if take <= 0 {
			break
		}
		node.TempF -= take / (node.MassLbm * secondaryCpBTUPerLbmF)
		dumped += take
	}
	return dumped, nil
}

// InventoryLbm sums node masses; it must equal the externally supplied
// secondary inventory.
func (sg *SteamGeneratorState) InventoryLbm() float64 {
	total := 0.0
	for _, n := range sg.Nodes {
		total += n.MassLbm
	}
	return total
}
