package core

import "fmt"

// FlowSource tags a mass/energy contribution with the component that
// produced it, so the engine can route tagged energy between the loop and
// pressurizer regions and so discrepancies name their origin.
type FlowSource string

const (
	SourceCharging       FlowSource = "charging"
	SourceLetdown        FlowSource = "letdown"
	SourceSealLeakoff    FlowSource = "seal-leakoff"
	SourceHeaters        FlowSource = "pressurizer-heaters"
	SourceSpray          FlowSource = "pressurizer-spray"
	SourceCoreDecay      FlowSource = "core-decay-heat"
	SourceRCP            FlowSource = "rcp-heat"
	SourceAmbientLoss    FlowSource = "ambient-loss"
	SourceSteamGenerator FlowSource = "steam-generator"
)

// pressurizerSources route their energy to the pressurizer region during the
// post-consume partition; everything else is loop heat.
var pressurizerSources = map[FlowSource]bool{
	SourceHeaters: true,
	SourceSpray:   true,
}

// Flow is one pending signed contribution. Rates are lbm/hr and BTU/hr.
type Flow struct {
	Source     FlowSource
	MassRate   float64
	EnergyRate float64
}

// AppliedFlow is a contribution after integration over the tick duration.
type AppliedFlow struct {
	Source    FlowSource
	MassLbm   float64
	EnergyBTU float64
}

// ConsumeResult is what a single ledger consumption yields: the new
// authoritative totals plus the integrated contributions that produced them.
type ConsumeResult struct {
	TotalMassLbm     float64
	TotalEnthalpyBTU float64
	Applied          []AppliedFlow
}

// MassEnergyLedger is the single authoritative record of combined primary
// plus pressurizer mass and enthalpy. Every flow-producing component posts
// here; nothing else may touch the totals. The ledger is armed once per tick
// and consumed exactly once per tick, immediately before the equilibrium
// solve. Violating that lifecycle is a programming error, not a physics
// condition, and fails fast.
type MassEnergyLedger struct {
	totalMassLbm     float64
	totalEnthalpyBTU float64

	pending  []Flow
	armed    bool
	consumed bool
}

// NewMassEnergyLedger seeds the ledger with the initial inventory.
func NewMassEnergyLedger(massLbm, enthalpyBTU float64) *MassEnergyLedger {
	return &MassEnergyLedger{
		totalMassLbm:     massLbm,
		totalEnthalpyBTU: enthalpyBTU,
	}
}

// BeginTick arms the ledger for a new tick. Pending flows from an aborted
// tick are discarded so a rejected tick leaves no residue.
func (l *MassEnergyLedger) BeginTick() {
	l.pending = l.pending[:0]
	l.armed = true
	l.consumed = false
}

// PostFlow accumulates a signed contribution. May be called any number of
// times per tick by any flow source, but never after the tick's consumption.
func (l *MassEnergyLedger) PostFlow(source FlowSource, massRate, energyRate float64) error {
	if !l.armed {
		return fmt.Errorf("post %s: %w", source, ErrLedgerNotArmed)
	}
	if l.consumed {
		return fmt.Errorf("post %s after consumption: %w", source, ErrLedgerAlreadyConsumed)
	}
	l.pending = append(l.pending, Flow{Source: source, MassRate: massRate, EnergyRate: energyRate})
	return nil
}

// Consume integrates all pending contributions over dt (hours) into the
// running totals, clears the pending list, and returns the new totals plus
// the applied breakdown. Consuming with nothing pending returns unchanged
// totals; consuming twice in one tick fails.
func (l *MassEnergyLedger) Consume(dtHours float64) (ConsumeResult, error) {
	if !l.armed {
		return ConsumeResult{}, ErrLedgerNotArmed
	}
	if l.consumed {
		return ConsumeResult{}, ErrLedgerAlreadyConsumed
	}

	applied := make([]AppliedFlow, 0, len(l.pending))
	for _, f := range l.pending {
		dm := f.MassRate * dtHours
		de := f.EnergyRate * dtHours
		l.totalMassLbm += dm
		l.totalEnthalpyBTU += de
		applied = append(applied, AppliedFlow{Source: f.Source, MassLbm: dm, EnergyBTU: de})
	}
	l.pending = l.pending[:0]
	l.consumed = true

	return ConsumeResult{
		TotalMassLbm:     l.totalMassLbm,
		TotalEnthalpyBTU: l.totalEnthalpyBTU,
		Applied:          applied,
	}, nil
}

// rollback restores pre-consumption totals when the tick that consumed them
// is aborted. Only the engine's abort path may call this; the ledger stays
// the sole mutation channel for everyone else.
func (l *MassEnergyLedger) rollback(massLbm, enthalpyBTU float64) {
	l.totalMassLbm = massLbm
	l.totalEnthalpyBTU = enthalpyBTU
	l.pending = l.pending[:0]
	l.armed = false
	l.consumed = false
}

// Totals exposes the running totals between ticks. Reading while flows are
// still pending is the stale-mass defect this ledger exists to prevent, so
// it is rejected outright.
func (l *MassEnergyLedger) Totals() (massLbm, enthalpyBTU float64, err error) {
	if len(l.pending) > 0 {
		return 0, 0, ErrLedgerPendingRead
	}
	return l.totalMassLbm, l.totalEnthalpyBTU, nil
}
