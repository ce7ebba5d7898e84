package core

import (
	"fmt"
	"math"

	"github.com/meridiansim/plant-startup-simulator/model"
	"github.com/meridiansim/plant-startup-simulator/props"
)

// PressurizerPhase distinguishes a water-solid pressurizer from one carrying
// a steam bubble.
type PressurizerPhase int

const (
	PhaseSolid PressurizerPhase = iota
	PhaseTwoPhase
)

func (p PressurizerPhase) String() string {
	switch p {
	case PhaseSolid:
		return "Solid"
	case PhaseTwoPhase:
		return "TwoPhase"
	default:
		return fmt.Sprintf("PressurizerPhase(%d)", int(p))
	}
}

// PressurizerState is the solved thermodynamic state of the pressurizer.
// Invariants: water volume + steam volume equals the geometric volume; when
// Solid the steam mass is zero and water fills the vessel.
type PressurizerState struct {
	Phase PressurizerPhase

	WaterMassLbm float64
	SteamMassLbm float64

	WaterVolumeFt3 float64
	SteamVolumeFt3 float64

	PressurePSIA float64
	WaterTempF   float64
	SteamTempF   float64
}

// TotalMassLbm is the pressurizer inventory across both phases.
func (s PressurizerState) TotalMassLbm() float64 {
	return s.WaterMassLbm + s.SteamMassLbm
}

// LevelPct is indicated level: water volume over geometric volume.
func (s PressurizerState) LevelPct(geomVolFt3 float64) float64 {
	if geomVolFt3 <= 0 {
		return 0
	}
	return 100 * s.WaterVolumeFt3 / geomVolFt3
}

// SolveResult carries the solved state plus solver diagnostics.
type SolveResult struct {
	State      PressurizerState
	Iterations int

	// BubbleFormed reports a Solid→TwoPhase transition on this solve.
	BubbleFormed bool
	// BubbleCollapsed reports a TwoPhase→Solid collapse on this solve.
	BubbleCollapsed bool
}

// EquilibriumSolver produces a self-consistent pressure, phase split, and
// temperature for the pressurizer from the ledger's post-flow mass and
// enthalpy. It never mutates its inputs; the engine commits results.
type EquilibriumSolver struct {
	oracle props.Oracle
	cfg    model.PlantConfig
}

// NewEquilibriumSolver builds a solver over the given property oracle.
func NewEquilibriumSolver(oracle props.Oracle, cfg model.PlantConfig) *EquilibriumSolver {
	return &EquilibriumSolver{oracle: oracle, cfg: cfg}
}

// Solve dispatches on the previous phase. massLbm and enthalpyBTU are the
// pressurizer-region values derived from the consumed ledger.
func (es *EquilibriumSolver) Solve(prev PressurizerState, massLbm, enthalpyBTU float64) (SolveResult, error) {
	if massLbm <= 0 {
		return SolveResult{}, fmt.Errorf("pressurizer mass %.1f lbm: %w", massLbm, ErrInvariantViolation)
	}
	switch prev.Phase {
	case PhaseSolid:
		return es.solveSolid(prev, massLbm, enthalpyBTU)
	case PhaseTwoPhase:
		return es.solveTwoPhase(prev, massLbm, enthalpyBTU)
	default:
		return SolveResult{}, fmt.Errorf("unknown pressurizer phase %v: %w", prev.Phase, ErrInvariantViolation)
	}
}

// solveSolid evolves a water-solid pressurizer. Pressure is algebraic in the
// inventory state: the saturation pressure at the water temperature plus the
// compression needed to squeeze the unconstrained inventory volume into the
// vessel. When water temperature reaches saturation at that pressure, the
// inventory is redistributed into a steam bubble with total mass conserved
// exactly.
func (es *EquilibriumSolver) solveSolid(prev PressurizerState, massLbm, enthalpyBTU float64) (SolveResult, error) {
	geomVol := es.cfg.PressurizerVolumeFt3

	waterT, iters, err := es.liquidTemperatureFromEnthalpy(enthalpyBTU / massLbm)
	if err != nil {
		return SolveResult{}, err
	}

	psat, err := es.oracle.SaturationPressure(waterT)
	if err != nil {
		return SolveResult{}, err
	}
	rho, err := es.oracle.LiquidDensity(waterT, psat)
	if err != nil {
		return SolveResult{}, err
	}
	// Unconstrained volume of the inventory against the fixed vessel volume.
	freeVol := massLbm / rho
	pressure := psat + es.cfg.LiquidBulkModulusPSI*(freeVol-geomVol)/geomVol
	if pressure < props.MinPressurePSIA {
		pressure = props.MinPressurePSIA
	}
	if pressure > props.MaxPressurePSIA {
		return SolveResult{}, fmt.Errorf("solid pressurizer pressure %.1f psia beyond validated range: %w",
			pressure, ErrInvariantViolation)
	}

	tsat, err := es.oracle.SaturationTemperature(pressure)
	if err != nil {
		return SolveResult{}, err
	}

	if waterT < tsat {
		return SolveResult{
			State: PressurizerState{
				Phase:          PhaseSolid,
				WaterMassLbm:   massLbm,
				WaterVolumeFt3: geomVol,
				PressurePSIA:   pressure,
				WaterTempF:     waterT,
			},
			Iterations: iters,
		}, nil
	}

	// Bubble formation: split the existing inventory into steam and water at
	// saturation conditions without creating or destroying mass.
	state, err := es.formBubble(massLbm, pressure, tsat)
	if err != nil {
		return SolveResult{}, err
	}
	if state.SteamMassLbm == 0 {
		// The inventory still fills the vessel as liquid; no bubble yet.
		return SolveResult{
			State: PressurizerState{
				Phase:          PhaseSolid,
				WaterMassLbm:   massLbm,
				WaterVolumeFt3: geomVol,
				PressurePSIA:   pressure,
				WaterTempF:     waterT,
			},
			Iterations: iters,
		}, nil
	}
	return SolveResult{State: state, Iterations: iters, BubbleFormed: true}, nil
}

func (es *EquilibriumSolver) formBubble(massLbm, pressure, tsat float64) (PressurizerState, error) {
	geomVol := es.cfg.PressurizerVolumeFt3

	rhof, err := es.oracle.LiquidDensity(tsat, pressure)
	if err != nil {
		return PressurizerState{}, err
	}
	rhog, err := es.oracle.VaporDensity(pressure)
	if err != nil {
		return PressurizerState{}, err
	}
	vf, vg := 1.0/rhof, 1.0/rhog

	// Mass and volume closure: mf + mg = M, mf·vf + mg·vg = V.
	steamMass := (geomVol - massLbm*vf) / (vg - vf)
	if steamMass < 0 {
		steamMass = 0
	}
	waterMass := massLbm - steamMass
	steamVol := steamMass * vg
	return PressurizerState{
		Phase:          PhaseTwoPhase,
		WaterMassLbm:   waterMass,
		SteamMassLbm:   steamMass,
		WaterVolumeFt3: geomVol - steamVol,
		SteamVolumeFt3: steamVol,
		PressurePSIA:   pressure,
		WaterTempF:     tsat,
		SteamTempF:     tsat,
	}, nil
}

// solveTwoPhase bisects on pressure until water plus steam volume matches
// the geometric volume within tolerance, with the mass split implied by the
// energy balance at each candidate pressure. The iteration bound is fixed by
// configuration and independent of tick size; exhausting it is reported, not
// approximated away.
func (es *EquilibriumSolver) solveTwoPhase(prev PressurizerState, massLbm, enthalpyBTU float64) (SolveResult, error) {
	geomVol := es.cfg.PressurizerVolumeFt3
	volTol := es.cfg.VolumeToleranceFt3

	// Subcooled collapse check at the prior pressure: if the energy balance
	// leaves no room for vapor, the bubble has condensed away and the vessel
	// is water-solid again. The volume residual is only monotone while a
	// steam mass exists, so this is decided before the bisection.
	_, mgPrev, err := es.volumeResidual(prev.PressurePSIA, massLbm, enthalpyBTU, geomVol)
	if err != nil {
		return SolveResult{}, err
	}
	if mgPrev <= 0 {
		asSolid := prev
		asSolid.Phase = PhaseSolid
		res, err := es.solveSolid(asSolid, massLbm, enthalpyBTU)
		if err != nil {
			return SolveResult{}, err
		}
		res.BubbleCollapsed = true
		return res, nil
	}

	// Liquid property lookups are validated only up to MaxTemperatureF, so
	// the search stops at the saturation pressure of that ceiling.
	lo := props.MinPressurePSIA
	hi, err := es.oracle.SaturationPressure(props.MaxTemperatureF)
	if err != nil {
		return SolveResult{}, err
	}
	fLo, _, err := es.volumeResidual(lo, massLbm, enthalpyBTU, geomVol)
	if err != nil {
		return SolveResult{}, err
	}
	fHi, _, err := es.volumeResidual(hi, massLbm, enthalpyBTU, geomVol)
	if err != nil {
		return SolveResult{}, err
	}
	if fLo < 0 || fHi > 0 {
		return SolveResult{}, fmt.Errorf("%w: no pressure bracket for mass %.1f lbm, enthalpy %.3e BTU (residual %.1f..%.1f ft³)",
			ErrNoConvergence, massLbm, enthalpyBTU, fLo, fHi)
	}

	var (
		p     float64
		resid float64
		mg    float64
	)
	converged := false
	iters := 0
	for ; iters < es.cfg.SolverMaxIterations; iters++ {
		p = 0.5 * (lo + hi)
		resid, mg, err = es.volumeResidual(p, massLbm, enthalpyBTU, geomVol)
		if err != nil {
			return SolveResult{}, err
		}
		if math.Abs(resid) <= volTol {
			converged = true
			break
		}
		// Computed volume shrinks as pressure rises, so a positive residual
		// means pressure is still too low.
		if resid > 0 {
			lo = p
		} else {
			hi = p
		}
	}
	if !converged {
		return SolveResult{}, fmt.Errorf("%w: %d iterations, residual %.2f ft³ at %.1f psia",
			ErrNoConvergence, iters, resid, p)
	}

	if mg >= massLbm {
		return SolveResult{}, fmt.Errorf("pressurizer inventory fully vaporized at %.1f psia: %w", p, ErrInvariantViolation)
	}

	// The mass split is exact when unclamped; a clamped split leaves an
	// energy imbalance that must stay within tolerance to accept the solve.
	hf, err := es.oracle.LiquidEnthalpy(p)
	if err != nil {
		return SolveResult{}, err
	}
	hg, err := es.oracle.VaporEnthalpy(p)
	if err != nil {
		return SolveResult{}, err
	}
	if eResid := math.Abs((massLbm-mg)*hf + mg*hg - enthalpyBTU); eResid > es.cfg.EnergyToleranceBTU {
		return SolveResult{}, fmt.Errorf("%w: energy residual %.3e BTU at %.1f psia", ErrNoConvergence, eResid, p)
	}

	tsat, err := es.oracle.SaturationTemperature(p)
	if err != nil {
		return SolveResult{}, err
	}
	rhof, err := es.oracle.LiquidDensity(tsat, p)
	if err != nil {
		return SolveResult{}, err
	}
	mf := massLbm - mg
	waterVol := mf / rhof
	return SolveResult{
		State: PressurizerState{
			Phase:          PhaseTwoPhase,
			WaterMassLbm:   mf,
			SteamMassLbm:   mg,
			WaterVolumeFt3: waterVol,
			SteamVolumeFt3: geomVol - waterVol,
			PressurePSIA:   p,
			WaterTempF:     tsat,
			SteamTempF:     tsat,
		},
		Iterations: iters,
	}, nil
}

// volumeResidual computes, at a candidate pressure, the difference between
// the volume the inventory would occupy and the geometric volume, with the
// steam mass implied by the energy balance (clamped to the physical range).
func (es *EquilibriumSolver) volumeResidual(p, massLbm, enthalpyBTU, geomVol float64) (resid, steamMass float64, err error) {
	tsat, err := es.oracle.SaturationTemperature(p)
	if err != nil {
		return 0, 0, err
	}
	hf, err := es.oracle.LiquidEnthalpy(p)
	if err != nil {
		return 0, 0, err
	}
	hg, err := es.oracle.VaporEnthalpy(p)
	if err != nil {
		return 0, 0, err
	}
	rhof, err := es.oracle.LiquidDensity(tsat, p)
	if err != nil {
		return 0, 0, err
	}
	rhog, err := es.oracle.VaporDensity(p)
	if err != nil {
		return 0, 0, err
	}

	steamMass = (enthalpyBTU - massLbm*hf) / (hg - hf)
	if steamMass < 0 {
		steamMass = 0
	}
	if steamMass > massLbm {
		steamMass = massLbm
	}
	vol := (massLbm-steamMass)/rhof + steamMass/rhog
	return vol - geomVol, steamMass, nil
}

// liquidTemperatureFromEnthalpy inverts the saturated-liquid enthalpy curve
// to recover a subcooled water temperature from specific enthalpy. Bisection
// over the validated temperature range; the curve is strictly increasing.
func (es *EquilibriumSolver) liquidTemperatureFromEnthalpy(hBTUPerLbm float64) (float64, int, error) {
	const tempTolF = 0.01

	lo, hi := props.MinTemperatureF, props.MaxTemperatureF
	hLo, err := es.liquidEnthalpyAtT(lo)
	if err != nil {
		return 0, 0, err
	}
	if hBTUPerLbm <= hLo {
		return lo, 0, nil
	}
	hHi, err := es.liquidEnthalpyAtT(hi)
	if err != nil {
		return 0, 0, err
	}
	if hBTUPerLbm >= hHi {
		return 0, 0, fmt.Errorf("liquid enthalpy %.1f BTU/lbm above validated range: %w", hBTUPerLbm, ErrInvariantViolation)
	}

	iters := 0
	for ; iters < es.cfg.SolverMaxIterations; iters++ {
		mid := 0.5 * (lo + hi)
		h, err := es.liquidEnthalpyAtT(mid)
		if err != nil {
			return 0, 0, err
		}
		if h < hBTUPerLbm {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo <= tempTolF {
			break
		}
	}
	return 0.5 * (lo + hi), iters, nil
}

// liquidEnthalpyAtT approximates subcooled-liquid enthalpy by the saturated
// value at the same temperature, composed purely from oracle calls.
func (es *EquilibriumSolver) liquidEnthalpyAtT(tempF float64) (float64, error) {
	psat, err := es.oracle.SaturationPressure(tempF)
	if err != nil {
		return 0, err
	}
	if psat < props.MinPressurePSIA {
		psat = props.MinPressurePSIA
	}
	return es.oracle.LiquidEnthalpy(psat)
}
