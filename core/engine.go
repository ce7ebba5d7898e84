package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/meridiansim/plant-startup-simulator/internal/logging"
	"github.com/meridiansim/plant-startup-simulator/model"
	"github.com/meridiansim/plant-startup-simulator/props"
)

// TickStatusCode classifies the outcome of the most recent tick.
type TickStatusCode int

const (
	// TickOK: the tick committed cleanly.
	TickOK TickStatusCode = iota
	// TickDegraded: the tick committed but some component held prior state
	// (solver convergence failure, frozen secondary node).
	TickDegraded
	// TickAborted: an out-of-range property lookup rejected the tick; plant
	// state is unchanged.
	TickAborted
)

func (c TickStatusCode) String() string {
	switch c {
	case TickOK:
		return "ok"
	case TickDegraded:
		return "degraded"
	case TickAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// TickStatus is the surfaced outcome of the last Advance call. Degraded and
// aborted conditions carry their reasons so the hosting shell can warn or
// halt instead of reading a quietly wrong number.
type TickStatus struct {
	Code    TickStatusCode
	Reasons []string
}

func (s *TickStatus) degrade(reason string) {
	if s.Code == TickOK {
		s.Code = TickDegraded
	}
	s.Reasons = append(s.Reasons, reason)
}

// EngineMetricsRecorder receives engine observations. Implementations must
// be cheap; they are called once per tick.
type EngineMetricsRecorder interface {
	TickProcessed(outcome string)
	ObserveSolverIterations(n int)
	RecordPlant(mode, bridge string, pressurePSIA, tavgF, levelPct float64)
	RecordSGPressure(index int, pressurePSIA float64)
}

type noopMetrics struct{}

func (noopMetrics) TickProcessed(string)                                  {}
func (noopMetrics) ObserveSolverIterations(int)                           {}
func (noopMetrics) RecordPlant(string, string, float64, float64, float64) {}
func (noopMetrics) RecordSGPressure(int, float64)                         {}

// Snapshot is the read-only view of plant state after a tick. Everything in
// it is a copy; mutating a snapshot never touches the engine.
type Snapshot struct {
	TimeHours float64

	Mode   StartupMode
	Bridge BridgeState
	Status TickStatus

	Pressurizer PressurizerState
	LevelPct    float64

	LoopTavgF   float64
	LoopMassLbm float64

	TotalMassLbm     float64
	TotalEnthalpyBTU float64

	SteamGenerators []SteamGeneratorState

	Flows          CVCSFlows
	HeaterBTUPerHr float64
	SprayGPM       float64

	Transitions []Transition
	Rejections  []RejectedRequest
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine)

// WithLogger installs a logger; the default drops everything.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder installs a metrics sink.
func WithMetricsRecorder(m EngineMetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine owns the whole plant state and advances it one tick at a time. It
// is single-threaded: one goroutine calls Advance, everything else reads
// snapshots. Per tick, in strict order: control and permissive computation,
// flow posting, ledger consumption, primary equilibrium solve, secondary
// model, mode re-evaluation. A tick fully commits or leaves state untouched.
type Engine struct {
	cfg     model.PlantConfig
	oracle  props.Oracle
	log     logging.Logger
	metrics EngineMetricsRecorder

	ledger      *MassEnergyLedger
	solver      *EquilibriumSolver
	secondary   *SecondaryModel
	cvcs        *ChargingLetdownController
	pressureCtl *PressureController
	modes       *ModeMachine

	timeHours float64

	loopTempF       float64
	loopMassLbm     float64
	loopEnthalpyBTU float64

	pressurizer PressurizerState
	sgs         []*SteamGeneratorState

	// sgHeatRateBTUPerHr is the previous tick's secondary absorption; it
	// posts to the ledger at the start of the next tick.
	sgHeatRateBTUPerHr float64

	flows   CVCSFlows
	lastCmd PressureCommand

	operator model.OperatorInputs
	sink     model.HeatSinkBoundary

	status TickStatus
	halted error
}

// NewEngine builds a plant at cold-shutdown solid initial conditions.
func NewEngine(cfg model.PlantConfig, oracle props.Oracle, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		oracle:  oracle,
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.solver = NewEquilibriumSolver(oracle, cfg)
	e.secondary = NewSecondaryModel(oracle, cfg)
	e.cvcs = NewChargingLetdownController(cfg, e.log)
	e.pressureCtl = NewPressureController(cfg)
	e.modes = NewModeMachine(cfg, e.log)

	t0, p0 := cfg.InitialTempF, cfg.InitialPressurePSIA
	rho0, err := oracle.LiquidDensity(t0, p0)
	if err != nil {
		return nil, fmt.Errorf("initial conditions: %w", err)
	}
	h0, err := e.solver.liquidEnthalpyAtT(t0)
	if err != nil {
		return nil, fmt.Errorf("initial conditions: %w", err)
	}

	e.loopTempF = t0
	e.loopMassLbm = rho0 * cfg.LoopVolumeFt3
	e.loopEnthalpyBTU = e.loopMassLbm * h0

	// The solid pressurizer holds its initial pressure through the overfill
	// compressed into the fixed vessel volume above saturation conditions.
	psat0, err := oracle.SaturationPressure(t0)
	if err != nil {
		return nil, fmt.Errorf("initial conditions: %w", err)
	}
	rhoSat0, err := oracle.LiquidDensity(t0, psat0)
	if err != nil {
		return nil, fmt.Errorf("initial conditions: %w", err)
	}
	przrMass := rhoSat0 * cfg.PressurizerVolumeFt3 * (1 + (p0-psat0)/cfg.LiquidBulkModulusPSI)
	e.pressurizer = PressurizerState{
		Phase:          PhaseSolid,
		WaterMassLbm:   przrMass,
		WaterVolumeFt3: cfg.PressurizerVolumeFt3,
		PressurePSIA:   p0,
		WaterTempF:     t0,
	}

	totalMass := e.loopMassLbm + przrMass
	e.ledger = NewMassEnergyLedger(totalMass, totalMass*h0)

	e.sgs = make([]*SteamGeneratorState, cfg.SGCount)
	for i := range e.sgs {
		e.sgs[i] = newSteamGeneratorState(cfg)
	}

	return e, nil
}

// SetHeatSink updates the external condenser/feedwater boundary condition.
// Takes effect at the next tick.
func (e *Engine) SetHeatSink(bc model.HeatSinkBoundary) { e.sink = bc }

// SetOperator updates the operator console inputs. Takes effect at the next
// tick; requests whose guards do not hold are ignored and reported.
func (e *Engine) SetOperator(in model.OperatorInputs) { e.operator = in }

// Snapshot returns a deep copy of the current plant state.
func (e *Engine) Snapshot() Snapshot {
	sgs := make([]SteamGeneratorState, len(e.sgs))
	for i, sg := range e.sgs {
		sgs[i] = *sg.clone()
	}
	status := TickStatus{Code: e.status.Code}
	status.Reasons = append(status.Reasons, e.status.Reasons...)

	return Snapshot{
		TimeHours:        e.timeHours,
		Mode:             e.modes.Mode(),
		Bridge:           e.modes.Bridge(),
		Status:           status,
		Pressurizer:      e.pressurizer,
		LevelPct:         e.pressurizer.LevelPct(e.cfg.PressurizerVolumeFt3),
		LoopTavgF:        e.loopTempF,
		LoopMassLbm:      e.loopMassLbm,
		TotalMassLbm:     e.loopMassLbm + e.pressurizer.TotalMassLbm(),
		TotalEnthalpyBTU: e.loopEnthalpyBTU + e.pressurizerEnthalpyBTU(),
		SteamGenerators:  sgs,
		Flows:            e.flows,
		HeaterBTUPerHr:   e.lastCmd.HeaterBTUPerHr,
		SprayGPM:         e.lastCmd.SprayGPM,
		Transitions:      e.modes.Transitions(),
		Rejections:       e.modes.Rejections(),
	}
}

// pressurizerEnthalpyBTU recovers the pressurizer region's enthalpy from the
// authoritative ledger totals; the ledger is the single source of truth for
// combined inventory.
func (e *Engine) pressurizerEnthalpyBTU() float64 {
	_, totalH, err := e.ledger.Totals()
	if err != nil {
		return 0
	}
	return totalH - e.loopEnthalpyBTU
}

// Advance steps the simulation dt hours. Steps above the per-substep bound
// are divided; steps above the hard cap are rejected outright since the
// stratification and thermocline models assume bounded per-tick temperature
// change. On a fatal invariant violation the engine halts permanently.
func (e *Engine) Advance(ctx context.Context, dtHours float64) (Snapshot, error) {
	if e.halted != nil {
		return e.Snapshot(), fmt.Errorf("%w: %s", ErrEngineHalted, e.halted)
	}
	if dtHours <= 0 {
		return e.Snapshot(), fmt.Errorf("advance: non-positive dt %v", dtHours)
	}
	if dtHours > e.cfg.MaxStepHr {
		return e.Snapshot(), fmt.Errorf("advance dt %v hr above cap %v hr: %w",
			dtHours, e.cfg.MaxStepHr, ErrStepTooLarge)
	}

	substeps := int(math.Ceil(dtHours / e.cfg.MaxSubstepHr))
	h := dtHours / float64(substeps)

	status := TickStatus{Code: TickOK}
	for i := 0; i < substeps; i++ {
		if err := e.tick(ctx, h, &status); err != nil {
			if errors.Is(err, ErrInvariantViolation) {
				e.halted = err
				e.status = status
				e.metrics.TickProcessed("fatal")
				return e.Snapshot(), err
			}
			// Out-of-range lookup: the tick was rolled back.
			status.Code = TickAborted
			status.Reasons = append(status.Reasons, err.Error())
			e.status = status
			e.metrics.TickProcessed(TickAborted.String())
			return e.Snapshot(), err
		}
	}

	e.status = status
	e.metrics.TickProcessed(status.Code.String())
	e.metrics.RecordPlant(e.modes.Mode().String(), e.modes.Bridge().String(),
		e.pressurizer.PressurePSIA, e.loopTempF,
		e.pressurizer.LevelPct(e.cfg.PressurizerVolumeFt3))
	for i, sg := range e.sgs {
		e.metrics.RecordSGPressure(i, sg.PressurePSIA)
	}
	return e.Snapshot(), nil
}

// tick runs one substep. All mutation happens on locals until the commit at
// the end; an error before that leaves the plant, and the ledger via
// rollback, exactly as they were.
func (e *Engine) tick(ctx context.Context, dt float64, status *TickStatus) error {
	cfg := e.cfg

	prevMass, prevEnthalpy, err := e.ledger.Totals()
	if err != nil {
		return fmt.Errorf("%w: ledger pending at tick start", ErrInvariantViolation)
	}

	// (1) Control and permissive computation.
	e.cvcs.SetAuthority(e.modes.ChargingAuthority())

	level := e.pressurizer.LevelPct(cfg.PressurizerVolumeFt3)
	levelSetpoint := LevelProgramSetpointPct(cfg, e.loopTempF)
	if e.modes.ChargingAuthority() == AuthorityDrain {
		levelSetpoint = cfg.DrainTargetLevelPct
	}

	loopRho, err := e.oracle.LiquidDensity(e.loopTempF, e.pressurizer.PressurePSIA)
	if err != nil {
		return err
	}
	chargingRho, err := e.oracle.LiquidDensity(cfg.ChargingWaterTempF, e.pressurizer.PressurePSIA)
	if err != nil {
		return err
	}

	flows := e.cvcs.Update(CVCSMeasurements{
		LevelPct:              level,
		LevelSetpointPct:      levelSetpoint,
		PressurePSIA:          e.pressurizer.PressurePSIA,
		LoopDensityLbmFt3:     loopRho,
		ChargingDensityLbmFt3: chargingRho,
	}, dt)

	pumpsRunning := e.modes.PumpsPermitted() && e.operator.PumpsConfirmedRunning
	cmd := e.pressureCtl.Update(e.pressurizer.PressurePSIA, cfg.PressureSetpointPSIA,
		e.modes.HeaterBoost(), pumpsRunning, dt)

	// (2) Flow posting. Every external mass/energy path goes through the
	// ledger; nothing mutates the totals directly.
	e.ledger.BeginTick()

	hLoop := e.loopEnthalpyBTU / e.loopMassLbm
	hCharging, err := e.solver.liquidEnthalpyAtT(cfg.ChargingWaterTempF)
	if err != nil {
		e.ledger.rollback(prevMass, prevEnthalpy)
		return err
	}

	decayHeat := cfg.CoreDecayHeatBTUPerHr * math.Exp(-cfg.DecayRatePerHr*e.timeHours)
	post := func(src FlowSource, massRate, energyRate float64) {
		if perr := e.ledger.PostFlow(src, massRate, energyRate); perr != nil && err == nil {
			err = fmt.Errorf("%w: %s", ErrInvariantViolation, perr)
		}
	}
	post(SourceCoreDecay, 0, decayHeat)
	post(SourceAmbientLoss, 0, -cfg.AmbientLossBTUPerHr)
	if pumpsRunning {
		post(SourceRCP, 0, float64(cfg.RCPCount)*cfg.RCPHeatPerPumpBTUPerHr)
	}
	if e.sgHeatRateBTUPerHr != 0 {
		post(SourceSteamGenerator, 0, -e.sgHeatRateBTUPerHr)
	}
	post(SourceCharging, flows.ChargingLbmPerHr, flows.ChargingLbmPerHr*hCharging)
	post(SourceLetdown, -flows.LetdownLbmPerHr, -flows.LetdownLbmPerHr*hLoop)
	post(SourceSealLeakoff, -flows.SealNetLbmPerHr, -flows.SealNetLbmPerHr*hLoop)
	post(SourceHeaters, 0, cmd.HeaterBTUPerHr)
	if err != nil {
		return err
	}

	// (3) Ledger consumption, exactly once.
	res, err := e.ledger.Consume(dt)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvariantViolation, err)
	}

	// (4) Primary equilibrium. Partition the authoritative totals into loop
	// and pressurizer regions: loop-tagged flows credit the loop, the
	// pressurizer takes the remainder, and thermal expansion surges loop
	// water into the pressurizer at loop enthalpy.
	loopH := e.loopEnthalpyBTU
	loopM := e.loopMassLbm
	for _, af := range res.Applied {
		if !pressurizerSources[af.Source] {
			loopH += af.EnergyBTU
			loopM += af.MassLbm
		}
	}
	// Spray condensation heat returns to the loop with the condensate.
	loopH += cmd.SprayCondenseBTUPerHr * dt

	hLoopNew := loopH / loopM
	tLoop, _, err := e.solver.liquidTemperatureFromEnthalpy(hLoopNew)
	if err != nil {
		e.ledger.rollback(prevMass, prevEnthalpy)
		return err
	}
	rhoLoop, err := e.oracle.LiquidDensity(tLoop, e.pressurizer.PressurePSIA)
	if err != nil {
		e.ledger.rollback(prevMass, prevEnthalpy)
		return err
	}
	// The loop region fills its fixed volume by construction; the surplus
	// surges to the pressurizer.
	loopMassReq := rhoLoop * cfg.LoopVolumeFt3
	surgeMass := loopM - loopMassReq
	loopH -= surgeMass * hLoopNew

	przrMass := res.TotalMassLbm - loopMassReq
	przrEnthalpy := res.TotalEnthalpyBTU - loopH
	if przrMass <= 0 {
		return fmt.Errorf("%w: pressurizer region mass %.1f lbm", ErrInvariantViolation, przrMass)
	}

	przr := e.pressurizer
	sr, serr := e.solver.Solve(przr, przrMass, przrEnthalpy)
	switch {
	case serr == nil:
		przr = sr.State
		e.metrics.ObserveSolverIterations(sr.Iterations)
		if sr.BubbleFormed {
			e.log.Info(ctx, "pressurizer steam bubble formed",
				logging.Float64("pressure_psia", przr.PressurePSIA),
				logging.Float64("steam_mass_lbm", przr.SteamMassLbm))
		}
		if sr.BubbleCollapsed {
			e.log.Warn(ctx, "pressurizer steam bubble collapsed",
				logging.Float64("pressure_psia", przr.PressurePSIA))
		}
	case errors.Is(serr, ErrNoConvergence):
		// Hold the prior solved state and surface the degradation; never
		// invent a state the solver did not produce.
		status.degrade(fmt.Sprintf("equilibrium solver: %s", serr))
	case errors.Is(serr, ErrInvariantViolation):
		return serr
	default:
		e.ledger.rollback(prevMass, prevEnthalpy)
		return serr
	}

	if serr == nil {
		volSum := przr.WaterVolumeFt3 + przr.SteamVolumeFt3
		if d := volSum - cfg.PressurizerVolumeFt3; d > cfg.VolumeToleranceFt3 || d < -cfg.VolumeToleranceFt3 {
			return fmt.Errorf("%w: pressurizer volume sum %.2f ft3 vs geometry %.2f ft3",
				ErrInvariantViolation, volSum, cfg.PressurizerVolumeFt3)
		}
	}

	// (5) Secondary model, on scratch copies.
	lineWarming := e.modes.Bridge() != BridgeModulating
	dumping := e.modes.DumpEnabled()
	sgNext := make([]*SteamGeneratorState, len(e.sgs))
	var sgHeatBTU float64
	for i, sg := range e.sgs {
		scratch := sg.clone()
		sres, serr2 := e.secondary.Step(scratch, tLoop, e.sink, lineWarming, dumping, dt)
		if serr2 != nil {
			e.ledger.rollback(prevMass, prevEnthalpy)
			return serr2
		}
		for _, d := range sres.Discrepancies {
			status.degrade(fmt.Sprintf("steam generator %d: %s", i, d))
		}
		sgHeatBTU += sres.HeatAbsorbedBTU
		sgNext[i] = scratch
	}

	// (6) Mode and permissive re-evaluation for the next tick.
	maxSGPressure := 0.0
	anyBoiling := false
	for _, sg := range sgNext {
		if sg.PressurePSIA > maxSGPressure {
			maxSGPressure = sg.PressurePSIA
		}
		if sg.Boiling() {
			anyBoiling = true
		}
	}
	e.modes.Evaluate(ctx, ModeInputs{
		TimeHours:         e.timeHours + dt,
		Phase:             przr.Phase,
		PressurePSIA:      przr.PressurePSIA,
		LevelPct:          przr.LevelPct(cfg.PressurizerVolumeFt3),
		LoopTavgF:         tLoop,
		MaxSGPressurePSIA: maxSGPressure,
		AnySGBoiling:      anyBoiling,
		Operator:          e.operator,
		Sink:              e.sink,
	}, dt)

	// Commit.
	e.timeHours += dt
	e.loopTempF = tLoop
	e.loopMassLbm = loopMassReq
	e.loopEnthalpyBTU = loopH
	e.pressurizer = przr
	e.sgs = sgNext
	e.sgHeatRateBTUPerHr = sgHeatBTU / dt
	e.flows = flows
	e.lastCmd = cmd
	return nil
}
