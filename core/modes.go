package core

import (
	"context"
	"fmt"

	"github.com/meridiansim/plant-startup-simulator/internal/logging"
	"github.com/meridiansim/plant-startup-simulator/model"
)

// StartupMode is the plant's position in the startup evolution. Modes are
// ordered; forward progress never skips a mode, and losing a supporting
// condition steps backward.
type StartupMode int

const (
	ModeColdShutdownSolid StartupMode = iota
	ModeBubbleDetection
	ModeBubbleVerification
	ModeBubbleDrain
	ModeBubbleStabilize
	ModeBubblePressurize
	ModeTwoPhaseHeatup
	ModePrimaryPumpsRunning
	ModeRHRIsolated
	ModeBoilingOnset
	ModeHeatSinkControlled
)

func (m StartupMode) String() string {
	switch m {
	case ModeColdShutdownSolid:
		return "ColdShutdownSolid"
	case ModeBubbleDetection:
		return "BubbleFormation/Detection"
	case ModeBubbleVerification:
		return "BubbleFormation/Verification"
	case ModeBubbleDrain:
		return "BubbleFormation/Drain"
	case ModeBubbleStabilize:
		return "BubbleFormation/Stabilize"
	case ModeBubblePressurize:
		return "BubbleFormation/Pressurize"
	case ModeTwoPhaseHeatup:
		return "TwoPhaseHeatup"
	case ModePrimaryPumpsRunning:
		return "PrimaryPumpsRunning"
	case ModeRHRIsolated:
		return "RHRIsolated"
	case ModeBoilingOnset:
		return "BoilingOnset"
	case ModeHeatSinkControlled:
		return "HeatSinkControlled"
	default:
		return "Unknown"
	}
}

// InBubbleFormation reports whether the mode is one of the bubble-formation
// sub-states.
func (m StartupMode) InBubbleFormation() bool {
	return m >= ModeBubbleDetection && m <= ModeBubblePressurize
}

// BridgeState is the heat-sink bridge: whether excess primary heat may be
// dumped to the external sink.
type BridgeState int

const (
	BridgeUnavailable BridgeState = iota
	BridgeArmed
	BridgeModulating
)

func (b BridgeState) String() string {
	switch b {
	case BridgeUnavailable:
		return "Unavailable"
	case BridgeArmed:
		return "Armed"
	case BridgeModulating:
		return "Modulating"
	default:
		return "Unknown"
	}
}

// Transition records a fired mode change and the guard that tripped it.
type Transition struct {
	TimeHours float64
	From, To  StartupMode
	Condition string
}

// RejectedRequest records an operator request whose guard did not hold. The
// request is ignored, never forced.
type RejectedRequest struct {
	TimeHours float64
	Request   string
	Reason    string
}

// ModeInputs is the per-tick measurement set the mode machine evaluates.
type ModeInputs struct {
	TimeHours float64

	Phase        PressurizerPhase
	PressurePSIA float64
	LevelPct     float64
	LoopTavgF    float64

	// MaxSGPressurePSIA is the highest secondary pressure across steam
	// generators; the bridge modulates against it.
	MaxSGPressurePSIA float64
	// AnySGBoiling is true when any secondary node is boiling.
	AnySGBoiling bool

	Operator model.OperatorInputs
	Sink     model.HeatSinkBoundary
}

const transitionLogCap = 256

// ModeMachine evaluates the startup mode and heat-sink bridge once per tick.
// At most one outer-mode transition fires per evaluation; the bridge is
// re-derived every tick independent of the outer mode.
type ModeMachine struct {
	cfg model.PlantConfig
	log logging.Logger

	mode   StartupMode
	bridge BridgeState

	verifyHoldHr    float64
	stabilizeHoldHr float64

	transitions []Transition
	rejections  []RejectedRequest
	lastReject  map[string]string
}

// NewModeMachine starts at cold shutdown, water solid, bridge unavailable.
func NewModeMachine(cfg model.PlantConfig, log logging.Logger) *ModeMachine {
	if log == nil {
		log = logging.Noop()
	}
	return &ModeMachine{
		cfg:        cfg,
		log:        log,
		mode:       ModeColdShutdownSolid,
		bridge:     BridgeUnavailable,
		lastReject: make(map[string]string),
	}
}

// Mode returns the current outer mode.
func (mm *ModeMachine) Mode() StartupMode { return mm.mode }

// Bridge returns the current heat-sink bridge state.
func (mm *ModeMachine) Bridge() BridgeState { return mm.bridge }

// Transitions returns the fired-transition log, oldest first.
func (mm *ModeMachine) Transitions() []Transition {
	out := make([]Transition, len(mm.transitions))
	copy(out, mm.transitions)
	return out
}

// Rejections returns the ignored-request log, oldest first.
func (mm *ModeMachine) Rejections() []RejectedRequest {
	out := make([]RejectedRequest, len(mm.rejections))
	copy(out, mm.rejections)
	return out
}

// ChargingAuthority maps the mode to the charging/letdown control regime.
func (mm *ModeMachine) ChargingAuthority() ControlAuthority {
	switch mm.mode {
	case ModeColdShutdownSolid, ModeBubbleDetection:
		return AuthoritySolidPressure
	case ModeBubbleDrain:
		return AuthorityDrain
	default:
		return AuthorityLevelProgram
	}
}

// HeaterBoost reports whether the heaters are procedurally driven at full
// capacity rather than trimmed against the pressure setpoint.
func (mm *ModeMachine) HeaterBoost() bool {
	return mm.mode == ModeBubbleDetection || mm.mode == ModeBubblePressurize
}

// PumpsPermitted reports whether reactor coolant pumps may run in the
// current mode.
func (mm *ModeMachine) PumpsPermitted() bool {
	return mm.mode >= ModePrimaryPumpsRunning
}

// DumpEnabled reports whether steam-dump flow is permitted this tick.
func (mm *ModeMachine) DumpEnabled() bool { return mm.bridge == BridgeModulating }

// Evaluate advances the bridge and, at most once, the outer mode.
func (mm *ModeMachine) Evaluate(ctx context.Context, in ModeInputs, dtHours float64) {
	mm.evaluateBridge(ctx, in)

	if mm.reverse(ctx, in) {
		return
	}
	mm.forward(ctx, in, dtHours)
}

// evaluateBridge re-derives the bridge state from the permissives. Losing
// the sink drops straight to Unavailable, which is the safe valve position.
func (mm *ModeMachine) evaluateBridge(ctx context.Context, in ModeInputs) {
	next := BridgeUnavailable
	switch {
	case !in.Sink.Available:
		next = BridgeUnavailable
	case in.LoopTavgF < mm.cfg.LowTavgBlockF && !in.Operator.BypassLowTavgBlock:
		next = BridgeUnavailable
	case in.MaxSGPressurePSIA >= mm.cfg.SteamDumpArmPSIA:
		next = BridgeModulating
	default:
		next = BridgeArmed
	}
	if next != mm.bridge {
		mm.log.Info(ctx, "heat-sink bridge changed",
			logging.String("from", mm.bridge.String()),
			logging.String("to", next.String()),
			logging.Float64("sg_pressure_psia", in.MaxSGPressurePSIA),
			logging.Float64("tavg_f", in.LoopTavgF))
		mm.bridge = next
	}
}

// reverse checks backward guards first; a lost condition takes priority over
// any forward progress in the same tick.
func (mm *ModeMachine) reverse(ctx context.Context, in ModeInputs) bool {
	switch {
	case mm.mode > ModeBubbleDetection && mm.mode < ModeTwoPhaseHeatup && in.Phase == PhaseSolid:
		mm.fire(ctx, in.TimeHours, ModeBubbleDetection, "steam bubble collapsed, pressurizer water solid")
		return true
	case mm.mode >= ModePrimaryPumpsRunning && !in.Operator.PumpsConfirmedRunning:
		mm.fire(ctx, in.TimeHours, ModeTwoPhaseHeatup, "reactor coolant pump run confirmation lost")
		return true
	case mm.mode == ModeHeatSinkControlled && mm.bridge != BridgeModulating:
		mm.fire(ctx, in.TimeHours, ModeBoilingOnset, "heat-sink bridge left Modulating")
		return true
	}
	return false
}

func (mm *ModeMachine) forward(ctx context.Context, in ModeInputs, dtHours float64) {
	cfg := mm.cfg

	switch mm.mode {
	case ModeColdShutdownSolid:
		band := 25.0
		if diff := in.PressurePSIA - cfg.SolidPressureSetpointPSIA; diff >= -band && diff <= band {
			mm.fire(ctx, in.TimeHours, ModeBubbleDetection,
				fmt.Sprintf("solid pressure %.0f psia within %.0f psi of setpoint %.0f",
					in.PressurePSIA, band, cfg.SolidPressureSetpointPSIA))
		}

	case ModeBubbleDetection:
		if in.Phase == PhaseTwoPhase {
			mm.verifyHoldHr = 0
			mm.fire(ctx, in.TimeHours, ModeBubbleVerification, "steam bubble detected in pressurizer")
		}

	case ModeBubbleVerification:
		mm.verifyHoldHr += dtHours
		if mm.verifyHoldHr >= cfg.BubbleVerifyHoldHr {
			mm.fire(ctx, in.TimeHours, ModeBubbleDrain,
				fmt.Sprintf("bubble held two-phase for %.2f hr", mm.verifyHoldHr))
		}

	case ModeBubbleDrain:
		if in.LevelPct <= cfg.DrainTargetLevelPct {
			mm.stabilizeHoldHr = 0
			mm.fire(ctx, in.TimeHours, ModeBubbleStabilize,
				fmt.Sprintf("level %.1f%% at drain target %.1f%%", in.LevelPct, cfg.DrainTargetLevelPct))
		}

	case ModeBubbleStabilize:
		if diff := in.LevelPct - cfg.DrainTargetLevelPct; diff >= -5 && diff <= 5 {
			mm.stabilizeHoldHr += dtHours
		} else {
			mm.stabilizeHoldHr = 0
		}
		if mm.stabilizeHoldHr >= cfg.BubbleStabilizeHoldHr {
			mm.fire(ctx, in.TimeHours, ModeBubblePressurize,
				fmt.Sprintf("level stable near %.1f%% for %.2f hr", cfg.DrainTargetLevelPct, mm.stabilizeHoldHr))
		}

	case ModeBubblePressurize:
		if in.PressurePSIA >= cfg.PressurizeTargetPSIA {
			mm.fire(ctx, in.TimeHours, ModeTwoPhaseHeatup,
				fmt.Sprintf("pressure %.0f psia reached pressurization target %.0f", in.PressurePSIA, cfg.PressurizeTargetPSIA))
		}

	case ModeTwoPhaseHeatup:
		if !in.Operator.StartPumps {
			break
		}
		if in.PressurePSIA < cfg.RCPMinPressurePSIA {
			mm.reject(ctx, in.TimeHours, "start reactor coolant pumps",
				fmt.Sprintf("pressure %.0f psia below pump minimum %.0f", in.PressurePSIA, cfg.RCPMinPressurePSIA))
			break
		}
		if !in.Operator.PumpsConfirmedRunning {
			mm.reject(ctx, in.TimeHours, "start reactor coolant pumps", "pump run confirmation not received")
			break
		}
		mm.fire(ctx, in.TimeHours, ModePrimaryPumpsRunning,
			fmt.Sprintf("pumps confirmed running at %.0f psia", in.PressurePSIA))

	case ModePrimaryPumpsRunning:
		if !in.Operator.IsolateRHR {
			break
		}
		if in.LoopTavgF < cfg.RHRIsolateTempF {
			mm.reject(ctx, in.TimeHours, "isolate residual heat removal",
				fmt.Sprintf("Tavg %.0fF below isolation threshold %.0fF", in.LoopTavgF, cfg.RHRIsolateTempF))
			break
		}
		if in.PressurePSIA < cfg.RHRIsolatePressurePSIA {
			mm.reject(ctx, in.TimeHours, "isolate residual heat removal",
				fmt.Sprintf("pressure %.0f psia below isolation threshold %.0f", in.PressurePSIA, cfg.RHRIsolatePressurePSIA))
			break
		}
		mm.fire(ctx, in.TimeHours, ModeRHRIsolated,
			fmt.Sprintf("RHR isolated at Tavg %.0fF, %.0f psia", in.LoopTavgF, in.PressurePSIA))

	case ModeRHRIsolated:
		if in.AnySGBoiling {
			mm.fire(ctx, in.TimeHours, ModeBoilingOnset, "secondary-side boiling detected")
		}

	case ModeBoilingOnset:
		if mm.bridge == BridgeModulating {
			mm.fire(ctx, in.TimeHours, ModeHeatSinkControlled, "heat-sink bridge modulating")
		}
	}
}

func (mm *ModeMachine) fire(ctx context.Context, timeHours float64, to StartupMode, condition string) {
	tr := Transition{TimeHours: timeHours, From: mm.mode, To: to, Condition: condition}
	mm.transitions = append(mm.transitions, tr)
	if len(mm.transitions) > transitionLogCap {
		mm.transitions = mm.transitions[len(mm.transitions)-transitionLogCap:]
	}
	mm.log.Info(ctx, "startup mode transition",
		logging.String("from", tr.From.String()),
		logging.String("to", tr.To.String()),
		logging.String("condition", condition),
		logging.Float64("time_hr", timeHours))
	mm.mode = to
	clear(mm.lastReject)
}

// reject records an ignored operator request, deduplicating the repeated
// per-tick re-evaluation of the same held request.
func (mm *ModeMachine) reject(ctx context.Context, timeHours float64, request, reason string) {
	if mm.lastReject[request] == reason {
		return
	}
	mm.lastReject[request] = reason
	mm.rejections = append(mm.rejections, RejectedRequest{TimeHours: timeHours, Request: request, Reason: reason})
	if len(mm.rejections) > transitionLogCap {
		mm.rejections = mm.rejections[len(mm.rejections)-transitionLogCap:]
	}
	mm.log.Warn(ctx, "operator request ignored",
		logging.String("request", request),
		logging.String("reason", reason))
}
