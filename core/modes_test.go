package core

import (
	"context"
	"testing"

	"github.com/meridiansim/plant-startup-simulator/model"
)

func solidModeInputs(cfg model.PlantConfig) ModeInputs {
	return ModeInputs{
		Phase:        PhaseSolid,
		PressurePSIA: cfg.SolidPressureSetpointPSIA,
		LevelPct:     100,
		LoopTavgF:    160,
	}
}

func TestModeMachineWalksBubbleFormationInOrder(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()
	dt := 0.01

	if mm.Mode() != ModeColdShutdownSolid {
		t.Fatalf("initial mode %s, want ColdShutdownSolid", mm.Mode())
	}

	in := solidModeInputs(cfg)
	mm.Evaluate(ctx, in, dt)
	if mm.Mode() != ModeBubbleDetection {
		t.Fatalf("solid pressure at setpoint should enter detection, got %s", mm.Mode())
	}

	// Bubble appears.
	in.Phase = PhaseTwoPhase
	in.LevelPct = 85
	mm.Evaluate(ctx, in, dt)
	if mm.Mode() != ModeBubbleVerification {
		t.Fatalf("two-phase should enter verification, got %s", mm.Mode())
	}

	// Hold two-phase through the verification window.
	for hr := 0.0; hr < cfg.BubbleVerifyHoldHr+dt; hr += dt {
		mm.Evaluate(ctx, in, dt)
	}
	if mm.Mode() != ModeBubbleDrain {
		t.Fatalf("sustained bubble should enter drain, got %s", mm.Mode())
	}
	if mm.ChargingAuthority() != AuthorityDrain {
		t.Fatalf("drain mode should select drain authority, got %s", mm.ChargingAuthority())
	}

	// Level reaches the drain target.
	in.LevelPct = cfg.DrainTargetLevelPct
	mm.Evaluate(ctx, in, dt)
	if mm.Mode() != ModeBubbleStabilize {
		t.Fatalf("level at target should enter stabilize, got %s", mm.Mode())
	}

	for hr := 0.0; hr < cfg.BubbleStabilizeHoldHr+dt; hr += dt {
		mm.Evaluate(ctx, in, dt)
	}
	if mm.Mode() != ModeBubblePressurize {
		t.Fatalf("stable level should enter pressurize, got %s", mm.Mode())
	}

	in.PressurePSIA = cfg.PressurizeTargetPSIA + 5
	mm.Evaluate(ctx, in, dt)
	if mm.Mode() != ModeTwoPhaseHeatup {
		t.Fatalf("pressurization target should enter two-phase heatup, got %s", mm.Mode())
	}

	// Every fired transition carries its triggering condition.
	for _, tr := range mm.Transitions() {
		if tr.Condition == "" {
			t.Fatalf("transition %s -> %s has no triggering condition", tr.From, tr.To)
		}
		if tr.To != tr.From+1 {
			t.Fatalf("transition %s -> %s skips a mode", tr.From, tr.To)
		}
	}
}

func TestModeMachineOneTransitionPerTick(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()

	// Inputs that satisfy several forward guards at once.
	in := solidModeInputs(cfg)
	in.Phase = PhaseTwoPhase
	in.LevelPct = cfg.DrainTargetLevelPct

	before := mm.Mode()
	mm.Evaluate(ctx, in, 0.01)
	after := mm.Mode()
	if after != before+1 {
		t.Fatalf("one tick moved %s -> %s, must advance at most one mode", before, after)
	}
}

func TestBubbleCollapseRevertsToDetection(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()

	in := solidModeInputs(cfg)
	mm.Evaluate(ctx, in, 0.01)
	in.Phase = PhaseTwoPhase
	mm.Evaluate(ctx, in, 0.01)
	if mm.Mode() != ModeBubbleVerification {
		t.Fatalf("setup: want verification, got %s", mm.Mode())
	}

	in.Phase = PhaseSolid
	mm.Evaluate(ctx, in, 0.01)
	if mm.Mode() != ModeBubbleDetection {
		t.Fatalf("collapsed bubble should revert to detection, got %s", mm.Mode())
	}
}

func TestPumpStartRejectedBelowMinimumPressure(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()

	mm.mode = ModeTwoPhaseHeatup
	in := solidModeInputs(cfg)
	in.Phase = PhaseTwoPhase
	in.LevelPct = 30
	in.PressurePSIA = cfg.RCPMinPressurePSIA - 50
	in.Operator.StartPumps = true
	in.Operator.PumpsConfirmedRunning = true

	mm.Evaluate(ctx, in, 0.01)
	if mm.Mode() != ModeTwoPhaseHeatup {
		t.Fatalf("pump start below minimum pressure must be ignored, mode moved to %s", mm.Mode())
	}
	rej := mm.Rejections()
	if len(rej) == 0 {
		t.Fatalf("ignored pump start should be recorded with a reason")
	}
	if rej[len(rej)-1].Reason == "" {
		t.Fatalf("rejection recorded without a reason")
	}

	// Repeating the held request does not spam the log.
	n := len(mm.Rejections())
	for i := 0; i < 10; i++ {
		mm.Evaluate(ctx, in, 0.01)
	}
	if len(mm.Rejections()) != n {
		t.Fatalf("held request re-recorded %d times", len(mm.Rejections())-n)
	}

	// With pressure restored the same request succeeds.
	in.PressurePSIA = cfg.RCPMinPressurePSIA + 20
	mm.Evaluate(ctx, in, 0.01)
	if mm.Mode() != ModePrimaryPumpsRunning {
		t.Fatalf("pump start with guards met should fire, got %s", mm.Mode())
	}
}

func TestRHRIsolationGuards(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()

	mm.mode = ModePrimaryPumpsRunning
	in := solidModeInputs(cfg)
	in.Phase = PhaseTwoPhase
	in.PressurePSIA = cfg.RHRIsolatePressurePSIA + 10
	in.LoopTavgF = cfg.RHRIsolateTempF - 40
	in.Operator.PumpsConfirmedRunning = true
	in.Operator.IsolateRHR = true

	mm.Evaluate(ctx, in, 0.01)
	if mm.Mode() != ModePrimaryPumpsRunning {
		t.Fatalf("RHR isolation below Tavg threshold must be ignored, got %s", mm.Mode())
	}

	in.LoopTavgF = cfg.RHRIsolateTempF + 5
	mm.Evaluate(ctx, in, 0.01)
	if mm.Mode() != ModeRHRIsolated {
		t.Fatalf("RHR isolation with guards met should fire, got %s", mm.Mode())
	}
}

func TestLostPumpConfirmationRevertsMode(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()

	mm.mode = ModeRHRIsolated
	in := solidModeInputs(cfg)
	in.Phase = PhaseTwoPhase
	in.Operator.PumpsConfirmedRunning = false

	mm.Evaluate(ctx, in, 0.01)
	if mm.Mode() != ModeTwoPhaseHeatup {
		t.Fatalf("lost pump confirmation should revert to two-phase heatup, got %s", mm.Mode())
	}
}

func TestBridgeNeverModulatingWithoutSink(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()

	in := solidModeInputs(cfg)
	in.Phase = PhaseTwoPhase
	in.LoopTavgF = cfg.LowTavgBlockF + 20
	in.MaxSGPressurePSIA = cfg.SteamDumpArmPSIA + 50
	in.Sink = model.HeatSinkBoundary{Available: false}

	for i := 0; i < 50; i++ {
		mm.Evaluate(ctx, in, 0.01)
		if mm.Bridge() == BridgeModulating {
			t.Fatalf("bridge modulating with heat sink unavailable")
		}
	}
	if mm.Bridge() != BridgeUnavailable {
		t.Fatalf("bridge %s without sink, want Unavailable", mm.Bridge())
	}

	in.Sink.Available = true
	mm.Evaluate(ctx, in, 0.01)
	if mm.Bridge() != BridgeModulating {
		t.Fatalf("sink available, Tavg above block, steam pressure at arm point: want Modulating, got %s", mm.Bridge())
	}
	if !mm.DumpEnabled() {
		t.Fatalf("modulating bridge should enable dump flow")
	}
}

func TestLowTavgBlockAndBypass(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	mm := NewModeMachine(cfg, nil)
	ctx := context.Background()

	in := solidModeInputs(cfg)
	in.Sink = model.HeatSinkBoundary{Available: true}
	in.LoopTavgF = cfg.LowTavgBlockF - 100
	in.MaxSGPressurePSIA = cfg.SteamDumpArmPSIA + 10

	mm.Evaluate(ctx, in, 0.01)
	if mm.Bridge() != BridgeUnavailable {
		t.Fatalf("low Tavg without bypass should block the bridge, got %s", mm.Bridge())
	}

	in.Operator.BypassLowTavgBlock = true
	mm.Evaluate(ctx, in, 0.01)
	if mm.Bridge() != BridgeModulating {
		t.Fatalf("operator bypass should release the low-Tavg block, got %s", mm.Bridge())
	}

	// Dropping the bypass re-imposes the block the very next tick.
	in.Operator.BypassLowTavgBlock = false
	mm.Evaluate(ctx, in, 0.01)
	if mm.Bridge() != BridgeUnavailable {
		t.Fatalf("removing bypass should re-block immediately, got %s", mm.Bridge())
	}
}
