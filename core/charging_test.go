package core

import (
	"testing"

	"github.com/meridiansim/plant-startup-simulator/model"
)

func chargingMeasurements(levelPct, setpointPct float64) CVCSMeasurements {
	return CVCSMeasurements{
		LevelPct:              levelPct,
		LevelSetpointPct:      setpointPct,
		PressurePSIA:          440,
		LoopDensityLbmFt3:     50,
		ChargingDensityLbmFt3: 62,
	}
}

func TestChargingLevelProgramRaisesFlowOnLowLevel(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	// Settle at zero error first so the lag filters hold the baseline.
	baseline := c.Update(chargingMeasurements(40, 40), 0.01)

	low := c.Update(chargingMeasurements(30, 40), 0.01)
	if low.ChargingGPM <= baseline.ChargingGPM {
		t.Fatalf("low level should raise charging: baseline %.1f gpm, got %.1f gpm",
			baseline.ChargingGPM, low.ChargingGPM)
	}
	if low.NetLbmPerHr() <= 0 {
		t.Fatalf("low level should give net inflow, got %.1f lbm/hr", low.NetLbmPerHr())
	}
}

func TestChargingLevelProgramTrimsFlowOnHighLevel(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	baseline := c.Update(chargingMeasurements(40, 40), 0.01)
	high := c.Update(chargingMeasurements(44, 40), 0.01)
	if high.ChargingGPM >= baseline.ChargingGPM {
		t.Fatalf("high level should trim charging: baseline %.1f gpm, got %.1f gpm",
			baseline.ChargingGPM, high.ChargingGPM)
	}
}

func TestChargingFlowRespectsPumpEnvelope(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	for i := 0; i < 200; i++ {
		f := c.Update(chargingMeasurements(10, 60), 0.01)
		if f.ChargingGPM > cfg.ChargingMaxGPM+1e-9 {
			t.Fatalf("charging %.2f gpm exceeds pump maximum %.2f gpm", f.ChargingGPM, cfg.ChargingMaxGPM)
		}
	}
	for i := 0; i < 200; i++ {
		f := c.Update(chargingMeasurements(90, 40), 0.01)
		if f.ChargingGPM < cfg.SealInjectionMinGPM-1e-9 {
			t.Fatalf("charging %.2f gpm fell below seal injection minimum %.2f gpm",
				f.ChargingGPM, cfg.SealInjectionMinGPM)
		}
	}
}

func TestOrificeOpensOnSustainedHighLevel(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	m := chargingMeasurements(50, 40) // 10% above setpoint, past the open threshold

	var f CVCSFlows
	for i := 0; i < 4; i++ {
		f = c.Update(m, 0.01)
	}
	if f.OpenOrifices != 1 {
		t.Fatalf("orifice opened before sustain time elapsed: %d open", f.OpenOrifices)
	}
	f = c.Update(m, 0.01)
	if f.OpenOrifices != 2 {
		t.Fatalf("expected second orifice after sustained high level, got %d open", f.OpenOrifices)
	}
}

func TestOrificeDoesNotOpenOnTransientHighLevel(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	high := chargingMeasurements(50, 40)
	normal := chargingMeasurements(40, 40)
	for cycle := 0; cycle < 5; cycle++ {
		for i := 0; i < 4; i++ {
			c.Update(high, 0.01)
		}
		f := c.Update(normal, 0.01) // error clears, sustain timer resets
		if f.OpenOrifices != 1 {
			t.Fatalf("transient high level opened an orifice: %d open", f.OpenOrifices)
		}
	}
}

func TestOrificeLineupRespectsAdminMax(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	// Three orifices would exceed the administrative maximum; the lineup
	// must hold at two no matter how long the level error persists.
	m := chargingMeasurements(55, 40)
	for i := 0; i < 100; i++ {
		f := c.Update(m, 0.01)
		if f.OpenOrifices > 2 {
			t.Fatalf("lineup opened %d orifices, %.0f gpm exceeds admin max %.0f gpm",
				f.OpenOrifices, float64(f.OpenOrifices)*cfg.LetdownOrificeGPM, cfg.LetdownAdminMaxGPM)
		}
		if f.LetdownGPM > cfg.LetdownAdminMaxGPM+1e-9 {
			t.Fatalf("letdown %.2f gpm exceeds admin max %.2f gpm", f.LetdownGPM, cfg.LetdownAdminMaxGPM)
		}
	}
}

func TestValveLagPreventsInstantMotion(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	baseline := c.Update(chargingMeasurements(40, 40), 0.001)

	// Large step in demand over a tick much shorter than the lag constant.
	step := c.Update(chargingMeasurements(25, 40), 0.001)
	moved := step.ChargingGPM - baseline.ChargingGPM
	if moved <= 0 {
		t.Fatalf("charging should start moving toward demand, moved %.3f gpm", moved)
	}
	demand := cfg.ChargingKpGPMPerPct * 15 // dominant proportional term
	if moved > 0.5*demand {
		t.Fatalf("valve moved %.1f gpm in one short tick, lag should limit it below %.1f",
			moved, 0.5*demand)
	}
}

func TestDrainAuthorityOpensLetdownFully(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityDrain)

	f := c.Update(chargingMeasurements(60, 25), 0.01)
	wantLetdown := cfg.LetdownAdminMaxGPM
	if full := float64(cfg.LetdownOrificeCount) * cfg.LetdownOrificeGPM; full < wantLetdown {
		wantLetdown = full
	}
	if f.LetdownGPM < wantLetdown-1 {
		t.Fatalf("drain letdown %.1f gpm, want about %.1f gpm", f.LetdownGPM, wantLetdown)
	}
	if f.ChargingGPM > cfg.SealInjectionMinGPM+1 {
		t.Fatalf("drain charging %.1f gpm, want seal minimum %.1f gpm", f.ChargingGPM, cfg.SealInjectionMinGPM)
	}
	if f.NetLbmPerHr() >= 0 {
		t.Fatalf("drain should give net outflow, got %.1f lbm/hr", f.NetLbmPerHr())
	}
}

func TestSolidPressureAuthorityTrimsCharging(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	if c.Authority() != AuthoritySolidPressure {
		t.Fatalf("controller should start in solid-pressure authority, got %s", c.Authority())
	}

	low := chargingMeasurements(100, 100)
	low.PressurePSIA = cfg.SolidPressureSetpointPSIA - 40
	fLow := c.Update(low, 0.01)

	c2 := NewChargingLetdownController(cfg, nil)
	high := chargingMeasurements(100, 100)
	high.PressurePSIA = cfg.SolidPressureSetpointPSIA + 40
	fHigh := c2.Update(high, 0.01)

	if fLow.ChargingGPM <= fHigh.ChargingGPM {
		t.Fatalf("low pressure should charge harder than high pressure: %.1f vs %.1f gpm",
			fLow.ChargingGPM, fHigh.ChargingGPM)
	}
	if fLow.NetLbmPerHr() <= 0 {
		t.Fatalf("low solid pressure should give net inflow, got %.1f lbm/hr", fLow.NetLbmPerHr())
	}
}

func TestAuthorityChangeResetsIntegral(t *testing.T) {
	cfg := model.DefaultPlantConfig()
	c := NewChargingLetdownController(cfg, nil)
	c.SetAuthority(AuthorityLevelProgram)

	// Wind the integral to its clamp.
	for i := 0; i < 200; i++ {
		c.Update(chargingMeasurements(20, 60), 0.01)
	}

	c.SetAuthority(AuthorityDrain)
	c.SetAuthority(AuthorityLevelProgram)

	// With zero error the command should settle back to the letdown plus
	// seal makeup baseline; a surviving integral would hold it high.
	var f CVCSFlows
	for i := 0; i < 20; i++ {
		f = c.Update(chargingMeasurements(40, 40), 0.01)
	}
	baseline := float64(f.OpenOrifices)*cfg.LetdownOrificeGPM + cfg.NetSealOutflowGPM
	if diff := f.ChargingGPM - baseline; diff > 2 || diff < -2 {
		t.Fatalf("charging %.1f gpm after authority reset, want near baseline %.1f gpm",
			f.ChargingGPM, baseline)
	}
}
