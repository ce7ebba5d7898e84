package core

import (
	"math"

	"github.com/meridiansim/plant-startup-simulator/model"
)

// LevelProgramSetpointPct is the programmed pressurizer level: a linear ramp
// in loop average temperature between the configured anchors. The anchor
// values are calibration constants; the source procedures carry two
// conflicting baselines and the configuration decides between them.
func LevelProgramSetpointPct(cfg model.PlantConfig, tavgF float64) float64 {
	lo, hi := cfg.LevelProgramTavgLoF, cfg.LevelProgramTavgHiF
	if tavgF <= lo {
		return cfg.LevelProgramLowPct
	}
	if tavgF >= hi {
		return cfg.LevelProgramHighPct
	}
	frac := (tavgF - lo) / (hi - lo)
	return cfg.LevelProgramLowPct + frac*(cfg.LevelProgramHighPct-cfg.LevelProgramLowPct)
}

// PressureCommand is one tick of pressurizer pressure-control actuation.
type PressureCommand struct {
	// HeaterBTUPerHr is heat added to the pressurizer region.
	HeaterBTUPerHr float64
	// SprayGPM is commanded spray flow.
	SprayGPM float64
	// SprayCondenseBTUPerHr is the condensation energy the spray removes
	// from the steam space.
	SprayCondenseBTUPerHr float64
}

// PressureController runs the pressurizer heaters and spray against a
// pressure setpoint. Spray needs reactor coolant pumps for motive flow, so
// it is gated on pump state; heaters are always available. Both actuators
// move through first-order lags.
type PressureController struct {
	cfg     model.PlantConfig
	heaters lagFilter
	spray   lagFilter
}

// NewPressureController builds the controller with lagged actuators.
func NewPressureController(cfg model.PlantConfig) *PressureController {
	return &PressureController{
		cfg:     cfg,
		heaters: lagFilter{tauHr: cfg.ActuatorLagHr},
		spray:   lagFilter{tauHr: cfg.ActuatorLagHr},
	}
}

// Update computes the tick's actuation. heatupBoost forces the heaters to
// full capacity regardless of pressure error; the startup sequence uses it
// while driving the pressurizer toward saturation and through heatup.
func (pc *PressureController) Update(pressurePSIA, setpointPSIA float64, heatupBoost, sprayAvailable bool, dtHours float64) PressureCommand {
	err := setpointPSIA - pressurePSIA

	heaterDemand := 0.0
	if heatupBoost {
		heaterDemand = pc.cfg.HeaterCapacityBTUPerHr
	} else if err > 0 {
		frac := math.Min(pc.cfg.HeaterKpPerPSI*err, 1.0)
		heaterDemand = frac * pc.cfg.HeaterCapacityBTUPerHr
	}

	sprayDemand := 0.0
	if err < 0 && sprayAvailable {
		sprayDemand = math.Min(-err*pc.cfg.SprayKpPerPSI, pc.cfg.SprayMaxGPM)
	}

	heater := pc.heaters.update(heaterDemand, dtHours)
	sprayGPM := pc.spray.update(sprayDemand, dtHours)

	return PressureCommand{
		HeaterBTUPerHr:        heater,
		SprayGPM:              sprayGPM,
		SprayCondenseBTUPerHr: sprayGPM * 60 * pc.cfg.SprayCondenseBTUPerGal,
	}
}
