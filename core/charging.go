package core

import (
	"math"

	"github.com/meridiansim/plant-startup-simulator/internal/logging"
	"github.com/meridiansim/plant-startup-simulator/model"
)

// Volumetric conversion: one gpm sustained for an hour.
const gpmToFt3PerHr = 8.0208

// ControlAuthority selects which variable the charging/letdown balance is
// holding. Authority changes reset the integral state so a stale accumulator
// from the previous regime cannot slam the valves.
type ControlAuthority int

const (
	// AuthoritySolidPressure: water-solid plant, charging trims pressure.
	AuthoritySolidPressure ControlAuthority = iota
	// AuthorityDrain: bubble-formation drain, letdown wide open.
	AuthorityDrain
	// AuthorityLevelProgram: normal two-phase level-program control.
	AuthorityLevelProgram
)

func (a ControlAuthority) String() string {
	switch a {
	case AuthoritySolidPressure:
		return "SolidPressure"
	case AuthorityDrain:
		return "Drain"
	case AuthorityLevelProgram:
		return "LevelProgram"
	default:
		return "Unknown"
	}
}

// lagFilter is a first-order actuator lag; no valve moves instantaneously.
type lagFilter struct {
	tauHr float64
	value float64
	init  bool
}

func (f *lagFilter) update(target, dtHours float64) float64 {
	if !f.init {
		f.value = target
		f.init = true
		return f.value
	}
	if f.tauHr <= 0 {
		f.value = target
		return f.value
	}
	f.value += (target - f.value) * (1 - math.Exp(-dtHours/f.tauHr))
	return f.value
}

// piLoop is a proportional-integral loop with a bounded integral.
type piLoop struct {
	kp, ki   float64
	clamp    float64
	integral float64
}

func (p *piLoop) update(err, dtHours float64) float64 {
	p.integral += err * p.ki * dtHours
	if p.integral > p.clamp {
		p.integral = p.clamp
	}
	if p.integral < -p.clamp {
		p.integral = -p.clamp
	}
	return p.kp*err + p.integral
}

func (p *piLoop) reset() { p.integral = 0 }

// CVCSFlows is one tick's commanded chemical/volume-control flows, after
// actuator lag, in both procedure units (gpm) and ledger units (lbm/hr).
type CVCSFlows struct {
	ChargingGPM float64
	LetdownGPM  float64

	ChargingLbmPerHr float64
	LetdownLbmPerHr  float64
	// SealNetLbmPerHr is the closed seal injection/return sub-loop's fixed
	// net outflow.
	SealNetLbmPerHr float64

	OpenOrifices int
}

// NetLbmPerHr is the signed net into the primary.
func (f CVCSFlows) NetLbmPerHr() float64 {
	return f.ChargingLbmPerHr - f.LetdownLbmPerHr - f.SealNetLbmPerHr
}

// CVCSMeasurements are the inputs the balance controller reads each tick.
type CVCSMeasurements struct {
	LevelPct         float64
	LevelSetpointPct float64
	PressurePSIA     float64
	// LoopDensityLbmFt3 converts letdown gpm to mass rate.
	LoopDensityLbmFt3 float64
	// ChargingDensityLbmFt3 converts charging gpm to mass rate.
	ChargingDensityLbmFt3 float64
}

// ChargingLetdownController is the charging/letdown balance: a PI loop from
// level-program error to charging flow, and a discrete letdown orifice
// lineup that opens on sustained high level and never exceeds the
// administrative maximum.
type ChargingLetdownController struct {
	cfg model.PlantConfig
	log logging.Logger

	authority ControlAuthority

	levelPI  piLoop
	charging lagFilter
	letdown  lagFilter

	openOrifices int
	highLevelHr  float64
}

// NewChargingLetdownController starts in solid-pressure authority with one
// letdown orifice in service.
func NewChargingLetdownController(cfg model.PlantConfig, log logging.Logger) *ChargingLetdownController {
	if log == nil {
		log = logging.Noop()
	}
	return &ChargingLetdownController{
		cfg: cfg,
		log: log,
		levelPI: piLoop{
			kp:    cfg.ChargingKpGPMPerPct,
			ki:    cfg.ChargingKiPerHr,
			clamp: cfg.ChargingIntegralClamp,
		},
		charging:     lagFilter{tauHr: cfg.ActuatorLagHr},
		letdown:      lagFilter{tauHr: cfg.ActuatorLagHr},
		openOrifices: 1,
	}
}

// Authority returns the current control authority.
func (c *ChargingLetdownController) Authority() ControlAuthority { return c.authority }

// SetAuthority switches control regime. The integral accumulator and the
// sustain timer reset so the new regime starts clean.
func (c *ChargingLetdownController) SetAuthority(a ControlAuthority) {
	if a == c.authority {
		return
	}
	c.levelPI.reset()
	c.highLevelHr = 0
	c.authority = a
}

// Update computes one tick of commanded flows. The caller posts the result
// to the mass-energy ledger; the controller itself never touches inventory.
func (c *ChargingLetdownController) Update(m CVCSMeasurements, dtHours float64) CVCSFlows {
	var chargingCmd, letdownCmd float64

	switch c.authority {
	case AuthorityDrain:
		// Drain the bubble: letdown wide open, charging at seal minimum.
		chargingCmd = c.cfg.SealInjectionMinGPM
		letdownCmd = math.Min(float64(c.cfg.LetdownOrificeCount)*c.cfg.LetdownOrificeGPM, c.cfg.LetdownAdminMaxGPM)
		c.openOrifices = int(letdownCmd / c.cfg.LetdownOrificeGPM)

	case AuthoritySolidPressure:
		// Water-solid: charging trims pressure against a single orifice.
		c.openOrifices = 1
		letdownCmd = math.Min(c.cfg.LetdownOrificeGPM, c.cfg.LetdownAdminMaxGPM)
		err := c.cfg.SolidPressureSetpointPSIA - m.PressurePSIA
		chargingCmd = letdownCmd + c.cfg.NetSealOutflowGPM + c.cfg.SolidPressureKpGPMPerPSI*err

	case AuthorityLevelProgram:
		c.updateOrificeLineup(m, dtHours)
		letdownCmd = float64(c.openOrifices) * c.cfg.LetdownOrificeGPM
		if letdownCmd > c.cfg.LetdownAdminMaxGPM {
			letdownCmd = c.cfg.LetdownAdminMaxGPM
		}
		err := m.LevelSetpointPct - m.LevelPct
		chargingCmd = letdownCmd + c.cfg.NetSealOutflowGPM + c.levelPI.update(err, dtHours)
	}

	// Bound to the physical pump/valve envelope.
	chargingCmd = math.Max(c.cfg.SealInjectionMinGPM, math.Min(chargingCmd, c.cfg.ChargingMaxGPM))
	if letdownCmd < 0 {
		letdownCmd = 0
	}

	chargingGPM := c.charging.update(chargingCmd, dtHours)
	letdownGPM := c.letdown.update(letdownCmd, dtHours)

	return CVCSFlows{
		ChargingGPM:      chargingGPM,
		LetdownGPM:       letdownGPM,
		ChargingLbmPerHr: chargingGPM * gpmToFt3PerHr * m.ChargingDensityLbmFt3,
		LetdownLbmPerHr:  letdownGPM * gpmToFt3PerHr * m.LoopDensityLbmFt3,
		SealNetLbmPerHr:  c.cfg.NetSealOutflowGPM * gpmToFt3PerHr * m.ChargingDensityLbmFt3,
		OpenOrifices:     c.openOrifices,
	}
}

// updateOrificeLineup opens an additional letdown orifice when level error
// persists above the threshold for the sustain duration, and closes down to
// the administrative maximum.
func (c *ChargingLetdownController) updateOrificeLineup(m CVCSMeasurements, dtHours float64) {
	levelErr := m.LevelPct - m.LevelSetpointPct

	if levelErr > c.cfg.OrificeOpenLevelPct {
		c.highLevelHr += dtHours
	} else {
		c.highLevelHr = 0
	}

	if c.highLevelHr >= c.cfg.OrificeOpenSustainHr && c.openOrifices < c.cfg.LetdownOrificeCount {
		next := float64(c.openOrifices+1) * c.cfg.LetdownOrificeGPM
		if next <= c.cfg.LetdownAdminMaxGPM {
			c.openOrifices++
			c.highLevelHr = 0
		}
	}

	// Never carry a lineup whose total would exceed the administrative
	// maximum (for example after a configuration change).
	for c.openOrifices > 1 && float64(c.openOrifices)*c.cfg.LetdownOrificeGPM > c.cfg.LetdownAdminMaxGPM {
		c.openOrifices--
	}
	if c.openOrifices < 1 {
		c.openOrifices = 1
	}
}
