// Package model holds the plain data types shared between the simulation
// core and its collaborators: plant calibration constants and external
// boundary conditions. Nothing in here has behaviour beyond validation.
package model

import "fmt"

// PlantConfig carries every calibration constant the engine consumes. The
// source material documents conflicting baselines for primary heat input and
// the heatup-phase level program; both live here as plain numbers so the
// calibration choice stays out of the core.
//
// Units follow the engine convention: lbm, BTU, psia, °F, ft³, hours, except
// flow setpoints which are gpm as plant procedures state them.
type PlantConfig struct {
	// Geometry.
	PressurizerVolumeFt3 float64 `mapstructure:"pressurizer_volume_ft3"`
	LoopVolumeFt3        float64 `mapstructure:"loop_volume_ft3"`

	// Steam generators.
	SGCount                int     `mapstructure:"sg_count"`
	SGNodeCount            int     `mapstructure:"sg_node_count"`
	SGSecondaryInventoryLb float64 `mapstructure:"sg_secondary_inventory_lbm"`
	SGTubeAreaFt2          float64 `mapstructure:"sg_tube_area_ft2"`

	// Primary heat sources and losses, BTU/hr.
	CoreDecayHeatBTUPerHr    float64 `mapstructure:"core_decay_heat_btu_per_hr"`
	DecayRatePerHr           float64 `mapstructure:"decay_rate_per_hr"`
	RCPHeatPerPumpBTUPerHr   float64 `mapstructure:"rcp_heat_per_pump_btu_per_hr"`
	RCPCount                 int     `mapstructure:"rcp_count"`
	HeaterCapacityBTUPerHr   float64 `mapstructure:"heater_capacity_btu_per_hr"`
	AmbientLossBTUPerHr      float64 `mapstructure:"ambient_loss_btu_per_hr"`
	SprayCondenseBTUPerGal   float64 `mapstructure:"spray_condense_btu_per_gal"`
	SprayMaxGPM              float64 `mapstructure:"spray_max_gpm"`

	// Charging / letdown.
	ChargingMaxGPM        float64 `mapstructure:"charging_max_gpm"`
	SealInjectionMinGPM   float64 `mapstructure:"seal_injection_min_gpm"`
	NetSealOutflowGPM     float64 `mapstructure:"net_seal_outflow_gpm"`
	LetdownOrificeGPM     float64 `mapstructure:"letdown_orifice_gpm"`
	LetdownOrificeCount   int     `mapstructure:"letdown_orifice_count"`
	LetdownAdminMaxGPM    float64 `mapstructure:"letdown_admin_max_gpm"`
	OrificeOpenLevelPct   float64 `mapstructure:"orifice_open_level_pct"`
	OrificeOpenSustainHr  float64 `mapstructure:"orifice_open_sustain_hr"`
	ActuatorLagHr         float64 `mapstructure:"actuator_lag_hr"`
	ChargingKpGPMPerPct   float64 `mapstructure:"charging_kp_gpm_per_pct"`
	ChargingKiPerHr       float64 `mapstructure:"charging_ki_per_hr"`
	ChargingIntegralClamp float64 `mapstructure:"charging_integral_clamp"`
	ChargingWaterTempF    float64 `mapstructure:"charging_water_temp_f"`

	// Solid-plant pressure hold via the charging/letdown balance.
	SolidPressureSetpointPSIA float64 `mapstructure:"solid_pressure_setpoint_psia"`
	SolidPressureKpGPMPerPSI  float64 `mapstructure:"solid_pressure_kp_gpm_per_psi"`

	// Pressurizer level program: setpoint ramps linearly with loop average
	// temperature between the two Tavg anchors.
	LevelProgramLowPct  float64 `mapstructure:"level_program_low_pct"`
	LevelProgramHighPct float64 `mapstructure:"level_program_high_pct"`
	LevelProgramTavgLoF float64 `mapstructure:"level_program_tavg_lo_f"`
	LevelProgramTavgHiF float64 `mapstructure:"level_program_tavg_hi_f"`
	DrainTargetLevelPct float64 `mapstructure:"drain_target_level_pct"`

	// Pressure control.
	PressureSetpointPSIA float64 `mapstructure:"pressure_setpoint_psia"`
	HeaterKpPerPSI       float64 `mapstructure:"heater_kp_per_psi"`
	SprayKpPerPSI        float64 `mapstructure:"spray_kp_per_psi"`

	// Solid-plant pressure response: psi of pressure per unit fractional
	// overfill of the water-solid vessel.
	LiquidBulkModulusPSI float64 `mapstructure:"liquid_bulk_modulus_psi"`

	// Equilibrium solver.
	SolverMaxIterations int     `mapstructure:"solver_max_iterations"`
	VolumeToleranceFt3  float64 `mapstructure:"volume_tolerance_ft3"`
	EnergyToleranceBTU  float64 `mapstructure:"energy_tolerance_btu"`

	// Secondary thermal model.
	SGWallFactor            float64 `mapstructure:"sg_wall_factor"`
	SGBoilingHTCBTUHrFt2F   float64 `mapstructure:"sg_boiling_htc_btu_hr_ft2_f"`
	SGConvectiveHTCBTUHrF   float64 `mapstructure:"sg_convective_htc_btu_hr_ft2_f"`
	StratifiedAreaFraction  float64 `mapstructure:"stratified_area_fraction"`
	ThermoclineHeatPerNode  float64 `mapstructure:"thermocline_heat_per_node_btu"`
	LineWarmingOffsetF      float64 `mapstructure:"line_warming_offset_f"`
	LineWarmingDecayBTU     float64 `mapstructure:"line_warming_decay_btu"`

	// Startup mode guards.
	BubbleVerifyHoldHr        float64 `mapstructure:"bubble_verify_hold_hr"`
	BubbleStabilizeHoldHr     float64 `mapstructure:"bubble_stabilize_hold_hr"`
	PressurizeTargetPSIA      float64 `mapstructure:"pressurize_target_psia"`
	RCPMinPressurePSIA        float64 `mapstructure:"rcp_min_pressure_psia"`
	RHRIsolateTempF           float64 `mapstructure:"rhr_isolate_temp_f"`
	RHRIsolatePressurePSIA    float64 `mapstructure:"rhr_isolate_pressure_psia"`
	LowTavgBlockF             float64 `mapstructure:"low_tavg_block_f"`
	SteamDumpArmPSIA          float64 `mapstructure:"steam_dump_arm_psia"`
	SteamDumpCapacityBTUPerHr float64 `mapstructure:"steam_dump_capacity_btu_per_hr"`

	// Initial conditions (cold shutdown, solid plant).
	InitialTempF        float64 `mapstructure:"initial_temp_f"`
	InitialPressurePSIA float64 `mapstructure:"initial_pressure_psia"`
	InitialSGTempF      float64 `mapstructure:"initial_sg_temp_f"`

	// Stepping bounds, hours. Advance sub-steps anything above
	// MaxSubstepHr and rejects anything above MaxStepHr outright.
	MaxSubstepHr float64 `mapstructure:"max_substep_hr"`
	MaxStepHr    float64 `mapstructure:"max_step_hr"`
}

// DefaultPlantConfig returns a single-unit calibration good enough for
// procedural training runs. Values are representative of a two-loop PWR.
func DefaultPlantConfig() PlantConfig {
	return PlantConfig{
		PressurizerVolumeFt3: 1500,
		LoopVolumeFt3:        9200,

		SGCount:                2,
		SGNodeCount:            8,
		SGSecondaryInventoryLb: 110000,
		SGTubeAreaFt2:          48000,

		CoreDecayHeatBTUPerHr:  6.0e6,
		DecayRatePerHr:         0.004,
		RCPHeatPerPumpBTUPerHr: 1.7e7,
		RCPCount:               2,
		HeaterCapacityBTUPerHr: 5.6e6,
		AmbientLossBTUPerHr:    4.0e5,
		SprayCondenseBTUPerGal: 6200,
		SprayMaxGPM:            200,

		ChargingMaxGPM:        120,
		SealInjectionMinGPM:   8,
		NetSealOutflowGPM:     1,
		LetdownOrificeGPM:     45,
		LetdownOrificeCount:   3,
		LetdownAdminMaxGPM:    120,
		OrificeOpenLevelPct:   5,
		OrificeOpenSustainHr:  0.05,
		ActuatorLagHr:         0.006,
		ChargingKpGPMPerPct:   4,
		ChargingKiPerHr:       6,
		ChargingIntegralClamp: 40,
		ChargingWaterTempF:    100,

		SolidPressureSetpointPSIA: 427,
		SolidPressureKpGPMPerPSI:  0.5,

		LevelProgramLowPct:  25,
		LevelProgramHighPct: 60,
		LevelProgramTavgLoF: 160,
		LevelProgramTavgHiF: 557,
		DrainTargetLevelPct: 25,

		PressureSetpointPSIA: 440,
		HeaterKpPerPSI:       0.12,
		SprayKpPerPSI:        4,

		LiquidBulkModulusPSI: 2.0e4,

		SolverMaxIterations: 60,
		VolumeToleranceFt3:  1.0,
		EnergyToleranceBTU:  5.0e4,

		SGWallFactor:           0.65,
		SGBoilingHTCBTUHrFt2F:  250,
		SGConvectiveHTCBTUHrF:  40,
		StratifiedAreaFraction: 0.08,
		ThermoclineHeatPerNode: 2.5e6,
		LineWarmingOffsetF:     35,
		LineWarmingDecayBTU:    1.5e7,

		BubbleVerifyHoldHr:        0.05,
		BubbleStabilizeHoldHr:     0.15,
		PressurizeTargetPSIA:      440,
		RCPMinPressurePSIA:        340,
		RHRIsolateTempF:           350,
		RHRIsolatePressurePSIA:    365,
		LowTavgBlockF:             547,
		SteamDumpArmPSIA:          90,
		SteamDumpCapacityBTUPerHr: 4.0e7,

		InitialTempF:        120,
		InitialPressurePSIA: 94.7,
		InitialSGTempF:      100,

		MaxSubstepHr: 0.02,
		MaxStepHr:    1.0,
	}
}

// Validate rejects configurations the engine cannot run with. It checks
// structural requirements only, not calibration plausibility.
func (c PlantConfig) Validate() error {
	if c.PressurizerVolumeFt3 <= 0 || c.LoopVolumeFt3 <= 0 {
		return fmt.Errorf("plant config: volumes must be positive (pressurizer %.1f, loop %.1f)",
			c.PressurizerVolumeFt3, c.LoopVolumeFt3)
	}
	if c.SGCount < 1 || c.SGNodeCount < 2 {
		return fmt.Errorf("plant config: need at least 1 steam generator with 2 nodes, got %d/%d",
			c.SGCount, c.SGNodeCount)
	}
	if c.SGSecondaryInventoryLb <= 0 || c.SGTubeAreaFt2 <= 0 {
		return fmt.Errorf("plant config: steam generator inventory and tube area must be positive")
	}
	if c.SolverMaxIterations < 1 {
		return fmt.Errorf("plant config: solver iteration bound must be at least 1, got %d", c.SolverMaxIterations)
	}
	if c.VolumeToleranceFt3 <= 0 || c.VolumeToleranceFt3 > 1.0 {
		return fmt.Errorf("plant config: volume tolerance must be in (0, 1] ft³, got %v", c.VolumeToleranceFt3)
	}
	if c.MaxSubstepHr <= 0 || c.MaxStepHr < c.MaxSubstepHr {
		return fmt.Errorf("plant config: stepping bounds invalid (substep %v, max %v)", c.MaxSubstepHr, c.MaxStepHr)
	}
	if c.LetdownOrificeCount < 1 || c.LetdownOrificeGPM <= 0 {
		return fmt.Errorf("plant config: letdown path needs at least one orifice with positive capacity")
	}
	if c.StratifiedAreaFraction <= 0 || c.StratifiedAreaFraction >= 1 {
		return fmt.Errorf("plant config: stratified area fraction must be in (0, 1), got %v", c.StratifiedAreaFraction)
	}
	return nil
}
