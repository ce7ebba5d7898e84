package model

// HeatSinkBoundary is the per-tick boundary condition supplied by the
// condenser/feedwater/AFW collaborators. The engine never computes these;
// it only reads them.
type HeatSinkBoundary struct {
	// Available reports whether the downstream heat sink can accept steam.
	// When false the heat-sink bridge must stay out of Modulating and dump
	// valves are forced closed.
	Available bool

	// ReturnFlowLbmPerHr is the feedwater/AFW mass flow returned to the
	// steam generators.
	ReturnFlowLbmPerHr float64

	// ReturnTempF is the temperature of that return flow.
	ReturnTempF float64
}

// OperatorInputs are the first-class operator actions the startup sequence
// requires. They are level-triggered: the control layer reads them every tick
// and acts only when its own guard conditions are also met.
type OperatorInputs struct {
	// StartPumps requests a reactor coolant pump start.
	StartPumps bool

	// PumpsConfirmedRunning is the pump breaker/flow confirmation signal.
	PumpsConfirmedRunning bool

	// IsolateRHR requests isolation of residual heat removal.
	IsolateRHR bool

	// BypassLowTavgBlock bypasses the low average temperature permissive on
	// the heat-sink bridge.
	BypassLowTavgBlock bool
}
