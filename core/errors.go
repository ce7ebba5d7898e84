package core

import "errors"

// Error taxonomy for the engine. Invariant violations are defects and abort
// the run; convergence failures are survivable and degrade the tick instead.
var (
	// ErrLedgerAlreadyConsumed indicates Consume was called twice in one tick.
	ErrLedgerAlreadyConsumed = errors.New("mass-energy ledger already consumed this tick")
	// ErrLedgerNotArmed indicates Consume was called outside a tick.
	ErrLedgerNotArmed = errors.New("mass-energy ledger consumed outside an armed tick")
	// ErrLedgerPendingRead indicates totals were read with un-applied flows pending.
	ErrLedgerPendingRead = errors.New("mass-energy ledger read with pending flows")
	// ErrNoConvergence indicates the equilibrium solver exhausted its iteration bound.
	ErrNoConvergence = errors.New("equilibrium solver did not converge")
	// ErrInvariantViolation indicates a mass/volume accounting mismatch beyond tolerance.
	ErrInvariantViolation = errors.New("mass-energy invariant violated")
	// ErrStepTooLarge indicates Advance was asked for a dt beyond the hard cap.
	ErrStepTooLarge = errors.New("time step exceeds maximum allowed")
	// ErrEngineHalted indicates a previous fatal error stopped the run.
	ErrEngineHalted = errors.New("engine halted by fatal error")
)
