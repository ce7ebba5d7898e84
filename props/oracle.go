// Package props provides saturated steam/water property lookups for the
// simulation core. All functions are pure and deterministic, defined over a
// bounded validated range; callers get a typed error outside that range
// instead of a silently extrapolated number.
package props

import "fmt"

// Validated property range. Lookups outside these bounds fail with RangeError.
const (
	MinPressurePSIA = 1.0
	MaxPressurePSIA = 3200.0
	MinTemperatureF = 100.0
	MaxTemperatureF = 700.0
)

// Oracle exposes the steam/water property correlations the engine consumes.
// Pressures are psia, temperatures °F, enthalpies BTU/lbm, densities lbm/ft³.
type Oracle interface {
	// SaturationTemperature returns Tsat for a pressure.
	SaturationTemperature(pressurePSIA float64) (float64, error)
	// SaturationPressure returns Psat for a temperature.
	SaturationPressure(temperatureF float64) (float64, error)
	// LatentHeat returns the heat of vaporization at a pressure.
	LatentHeat(pressurePSIA float64) (float64, error)
	// LiquidDensity returns compressed-liquid density at a temperature and
	// pressure.
	LiquidDensity(temperatureF, pressurePSIA float64) (float64, error)
	// VaporDensity returns saturated-vapor density at a pressure.
	VaporDensity(pressurePSIA float64) (float64, error)
	// LiquidEnthalpy returns saturated-liquid enthalpy at a pressure.
	LiquidEnthalpy(pressurePSIA float64) (float64, error)
	// VaporEnthalpy returns saturated-vapor enthalpy at a pressure.
	VaporEnthalpy(pressurePSIA float64) (float64, error)
}

// RangeError reports a property lookup outside the validated range. It keeps
// the offending value and the call site's quantity name so the condition can
// be surfaced verbatim.
type RangeError struct {
	Quantity string  // "pressure" or "temperature"
	Value    float64
	Min, Max float64
	Call     string // oracle method that rejected the value
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s %.3f outside validated range [%.1f, %.1f]",
		e.Call, e.Quantity, e.Value, e.Min, e.Max)
}

func checkPressure(call string, p float64) error {
	if p < MinPressurePSIA || p > MaxPressurePSIA {
		return &RangeError{Quantity: "pressure", Value: p, Min: MinPressurePSIA, Max: MaxPressurePSIA, Call: call}
	}
	return nil
}

func checkTemperature(call string, t float64) error {
	if t < MinTemperatureF || t > MaxTemperatureF {
		return &RangeError{Quantity: "temperature", Value: t, Min: MinTemperatureF, Max: MaxTemperatureF, Call: call}
	}
	return nil
}
