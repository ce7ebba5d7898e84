package props

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Saturation-line table for water, psia / °F / ft³ per lbm / BTU per lbm.
// Values are standard saturated steam table entries; the last row sits just
// under the critical point, which is why specific volumes converge there.
var satTable = []struct {
	p   float64 // psia
	t   float64 // °F
	vf  float64 // sat liquid specific volume
	vg  float64 // sat vapor specific volume
	hf  float64 // sat liquid enthalpy
	hfg float64 // latent heat
}{
	{1.0, 101.74, 0.016136, 333.60, 69.74, 1036.3},
	{5.0, 162.24, 0.016407, 73.520, 130.13, 1001.0},
	{10.0, 193.21, 0.016592, 38.420, 161.17, 982.1},
	{14.696, 212.00, 0.016719, 26.800, 180.07, 970.3},
	{20.0, 227.96, 0.016834, 20.089, 196.16, 960.1},
	{40.0, 267.25, 0.017151, 10.498, 236.03, 933.8},
	{60.0, 292.71, 0.017383, 7.1750, 262.09, 915.5},
	{80.0, 312.03, 0.017573, 5.4720, 282.02, 901.1},
	{100.0, 327.81, 0.017740, 4.4320, 298.40, 888.8},
	{150.0, 358.42, 0.018089, 3.0150, 330.51, 863.6},
	{200.0, 381.79, 0.018387, 2.2880, 355.36, 843.0},
	{250.0, 400.95, 0.018653, 1.8438, 376.00, 825.1},
	{300.0, 417.33, 0.018896, 1.5433, 393.84, 809.0},
	{400.0, 444.59, 0.019340, 1.1613, 424.00, 780.5},
	{500.0, 467.01, 0.019748, 0.9278, 449.40, 755.0},
	{600.0, 486.21, 0.020140, 0.7698, 471.60, 731.6},
	{800.0, 518.23, 0.020870, 0.5687, 509.70, 688.9},
	{1000.0, 544.61, 0.021590, 0.4456, 542.40, 649.4},
	{1200.0, 567.22, 0.022300, 0.3619, 571.70, 611.7},
	{1500.0, 596.23, 0.023460, 0.2769, 611.60, 556.3},
	{2000.0, 635.82, 0.025650, 0.18813, 671.70, 463.4},
	{2500.0, 668.13, 0.028590, 0.13059, 730.60, 360.5},
	{3000.0, 695.36, 0.034280, 0.08404, 802.50, 213.0},
	{3200.0, 705.11, 0.044720, 0.05444, 875.50, 56.1},
}

// Isothermal compressibility of the liquid phase, per psi. Used for the small
// compressed-liquid density correction above the saturation line.
const liquidCompressibility = 3.0e-6

// SteamTable is the table-backed Oracle implementation. It interpolates the
// saturation line piecewise-linearly along both the pressure and temperature
// axes. Construct with NewSteamTable; the zero value is not usable.
type SteamTable struct {
	tsatOfP interp.PiecewiseLinear // P -> Tsat
	psatOfT interp.PiecewiseLinear // Tsat -> P
	vfOfP   interp.PiecewiseLinear
	vgOfP   interp.PiecewiseLinear
	hfOfP   interp.PiecewiseLinear
	hfgOfP  interp.PiecewiseLinear
	vfOfT   interp.PiecewiseLinear // Tsat -> vf, for density at temperature
}

// NewSteamTable builds the interpolators from the embedded saturation table.
func NewSteamTable() (*SteamTable, error) {
	n := len(satTable)
	ps := make([]float64, n)
	ts := make([]float64, n)
	vfs := make([]float64, n)
	vgs := make([]float64, n)
	hfs := make([]float64, n)
	hfgs := make([]float64, n)
	for i, row := range satTable {
		ps[i] = row.p
		ts[i] = row.t
		vfs[i] = row.vf
		vgs[i] = row.vg
		hfs[i] = row.hf
		hfgs[i] = row.hfg
	}

	st := &SteamTable{}
	fits := []struct {
		pl     *interp.PiecewiseLinear
		xs, ys []float64
	}{
		{&st.tsatOfP, ps, ts},
		{&st.psatOfT, ts, ps},
		{&st.vfOfP, ps, vfs},
		{&st.vgOfP, ps, vgs},
		{&st.hfOfP, ps, hfs},
		{&st.hfgOfP, ps, hfgs},
		{&st.vfOfT, ts, vfs},
	}
	for _, f := range fits {
		if err := f.pl.Fit(f.xs, f.ys); err != nil {
			return nil, fmt.Errorf("fit saturation table: %w", err)
		}
	}
	return st, nil
}

// MustNewSteamTable is NewSteamTable for initialisation paths where the
// embedded table is known good.
func MustNewSteamTable() *SteamTable {
	st, err := NewSteamTable()
	if err != nil {
		panic(err)
	}
	return st
}

func (st *SteamTable) SaturationTemperature(p float64) (float64, error) {
	if err := checkPressure("SaturationTemperature", p); err != nil {
		return 0, err
	}
	return st.tsatOfP.Predict(p), nil
}

func (st *SteamTable) SaturationPressure(t float64) (float64, error) {
	if err := checkTemperature("SaturationPressure", t); err != nil {
		return 0, err
	}
	// Below the tabulated saturation line start (101.74°F at 1 psia) the
	// validated pressure floor applies.
	if t < satTable[0].t {
		return MinPressurePSIA, nil
	}
	return st.psatOfT.Predict(t), nil
}

func (st *SteamTable) LatentHeat(p float64) (float64, error) {
	if err := checkPressure("LatentHeat", p); err != nil {
		return 0, err
	}
	return st.hfgOfP.Predict(p), nil
}

// LiquidDensity evaluates saturated-liquid density at the given temperature
// and applies a small isothermal compression correction for pressure above
// the saturation line. Subcooled states therefore come out slightly denser
// than saturated ones at the same temperature.
func (st *SteamTable) LiquidDensity(t, p float64) (float64, error) {
	if err := checkTemperature("LiquidDensity", t); err != nil {
		return 0, err
	}
	if err := checkPressure("LiquidDensity", p); err != nil {
		return 0, err
	}
	vf := st.vfOfT.Predict(t)
	rho := 1.0 / vf
	psat := st.psatOfT.Predict(t)
	if t < satTable[0].t {
		psat = MinPressurePSIA
	}
	if dp := p - psat; dp > 0 {
		rho *= 1.0 + liquidCompressibility*dp
	}
	return rho, nil
}

func (st *SteamTable) VaporDensity(p float64) (float64, error) {
	if err := checkPressure("VaporDensity", p); err != nil {
		return 0, err
	}
	return 1.0 / st.vgOfP.Predict(p), nil
}

func (st *SteamTable) LiquidEnthalpy(p float64) (float64, error) {
	if err := checkPressure("LiquidEnthalpy", p); err != nil {
		return 0, err
	}
	return st.hfOfP.Predict(p), nil
}

func (st *SteamTable) VaporEnthalpy(p float64) (float64, error) {
	if err := checkPressure("VaporEnthalpy", p); err != nil {
		return 0, err
	}
	return st.hfOfP.Predict(p) + st.hfgOfP.Predict(p), nil
}

var _ Oracle = (*SteamTable)(nil)
