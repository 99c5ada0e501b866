// Package thermal integrates a lumped-capacitance temperature model driven
// by the irreversible heat of an equivalent circuit simulation.
package thermal

import (
	"errors"
	"fmt"

	"battery-ecm/internal/model"
)

// Result holds heat generation [W] and temperature [K] per sample.
type Result struct {
	Heat        []float64 `json:"heat"`
	Temperature []float64 `json:"temperature"`
}

// Integrate steps the lumped model forward with explicit Euler:
//
//	q[k+1] = i[k]·(vt[k] − ocv[k]) + h·A·(T∞ − T[k])
//	T[k+1] = T[k] + q[k+1]/(m·cp)·dt[k]
//
// t0 is the initial temperature in kelvin; q[0] is zero.
func Integrate(current, ocv, vt, time []float64, t0 float64, p model.CellParams) (*Result, error) {
	n := len(current)
	if len(ocv) != n || len(vt) != n || len(time) != n {
		return nil, fmt.Errorf("thermal: lengths differ: current=%d ocv=%d vt=%d time=%d",
			n, len(ocv), len(vt), len(time))
	}
	if !p.HasThermal() {
		return nil, errors.New("thermal: mass and specific heat must be > 0")
	}

	res := &Result{Heat: make([]float64, n), Temperature: make([]float64, n)}
	if n == 0 {
		return res, nil
	}
	mcp := p.MassKg * p.SpecificHeat
	hA := p.ConvectiveCoeff * p.SurfaceAreaM2

	res.Temperature[0] = t0
	for k := 0; k < n-1; k++ {
		qIrrev := current[k] * (vt[k] - ocv[k])
		qConv := hA * (p.AmbientK - res.Temperature[k])
		q := qIrrev + qConv
		res.Heat[k+1] = q
		res.Temperature[k+1] = res.Temperature[k] + q/mcp*(time[k+1]-time[k])
	}
	return res, nil
}

// Celsius converts kelvin to degrees Celsius.
func Celsius(kelvin []float64) []float64 {
	out := make([]float64, len(kelvin))
	for i, k := range kelvin {
		out[i] = k - 273.15
	}
	return out
}
