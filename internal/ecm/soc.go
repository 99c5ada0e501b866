package ecm

import (
	"fmt"

	"battery-ecm/internal/model"
)

// SocEstimator integrates current over time (coulomb counting).
type SocEstimator struct {
	ChargeEfficiency    float64
	DischargeEfficiency float64
	CapacityAh          float64
}

func NewSocEstimator(p model.CellParams) SocEstimator {
	return SocEstimator{
		ChargeEfficiency:    p.ChargeEfficiency,
		DischargeEfficiency: p.DischargeEfficiency,
		CapacityAh:          p.CapacityAh,
	}
}

// Estimate returns the SOC at every sample, starting fully charged.
func (e SocEstimator) Estimate(current, time []float64) ([]float64, error) {
	return e.EstimateFrom(1, current, time)
}

// EstimateFrom integrates forward from z0. The efficiency for step k is
// chosen by the sign of current[k] alone. Results are not clamped to [0, 1].
func (e SocEstimator) EstimateFrom(z0 float64, current, time []float64) ([]float64, error) {
	if len(current) != len(time) {
		return nil, fmt.Errorf("soc: %d current samples for %d time samples", len(current), len(time))
	}
	if !(e.CapacityAh > 0) {
		return nil, fmt.Errorf("soc: capacity must be > 0, got %g", e.CapacityAh)
	}
	if len(current) == 0 {
		return []float64{}, nil
	}

	q := e.CapacityAh * 3600
	z := make([]float64, len(current))
	z[0] = z0
	for k := 1; k < len(current); k++ {
		eta := e.DischargeEfficiency
		if current[k] > 0 {
			eta = e.ChargeEfficiency
		}
		z[k] = z[k-1] + eta*current[k]*(time[k]-time[k-1])/q
	}
	return z, nil
}
