package model

import (
	"errors"
	"math"
)

// CellParams defines the physical constants of the cell, module or pack being modeled.
// Units:
// - CapacityAh: Ah
// - Efficiencies: 0..1
// - SurfaceAreaM2: m²
// - SpecificHeat: J/(kg K)
// - ConvectiveCoeff: W/(m² K)
// - MassKg: kg
// - AmbientK: K
type CellParams struct {
	CapacityAh          float64 `json:"capacity_ah"`
	ChargeEfficiency    float64 `json:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency"`
	SurfaceAreaM2       float64 `json:"surface_area_m2"`
	SpecificHeat        float64 `json:"specific_heat"`
	ConvectiveCoeff     float64 `json:"convective_coeff"`
	MassKg              float64 `json:"mass_kg"`
	AmbientK            float64 `json:"ambient_k"`
}

// Validate checks the electrical constants. Thermal constants are only
// checked when set, so purely electrical runs can leave them zero.
func (p CellParams) Validate() error {
	if !(p.CapacityAh > 0) || math.IsInf(p.CapacityAh, 0) {
		return errors.New("CapacityAh must be > 0")
	}
	if p.ChargeEfficiency <= 0 || p.ChargeEfficiency > 1 {
		return errors.New("ChargeEfficiency must be in (0, 1]")
	}
	if p.DischargeEfficiency <= 0 || p.DischargeEfficiency > 1 {
		return errors.New("DischargeEfficiency must be in (0, 1]")
	}
	if p.SurfaceAreaM2 < 0 || p.SpecificHeat < 0 || p.ConvectiveCoeff < 0 || p.MassKg < 0 {
		return errors.New("thermal constants must be >= 0")
	}
	if p.AmbientK < 0 {
		return errors.New("AmbientK must be >= 0")
	}
	return nil
}

// HasThermal reports whether enough constants are set to integrate temperature.
func (p CellParams) HasThermal() bool {
	return p.MassKg > 0 && p.SpecificHeat > 0
}

// CapacityCoulombs converts the rated capacity from Ah to As.
func (p CellParams) CapacityCoulombs() float64 {
	return p.CapacityAh * 3600
}

// WithCapacity returns a copy with a different capacity, used when a fitted
// cell model is re-targeted at a module or a single parallel branch.
func (p CellParams) WithCapacity(ah float64) CellParams {
	out := p
	out.CapacityAh = ah
	return out
}
