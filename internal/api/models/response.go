package models

import (
	"time"

	"battery-ecm/internal/analysis"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
)

// ModelResponse describes a cached model
type ModelResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt time.Time             `json:"expires_at"`
	Cached    bool                  `json:"cached"`
	Params    model.CellParams      `json:"params"`
	OCV       model.OcvCurve        `json:"ocv"`
	RC        *model.RcTable        `json:"rc"`
	Bins      []analysis.BinQuality `json:"bins,omitempty"`
	Skipped   []string              `json:"skipped,omitempty"`
	ElapsedMs int64                 `json:"elapsed_ms,omitempty"`
}

// ModelSummary is one entry of the model list
type ModelSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Bins      int       `json:"bins"`
}

// SimulateResponse represents the response from running a model
type SimulateResponse struct {
	Samples  int                  `json:"samples"`
	FinalSOC float64              `json:"final_soc"`
	FinalV   float64              `json:"final_voltage"`
	MinV     float64              `json:"min_voltage"`
	MaxV     float64              `json:"max_voltage"`
	Quality  *analysis.FitQuality `json:"quality,omitempty"`
	Trace    *ecm.Trace           `json:"trace,omitempty"`
}

// PackCellSummary is the final state of one cell of a pack
type PackCellSummary struct {
	Series       int     `json:"series"`
	Parallel     int     `json:"parallel"`
	Z0           float64 `json:"z0"`
	FinalSOC     float64 `json:"final_soc"`
	FinalVoltage float64 `json:"final_voltage"`
	MaxTempK     float64 `json:"max_temperature_k,omitempty"`
}

// PackResponse represents the response from a pack simulation
type PackResponse struct {
	Assembly string            `json:"assembly"`
	Time     []float64         `json:"time"`
	Voltage  []float64         `json:"voltage"`
	Cells    []PackCellSummary `json:"cells"`
	Traces   []*ecm.Trace      `json:"traces,omitempty"`
}

// SplitResponse holds cell currents indexed [series][parallel][sample]
type SplitResponse struct {
	Cells [][][]float64 `json:"cells"`
}

// BatteryInfo represents information about a battery preset
type BatteryInfo struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	File  string       `json:"file"`
	Specs BatterySpecs `json:"specs"`
}

// BatterySpecs contains battery specifications
type BatterySpecs struct {
	CapacityAh float64 `json:"capacity_ah"`
	Thermal    bool    `json:"thermal"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
