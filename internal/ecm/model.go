package ecm

import (
	"encoding/json"
	"fmt"

	"battery-ecm/internal/model"
)

// Model is a fitted equivalent circuit: physical constants, the OCV curve
// and the RC table. A Model is immutable; Run and WithCapacity never modify
// the receiver, so one fit can be reused across many current profiles.
type Model struct {
	params model.CellParams
	curve  model.OcvCurve
	table  *model.RcTable
	ocv    *OcvInterpolator
}

// NewModel validates and freezes a set of parameters. The curve and table
// are copied.
func NewModel(params model.CellParams, curve model.OcvCurve, table *model.RcTable) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("model params: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("model rc table: %w", err)
	}
	curve = copyCurve(curve)
	ocv, err := NewOcvInterpolator(curve)
	if err != nil {
		return nil, fmt.Errorf("model ocv curve: %w", err)
	}
	return &Model{
		params: params,
		curve:  curve,
		table:  &model.RcTable{Rows: append([]model.RcRow(nil), table.Rows...)},
		ocv:    ocv,
	}, nil
}

func (m *Model) Params() model.CellParams { return m.params }

// Curve returns a copy of the OCV anchors.
func (m *Model) Curve() model.OcvCurve { return copyCurve(m.curve) }

// Table returns a copy of the RC table.
func (m *Model) Table() *model.RcTable {
	return &model.RcTable{Rows: append([]model.RcRow(nil), m.table.Rows...)}
}

// OcvAt evaluates the model's OCV curve.
func (m *Model) OcvAt(z float64) float64 { return m.ocv.At(z) }

// Run simulates a profile starting fully charged.
func (m *Model) Run(current, time []float64) (*Trace, error) {
	return m.RunFrom(1, current, time)
}

// RunFrom simulates a profile starting at SOC z0.
func (m *Model) RunFrom(z0 float64, current, time []float64) (*Trace, error) {
	soc, err := NewSocEstimator(m.params).EstimateFrom(z0, current, time)
	if err != nil {
		return nil, err
	}
	return Simulate(current, time, soc, m.ocv.Interpolate(soc), m.table)
}

// WithCapacity returns a model sharing this fit with a different rated
// capacity, used to re-target a module fit at a single cell or a pack.
func (m *Model) WithCapacity(ah float64) (*Model, error) {
	return NewModel(m.params.WithCapacity(ah), m.curve, m.table)
}

// WithCurve returns a model that reuses another model's OCV calibration.
func (m *Model) WithCurve(curve model.OcvCurve) (*Model, error) {
	return NewModel(m.params, curve, m.table)
}

type modelJSON struct {
	Params model.CellParams `json:"params"`
	Curve  model.OcvCurve   `json:"ocv"`
	Table  *model.RcTable   `json:"rc"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{Params: m.params, Curve: m.curve, Table: m.table})
}

func (m *Model) UnmarshalJSON(raw []byte) error {
	var w modelJSON
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	if w.Table == nil {
		return fmt.Errorf("model json: missing rc table")
	}
	built, err := NewModel(w.Params, w.Curve, w.Table)
	if err != nil {
		return err
	}
	*m = *built
	return nil
}

func copyCurve(c model.OcvCurve) model.OcvCurve {
	return model.OcvCurve{
		SOC:     append([]float64(nil), c.SOC...),
		Voltage: append([]float64(nil), c.Voltage...),
		Current: append([]float64(nil), c.Current...),
		Time:    append([]float64(nil), c.Time...),
	}
}
