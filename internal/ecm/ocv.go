package ecm

import (
	"fmt"

	"gonum.org/v1/gonum/interp"

	"battery-ecm/internal/model"
)

// BuildOcvPoints samples SOC, voltage, current and time at the anchor rows.
// Anchors come from segment.AnchorIndices and run from full to empty.
func BuildOcvPoints(rec *model.TestRecord, soc []float64, anchors []int) (model.OcvCurve, error) {
	if len(soc) != rec.Len() {
		return model.OcvCurve{}, fmt.Errorf("ocv: %d soc values for %d rows", len(soc), rec.Len())
	}
	c := model.OcvCurve{
		SOC:     make([]float64, len(anchors)),
		Voltage: make([]float64, len(anchors)),
		Current: make([]float64, len(anchors)),
		Time:    make([]float64, len(anchors)),
	}
	for k, id := range anchors {
		if id < 0 || id >= rec.Len() {
			return model.OcvCurve{}, fmt.Errorf("ocv: anchor %d out of range", id)
		}
		c.SOC[k] = soc[id]
		c.Voltage[k] = rec.Voltage[id]
		c.Current[k] = rec.Current[id]
		c.Time[k] = rec.Time[id]
	}
	return c, nil
}

// OcvInterpolator evaluates OCV by linear interpolation between anchors.
// SOC outside the anchor range takes the voltage of the nearest end point.
type OcvInterpolator struct {
	pl       interp.PiecewiseLinear
	min, max float64
}

// NewOcvInterpolator reverses the curve into ascending SOC order. Curves
// whose SOC is not strictly decreasing are rejected rather than
// interpolated.
func NewOcvInterpolator(curve model.OcvCurve) (*OcvInterpolator, error) {
	if err := curve.Validate(); err != nil {
		return nil, err
	}
	xs, ys := curve.Ascending()
	o := &OcvInterpolator{min: xs[0], max: xs[len(xs)-1]}
	if err := o.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("ocv: %w", err)
	}
	return o, nil
}

// At returns the OCV for one state of charge.
func (o *OcvInterpolator) At(z float64) float64 {
	return o.pl.Predict(z)
}

// Interpolate returns the OCV for every SOC sample.
func (o *OcvInterpolator) Interpolate(soc []float64) []float64 {
	out := make([]float64, len(soc))
	for k, z := range soc {
		out[k] = o.pl.Predict(z)
	}
	return out
}

// Range is the SOC span covered by the anchors.
func (o *OcvInterpolator) Range() (lo, hi float64) { return o.min, o.max }

// InterpolateOcv is a one-shot NewOcvInterpolator followed by Interpolate.
// The curve may come from another model, which is how a cell model reuses a
// module's calibration points.
func InterpolateOcv(soc []float64, curve model.OcvCurve) ([]float64, error) {
	o, err := NewOcvInterpolator(curve)
	if err != nil {
		return nil, err
	}
	return o.Interpolate(soc), nil
}
