package ecm

import (
	"fmt"
	"math"

	"battery-ecm/internal/model"
	"battery-ecm/internal/segment"
)

// DegenerateSegmentError reports a bin whose RC parameters cannot be derived,
// either because the current step is zero or because the result is not finite.
type DegenerateSegmentError struct {
	Bin    int
	Reason string
}

func (e *DegenerateSegmentError) Error() string {
	return fmt.Sprintf("degenerate segment in bin %d: %s", e.Bin, e.Reason)
}

// DeriveRow converts two-time-constant coefficients (a, b, c, α, β) for one
// discharge group into RC parameters. The ohmic drop comes from the first
// step of the discharge and the branch resistances from the fitted
// amplitudes scaled by how far each branch charged during the discharge.
func DeriveRow(bin int, coeffs []float64, rec *model.TestRecord, g segment.Group) (model.RcRow, error) {
	if len(coeffs) != TwoTimeConstant.NumCoeffs() {
		return model.RcRow{}, fmt.Errorf("derive: bin %d has %d coefficients, want %d", bin, len(coeffs), TwoTimeConstant.NumCoeffs())
	}
	if g.Start < 0 || g.AfterStart >= rec.Len() || g.End >= rec.Len() {
		return model.RcRow{}, fmt.Errorf("derive: bin %d indices outside record", bin)
	}

	di := math.Abs(rec.Current[g.AfterStart] - rec.Current[g.Start])
	dt := rec.Time[g.End] - rec.Time[g.Start]
	dv := math.Abs(rec.Voltage[g.AfterStart] - rec.Voltage[g.Start])
	if di == 0 {
		return model.RcRow{}, &DegenerateSegmentError{Bin: bin, Reason: "zero current step"}
	}

	b, c, alpha, beta := coeffs[1], coeffs[2], coeffs[3], coeffs[4]
	tau1 := 1 / alpha
	tau2 := 1 / beta
	r0 := dv / di
	r1 := b / ((1 - math.Exp(-dt/tau1)) * di)
	r2 := c / ((1 - math.Exp(-dt/tau2)) * di)

	row := model.RcRow{
		SOC:  model.BinCenter(bin),
		Tau1: tau1,
		Tau2: tau2,
		R0:   r0,
		R1:   r1,
		R2:   r2,
		C1:   tau1 / r1,
		C2:   tau2 / r2,
	}
	for _, v := range []float64{row.Tau1, row.Tau2, row.R0, row.R1, row.R2, row.C1, row.C2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.RcRow{}, &DegenerateSegmentError{Bin: bin, Reason: "non-finite rc parameter"}
		}
	}
	return row, nil
}

// Derive builds the full table, one row per fit. Any failed fit or
// degenerate bin fails the whole table.
func Derive(fits []BinFit, rec *model.TestRecord, set segment.IndexSet) (*model.RcTable, error) {
	if len(fits) != len(set) {
		return nil, fmt.Errorf("derive: %d fits for %d groups", len(fits), len(set))
	}
	table := &model.RcTable{Rows: make([]model.RcRow, 0, len(fits))}
	for k, f := range fits {
		if f.Err != nil {
			return nil, fmt.Errorf("derive: bin %d: %w", k, f.Err)
		}
		row, err := DeriveRow(k, f.Coeffs, rec, set[k])
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// DeriveAvailable skips bins whose fit failed or whose derivation is
// degenerate and returns the rows that survive with the per-bin errors.
func DeriveAvailable(fits []BinFit, rec *model.TestRecord, set segment.IndexSet) (*model.RcTable, []error) {
	table := &model.RcTable{}
	var errs []error
	for k, f := range fits {
		if k >= len(set) {
			break
		}
		if f.Err != nil {
			errs = append(errs, fmt.Errorf("bin %d: %w", k, f.Err))
			continue
		}
		row, err := DeriveRow(k, f.Coeffs, rec, set[k])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, errs
}
