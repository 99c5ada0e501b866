package model

import (
	"errors"
	"fmt"
	"math"
)

// BinTieTolerance is the distance below which two SOC bin centres are
// considered equally close to a state of charge.
const BinTieTolerance = 1e-9

// RcRow holds the two-RC-branch parameters for one 10% SOC bin.
// Units: Tau [s], R [Ω], C [F].
type RcRow struct {
	// SOC is the bin centre the row applies to (0.9 for the 100-90% bin).
	SOC  float64 `json:"soc" yaml:"soc"`
	Tau1 float64 `json:"tau1" yaml:"tau1"`
	Tau2 float64 `json:"tau2" yaml:"tau2"`
	R0   float64 `json:"r0" yaml:"r0"`
	R1   float64 `json:"r1" yaml:"r1"`
	R2   float64 `json:"r2" yaml:"r2"`
	C1   float64 `json:"c1" yaml:"c1"`
	C2   float64 `json:"c2" yaml:"c2"`
}

// RcTable is the per-bin parameter table, rows in descending SOC order.
type RcTable struct {
	Rows []RcRow `json:"rows" yaml:"rows"`
}

// BinCenter returns the SOC centre of bin k: 0.9, 0.8, ..., 0.1.
func BinCenter(k int) float64 {
	return float64(9-k) / 10
}

func (t *RcTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Validate rejects empty tables and any non-finite or non-positive time constant.
func (t *RcTable) Validate() error {
	if t.Len() == 0 {
		return errors.New("rc table is empty")
	}
	for k, r := range t.Rows {
		for _, v := range []float64{r.SOC, r.Tau1, r.Tau2, r.R0, r.R1, r.R2, r.C1, r.C2} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("rc row %d has a non-finite value", k)
			}
		}
		if r.Tau1 <= 0 || r.Tau2 <= 0 {
			return fmt.Errorf("rc row %d has non-positive time constant", k)
		}
	}
	return nil
}

// Lookup returns the row whose bin centre is closest to z. On an exact tie
// the higher-SOC row wins. SOC outside the grid selects the nearest end row.
func (t *RcTable) Lookup(z float64) RcRow {
	best := 0
	bestDist := math.Inf(1)
	for k, r := range t.Rows {
		d := math.Abs(r.SOC - z)
		if d < bestDist-BinTieTolerance {
			best, bestDist = k, d
		} else if math.Abs(d-bestDist) <= BinTieTolerance && r.SOC > t.Rows[best].SOC {
			best = k
		}
	}
	return t.Rows[best]
}

// MeanR0 is the average series resistance over all bins.
func (t *RcTable) MeanR0() float64 {
	if t.Len() == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range t.Rows {
		sum += r.R0
	}
	return sum / float64(len(t.Rows))
}

// Uniform builds a table with the same parameters in every bin.
func Uniform(row RcRow) *RcTable {
	t := &RcTable{Rows: make([]RcRow, 9)}
	for k := range t.Rows {
		r := row
		r.SOC = BinCenter(k)
		t.Rows[k] = r
	}
	return t
}
