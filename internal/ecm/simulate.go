package ecm

import (
	"fmt"
	"math"

	"battery-ecm/internal/model"
)

// Trace is the output of one simulation run. V0 is the ohmic drop, V1 and
// V2 the RC branch voltages. All slices have one entry per sample.
type Trace struct {
	Time    []float64 `json:"time"`
	Current []float64 `json:"current"`
	SOC     []float64 `json:"soc"`
	OCV     []float64 `json:"ocv"`
	V0      []float64 `json:"v0"`
	V1      []float64 `json:"v1"`
	V2      []float64 `json:"v2"`
	Voltage []float64 `json:"voltage"`
}

func (t *Trace) Len() int { return len(t.Time) }

// Simulate runs the two-RC recurrence over a current profile. The branch
// states start at zero; for k ≥ 1 the parameters of the SOC bin nearest
// soc[k] are held over the step and
//
//	v0[k] = r0·i[k]
//	v1[k] = v1[k−1]·exp(−dt/τ1) + r1·(1 − exp(−dt/τ1))·i[k]
//	v2[k] = v2[k−1]·exp(−dt/τ2) + r2·(1 − exp(−dt/τ2))·i[k]
//	vt[k] = ocv[k] + v0[k] + v1[k] + v2[k]
//
// Inputs are never written. A non-finite voltage is an error.
func Simulate(current, time, soc, ocv []float64, table *model.RcTable) (*Trace, error) {
	n := len(current)
	if len(time) != n || len(soc) != n || len(ocv) != n {
		return nil, fmt.Errorf("simulate: lengths differ: current=%d time=%d soc=%d ocv=%d",
			n, len(time), len(soc), len(ocv))
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	tr := &Trace{
		Time:    append([]float64(nil), time...),
		Current: append([]float64(nil), current...),
		SOC:     append([]float64(nil), soc...),
		OCV:     append([]float64(nil), ocv...),
		V0:      make([]float64, n),
		V1:      make([]float64, n),
		V2:      make([]float64, n),
		Voltage: make([]float64, n),
	}
	if n == 0 {
		return tr, nil
	}

	tr.Voltage[0] = ocv[0]
	for k := 1; k < n; k++ {
		i := current[k]
		dt := time[k] - time[k-1]
		row := table.Lookup(soc[k])

		e1 := math.Exp(-dt / row.Tau1)
		e2 := math.Exp(-dt / row.Tau2)
		tr.V0[k] = row.R0 * i
		tr.V1[k] = tr.V1[k-1]*e1 + row.R1*(1-e1)*i
		tr.V2[k] = tr.V2[k-1]*e2 + row.R2*(1-e2)*i
		tr.Voltage[k] = ocv[k] + tr.V0[k] + tr.V1[k] + tr.V2[k]

		if math.IsNaN(tr.Voltage[k]) || math.IsInf(tr.Voltage[k], 0) {
			return nil, fmt.Errorf("simulate: non-finite voltage at sample %d", k)
		}
	}
	return tr, nil
}
