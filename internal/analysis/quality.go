package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FitQuality summarises how well a simulated trace follows a measured one.
// Errors are simulated minus measured, in the trace's units.
type FitQuality struct {
	Label string `json:"label,omitempty"`
	Count int    `json:"count"`

	MeanError float64 `json:"mean_error"`
	RMSE      float64 `json:"rmse"`
	MAE       float64 `json:"mae"`
	MaxAbs    float64 `json:"max_abs"`
	P95Abs    float64 `json:"p95_abs"`

	// MaxAbsIndex is the sample with the largest absolute error.
	MaxAbsIndex int `json:"max_abs_index"`
}

func (q FitQuality) String() string {
	return fmt.Sprintf("n=%d rmse=%.4f mae=%.4f max=%.4f@%d p95=%.4f",
		q.Count, q.RMSE, q.MAE, q.MaxAbs, q.MaxAbsIndex, q.P95Abs)
}

// Compare computes error statistics between measured and simulated samples.
func Compare(measured, simulated []float64) (FitQuality, error) {
	if len(measured) != len(simulated) {
		return FitQuality{}, fmt.Errorf("compare: %d measured samples for %d simulated", len(measured), len(simulated))
	}
	q := FitQuality{Count: len(measured)}
	if q.Count == 0 {
		return q, nil
	}

	errs := make([]float64, q.Count)
	abs := make([]float64, q.Count)
	sq := 0.0
	for i := range measured {
		e := simulated[i] - measured[i]
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return FitQuality{}, fmt.Errorf("compare: non-finite error at sample %d", i)
		}
		errs[i] = e
		abs[i] = math.Abs(e)
		sq += e * e
		if abs[i] > q.MaxAbs {
			q.MaxAbs = abs[i]
			q.MaxAbsIndex = i
		}
	}
	q.MeanError = stat.Mean(errs, nil)
	q.MAE = stat.Mean(abs, nil)
	q.RMSE = math.Sqrt(sq / float64(q.Count))

	sort.Float64s(abs)
	q.P95Abs = stat.Quantile(0.95, stat.LinInterp, abs, nil)
	return q, nil
}

// Window compares only samples [i, j).
func Window(measured, simulated []float64, i, j int) (FitQuality, error) {
	if i < 0 || j > len(measured) || j > len(simulated) || i > j {
		return FitQuality{}, fmt.Errorf("compare: window [%d, %d) out of range", i, j)
	}
	return Compare(measured[i:j], simulated[i:j])
}
