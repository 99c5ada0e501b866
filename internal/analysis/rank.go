package analysis

import (
	"fmt"
	"sort"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/segment"
)

// BinQuality is the fit error of one SOC bin's relaxation transient.
type BinQuality struct {
	Bin int     `json:"bin"`
	SOC float64 `json:"soc"`
	FitQuality
}

// RankBins evaluates every successful bin fit against the rest voltage it
// was fitted to and sorts the bins worst first by RMSE.
func RankBins(rec *model.TestRecord, set segment.IndexSet, fits []ecm.BinFit) ([]BinQuality, error) {
	out := make([]BinQuality, 0, len(fits))
	for _, f := range fits {
		if !f.OK() {
			continue
		}
		if f.Bin < 0 || f.Bin >= len(set) {
			return nil, fmt.Errorf("rank: bin %d has no index group", f.Bin)
		}
		g := set[f.Bin]
		t0 := rec.Time[g.End]
		measured := rec.Voltage[g.End : g.RestEnd+1]
		fitted := make([]float64, len(measured))
		for i := range fitted {
			fitted[i] = f.Kind.Eval(rec.Time[g.End+i]-t0, f.Coeffs)
		}
		q, err := Compare(measured, fitted)
		if err != nil {
			return nil, fmt.Errorf("rank: bin %d: %w", f.Bin, err)
		}
		q.Label = fmt.Sprintf("%.0f%% SOC", f.SOC*100)
		out = append(out, BinQuality{Bin: f.Bin, SOC: f.SOC, FitQuality: q})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RMSE > out[j].RMSE
	})
	return out, nil
}
