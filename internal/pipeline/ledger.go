package pipeline

import (
	"battery-ecm/internal/analysis"
	"battery-ecm/internal/ecm"
)

// LedgerRow is one sample of a validation run: what the model predicted
// next to what the cycler measured.
type LedgerRow struct {
	Index int

	Time    float64
	Current float64
	SOC     float64
	OCV     float64

	V0 float64
	V1 float64
	V2 float64

	Simulated float64
	Measured  float64
	Error     float64
}

type Result struct {
	Ledger   []LedgerRow
	Quality  analysis.FitQuality
	FinalSOC float64
}

// NewLedger pairs a simulation trace with measured voltages, sample by sample.
func NewLedger(tr *ecm.Trace, measured []float64) []LedgerRow {
	ledger := make([]LedgerRow, 0, tr.Len())
	for k := 0; k < tr.Len(); k++ {
		row := LedgerRow{
			Index: k,

			Time:    tr.Time[k],
			Current: tr.Current[k],
			SOC:     tr.SOC[k],
			OCV:     tr.OCV[k],

			V0: tr.V0[k],
			V1: tr.V1[k],
			V2: tr.V2[k],

			Simulated: tr.Voltage[k],
		}
		if k < len(measured) {
			row.Measured = measured[k]
			row.Error = row.Simulated - row.Measured
		}
		ledger = append(ledger, row)
	}
	return ledger
}
