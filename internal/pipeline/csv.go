package pipeline

import (
	"encoding/csv"
	"os"
	"strconv"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
)

func WriteLedgerCSV(path string, ledger []LedgerRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"index",
		"time_s",
		"current_a",
		"soc",
		"ocv_v",
		"v0_v",
		"v1_v",
		"v2_v",
		"simulated_v",
		"measured_v",
		"error_v",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range ledger {
		row := []string{
			strconv.Itoa(r.Index),
			fmtFloat(r.Time),
			fmtFloat(r.Current),
			fmtFloat(r.SOC),
			fmtFloat(r.OCV),
			fmtFloat(r.V0),
			fmtFloat(r.V1),
			fmtFloat(r.V2),
			fmtFloat(r.Simulated),
			fmtFloat(r.Measured),
			fmtFloat(r.Error),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

// WriteRcTableCSV writes one row per SOC bin.
func WriteRcTableCSV(path string, table *model.RcTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"soc", "tau1", "tau2", "r0", "r1", "r2", "c1", "c2"}); err != nil {
		return err
	}
	for _, r := range table.Rows {
		row := []string{
			fmtFloat(r.SOC),
			fmtFloat(r.Tau1),
			fmtFloat(r.Tau2),
			fmtFloat(r.R0),
			fmtFloat(r.R1),
			fmtFloat(r.R2),
			fmtFloat(r.C1),
			fmtFloat(r.C2),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteOcvCSV writes the OCV anchors, highest SOC first.
func WriteOcvCSV(path string, curve model.OcvCurve) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"soc", "ocv_v"}); err != nil {
		return err
	}
	for i := range curve.SOC {
		if err := w.Write([]string{fmtFloat(curve.SOC[i]), fmtFloat(curve.Voltage[i])}); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteTraceCSV writes a simulation trace without measured data.
func WriteTraceCSV(path string, tr *ecm.Trace) error {
	return WriteLedgerCSV(path, NewLedger(tr, nil))
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
