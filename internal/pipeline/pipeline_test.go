package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/profile"
	"battery-ecm/internal/segment"
)

var truthRow = model.RcRow{Tau1: 20, Tau2: 400, R0: 0.002, R1: 0.001, R2: 0.0015}

func cellParams() model.CellParams {
	return model.CellParams{CapacityAh: 30, ChargeEfficiency: 0.98, DischargeEfficiency: 1}
}

func truthModel(t *testing.T) *ecm.Model {
	t.Helper()
	m, err := ecm.NewModel(
		cellParams(),
		model.OcvCurve{SOC: []float64{1, 0}, Voltage: []float64{4.2, 3.0}},
		model.Uniform(truthRow),
	)
	require.NoError(t, err)
	return m
}

func synthetic(t *testing.T, groups int) *model.TestRecord {
	t.Helper()
	opts := profile.DefaultHPPC(30)
	opts.Groups = groups
	s, err := profile.HPPC(opts)
	require.NoError(t, err)
	rec, err := profile.Synthesize(truthModel(t), s, profile.SynthOptions{Dt: 1})
	require.NoError(t, err)
	return rec
}

func TestBuildRecoversSyntheticCell(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := New(logger)
	raw := synthetic(t, 9)

	report, err := e.Build(context.Background(), raw, DefaultOptions(model.LayoutCellHPPC, cellParams()))
	require.NoError(t, err)

	table := report.Model.Table()
	assert.Equal(t, 9, table.Len()+len(report.Skipped))
	for _, row := range table.Rows {
		assert.InEpsilon(t, truthRow.R0, row.R0, 0.05, "soc %.1f", row.SOC)
		assert.Greater(t, row.Tau1, 0.0)
		assert.Greater(t, row.Tau2, 0.0)
	}
	assert.Equal(t, 0.9, table.Rows[0].SOC)

	// nine group starts, the closing pulse start and the final row
	assert.Equal(t, 11, report.Curve.Len())
	assert.Equal(t, 1.0, report.Curve.SOC[0])
	assert.Len(t, report.Discharges, 9)
	assert.Len(t, report.Pulses, 9)
	assert.Len(t, report.Fits, 9)
	assert.Len(t, report.SOC, report.Record.Len())

	res, err := e.Validate(report.Model, raw)
	require.NoError(t, err)
	assert.Less(t, res.Quality.RMSE, 0.02)
	assert.Len(t, res.Ledger, raw.Len())
	assert.Less(t, res.FinalSOC, 0.15)

	var infos int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.InfoLevel {
			infos++
		}
	}
	assert.GreaterOrEqual(t, infos, 3)
}

func TestBuildNeedsDischargeGroups(t *testing.T) {
	e := New(nil)
	raw := synthetic(t, 1)
	layout := model.LayoutCellHPPC
	layout.FirstMarker = 6

	_, err := e.Build(context.Background(), raw, DefaultOptions(layout, cellParams()))
	var se *segment.SegmentationError
	require.True(t, errors.As(err, &se), "got %v", err)
}

func TestBuildRejectsBadParams(t *testing.T) {
	e := New(nil)
	_, err := e.Build(context.Background(), synthetic(t, 1), DefaultOptions(model.LayoutCellHPPC, model.CellParams{}))
	assert.Error(t, err)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Build(ctx, synthetic(t, 2), DefaultOptions(model.LayoutCellHPPC, cellParams()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultOptionsSeeds(t *testing.T) {
	assert.Equal(t, ecm.ModuleSeeds, DefaultOptions(model.LayoutModuleHPPC, cellParams()).Seeds)
	assert.Equal(t, ecm.CellSeeds, DefaultOptions(model.LayoutCellHPPC, cellParams()).Seeds)
}

func TestSimulateProfile(t *testing.T) {
	e := New(nil)
	tr, err := e.Simulate(truthModel(t), profile.Constant(-30, 60), 1, 0.8)
	require.NoError(t, err)
	assert.Equal(t, 61, tr.Len())
	assert.Equal(t, 0.8, tr.SOC[0])
	assert.Less(t, tr.Voltage[60], tr.OCV[60])

	_, err = e.Simulate(nil, profile.Constant(-30, 60), 1, 1)
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	m := truthModel(t)
	tr, err := m.Run([]float64{0, -10, -10}, []float64{0, 1, 2})
	require.NoError(t, err)

	ledgerPath := filepath.Join(dir, "ledger.csv")
	require.NoError(t, WriteLedgerCSV(ledgerPath, NewLedger(tr, []float64{4.2, 4.17, 4.16})))
	rows := readCSV(t, ledgerPath)
	require.Len(t, rows, 4)
	assert.Equal(t, "simulated_v", rows[0][8])
	assert.Equal(t, "4.200000", rows[1][8])
	assert.Equal(t, "0.000000", rows[1][10])

	tablePath := filepath.Join(dir, "rc.csv")
	require.NoError(t, WriteRcTableCSV(tablePath, m.Table()))
	rows = readCSV(t, tablePath)
	require.Len(t, rows, 10)
	assert.Equal(t, "0.900000", rows[1][0])

	ocvPath := filepath.Join(dir, "ocv.csv")
	require.NoError(t, WriteOcvCSV(ocvPath, m.Curve()))
	assert.Len(t, readCSV(t, ocvPath), 3)

	tracePath := filepath.Join(dir, "trace.csv")
	require.NoError(t, WriteTraceCSV(tracePath, tr))
	assert.Len(t, readCSV(t, tracePath), 4)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
