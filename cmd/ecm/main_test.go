package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-ecm/internal/data"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStages(t *testing.T) {
	dir := t.TempDir()
	battery := filepath.Join(dir, "cell.yaml")
	require.NoError(t, os.WriteFile(battery, []byte("battery:\n  capacity_ah: 30\n"), 0644))

	truth, err := ecm.NewModel(
		model.CellParams{CapacityAh: 30, ChargeEfficiency: 0.98, DischargeEfficiency: 1},
		model.OcvCurve{SOC: []float64{1, 0}, Voltage: []float64{4.2, 3.0}},
		model.Uniform(model.RcRow{Tau1: 20, Tau2: 400, R0: 0.002, R1: 0.001, R2: 0.0015}),
	)
	require.NoError(t, err)
	truthPath := filepath.Join(dir, "truth.json")
	require.NoError(t, data.SaveModelJSON(truth, truthPath))

	logs := filepath.Join(dir, "logs")
	logPath := filepath.Join(logs, "synthetic.csv")
	_, err = run(t, "synth", "--model", truthPath, "--groups", "3", "--out", logPath)
	require.NoError(t, err)

	out, err := run(t, "view", logPath, "--battery", battery)
	require.NoError(t, err)
	assert.Contains(t, out, "3 pulse groups, 3 discharge groups")

	out, err = run(t, "sococv", logPath, "--battery", battery)
	require.NoError(t, err)
	assert.Contains(t, out, "OCV anchors")

	fitted := filepath.Join(dir, "fitted.json")
	out, err = run(t, "rctau", logPath, "--battery", battery, "--model", fitted, "--out", filepath.Join(dir, "rc.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "RC parameters")
	assert.FileExists(t, fitted)
	assert.FileExists(t, filepath.Join(dir, "rc.csv"))

	out, err = run(t, "vt", logPath, "--battery", battery, "--model", fitted, "--ledger", filepath.Join(dir, "ledger.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "terminal voltage")
	assert.FileExists(t, filepath.Join(dir, "ledger.csv"))

	out, err = run(t, "pack", "--battery", battery, "--model", fitted, "--series", "2", "--parallel", "2", "--schedule", "-10@30,0@30")
	require.NoError(t, err)
	assert.Contains(t, out, "2S2P pack")

	fig := filepath.Join(dir, "ocv.svg")
	_, err = run(t, "plot", "ocv", "--model", fitted, "--out", fig)
	require.NoError(t, err)
	assert.FileExists(t, fig)

	out, err = run(t, "manifest", logs)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 1 datasets")
	m, err := data.LoadManifest(filepath.Join(logs, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, "cell-hppc", m.Datasets[0].Layout)
}

func TestStageErrors(t *testing.T) {
	_, err := run(t, "plot", "nope")
	assert.Error(t, err)

	_, err = run(t, "pack")
	assert.Error(t, err)

	_, err = run(t, "view", "missing.csv", "--layout", "cell-hppc")
	assert.Error(t, err, "config without battery capacity is invalid")
}
