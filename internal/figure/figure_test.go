package figure

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/pack"
	"battery-ecm/internal/segment"
	"battery-ecm/internal/thermal"
)

func testTrace() *ecm.Trace {
	return &ecm.Trace{
		Time:    []float64{0, 1, 2},
		Current: []float64{0, -1, -1},
		SOC:     []float64{1, 0.99, 0.98},
		OCV:     []float64{4.2, 4.19, 4.18},
		V0:      []float64{0, 0, 0},
		V1:      []float64{0, 0, 0},
		V2:      []float64{0, 0, 0},
		Voltage: []float64{4.2, 4.1, 4.09},
	}
}

func TestVoltageAndSave(t *testing.T) {
	rec := &model.TestRecord{
		Time:    []float64{0, 1, 2},
		Current: []float64{0, -1, -1},
		Voltage: []float64{4.2, 4.11, 4.08},
		Flags:   make([]model.Flag, 3),
	}
	p, err := Voltage(rec, testTrace())
	require.NoError(t, err)

	for _, name := range []string{"v.png", "v.svg"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, Save(p, path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	_, err = Voltage(rec.Slice(0, 2), testTrace())
	assert.Error(t, err)
}

func TestRenderSVG(t *testing.T) {
	p, err := Trace(testTrace())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Render(p, "SVG", &buf))
	assert.Contains(t, buf.String(), "<svg")
	assert.Equal(t, "png", Format("out/Fig.PNG"))
}

func TestOcv(t *testing.T) {
	_, err := Ocv(model.OcvCurve{SOC: []float64{1, 0.5, 0}, Voltage: []float64{4.2, 3.7, 3.0}})
	require.NoError(t, err)
	_, err = Ocv(model.OcvCurve{SOC: []float64{1}, Voltage: []float64{4.2}})
	assert.Error(t, err)
}

func TestRelaxation(t *testing.T) {
	n := 20
	rec := &model.TestRecord{
		Time:    make([]float64, n),
		Current: make([]float64, n),
		Voltage: make([]float64, n),
		Flags:   make([]model.Flag, n),
	}
	for i := range rec.Time {
		rec.Time[i] = float64(i)
		rec.Voltage[i] = 4 - 0.01*float64(n-i)/float64(n)
	}
	g := segment.Group{Start: 0, AfterStart: 1, End: 5, AfterEnd: 6, RestEnd: 19}
	fit := ecm.BinFit{Bin: 0, SOC: 0.9, Kind: ecm.OneTimeConstant, Coeffs: []float64{4, 0.01, 0.1}}
	_, err := Relaxation(rec, g, fit)
	require.NoError(t, err)

	_, err = Relaxation(rec, g, ecm.BinFit{Bin: 1})
	assert.Error(t, err)
	g.RestEnd = 40
	_, err = Relaxation(rec, g, fit)
	assert.Error(t, err)
}

func TestPackFigures(t *testing.T) {
	res := &pack.Result{
		Assembly: pack.Assembly{Series: 1, Parallel: 2},
		Time:     []float64{0, 1, 2},
		Cells: []pack.Cell{
			{Series: 0, Parallel: 0, Trace: testTrace(), Thermal: &thermal.Result{Temperature: []float64{298, 299, 300}}},
			{Series: 0, Parallel: 1, Trace: testTrace()},
		},
	}
	_, err := Pack(res)
	require.NoError(t, err)
	_, err = Temperature(res)
	require.NoError(t, err)

	res.Cells[0].Thermal = nil
	_, err = Temperature(res)
	assert.Error(t, err)
}
