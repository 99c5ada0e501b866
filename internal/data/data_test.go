package data

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
)

const cellLog = `Time(s),Current(A),Voltage(V),Data
0,0,4.18,S
1,-30,4.10,
2,-30,4.09,S
3,0,4.15,
4,0,4.16,Q
`

func TestReadTableCell(t *testing.T) {
	rec, err := ReadTable(strings.NewReader(cellLog), "cell.csv", model.LayoutCellHPPC)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Len())
	assert.Equal(t, []int{0, 2}, rec.StartStopIndices())
	assert.Equal(t, []int{4}, rec.QuitIndices())
	assert.Equal(t, -30.0, rec.Current[1])
}

func TestReadTableModulePreamble(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 17; i++ {
		b.WriteString("preamble line\n")
	}
	b.WriteString("Total Time,Current,Voltage,Data Acquisition Flag,Temperature A1\n")
	b.WriteString("0,0,50.1,S,25.0\n")
	b.WriteString("\n")
	b.WriteString("10,-60,49.0,,25.5\n")

	rec, err := ReadTable(strings.NewReader(b.String()), "module.csv", model.LayoutModuleHPPC)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, []float64{25.0, 25.5}, rec.Channels["Temperature A1"])
}

func TestReadTableErrors(t *testing.T) {
	cases := map[string]string{
		"missing column": "Time(s),Current(A),Data\n0,0,S\n1,0,\n",
		"bad number":     "Time(s),Current(A),Voltage(V),Data\n0,0,4.1,\n1,x,4.1,\n",
		"one row":        "Time(s),Current(A),Voltage(V),Data\n0,0,4.1,\n",
		"time backwards": "Time(s),Current(A),Voltage(V),Data\n1,0,4.1,\n0,0,4.1,\n",
		"empty":          "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTable(strings.NewReader(body), "bad.csv", model.LayoutCellHPPC)
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, "bad.csv", fe.Path)
		})
	}
}

func TestWriteTableRoundTrip(t *testing.T) {
	rec, err := ReadTable(strings.NewReader(cellLog), "cell.csv", model.LayoutCellHPPC)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, rec, model.LayoutCellHPPC))
	back, err := ReadTable(&buf, "round.csv", model.LayoutCellHPPC)
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestDetectLayoutAndScanDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cell_HPPC.csv"), []byte(cellLog), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("a,b\n1,2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0644))

	l, err := DetectLayout(filepath.Join(dir, "Cell_HPPC.csv"))
	require.NoError(t, err)
	assert.Equal(t, "cell-hppc", l.Name)

	_, err = DetectLayout(filepath.Join(dir, "notes.csv"))
	assert.Error(t, err)

	m, err := ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, m.Datasets, 1)
	assert.Equal(t, Dataset{ID: "cell_hppc", Name: "Cell_HPPC", Path: "Cell_HPPC.csv", Layout: "cell-hppc", Kind: "hppc"}, m.Datasets[0])
}

func TestManifestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "manifest.json")
	m := &Manifest{
		UpdatedAt: "2024-01-01T00:00:00Z",
		Datasets: []Dataset{
			{ID: "a", Path: "a.csv", Layout: "cell-hppc", Kind: "hppc", Temperature: "a.lvm"},
			{ID: "b", Path: "/abs/b.csv", Layout: "pack-us06", Kind: "drive-cycle"},
		},
	}
	require.NoError(t, SaveManifest(m, path))

	got, err := LoadManifest(path)
	require.NoError(t, err)
	a, ok := got.Find("a")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "sub", "a.csv"), a.Path)
	assert.Equal(t, filepath.Join(dir, "sub", "a.lvm"), a.Temperature)
	b, _ := got.Find("b")
	assert.Equal(t, "/abs/b.csv", b.Path)

	assert.Len(t, got.OfKind("HPPC"), 1)
	assert.Len(t, got.OfKind(""), 2)
	_, ok = got.Find("zzz")
	assert.False(t, ok)
}

func TestTemperatureLog(t *testing.T) {
	body := "0\t20\t21\t22\t30\n" +
		"0\t21\t23\t22\t31\n" +
		"\n" +
		"0\t22\t25\t23\t32\n" +
		"0\t22\t24\t23\t33\n"
	log, err := ReadTemperatureLog(strings.NewReader(body), "t.lvm")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 6, 9}, log.Time)
	assert.Equal(t, []float64{22, 23, 25, 24}, log.Max())
	assert.Equal(t, []float64{20, 21, 22, 22}, log.Min())
	assert.InDeltaSlice(t, []float64{21, 22, 70.0 / 3, 23}, log.Mean(), 1e-12)

	w := log.Window(3, 7)
	assert.Equal(t, []float64{0, 3}, w.Time)
	assert.Equal(t, []float64{23, 25}, w.Channels[1])

	// same sample at both ends cuts at the secondary channel peak
	w = log.Window(4, 4.4)
	assert.Equal(t, []float64{0, 3, 6}, w.Time)

	assert.InDeltaSlice(t, []float64{298.15}, Kelvin([]float64{25}), 1e-12)

	_, err = ReadTemperatureLog(strings.NewReader("0\t1\t2\n"), "short.lvm")
	assert.Error(t, err)
}

func testModel(t *testing.T) *ecm.Model {
	t.Helper()
	m, err := ecm.NewModel(
		model.CellParams{CapacityAh: 30, ChargeEfficiency: 0.98, DischargeEfficiency: 1},
		model.OcvCurve{SOC: []float64{1, 0}, Voltage: []float64{4.2, 3.0}},
		model.Uniform(model.RcRow{Tau1: 20, Tau2: 400, R0: 0.002, R1: 0.001, R2: 0.0015}),
	)
	require.NoError(t, err)
	return m
}

func TestModelJSONFile(t *testing.T) {
	m := testModel(t)
	path := filepath.Join(t.TempDir(), "models", "cell.json")
	require.NoError(t, SaveModelJSON(m, path))

	back, err := LoadModelJSON(path)
	require.NoError(t, err)
	assert.Equal(t, m.Params(), back.Params())
	assert.Equal(t, m.Table(), back.Table())
	assert.InDelta(t, 3.6, back.OcvAt(0.5), 1e-12)

	_, err = LoadModelJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestModelCache(t *testing.T) {
	c := NewModelCache(time.Minute, 0)
	defer c.Close()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	m := testModel(t)
	key := BuildKey("cell", "ttc")
	first := c.Put(key, "cell", m)
	got, ok := c.Get(first.ID)
	require.True(t, ok)
	assert.Same(t, m, got.Model)

	clock = clock.Add(time.Second)
	second := c.Put(key, "cell again", m)
	_, ok = c.Get(first.ID)
	assert.False(t, ok, "same key replaces the earlier entry")
	byKey, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, second.ID, byKey.ID)

	clock = clock.Add(time.Second)
	c.Put("", "other", m)
	assert.Len(t, c.List(), 2)
	assert.Equal(t, second.ID, c.List()[0].ID)

	clock = clock.Add(2 * time.Minute)
	_, ok = c.Get(second.ID)
	assert.False(t, ok)
	assert.Empty(t, c.List())
	c.sweep()
	_, ok = c.Lookup(key)
	assert.False(t, ok)

	e := c.Put("", "x", m)
	assert.True(t, c.Delete(e.ID))
	assert.False(t, c.Delete(e.ID))
	c.Clear()
	assert.Empty(t, c.List())
}

func TestNilModelCache(t *testing.T) {
	var c *ModelCache
	e := c.Put("k", "n", nil)
	assert.NotEmpty(t, e.ID)
	_, ok := c.Get(e.ID)
	assert.False(t, ok)
	assert.Nil(t, c.List())
	c.Clear()
	c.Close()
}

func TestBuildKeyStable(t *testing.T) {
	assert.Equal(t, BuildKey("a", "b"), BuildKey("a", "b"))
	assert.NotEqual(t, BuildKey("a", "b"), BuildKey("ab"))
	assert.Len(t, BuildKey(), 64)
}
