package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-ecm/internal/api/models"
	"battery-ecm/internal/data"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/model"
	"battery-ecm/internal/profile"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testBattery = `battery:
  name: test cell
  capacity_ah: 30
  charge_efficiency: 0.98
  discharge_efficiency: 1
`

func truthModel(t *testing.T) *ecm.Model {
	t.Helper()
	m, err := ecm.NewModel(
		model.CellParams{CapacityAh: 30, ChargeEfficiency: 0.98, DischargeEfficiency: 1},
		model.OcvCurve{SOC: []float64{1, 0}, Voltage: []float64{4.2, 3.0}},
		model.Uniform(model.RcRow{Tau1: 20, Tau2: 400, R0: 0.002, R1: 0.001, R2: 0.0015}),
	)
	require.NoError(t, err)
	return m
}

// fixture writes a battery directory and a data directory holding a
// three-group synthetic HPPC log, a log with no markers and a broken file.
func fixture(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	batteries := filepath.Join(root, "batteries")
	require.NoError(t, os.MkdirAll(batteries, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(batteries, "test-cell.yaml"), []byte(testBattery), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(batteries, "broken.yaml"), []byte("battery: [\n"), 0644))

	dataDir := filepath.Join(root, "data")
	opts := profile.DefaultHPPC(30)
	opts.Groups = 3
	s, err := profile.HPPC(opts)
	require.NoError(t, err)
	rec, err := profile.Synthesize(truthModel(t), s, profile.SynthOptions{Dt: 1})
	require.NoError(t, err)
	require.NoError(t, data.SaveTable(filepath.Join(dataDir, "hppc.csv"), rec, model.LayoutCellHPPC))

	flat, err := profile.Synthesize(truthModel(t), profile.Constant(-30, 100), profile.SynthOptions{Dt: 1})
	require.NoError(t, err)
	require.NoError(t, data.SaveTable(filepath.Join(dataDir, "flat.csv"), flat, model.LayoutCellHPPC))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "broken.csv"), []byte("Time(s),Current(A)\n1,2\n"), 0644))

	manifest := &data.Manifest{
		UpdatedAt: "2026-01-01T00:00:00Z",
		Datasets: []data.Dataset{
			{ID: "hppc", Name: "synthetic hppc", Path: "hppc.csv", Layout: "cell-hppc", Kind: "hppc"},
			{ID: "flat", Name: "flat discharge", Path: "flat.csv", Layout: "cell-hppc", Kind: "hppc"},
			{ID: "broken", Name: "broken", Path: "broken.csv", Layout: "cell-hppc", Kind: "discharge"},
		},
	}
	manifestPath := filepath.Join(dataDir, "manifest.json")
	require.NoError(t, data.SaveManifest(manifest, manifestPath))

	log, _ := test.NewNullLogger()
	cache := data.NewModelCache(time.Hour, time.Hour)
	t.Cleanup(cache.Close)
	return Options{
		Log:          log,
		Cache:        cache,
		BatteryDir:   batteries,
		ManifestPath: manifestPath,
		StaticDir:    filepath.Join(root, "no-static"),
	}
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[models.ErrorResponse](t, w).Error.Code
}

func TestCatalogueRoutes(t *testing.T) {
	r := NewRouter(fixture(t))

	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/batteries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	batteries := decode[struct {
		Batteries []models.BatteryInfo `json:"batteries"`
	}](t, w).Batteries
	require.Len(t, batteries, 1)
	assert.Equal(t, "test-cell", batteries[0].ID)
	assert.Equal(t, "test cell", batteries[0].Name)
	assert.Equal(t, 30.0, batteries[0].Specs.CapacityAh)
	assert.False(t, batteries[0].Specs.Thermal)

	w = do(t, r, http.MethodGet, "/api/v1/layouts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	layouts := decode[struct {
		Layouts []model.Layout `json:"layouts"`
	}](t, w).Layouts
	assert.Len(t, layouts, len(model.Layouts()))

	w = do(t, r, http.MethodGet, "/api/v1/datasets?kind=hppc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	datasets := decode[struct {
		Datasets []data.Dataset `json:"datasets"`
		Count    int            `json:"count"`
	}](t, w)
	assert.Equal(t, 2, datasets.Count)

	w = do(t, r, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModelLifecycle(t *testing.T) {
	r := NewRouter(fixture(t))

	build := models.BuildModelRequest{DatasetID: "hppc", BatteryFile: "test-cell", Fit: models.FitOptions{Workers: 2}}
	w := do(t, r, http.MethodPost, "/api/v1/models", build)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	built := decode[models.ModelResponse](t, w)
	require.NotEmpty(t, built.ID)
	assert.False(t, built.Cached)
	assert.Equal(t, "hppc", built.Name)
	assert.Equal(t, 30.0, built.Params.CapacityAh)
	require.NotNil(t, built.RC)
	assert.Equal(t, 3, len(built.RC.Rows)+len(built.Skipped))
	for _, row := range built.RC.Rows {
		assert.InEpsilon(t, 0.002, row.R0, 0.05)
	}

	w = do(t, r, http.MethodPost, "/api/v1/models", build)
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[models.ModelResponse](t, w)
	assert.True(t, again.Cached)
	assert.Equal(t, built.ID, again.ID)

	w = do(t, r, http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Models []models.ModelSummary `json:"models"`
	}](t, w).Models
	require.Len(t, list, 1)
	assert.Equal(t, built.ID, list[0].ID)

	w = do(t, r, http.MethodGet, "/api/v1/models/"+built.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, built.OCV, decode[models.ModelResponse](t, w).OCV)

	w = do(t, r, http.MethodPost, "/api/v1/models/"+built.ID+"/simulate", models.SimulateRequest{
		Profile:      models.ProfileRequest{Schedule: "-30@60,0@60"},
		IncludeTrace: true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sim := decode[models.SimulateResponse](t, w)
	assert.Equal(t, 121, sim.Samples)
	assert.Less(t, sim.FinalSOC, 1.0)
	assert.Less(t, sim.MinV, sim.MaxV)
	require.NotNil(t, sim.Trace)
	assert.Len(t, sim.Trace.Voltage, 121)
	assert.Nil(t, sim.Quality)

	w = do(t, r, http.MethodPost, "/api/v1/models/"+built.ID+"/simulate", models.SimulateRequest{DatasetID: "hppc"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replay := decode[models.SimulateResponse](t, w)
	require.NotNil(t, replay.Quality)
	assert.Less(t, replay.Quality.RMSE, 0.05)
	assert.Nil(t, replay.Trace)

	w = do(t, r, http.MethodDelete, "/api/v1/models/"+built.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/models/"+built.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "MODEL_NOT_FOUND", errorCode(t, w))
}

func TestBuildErrors(t *testing.T) {
	r := NewRouter(fixture(t))

	cases := []struct {
		name   string
		req    any
		status int
		code   string
	}{
		{"missing dataset id", map[string]any{}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown dataset", models.BuildModelRequest{DatasetID: "nope", BatteryFile: "test-cell"}, http.StatusNotFound, "DATASET_NOT_FOUND"},
		{"no capacity", models.BuildModelRequest{DatasetID: "hppc"}, http.StatusBadRequest, "INVALID_CONFIG"},
		{"unknown battery", models.BuildModelRequest{DatasetID: "hppc", BatteryFile: "../etc"}, http.StatusBadRequest, "INVALID_CONFIG"},
		{"unknown fit kind", models.BuildModelRequest{DatasetID: "hppc", BatteryFile: "test-cell", Fit: models.FitOptions{Kind: "three"}}, http.StatusBadRequest, "INVALID_CONFIG"},
		{"broken log", models.BuildModelRequest{DatasetID: "broken", BatteryFile: "test-cell"}, http.StatusUnprocessableEntity, "FORMAT_ERROR"},
		{"no markers", models.BuildModelRequest{DatasetID: "flat", BatteryFile: "test-cell"}, http.StatusUnprocessableEntity, "SEGMENTATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/models", tc.req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, errorCode(t, w))
		})
	}
}

func TestImportPlotAndPack(t *testing.T) {
	r := NewRouter(fixture(t))

	raw, err := json.Marshal(truthModel(t))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/models/import?name=truth", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	imported := decode[models.ModelResponse](t, w)
	assert.Equal(t, "truth", imported.Name)
	assert.Equal(t, 9, len(imported.RC.Rows))

	w = do(t, r, http.MethodPost, "/api/v1/models/import", map[string]any{"params": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MODEL", errorCode(t, w))

	w = do(t, r, http.MethodGet, "/api/v1/models/"+imported.ID+"/plot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(t, r, http.MethodGet, "/api/v1/models/"+imported.ID+"/plot?format=gif", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/models/"+imported.ID+"/pack", models.PackRequest{
		Series:   2,
		Parallel: 2,
		Seed:     7,
		Profile:  models.ProfileRequest{Steps: []models.Step{{Current: -60, Duration: 30}, {Current: 0, Duration: 30}}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[models.PackResponse](t, w)
	assert.Equal(t, "2S2P", res.Assembly)
	require.Len(t, res.Cells, 4)
	assert.Len(t, res.Voltage, 61)
	for _, c := range res.Cells {
		assert.GreaterOrEqual(t, c.Z0, 0.95)
		assert.Less(t, c.FinalSOC, c.Z0)
		assert.Zero(t, c.MaxTempK)
	}
	assert.Empty(t, res.Traces)

	w = do(t, r, http.MethodPost, "/api/v1/models/"+imported.ID+"/pack", models.PackRequest{
		Series: 1, Parallel: 1,
		Profile: models.ProfileRequest{Schedule: "-1@10", Steps: []models.Step{{Current: -1, Duration: 1}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PROFILE", errorCode(t, w))
}

func TestSplitCurrent(t *testing.T) {
	r := NewRouter(fixture(t))

	w := do(t, r, http.MethodPost, "/api/v1/pack/split", models.SplitRequest{
		Current: []float64{-2},
		OCV:     [][]float64{{4, 4}},
		R0:      [][]float64{{0.01, 0.01}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cells := decode[models.SplitResponse](t, w).Cells
	require.Len(t, cells, 1)
	assert.InDelta(t, -1, cells[0][0][0], 1e-9)
	assert.InDelta(t, -1, cells[0][1][0], 1e-9)

	w = do(t, r, http.MethodPost, "/api/v1/pack/split", models.SplitRequest{
		Current: []float64{-2},
		OCV:     [][]float64{{4}},
		R0:      [][]float64{{0}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
