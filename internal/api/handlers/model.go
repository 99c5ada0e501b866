package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"battery-ecm/internal/analysis"
	"battery-ecm/internal/api/models"
	"battery-ecm/internal/config"
	"battery-ecm/internal/data"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/figure"
	"battery-ecm/internal/model"
	"battery-ecm/internal/pipeline"
	"battery-ecm/internal/profile"
)

// ModelHandler builds, stores and runs equivalent circuit models
type ModelHandler struct {
	cache     *data.ModelCache
	engine    *pipeline.Engine
	datasets  *DatasetHandler
	batteries *BatteryHandler
	log       logrus.FieldLogger
}

// NewModelHandler creates a new model handler
func NewModelHandler(cache *data.ModelCache, datasets *DatasetHandler, batteries *BatteryHandler, log logrus.FieldLogger) *ModelHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ModelHandler{
		cache:     cache,
		engine:    pipeline.New(log),
		datasets:  datasets,
		batteries: batteries,
		log:       log,
	}
}

// buildConfig resolves the battery file, request overrides and fit options
// into a validated configuration.
func (h *ModelHandler) buildConfig(req models.BuildModelRequest, layout string) (*config.Config, error) {
	override := config.BatteryConfig{
		Name:                req.Battery.Name,
		CapacityAh:          req.Battery.CapacityAh,
		ChargeEfficiency:    req.Battery.ChargeEfficiency,
		DischargeEfficiency: req.Battery.DischargeEfficiency,
		SurfaceAreaM2:       req.Battery.SurfaceAreaM2,
		SpecificHeat:        req.Battery.SpecificHeat,
		ConvectiveCoeff:     req.Battery.ConvectiveCoeff,
		MassKg:              req.Battery.MassKg,
		AmbientK:            req.Battery.AmbientK,
	}
	cfg := &config.Config{
		BatteryFile: req.BatteryFile,
		Battery:     override,
		Layout:      config.LayoutConfig{Preset: layout},
		Fit: config.FitConfig{
			Kind:          req.Fit.Kind,
			Seeds:         req.Fit.Seeds,
			Workers:       req.Fit.Workers,
			Strict:        req.Fit.Strict,
			MaxIterations: req.Fit.MaxIterations,
		},
	}
	if req.BatteryFile != "" {
		base, err := h.batteries.Load(req.BatteryFile)
		if err != nil {
			return nil, fmt.Errorf("battery %s: %w", req.BatteryFile, err)
		}
		cfg.Battery = config.MergeBattery(base, override)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildModel handles POST /api/v1/models
func (h *ModelHandler) BuildModel(c *gin.Context) {
	var req models.BuildModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	dataset, ok := h.datasets.lookupDataset(c, req.DatasetID)
	if !ok {
		return
	}
	layoutName := req.Layout
	if layoutName == "" {
		layoutName = dataset.Layout
	}
	cfg, err := h.buildConfig(req, layoutName)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}
	opts, err := cfg.BuildOptions()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	key := data.BuildKey(dataset.ID, dataset.Path, string(raw))
	name := req.Name
	if name == "" {
		name = dataset.ID
	}

	if entry, ok := h.cache.Lookup(key); ok {
		h.log.WithFields(logrus.Fields{"dataset": dataset.ID, "model": entry.ID}).Info("model cache hit")
		resp := modelResponse(entry)
		resp.Cached = true
		c.JSON(http.StatusOK, resp)
		return
	}

	rec, _, err := h.datasets.Load(dataset, layoutName)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	report, err := h.engine.Build(c.Request.Context(), rec, opts)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	entry := h.cache.Put(key, name, report.Model)
	resp := modelResponse(entry)
	resp.Bins = report.Bins
	resp.ElapsedMs = report.Elapsed.Milliseconds()
	for _, e := range report.Skipped {
		resp.Skipped = append(resp.Skipped, e.Error())
	}
	c.JSON(http.StatusCreated, resp)
}

// ImportModel handles POST /api/v1/models/import with a model JSON body
func (h *ModelHandler) ImportModel(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	var m ecm.Model
	if err := json.Unmarshal(raw, &m); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_MODEL", err.Error())
		return
	}
	name := c.DefaultQuery("name", "imported")
	entry := h.cache.Put(data.BuildKey("import", string(raw)), name, &m)
	c.JSON(http.StatusCreated, modelResponse(entry))
}

// ListModels handles GET /api/v1/models
func (h *ModelHandler) ListModels(c *gin.Context) {
	list := []models.ModelSummary{}
	for _, e := range h.cache.List() {
		list = append(list, models.ModelSummary{
			ID:        e.ID,
			Name:      e.Name,
			CreatedAt: e.CreatedAt,
			ExpiresAt: e.ExpiresAt,
			Bins:      e.Model.Table().Len(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": list, "count": len(list)})
}

// GetModel handles GET /api/v1/models/:id
func (h *ModelHandler) GetModel(c *gin.Context) {
	entry, ok := h.lookupModel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, modelResponse(entry))
}

// DeleteModel handles DELETE /api/v1/models/:id
func (h *ModelHandler) DeleteModel(c *gin.Context) {
	if !h.cache.Delete(c.Param("id")) {
		respondError(c, http.StatusNotFound, "MODEL_NOT_FOUND",
			fmt.Sprintf("Model %s not found or expired", c.Param("id")))
		return
	}
	c.Status(http.StatusNoContent)
}

// SimulateModel handles POST /api/v1/models/:id/simulate
func (h *ModelHandler) SimulateModel(c *gin.Context) {
	entry, ok := h.lookupModel(c)
	if !ok {
		return
	}
	var req models.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	z0 := 1.0
	if req.InitialSOC != nil {
		z0 = *req.InitialSOC
	}

	var (
		p        profile.Profile
		measured []float64
	)
	if req.DatasetID != "" {
		dataset, ok := h.datasets.lookupDataset(c, req.DatasetID)
		if !ok {
			return
		}
		rec, _, err := h.datasets.Load(dataset, "")
		if err != nil {
			respondPipelineError(c, err)
			return
		}
		p = profile.Recorded{Label: dataset.ID, Record: rec}
		measured = rec.Voltage
	} else {
		var err error
		if p, err = profileFrom(req.Profile); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_PROFILE", err.Error())
			return
		}
	}

	tr, err := h.engine.Simulate(entry.Model, p, dtOf(req.Profile), z0)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "SIMULATION_ERROR", err.Error())
		return
	}

	resp := models.SimulateResponse{
		Samples:  tr.Len(),
		FinalSOC: tr.SOC[tr.Len()-1],
		FinalV:   tr.Voltage[tr.Len()-1],
		MinV:     tr.Voltage[0],
		MaxV:     tr.Voltage[0],
	}
	for _, v := range tr.Voltage {
		resp.MinV = min(resp.MinV, v)
		resp.MaxV = max(resp.MaxV, v)
	}
	if measured != nil {
		q, err := analysis.Compare(measured, tr.Voltage)
		if err != nil {
			respondError(c, http.StatusUnprocessableEntity, "SIMULATION_ERROR", err.Error())
			return
		}
		q.Label = "terminal voltage"
		resp.Quality = &q
	}
	if req.IncludeTrace {
		resp.Trace = tr
	}
	c.JSON(http.StatusOK, resp)
}

// PlotModel handles GET /api/v1/models/:id/plot
func (h *ModelHandler) PlotModel(c *gin.Context) {
	entry, ok := h.lookupModel(c)
	if !ok {
		return
	}
	if kind := c.DefaultQuery("kind", "ocv"); kind != "ocv" {
		respondError(c, http.StatusBadRequest, "INVALID_PARAM", fmt.Sprintf("unknown plot kind %q", kind))
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "png"))
	contentType := map[string]string{"png": "image/png", "svg": "image/svg+xml"}[format]
	if contentType == "" {
		respondError(c, http.StatusBadRequest, "INVALID_PARAM", fmt.Sprintf("unknown plot format %q", format))
		return
	}

	p, err := figure.Ocv(entry.Model.Curve())
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "PLOT_ERROR", err.Error())
		return
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if err := figure.Render(p, format, c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func (h *ModelHandler) lookupModel(c *gin.Context) (*data.CachedModel, bool) {
	id := c.Param("id")
	entry, ok := h.cache.Get(id)
	if !ok {
		respondError(c, http.StatusNotFound, "MODEL_NOT_FOUND",
			fmt.Sprintf("Model %s not found or expired", id))
		return nil, false
	}
	return entry, true
}

func modelResponse(e *data.CachedModel) models.ModelResponse {
	return models.ModelResponse{
		ID:        e.ID,
		Name:      e.Name,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
		Params:    e.Model.Params(),
		OCV:       e.Model.Curve(),
		RC:        e.Model.Table(),
	}
}

func dtOf(p models.ProfileRequest) float64 {
	if p.Dt > 0 {
		return p.Dt
	}
	return 1
}

// profileFrom turns the request's profile into exactly one Profile.
func profileFrom(p models.ProfileRequest) (profile.Profile, error) {
	given := 0
	for _, set := range []bool{p.Schedule != "", len(p.Steps) > 0, len(p.Current) > 0} {
		if set {
			given++
		}
	}
	if given != 1 {
		return nil, errors.New("profile needs exactly one of schedule, steps or current samples")
	}

	switch {
	case p.Schedule != "":
		s, err := profile.ParseSchedule(p.Schedule)
		if err != nil {
			return nil, err
		}
		return s, nil
	case len(p.Steps) > 0:
		s := &profile.Schedule{Label: "steps"}
		for _, st := range p.Steps {
			s.Steps = append(s.Steps, profile.Step{Current: st.Current, Duration: st.Duration})
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		n := len(p.Current)
		if len(p.Time) != n {
			return nil, fmt.Errorf("profile has %d times for %d currents", len(p.Time), n)
		}
		return profile.Recorded{Label: "samples", Record: &model.TestRecord{
			Time:    p.Time,
			Current: p.Current,
			Voltage: make([]float64, n),
			Flags:   make([]model.Flag, n),
		}}, nil
	}
}
