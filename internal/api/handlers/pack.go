package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"battery-ecm/internal/api/models"
	"battery-ecm/internal/pack"
)

// SimulatePack handles POST /api/v1/models/:id/pack
func (h *ModelHandler) SimulatePack(c *gin.Context) {
	entry, ok := h.lookupModel(c)
	if !ok {
		return
	}
	var req models.PackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.SOCMin == 0 && req.SOCMax == 0 {
		req.SOCMin, req.SOCMax = 0.95, 1.0
	}
	if req.SOCMin < 0 || req.SOCMax > 1 || req.SOCMin >= req.SOCMax {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "soc range must lie within [0, 1] and be non-empty")
		return
	}
	if err := pack.ValidateModel(entry.Model); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "INVALID_MODEL", err.Error())
		return
	}

	p, err := profileFrom(req.Profile)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PROFILE", err.Error())
		return
	}
	t, iPack, err := p.Series(dtOf(req.Profile))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PROFILE", err.Error())
		return
	}

	a := pack.Assembly{Series: req.Series, Parallel: req.Parallel}
	z0 := a.RandomSOC(req.SOCMin, req.SOCMax, req.Seed)
	res, err := a.Simulate(c.Request.Context(), entry.Model, iPack, t, z0, pack.Options{InitialTemperature: req.InitialTemperatureK})
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"model": entry.ID, "assembly": a.String(), "rows": len(t)}).Info("pack simulated")

	resp := models.PackResponse{
		Assembly: a.String(),
		Time:     res.Time,
		Voltage:  res.Voltage,
		Cells:    make([]models.PackCellSummary, 0, len(res.Cells)),
	}
	last := len(res.Time) - 1
	for _, cell := range res.Cells {
		s := models.PackCellSummary{
			Series:       cell.Series,
			Parallel:     cell.Parallel,
			Z0:           cell.Z0,
			FinalSOC:     cell.Trace.SOC[last],
			FinalVoltage: cell.Trace.Voltage[last],
		}
		if cell.Thermal != nil {
			for _, k := range cell.Thermal.Temperature {
				s.MaxTempK = max(s.MaxTempK, k)
			}
		}
		resp.Cells = append(resp.Cells, s)
		if req.IncludeCells {
			resp.Traces = append(resp.Traces, cell.Trace)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SplitCurrent handles POST /api/v1/pack/split
func SplitCurrent(c *gin.Context) {
	var req models.SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	cells, err := pack.SplitParallelCurrent(req.Current, req.OCV, req.R0)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "INVALID_ASSEMBLY", err.Error())
		return
	}
	c.JSON(http.StatusOK, models.SplitResponse{Cells: cells})
}

