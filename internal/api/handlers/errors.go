package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"battery-ecm/internal/api/models"
	"battery-ecm/internal/data"
	"battery-ecm/internal/ecm"
	"battery-ecm/internal/fit"
	"battery-ecm/internal/segment"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// classify maps a pipeline error to its HTTP status and error code. Errors
// joined by a lenient build are classified by their first typed member.
func classify(err error) (int, string) {
	var (
		format     *data.FormatError
		seg        *segment.SegmentationError
		divergence *fit.Divergence
		degenerate *ecm.DegenerateSegmentError
	)
	switch {
	case errors.As(err, &format):
		return http.StatusUnprocessableEntity, "FORMAT_ERROR"
	case errors.As(err, &seg):
		return http.StatusUnprocessableEntity, "SEGMENTATION_ERROR"
	case errors.As(err, &divergence):
		return http.StatusUnprocessableEntity, "FIT_DIVERGENCE"
	case errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity, "DEGENERATE_SEGMENT"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondPipelineError(c *gin.Context, err error) {
	status, code := classify(err)
	_ = c.Error(err)
	respondError(c, status, code, err.Error())
}
