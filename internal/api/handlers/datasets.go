package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"battery-ecm/internal/data"
	"battery-ecm/internal/model"
)

// DatasetHandler serves the test logs listed in a data manifest
type DatasetHandler struct {
	manifestPath string
}

// NewDatasetHandler creates a dataset handler. An empty path falls back to
// DATA_DIR/manifest.json.
func NewDatasetHandler(manifestPath string) *DatasetHandler {
	if manifestPath == "" {
		manifestPath = data.DefaultManifestPath()
	}
	return &DatasetHandler{manifestPath: manifestPath}
}

func (h *DatasetHandler) manifest() (*data.Manifest, error) {
	m, err := data.LoadManifest(h.manifestPath)
	if err != nil {
		// No manifest yet is an empty catalogue
		if errors.Is(err, os.ErrNotExist) {
			return &data.Manifest{Datasets: []data.Dataset{}}, nil
		}
		return nil, err
	}
	return m, nil
}

// ListDatasets handles GET /api/v1/datasets
func (h *DatasetHandler) ListDatasets(c *gin.Context) {
	m, err := h.manifest()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "MANIFEST_LOAD_ERROR",
			fmt.Sprintf("Failed to load manifest: %v", err))
		return
	}

	datasets := m.OfKind(c.Query("kind"))
	c.JSON(http.StatusOK, gin.H{
		"datasets":   datasets,
		"updated_at": m.UpdatedAt,
		"count":      len(datasets),
	})
}

// Find returns the dataset with the given ID.
func (h *DatasetHandler) Find(id string) (data.Dataset, bool, error) {
	m, err := h.manifest()
	if err != nil {
		return data.Dataset{}, false, err
	}
	d, ok := m.Find(id)
	return d, ok, nil
}

// Load reads a dataset's log with the named layout, or the dataset's own
// layout when layoutName is empty.
func (h *DatasetHandler) Load(d data.Dataset, layoutName string) (*model.TestRecord, model.Layout, error) {
	if layoutName == "" {
		layoutName = d.Layout
	}
	layout, err := model.LayoutByName(layoutName)
	if err != nil {
		return nil, model.Layout{}, err
	}
	rec, err := data.LoadTable(d.Path, layout)
	if err != nil {
		return nil, model.Layout{}, err
	}
	return rec, layout, nil
}

// lookupDataset resolves a dataset ID or writes the error response.
func (h *DatasetHandler) lookupDataset(c *gin.Context, id string) (data.Dataset, bool) {
	d, ok, err := h.Find(id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "MANIFEST_LOAD_ERROR",
			fmt.Sprintf("Failed to load manifest: %v", err))
		return data.Dataset{}, false
	}
	if !ok {
		respondError(c, http.StatusNotFound, "DATASET_NOT_FOUND",
			fmt.Sprintf("Dataset %q not found", id))
		return data.Dataset{}, false
	}
	return d, true
}

// ListLayouts handles GET /api/v1/layouts
func ListLayouts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"layouts": model.Layouts()})
}
