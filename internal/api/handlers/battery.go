package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"battery-ecm/internal/api/models"
	"battery-ecm/internal/config"
)

// BatteryHandler handles battery-related requests
type BatteryHandler struct {
	batteryDir string
	log        logrus.FieldLogger
}

// NewBatteryHandler creates a new battery handler. An empty dir falls back to
// BATTERY_DIR and then ./configs/batteries.
func NewBatteryHandler(dir string, log logrus.FieldLogger) *BatteryHandler {
	if dir == "" {
		dir = os.Getenv("BATTERY_DIR")
	}
	if dir == "" {
		dir = filepath.Join("configs", "batteries")
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithField("dir", dir).Debug("battery directory")
	return &BatteryHandler{batteryDir: dir, log: log}
}

// Dir returns the battery directory path
func (h *BatteryHandler) Dir() string {
	return h.batteryDir
}

// ListBatteries handles GET /api/v1/batteries
func (h *BatteryHandler) ListBatteries(c *gin.Context) {
	batteries := []models.BatteryInfo{}

	entries, err := os.ReadDir(h.batteryDir)
	if err != nil {
		// A missing directory is an empty catalogue
		h.log.WithError(err).WithField("dir", h.batteryDir).Warn("failed to read battery directory")
		c.JSON(http.StatusOK, gin.H{"batteries": batteries})
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(h.batteryDir, entry.Name())
		info, err := h.loadBatteryInfo(path, entry.Name())
		if err != nil {
			h.log.WithError(err).WithField("file", path).Warn("skipping battery file")
			continue
		}
		batteries = append(batteries, *info)
	}
	sort.Slice(batteries, func(i, j int) bool { return batteries[i].ID < batteries[j].ID })

	c.JSON(http.StatusOK, gin.H{"batteries": batteries})
}

// Load reads the battery with the given ID (its file name without .yaml).
func (h *BatteryHandler) Load(id string) (config.BatteryConfig, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return config.BatteryConfig{}, fmt.Errorf("invalid battery id %q", id)
	}
	return config.LoadBatteryFile(filepath.Join(h.batteryDir, strings.TrimSuffix(id, ".yaml")+".yaml"))
}

func (h *BatteryHandler) loadBatteryInfo(path, filename string) (*models.BatteryInfo, error) {
	b, err := config.LoadBatteryFile(path)
	if err != nil {
		return nil, err
	}

	// "leaf-cell.yaml" -> "leaf-cell"
	id := strings.TrimSuffix(filename, ".yaml")

	name := b.Name
	if name == "" {
		name = id
	}

	return &models.BatteryInfo{
		ID:   id,
		Name: name,
		File: path,
		Specs: models.BatterySpecs{
			CapacityAh: b.CapacityAh,
			Thermal:    b.ToModelParams().HasThermal(),
		},
	}, nil
}
