// Package api wires the HTTP handlers into a gin router.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"battery-ecm/internal/api/handlers"
	"battery-ecm/internal/api/middleware"
	"battery-ecm/internal/data"
)

// Options configure the router. Empty paths fall back to the environment.
type Options struct {
	Log          *logrus.Logger
	Cache        *data.ModelCache
	BatteryDir   string
	ManifestPath string
	StaticDir    string
	Origins      []string
}

// NewRouter builds the API router.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	cache := opts.Cache
	if cache == nil {
		cache = data.GetCache()
	}

	router := gin.New()
	router.Use(middleware.CORS(opts.Origins...))
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler(log))

	batteryHandler := handlers.NewBatteryHandler(opts.BatteryDir, log)
	datasetHandler := handlers.NewDatasetHandler(opts.ManifestPath)
	modelHandler := handlers.NewModelHandler(cache, datasetHandler, batteryHandler, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/batteries", batteryHandler.ListBatteries)
		api.GET("/layouts", handlers.ListLayouts)
		api.GET("/datasets", datasetHandler.ListDatasets)

		api.POST("/models", modelHandler.BuildModel)
		api.POST("/models/import", modelHandler.ImportModel)
		api.GET("/models", modelHandler.ListModels)
		api.GET("/models/:id", modelHandler.GetModel)
		api.DELETE("/models/:id", modelHandler.DeleteModel)
		api.POST("/models/:id/simulate", modelHandler.SimulateModel)
		api.POST("/models/:id/pack", modelHandler.SimulatePack)
		api.GET("/models/:id/plot", modelHandler.PlotModel)

		api.POST("/pack/split", handlers.SplitCurrent)
	}

	serveStatic(router, opts.StaticDir, log)
	return router
}

// serveStatic serves a built web UI when the directory exists, with
// index.html answering every non-API route.
func serveStatic(router *gin.Engine, dir string, log logrus.FieldLogger) {
	if dir == "" {
		dir = os.Getenv("STATIC_DIR")
	}
	if dir == "" {
		dir = filepath.Join("web", "dist")
	}
	if _, err := os.Stat(dir); err != nil {
		log.WithField("dir", dir).Debug("static directory not found, skipping static file serving")
		return
	}

	router.Static("/assets", filepath.Join(dir, "assets"))
	router.StaticFile("/favicon.ico", filepath.Join(dir, "favicon.ico"))
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.File(filepath.Join(dir, "index.html"))
	})
	log.WithField("dir", dir).Info("serving static files")
}
