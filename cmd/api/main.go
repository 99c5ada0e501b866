package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"battery-ecm/internal/api"
	"battery-ecm/internal/data"
	"battery-ecm/internal/logging"
)

func main() {
	// Get configuration from environment
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	log := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	cache := data.GetCache()
	if cache == nil {
		log.Warn("model cache disabled, built models cannot be fetched or simulated")
	}

	router := api.NewRouter(api.Options{
		Log:     log,
		Cache:   cache,
		Origins: origins,
	})

	addr := fmt.Sprintf(":%s", port)
	log.WithField("addr", addr).Info("starting API server")
	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}
