package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homesense-core/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Control panel (embedded unless api.web_dir points at a directory)
	assets := panel.Handler(s.cfg.WebDir)
	r.Get("/", s.handleIndex(assets))
	r.Get("/*", assets.ServeHTTP)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/log", s.handleListAuditLogs)
	r.Get("/video_feed", s.handleVideoFeed)
	r.Get(s.wsPath(), s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sensor_data", s.handleSensorData)
		r.Get("/weather", s.handleWeather)
		r.Get("/telemetry.csv", s.handleTelemetryCSV)
	})

	r.Post("/command/{scene}", s.handleCommand)
	r.Post("/logging/{action}", s.handleLogging)
	r.Post("/mode/{mode}", s.handleMode)
	r.Post("/projector/{action}", s.handleProjector)
	r.Post("/hdmi/{port}", s.handleHDMI)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"ws_clients": clients,
	})
}
