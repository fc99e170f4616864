package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homesense-core/internal/audit"
	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/state"
	"github.com/nerrad567/homesense-core/internal/telemetry"
)

// hdmiHidden is shown in place of the input while the projector is not on.
const hdmiHidden = "---"

// Status is the panel's view of the system state.
type Status struct {
	CurtainPosition    any               `json:"curtain_position"`
	ProjectorStatus    state.PowerStatus `json:"projector_status"`
	HDMIStatus         string            `json:"hdmi_status"`
	LoggingPaused      bool              `json:"logging_paused"`
	AutoMode           bool              `json:"auto_mode"`
	AIConnectionStatus bool              `json:"ai_connection_status"`
}

// StatusFrom builds the panel status from a snapshot.
func StatusFrom(snap state.Snapshot) Status {
	hdmi := hdmiHidden
	if snap.Projector == state.PowerOn {
		hdmi = string(snap.HDMI)
	}
	return Status{
		CurtainPosition:    snap.Curtain.Label(),
		ProjectorStatus:    snap.Projector,
		HDMIStatus:         hdmi,
		LoggingPaused:      snap.LoggingPaused,
		AutoMode:           snap.AutoMode(),
		AIConnectionStatus: snap.AIConnected,
	}
}

// SensorData is the latest telemetry in the external field names. The
// Pi's own sensors face outdoors; the hub sits by the window indoors.
type SensorData struct {
	OutdoorTemp      *float64 `json:"outdoor_temp"`
	OutdoorHumidity  *float64 `json:"outdoor_humidity"`
	OutdoorPressure  *float64 `json:"outdoor_pressure"`
	OutdoorLight     *float64 `json:"outdoor_light"`
	IndoorTemp       *float64 `json:"indoor_temp"`
	IndoorHumidity   *float64 `json:"indoor_humidity"`
	WindowLightLevel *float64 `json:"window_light_level"`
	CurtainPosition  *int     `json:"curtain_position"`
}

func sensorDataFrom(t *state.Telemetry) SensorData {
	return SensorData{
		OutdoorTemp:      t.LocalTempC,
		OutdoorHumidity:  t.LocalHumidityPercent,
		OutdoorPressure:  t.LocalPressureHPa,
		OutdoorLight:     t.LocalLightLux,
		IndoorTemp:       t.HubTempC,
		IndoorHumidity:   t.HubHumidityPercent,
		WindowLightLevel: t.HubLightLevel,
		CurtainPosition:  t.CurtainPercent,
	}
}

// handleIndex serves the control panel and audits the first visit from
// each client address.
func (s *Server) handleIndex(assets http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		s.seenMu.Lock()
		_, seen := s.seenIPs[ip]
		s.seenIPs[ip] = struct{}{}
		s.seenMu.Unlock()

		if !seen && s.audit != nil {
			s.audit.Record(r.Context(), audit.SourceWeb, audit.ActionConnection, "connected to Web UI", ip)
		}
		assets.ServeHTTP(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusFrom(s.state.Snapshot()))
}

func (s *Server) handleSensorData(w http.ResponseWriter, _ *http.Request) {
	snap := s.state.Snapshot()
	if snap.Telemetry == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No data available yet."})
		return
	}
	writeJSON(w, http.StatusOK, sensorDataFrom(snap.Telemetry))
}

func (s *Server) handleWeather(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot().Weather)
}

// beep acknowledges a web command on the buzzer.
func (s *Server) beep(r *http.Request) {
	if s.beeper != nil {
		s.beeper.Beep(r.Context())
	}
}

// handleCommand queues a scene. The response does not wait for it to
// finish and always reports success; an unknown id is audited by the
// arbiter as a System error.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	s.beep(r)
	name := chi.URLParam(r, "scene")

	err := s.control.Manual(r.Context(), automation.SceneID(name), audit.SourceWeb, clientIP(r))
	switch {
	case errors.Is(err, automation.ErrSceneNotFound):
		s.logger.Warn("unknown scene requested", "scene", name, "remote", clientIP(r))
	case err != nil:
		s.logger.Error("scene trigger failed", "scene", name, "error", err)
	}

	writeSuccess(w, CommandResult{Message: fmt.Sprintf("Scene %s activated.", name)})
}

func (s *Server) handleLogging(w http.ResponseWriter, r *http.Request) {
	s.beep(r)

	var paused bool
	switch strings.ToLower(chi.URLParam(r, "action")) {
	case "on":
		paused = false
	case "off":
		paused = true
	default:
		writeCommandError(w, http.StatusBadRequest, "Invalid action")
		return
	}

	s.control.SetLogging(r.Context(), paused, audit.SourceWeb, clientIP(r))
	writeSuccess(w, CommandResult{LoggingPaused: &paused})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	s.beep(r)

	mode := state.Mode(strings.ToLower(chi.URLParam(r, "mode")))
	if mode != state.ModeAuto && mode != state.ModeManual {
		writeCommandError(w, http.StatusBadRequest, "Invalid mode")
		return
	}

	s.control.SetMode(r.Context(), mode, audit.SourceWeb, clientIP(r))
	auto := mode == state.ModeAuto
	writeSuccess(w, CommandResult{AutoMode: &auto})
}

func (s *Server) handleProjector(w http.ResponseWriter, r *http.Request) {
	s.beep(r)

	var on bool
	switch strings.ToLower(chi.URLParam(r, "action")) {
	case "on":
		on = true
	case "off":
		on = false
	default:
		writeCommandError(w, http.StatusBadRequest, "Invalid action")
		return
	}

	if err := s.control.Projector(r.Context(), on, audit.SourceWeb, clientIP(r)); err != nil {
		s.logger.Error("projector command failed", "on", on, "error", err)
		writeCommandError(w, http.StatusInternalServerError, "Projector command failed.")
		return
	}
	writeSuccess(w, CommandResult{})
}

func (s *Server) handleHDMI(w http.ResponseWriter, r *http.Request) {
	s.beep(r)

	var port int
	switch strings.ToLower(chi.URLParam(r, "port")) {
	case "hdmi1":
		port = 1
	case "hdmi2":
		port = 2
	default:
		writeCommandError(w, http.StatusBadRequest, "Invalid port")
		return
	}

	if err := s.control.HDMI(r.Context(), port, audit.SourceWeb, clientIP(r)); err != nil {
		s.logger.Error("hdmi switch failed", "port", port, "error", err)
		writeCommandError(w, http.StatusInternalServerError, "HDMI switch failed.")
		return
	}
	writeSuccess(w, CommandResult{})
}

// handleListAuditLogs returns audit trail entries, newest first.
//
// Query parameters:
//   - source: filter by source (Keypad, Web UI, AI, System, Weather)
//   - action_type: filter by action type (scene, mode_switch, error, ...)
//   - limit: max results (default 50, max 500)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Source:     q.Get("source"),
		ActionType: q.Get("action_type"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

const (
	defaultExportHours = 24
	maxExportHours     = 24 * 31
)

// handleTelemetryCSV exports stored telemetry in the sensor log layout.
//
// Query parameters:
//   - hours: how far back to go (default 24, max 744)
func (s *Server) handleTelemetryCSV(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "telemetry history not configured")
		return
	}

	hours := defaultExportHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "hours must be a positive integer")
			return
		}
		hours = min(n, maxExportHours)
	}

	rows, err := s.history.List(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour), 0)
	if err != nil {
		s.logger.Error("failed to list telemetry", "error", err)
		writeInternalError(w, "failed to list telemetry")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="combined_sensor_log.csv"`)
	if err := telemetry.WriteCSV(w, rows); err != nil {
		s.logger.Warn("telemetry export interrupted", "error", err)
	}
}
