package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dotside-studios/cgm-agent/buildinfo"
	"github.com/dotside-studios/cgm-agent/protocol"
	"github.com/dotside-studios/cgm-agent/sensor"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: message, ErrorCode: code})
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   buildinfo.FullVersion(),
	})
}

// GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.config.Session == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.ErrCodeNoSensorData, "no session configured")
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewSessionStatus(s.config.Session.Status()))
}

// GET /api/v1/sensor
func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	if s.config.Session == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.ErrCodeNoSensorData, "no session configured")
		return
	}
	info, ok := s.config.Session.SensorInfo()
	if !ok {
		writeError(w, http.StatusNotFound, protocol.ErrCodeNoSensorData, "sensor has not been scanned")
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewSensorInfo(info))
}

// GET /api/v1/readings[?since=RFC3339][&limit=N]
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if s.config.Session == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.ErrCodeNoSensorData, "no session configured")
		return
	}

	window := s.config.Session.Window()
	q := r.URL.Query()
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, "since must be an RFC3339 timestamp")
			return
		}
		window = window.Since(since)
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(window) {
			window = window[len(window)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, protocol.ReadingsResponse{
		SerialNumber: s.config.Session.Status().Serial,
		Count:        len(window),
		Readings:     protocol.NewReadings(window),
	})
}

// GET /api/v1/readings/latest
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	var (
		latest sensor.GlucoseReading
		ok     bool
	)
	if s.config.Session != nil {
		latest, ok = s.config.Session.Window().Latest()
	}
	if !ok {
		writeError(w, http.StatusNotFound, protocol.ErrCodeNoSensorData, "no readings yet")
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewReading(latest))
}

// GET /api/v1/logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.config.History == nil {
		writeError(w, http.StatusNotFound, protocol.ErrCodeInvalidRequest, "log history disabled")
		return
	}
	writeJSON(w, http.StatusOK, protocol.LogsResponse{
		Capacity: s.config.History.Capacity(),
		Entries:  s.config.History.Entries(),
	})
}
