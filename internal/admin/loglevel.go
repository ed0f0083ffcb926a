package admin

import (
	"log/slog"
	"net/http"
)

type logLevelRequest struct {
	Component string `json:"component"`
	Level     string `json:"level"` // "", "debug", "info", "warn", "error"; "" clears the override
}

type logLevelResponse struct {
	Component string `json:"component"`
	Level     string `json:"level"`
}

// handlePatchLogLevel raises or lowers one component's minimum log level at
// runtime, or clears its override (reverting to the default) when level is
// the empty string.
func (s *Server) handlePatchLogLevel(w http.ResponseWriter, r *http.Request) {
	if s.levelControl == nil {
		writeError(w, http.StatusNotImplemented, "log level control not configured")
		return
	}

	var req logLevelRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Component == "" {
		writeError(w, http.StatusBadRequest, "component is required")
		return
	}

	if req.Level == "" {
		s.levelControl.ClearLevel(req.Component)
		writeJSON(w, http.StatusOK, logLevelResponse{Component: req.Component, Level: s.levelControl.Level(req.Component).String()})
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(req.Level)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid level: "+req.Level)
		return
	}
	s.levelControl.SetLevel(req.Component, level)
	writeJSON(w, http.StatusOK, logLevelResponse{Component: req.Component, Level: level.String()})
}
