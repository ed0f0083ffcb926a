package admin

import (
	"net/http"

	"briefloom/internal/sysmetrics"
)

// statusResponse is the GET /api/status body.
type statusResponse struct {
	Running bool           `json:"running"`
	Mode    string         `json:"mode,omitempty"`
	Stats   map[string]any `json:"stats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running, mode := s.isRunning()

	stats := map[string]any{
		"cpu_percent":   sysmetrics.CPUPercent(),
		"memory_bytes":  sysmetrics.MemoryInuse(),
	}
	if s.scheduler != nil {
		stats["jobs"] = s.scheduler.Jobs()
	}
	if s.statsFn != nil {
		extra, err := s.statsFn(r.Context())
		if err != nil {
			s.logger.Warn("stats provider failed", "error", err)
		}
		for k, v := range extra {
			stats[k] = v
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Running: running,
		Mode:    string(mode),
		Stats:   stats,
	})
}
