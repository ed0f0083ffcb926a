package admin

import "net/http"

// handleWSLogs streams every log record emitted through s.LogHandler() to
// the subscriber as it happens. The service's process logger does not write
// through that handler, so its records do not appear here.
func (s *Server) handleWSLogs(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, s.logHub)
}

// handleWSProgress streams ProgressState snapshots as PublishProgress is
// called by the running pipeline.
func (s *Server) handleWSProgress(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, s.progressHub)
}

// serveWS enforces the combined /ws/logs + /ws/progress connection cap
// before handing the request to hub.serve, rejecting anything past it.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, h *hub) {
	for {
		cur := s.wsConns.Load()
		if cur >= s.maxConns {
			writeError(w, http.StatusServiceUnavailable, "too many websocket connections")
			return
		}
		if s.wsConns.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	defer s.wsConns.Add(-1)

	h.serve(w, r)
}
