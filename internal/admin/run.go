package admin

import (
	"context"
	"net/http"

	"briefloom/internal/agents"
)

// runRequest is the POST /api/run body. All fields are optional.
type runRequest struct {
	Limit       int  `json:"limit"`
	DryRun      bool `json:"dry_run"`
	Concurrency int  `json:"concurrency"`
}

// handleRun triggers one fetch-analyze cycle. Rejects with 400 if one is
// already in flight, per the single in-flight run invariant.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		writeError(w, http.StatusNotImplemented, "run is not configured")
		return
	}

	var req runRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.tryStartFetch(agents.ModeStandard) {
		writeError(w, http.StatusBadRequest, "a run is already in progress")
		return
	}

	opts := RunOptions{Limit: req.Limit, DryRun: req.DryRun, Concurrency: req.Concurrency}
	go func() {
		defer s.finishFetch()
		if err := s.run(context.Background(), opts); err != nil {
			s.logger.Error("triggered run failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// handleDigest triggers one digest assembly-and-send cycle. Independent
// in-flight guard from handleRun: a digest send can be triggered while a
// fetch cycle is running, and vice versa, but not twice concurrently.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	if s.digest == nil {
		writeError(w, http.StatusNotImplemented, "digest is not configured")
		return
	}

	if !s.tryStartDigest() {
		writeError(w, http.StatusBadRequest, "a digest send is already in progress")
		return
	}

	go func() {
		defer s.finishDigest()
		if err := s.digest(context.Background()); err != nil {
			s.logger.Error("triggered digest failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleProgressState(w http.ResponseWriter, r *http.Request) {
	s.progressMu.Lock()
	p := s.progress
	s.progressMu.Unlock()
	writeJSON(w, http.StatusOK, p)
}
