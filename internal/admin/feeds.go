package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feeds.List())
}

type addFeedRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req addFeedRequest
	if err := readJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	f, err := s.feeds.Add(r.Context(), req.Name, req.URL, req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type removeFeedRequest struct {
	Identifier string `json:"identifier"`
}

// handleRemoveFeed accepts either a feed ID or its URL as identifier,
// since the admin console may not have the ID handy for a feed a user
// wants to remove by eye.
func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	var req removeFeedRequest
	if err := readJSON(r, &req); err != nil || req.Identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	if _, ok := s.feeds.Get(req.Identifier); ok {
		s.feeds.Remove(req.Identifier)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for _, f := range s.feeds.List() {
		if f.URL == req.Identifier {
			s.feeds.Remove(f.ID)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	writeError(w, http.StatusNotFound, "feed not found")
}

type patchFeedRequest struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Enabled  *bool   `json:"enabled"`
}

func (s *Server) handlePatchFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req patchFeedRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := s.feeds.Update(id, req.Name, req.Category, req.Enabled)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}
