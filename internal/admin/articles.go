package admin

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultArticleListLimit = 50

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit := defaultArticleListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	arts, err := s.articles.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list articles: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, arts)
}

// handleDeleteArticle deletes an article identified by its base64url-encoded
// URL in the {id} path segment (Article's identity is its URL, which
// routinely contains slashes that cannot survive as a literal path
// segment).
func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	articleURL := string(raw)
	if err := s.articles.Delete(r.Context(), articleURL); err != nil {
		writeError(w, http.StatusInternalServerError, "delete article: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
