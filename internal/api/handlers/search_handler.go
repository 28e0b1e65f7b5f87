package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/drivevectorai/backend/internal/core"
)

type SearchHandler struct {
	store    core.Store
	embedder core.Embedder
}

func NewSearchHandler(store core.Store, embedder core.Embedder) *SearchHandler {
	return &SearchHandler{store: store, embedder: embedder}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Search embeds the query text and returns completed documents ranked by
// cosine similarity.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 50 {
		req.Limit = 50
	}

	vec, err := h.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		http.Error(w, "embedding query failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	hits, err := h.store.SearchDocuments(r.Context(), vec, req.Limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits, "count": len(hits)})
}
