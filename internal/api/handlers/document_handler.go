package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

type DocumentHandler struct {
	store core.Store
}

func NewDocumentHandler(store core.Store) *DocumentHandler {
	return &DocumentHandler{store: store}
}

// ListDocuments returns a filtered page of documents plus the total count
// matching the filter.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	f := models.DocumentFilter{
		Status:       r.URL.Query().Get("status"),
		FolderID:     r.URL.Query().Get("folder_id"),
		ResourceType: r.URL.Query().Get("resource_type"),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	}

	docs, err := h.store.ListDocuments(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	total, err := h.store.CountDocuments(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": total})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	driveFileID := chi.URLParam(r, "driveFileID")

	doc, err := h.store.GetDocument(r.Context(), driveFileID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	driveFileID := chi.URLParam(r, "driveFileID")

	switch err := h.store.DeleteDocument(r.Context(), driveFileID); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "document not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *DocumentHandler) GetDocumentLogs(w http.ResponseWriter, r *http.Request) {
	driveFileID := chi.URLParam(r, "driveFileID")

	logs, err := h.store.ListDocumentLogs(r.Context(), driveFileID, queryInt(r, "limit", 100))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *DocumentHandler) GetDocumentVersions(w http.ResponseWriter, r *http.Request) {
	driveFileID := chi.URLParam(r, "driveFileID")

	versions, err := h.store.ListDocumentVersions(r.Context(), driveFileID, queryInt(r, "limit", 20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}
