package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

type FolderHandler struct {
	store core.Store
}

func NewFolderHandler(store core.Store) *FolderHandler {
	return &FolderHandler{store: store}
}

type registerFolderRequest struct {
	FolderID    string `json:"folder_id"`
	FolderName  string `json:"folder_name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

// RegisterFolder creates or updates a folder registration. New folders are
// active unless the request says otherwise.
func (h *FolderHandler) RegisterFolder(w http.ResponseWriter, r *http.Request) {
	var req registerFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FolderID == "" || req.FolderName == "" {
		http.Error(w, "folder_id and folder_name are required", http.StatusBadRequest)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	err := h.store.UpsertFolder(r.Context(), &models.DriveFolder{
		FolderID:    req.FolderID,
		FolderName:  req.FolderName,
		Description: req.Description,
		IsActive:    active,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	folder, err := h.store.GetFolder(r.Context(), req.FolderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (h *FolderHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.store.ListFolders(r.Context(), queryBool(r, "active"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (h *FolderHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folderID := chi.URLParam(r, "folderID")

	folder, err := h.store.GetFolder(r.Context(), folderID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "folder not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (h *FolderHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	folderID := chi.URLParam(r, "folderID")

	switch err := h.store.DeleteFolder(r.Context(), folderID); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "folder not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
