package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
	"github.com/drivevectorai/backend/internal/scan"
)

type ScanHandler struct {
	scanner *scan.Scanner
	store   core.Store
}

func NewScanHandler(scanner *scan.Scanner, store core.Store) *ScanHandler {
	return &ScanHandler{scanner: scanner, store: store}
}

type startScanRequest struct {
	FolderID string `json:"folder_id"`
	ScanType string `json:"scan_type"`
}

// StartScan creates the session and runs the scan in the background. The 202
// response carries the session id to poll.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FolderID == "" {
		http.Error(w, "folder_id is required", http.StatusBadRequest)
		return
	}
	if req.ScanType == "" {
		req.ScanType = "full"
	}
	if req.ScanType != "full" && req.ScanType != "incremental" {
		http.Error(w, "scan_type must be full or incremental", http.StatusBadRequest)
		return
	}

	sess, err := h.scanner.Start(r.Context(), req.FolderID, req.ScanType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

type scanSessionResponse struct {
	*models.ScanSession
	CompletionPercentage float64 `json:"completion_percentage"`
}

func (h *ScanHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.store.GetScanSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "scan session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scanSessionResponse{sess, sess.CompletionPercentage()})
}

func (h *ScanHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	entries, err := h.store.ListScanProgress(r.Context(), sessionID, queryInt(r, "limit", 100))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *ScanHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	folderID := r.URL.Query().Get("folder_id")

	sessions, err := h.store.ListScanSessions(r.Context(), folderID, queryInt(r, "limit", 20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]scanSessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, scanSessionResponse{&sessions[i], sessions[i].CompletionPercentage()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}
