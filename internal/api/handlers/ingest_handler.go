package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/ingest"
)

type IngestHandler struct {
	orch *ingest.Orchestrator
}

func NewIngestHandler(orch *ingest.Orchestrator) *IngestHandler {
	return &IngestHandler{orch: orch}
}

type startIngestionRequest struct {
	FolderID string `json:"folder_id"`
}

// StartIngestion enumerates the folder, creates the job and enqueues one
// task per file. Responds 202 with the job before any file is processed.
func (h *IngestHandler) StartIngestion(w http.ResponseWriter, r *http.Request) {
	var req startIngestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FolderID == "" {
		http.Error(w, "folder_id is required", http.StatusBadRequest)
		return
	}

	job, err := h.orch.StartIngestion(r.Context(), req.FolderID)
	if err != nil {
		if errors.Is(err, core.ErrNoFilesFound) {
			http.Error(w, "no files found in folder", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// Reprocess resets a single document and queues it outside any job.
func (h *IngestHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	driveFileID := chi.URLParam(r, "driveFileID")

	switch err := h.orch.Reprocess(r.Context(), driveFileID); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"drive_file_id": driveFileID,
			"status":        "queued",
		})
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "document not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type reprocessBatchRequest struct {
	DriveFileIDs []string `json:"drive_file_ids"`
}

// ReprocessBatch queues many documents and reports the outcome per id.
func (h *IngestHandler) ReprocessBatch(w http.ResponseWriter, r *http.Request) {
	var req reprocessBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.DriveFileIDs) == 0 {
		http.Error(w, "drive_file_ids is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.orch.ReprocessBatch(r.Context(), req.DriveFileIDs))
}
