package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

type JobHandler struct {
	store core.Store
}

func NewJobHandler(store core.Store) *JobHandler {
	return &JobHandler{store: store}
}

type jobResponse struct {
	*models.IngestionJob
	CompletionPercentage float64 `json:"completion_percentage"`
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.store.GetIngestionJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{job, job.CompletionPercentage()})
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	jobs, err := h.store.ListIngestionJobs(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobResponse{&jobs[i], jobs[i].CompletionPercentage()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (h *JobHandler) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	logs, err := h.store.ListJobLogs(r.Context(), jobID, queryInt(r, "limit", 100))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
