package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/api/services"
	"github.com/voxlearn/voxlearn/api/store"
)

// JobsHandler drives the batch pre-generation engine.
type JobsHandler struct {
	engine *services.PregenEngine
	store  *store.Store
}

func NewJobsHandler(engine *services.PregenEngine, st *store.Store) *JobsHandler {
	return &JobsHandler{engine: engine, store: st}
}

func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.engine.CreateJob(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, job, http.StatusCreated)
}

func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(r.URL.Query().Get("status"))
	jobs, err := h.store.ListJobs(r.Context(), status)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"jobs": jobs}, http.StatusOK)
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, job, http.StatusOK)
}

func (h *JobsHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StartJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "started"}, http.StatusOK)
}

func (h *JobsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.PauseJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "pausing"}, http.StatusOK)
}

func (h *JobsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResumeJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "resumed"}, http.StatusOK)
}

func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CancelJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"}, http.StatusOK)
}

func (h *JobsHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	reset, err := h.engine.RetryFailedItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"status": "retrying", "reset_items": reset}, http.StatusOK)
}

func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobsHandler) Items(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListJobItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"items": items}, http.StatusOK)
}

func (h *JobsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.engine.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, progress, http.StatusOK)
}
