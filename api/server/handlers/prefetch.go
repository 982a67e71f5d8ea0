package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voxlearn/voxlearn/audio/prefetch"
)

type PrefetchHandler struct {
	prefetcher *prefetch.Prefetcher
}

func NewPrefetchHandler(p *prefetch.Prefetcher) *PrefetchHandler {
	return &PrefetchHandler{prefetcher: p}
}

func (h *PrefetchHandler) PrefetchTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurriculumID string   `json:"curriculum_id"`
		TopicID      string   `json:"topic_id"`
		Segments     []string `json:"segments"`
		voiceRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CurriculumID == "" || req.TopicID == "" {
		respondError(w, "curriculum_id and topic_id are required", http.StatusBadRequest)
		return
	}
	voice, err := req.toVoiceConfig()
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID := h.prefetcher.PrefetchTopic(req.CurriculumID, req.TopicID, req.Segments, voice)
	respondJSON(w, map[string]string{"job_id": jobID}, http.StatusAccepted)
}

func (h *PrefetchHandler) PrefetchUpcoming(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentIndex int      `json:"current_index"`
		Segments     []string `json:"segments"`
		Lookahead    int      `json:"lookahead"`
		voiceRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	voice, err := req.toVoiceConfig()
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.prefetcher.PrefetchUpcoming(req.CurrentIndex, req.Segments, req.Lookahead, voice)
	respondJSON(w, map[string]string{"status": "scheduled"}, http.StatusAccepted)
}

func (h *PrefetchHandler) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	progress, ok := h.prefetcher.Progress(jobID)
	if !ok {
		respondError(w, "prefetch job not found", http.StatusNotFound)
		return
	}
	respondJSON(w, progress, http.StatusOK)
}

func (h *PrefetchHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"jobs": h.prefetcher.AllJobs()}, http.StatusOK)
}

func (h *PrefetchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if !h.prefetcher.Cancel(jobID) {
		respondError(w, "prefetch job not found or already finished", http.StatusNotFound)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"}, http.StatusOK)
}
