package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voxlearn/voxlearn/audio/kb"
)

// KBHandler exposes the knowledge-bowl audio store: bulk pre-generation per
// module, segment retrieval, coverage checks, and the shared feedback clips.
type KBHandler struct {
	kb *kb.Manager
}

func NewKBHandler(m *kb.Manager) *KBHandler {
	return &KBHandler{kb: m}
}

func (h *KBHandler) PrefetchModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	var req struct {
		Content         kb.ModuleContent `json:"content"`
		ForceRegenerate bool             `json:"force_regenerate"`
		voiceRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Content.Questions) == 0 {
		respondError(w, "content.questions must not be empty", http.StatusBadRequest)
		return
	}
	voice, err := req.toVoiceConfig()
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Generation outlives the request; CancelModule and the coverage
	// endpoint are the control surface.
	go func() {
		result, err := h.kb.PrefetchModule(context.Background(), moduleID, req.Content, voice, req.ForceRegenerate)
		if err != nil {
			slog.Error("kb prefetch failed", "module_id", moduleID, "error", err)
			return
		}
		slog.Info("kb prefetch finished",
			"module_id", moduleID,
			"generated", result.Generated,
			"reused", result.Reused,
			"failed", result.Failed,
			"cancelled", result.Cancelled)
	}()

	respondJSON(w, map[string]string{"status": "started", "module_id": moduleID}, http.StatusAccepted)
}

func (h *KBHandler) CancelModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	if !h.kb.CancelModule(moduleID) {
		respondError(w, "no active generation for module", http.StatusNotFound)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"}, http.StatusOK)
}

func (h *KBHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	questionID := chi.URLParam(r, "questionID")
	segment := kb.SegmentType(chi.URLParam(r, "segment"))
	hintIndex := parseIntQuery(r, "hint", 0)

	audio, err := h.kb.GetAudio(moduleID, questionID, segment, hintIndex)
	if err != nil {
		respondKBError(w, err)
		return
	}
	respondWAV(w, audio, true)
}

func (h *KBHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	var content kb.ModuleContent
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	status, err := h.kb.GetCoverageStatus(moduleID, content)
	if err != nil {
		respondKBError(w, err)
		return
	}
	respondJSON(w, status, http.StatusOK)
}

func (h *KBHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	manifest, err := h.kb.Manifest(moduleID)
	if err != nil {
		respondKBError(w, err)
		return
	}
	respondJSON(w, manifest, http.StatusOK)
}

func (h *KBHandler) GetFeedbackAudio(w http.ResponseWriter, r *http.Request) {
	kind := kb.FeedbackType(chi.URLParam(r, "kind"))
	audio, err := h.kb.GetFeedbackAudio(kind)
	if err != nil {
		respondKBError(w, err)
		return
	}
	respondWAV(w, audio, true)
}

func (h *KBHandler) GenerateFeedbackAudio(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	voice, err := req.toVoiceConfig()
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.kb.GenerateFeedbackAudio(r.Context(), voice); err != nil {
		respondError(w, "feedback generation failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, map[string]string{"status": "generated"}, http.StatusOK)
}

func respondKBError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kb.ErrInvalidPath):
		respondError(w, "invalid module, question, or segment identifier", http.StatusBadRequest)
	case errors.Is(err, fs.ErrNotExist):
		respondError(w, "audio not found", http.StatusNotFound)
	default:
		slog.Error("kb request failed", "error", err)
		respondError(w, "internal server error", http.StatusInternalServerError)
	}
}
