package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/voxlearn/voxlearn/api/services"
	"github.com/voxlearn/voxlearn/audio/cache"
	"github.com/voxlearn/voxlearn/audio/pool"
)

// SpeechHandler serves the live synthesis endpoint and pool/cache stats.
type SpeechHandler struct {
	speech *services.SpeechService
	pool   *pool.Pool
	cache  *cache.Store
}

func NewSpeechHandler(speech *services.SpeechService, p *pool.Pool, c *cache.Store) *SpeechHandler {
	return &SpeechHandler{speech: speech, pool: p, cache: c}
}

func (h *SpeechHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
		voiceRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, "text is required", http.StatusBadRequest)
		return
	}
	voice, err := req.toVoiceConfig()
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.speech.Speak(r.Context(), req.Text, voice)
	if err != nil {
		respondError(w, "synthesis failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	respondWAV(w, result.Audio, result.Cached)
}

func (h *SpeechHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"pool":  h.pool.Stats(),
		"cache": h.cache.Stats(),
	}, http.StatusOK)
}
