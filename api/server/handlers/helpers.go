package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

// respondServiceError maps domain error kinds to HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		respondError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "error", err)
		respondError(w, "internal server error", http.StatusInternalServerError)
	}
}

func respondWAV(w http.ResponseWriter, audio []byte, cached bool) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	if _, err := w.Write(audio); err != nil {
		slog.Debug("wav write aborted", "error", err)
	}
}

func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

// voiceRequest is the wire shape for an inline voice configuration.
type voiceRequest struct {
	VoiceID      string   `json:"voice_id"`
	Provider     string   `json:"provider"`
	Speed        float64  `json:"speed"`
	Exaggeration *float64 `json:"exaggeration,omitempty"`
	CFGWeight    *float64 `json:"cfg_weight,omitempty"`
	Language     string   `json:"language,omitempty"`
}

func (v voiceRequest) toVoiceConfig() (provider.VoiceConfig, error) {
	prov, err := provider.Parse(v.Provider)
	if err != nil {
		return provider.VoiceConfig{}, err
	}
	if v.VoiceID == "" {
		return provider.VoiceConfig{}, errors.New("voice_id is required")
	}
	speed := v.Speed
	if speed <= 0 {
		speed = 1.0
	}
	vc := provider.VoiceConfig{VoiceID: v.VoiceID, Provider: prov, Speed: speed}
	if prov == provider.Chatterbox {
		vc.Chatterbox = &provider.ChatterboxOptions{
			Exaggeration: v.Exaggeration,
			CFGWeight:    v.CFGWeight,
			Language:     v.Language,
		}
	}
	return vc, nil
}
