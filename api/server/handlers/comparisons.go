package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voxlearn/voxlearn/api/services"
)

// ComparisonsHandler runs A/B voice comparison sessions.
type ComparisonsHandler struct {
	comparisons *services.ComparisonService
}

func NewComparisonsHandler(c *services.ComparisonService) *ComparisonsHandler {
	return &ComparisonsHandler{comparisons: c}
}

func (h *ComparisonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateComparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.comparisons.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, session, http.StatusCreated)
}

func (h *ComparisonsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.comparisons.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"sessions": sessions}, http.StatusOK)
}

func (h *ComparisonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.comparisons.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, session, http.StatusOK)
}

func (h *ComparisonsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an absent one means generate what is missing.
	var req struct {
		Regenerate bool `json:"regenerate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.comparisons.Generate(r.Context(), chi.URLParam(r, "id"), req.Regenerate); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "generating"}, http.StatusAccepted)
}

func (h *ComparisonsHandler) Variants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.comparisons.Variants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"variants": variants}, http.StatusOK)
}

func (h *ComparisonsHandler) VariantAudio(w http.ResponseWriter, r *http.Request) {
	audio, err := h.comparisons.VariantAudio(r.Context(), chi.URLParam(r, "variantID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondWAV(w, audio, true)
}

func (h *ComparisonsHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating int    `json:"rating"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rating, err := h.comparisons.Rate(r.Context(), chi.URLParam(r, "variantID"), req.Rating, req.Notes)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, rating, http.StatusOK)
}

func (h *ComparisonsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.comparisons.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"configs": summary}, http.StatusOK)
}

func (h *ComparisonsHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileName string `json:"profile_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.comparisons.CreateProfileFromVariant(r.Context(), chi.URLParam(r, "variantID"), req.ProfileName)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusCreated)
}

func (h *ComparisonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.comparisons.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
