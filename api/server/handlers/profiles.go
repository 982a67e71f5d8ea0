package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voxlearn/voxlearn/api/services"
)

// ProfilesHandler covers voice profile CRUD, samples, export/import, and
// module bindings.
type ProfilesHandler struct {
	profiles *services.ProfileService
}

func NewProfilesHandler(p *services.ProfileService) *ProfilesHandler {
	return &ProfilesHandler{profiles: p}
}

func (h *ProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusCreated)
}

func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	profiles, err := h.profiles.List(r.Context(), activeOnly)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"profiles": profiles}, http.StatusOK)
}

func (h *ProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusOK)
}

func (h *ProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusOK)
}

func (h *ProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	if err := h.profiles.Delete(r.Context(), chi.URLParam(r, "id"), hard); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfilesHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.SetDefault(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "default set"}, http.StatusOK)
}

func (h *ProfilesHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.Duplicate(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusCreated)
}

func (h *ProfilesHandler) Sample(w http.ResponseWriter, r *http.Request) {
	audio, err := h.profiles.SampleAudio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondWAV(w, audio, true)
}

func (h *ProfilesHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.profiles.Export(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="profile.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *ProfilesHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.Import(r.Context(), data)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusCreated)
}

func (h *ProfilesHandler) BindModule(w http.ResponseWriter, r *http.Request) {
	var req services.BindProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.ModuleID = chi.URLParam(r, "moduleID")

	binding, err := h.profiles.BindModule(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, binding, http.StatusCreated)
}

func (h *ProfilesHandler) ListBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.profiles.ListBindings(r.Context(), chi.URLParam(r, "moduleID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, map[string]any{"bindings": bindings}, http.StatusOK)
}

func (h *ProfilesHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.UnbindModule(r.Context(), chi.URLParam(r, "bindingID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfilesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	bindingContext := r.URL.Query().Get("context")

	profile, err := h.profiles.ResolveForModule(r.Context(), moduleID, bindingContext)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, profile, http.StatusOK)
}
