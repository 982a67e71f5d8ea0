package handlers

import (
	"net/http"

	"github.com/voxlearn/voxlearn/audio/cache"
)

type CacheHandler struct {
	cache *cache.Store
}

func NewCacheHandler(c *cache.Store) *CacheHandler {
	return &CacheHandler{cache: c}
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.cache.Stats(), http.StatusOK)
}

func (h *CacheHandler) EvictExpired(w http.ResponseWriter, r *http.Request) {
	evicted := h.cache.EvictExpired()
	respondJSON(w, map[string]int{"evicted": evicted}, http.StatusOK)
}

func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(); err != nil {
		respondError(w, "failed to clear cache", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]string{"status": "cleared"}, http.StatusOK)
}
