package handlers

import (
	"context"
	"net/http"
	"time"
)

type HealthHandler struct {
	dbPing   func(context.Context) error
	upstream map[string]func(context.Context) error
}

type HealthHandlerConfig struct {
	DBPing func(context.Context) error
	// Upstream maps a TTS backend name to its readiness probe.
	Upstream map[string]func(context.Context) error
}

func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	return &HealthHandler{dbPing: cfg.DBPing, upstream: cfg.Upstream}
}

type healthComponent struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms,omitempty"`
}

type healthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]healthComponent `json:"components"`
}

// Health checks every dependency. TTS backends only degrade the status:
// cached audio still serves without them.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := healthStatus{
		Timestamp:  time.Now().UTC(),
		Status:     "healthy",
		Components: make(map[string]healthComponent),
	}

	if h.dbPing != nil {
		start := time.Now()
		err := h.dbPing(ctx)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			status.Components["database"] = healthComponent{Status: "unhealthy", Message: err.Error(), Latency: latency}
			status.Status = "unhealthy"
		} else {
			status.Components["database"] = healthComponent{Status: "healthy", Latency: latency}
		}
	}

	for name, probe := range h.upstream {
		start := time.Now()
		err := probe(ctx)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			status.Components[name] = healthComponent{Status: "unhealthy", Message: err.Error(), Latency: latency}
			if status.Status == "healthy" {
				status.Status = "degraded"
			}
		} else {
			status.Components[name] = healthComponent{Status: "healthy", Latency: latency}
		}
	}

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	respondJSON(w, status, httpStatus)
}

// Readiness is the lightweight load balancer check: database only.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.dbPing != nil {
		if err := h.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
