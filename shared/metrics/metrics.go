// Package metrics defines the Prometheus metrics shared by the audio pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxlearn_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxlearn_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	TTSRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxlearn_tts_requests_total",
		Help: "Total upstream TTS requests by provider and priority class",
	}, []string{"provider", "priority", "status"})

	TTSRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxlearn_tts_request_duration_seconds",
		Help:    "Upstream TTS synthesis duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})

	TTSInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voxlearn_tts_in_flight",
		Help: "Upstream TTS requests currently in flight per priority class",
	}, []string{"priority"})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxlearn_audio_cache_hits_total",
		Help: "Audio cache hits",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxlearn_audio_cache_misses_total",
		Help: "Audio cache misses",
	})

	CacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxlearn_audio_cache_evictions_total",
		Help: "Audio cache entries evicted (LRU or TTL)",
	})

	CacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxlearn_audio_cache_size_bytes",
		Help: "Total bytes held by the audio cache",
	})

	PregenItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxlearn_pregen_items_total",
		Help: "Pre-generation job items reaching a terminal state",
	}, []string{"status"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxlearn_sessions_active",
		Help: "Number of active conversation sessions",
	})
)
