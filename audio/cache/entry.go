package cache

import (
	"time"

	"github.com/voxlearn/voxlearn/audio/provider"
)

const DefaultTTL = 30 * 24 * time.Hour

// Entry is the index record for one cached audio file.
type Entry struct {
	Hash            string      `json:"hash"`
	Provider        provider.ID `json:"provider"`
	VoiceID         string      `json:"voice_id"`
	Path            string      `json:"path"`
	SizeBytes       int64       `json:"size_bytes"`
	SampleRate      int         `json:"sample_rate"`
	DurationSeconds float64     `json:"duration_seconds"`
	CreatedAt       time.Time   `json:"created_at"`
	LastAccessedAt  time.Time   `json:"last_accessed_at"`
	AccessCount     int64       `json:"access_count"`
	TTLSeconds      int64       `json:"ttl_seconds"`
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

func (e *Entry) touch(now time.Time) {
	e.LastAccessedAt = now
	e.AccessCount++
}

// Stats is a point-in-time snapshot of cache counters. Hit/miss/eviction and
// prefetch counters are lifetime values that survive restarts via the index.
type Stats struct {
	Entries        int            `json:"entries"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	MaxSizeBytes   int64          `json:"max_size_bytes"`
	Hits           int64          `json:"hits"`
	Misses         int64          `json:"misses"`
	Evictions      int64          `json:"eviction_count"`
	PrefetchCount  int64          `json:"prefetch_count"`
	PrefetchHits   int64          `json:"prefetch_hits"`
	ProviderCounts map[string]int `json:"provider_counts"`
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
