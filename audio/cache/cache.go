// Package cache implements the on-disk audio cache shared by the live TTS
// path, the prefetcher, and the batch generators. Audio files are stored
// under 256 hash-prefix buckets with a versioned JSON index that is written
// atomically (temp file + rename).
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/voxlearn/voxlearn/shared/metrics"
)

const (
	indexVersion      = 1
	indexFileName     = "index.json"
	audioDirName      = "audio"
	flushEveryNPuts   = 10
	lruTargetFraction = 0.8
)

const DefaultMaxSize = 2 << 30 // 2 GiB

// Store is the durable, bounded-size audio cache. All index mutations are
// serialized through one mutex; file I/O happens outside the lock.
type Store struct {
	dir        string
	maxSize    int64
	defaultTTL time.Duration

	mu             sync.Mutex
	entries        map[string]*Entry
	totalSize      int64
	providerCounts map[string]int

	// Lifetime counters, persisted in the index.
	hits          int64
	misses        int64
	evictions     int64
	prefetchCount int64
	prefetchHits  int64

	putsSinceFlush int
}

type Option func(*Store)

func WithMaxSize(bytes int64) Option {
	return func(s *Store) { s.maxSize = bytes }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) { s.defaultTTL = ttl }
}

func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:            dir,
		maxSize:        DefaultMaxSize,
		defaultTTL:     DefaultTTL,
		entries:        make(map[string]*Entry),
		providerCounts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize creates the directory layout, loads the index if present, and
// evicts anything that expired while the process was down. Idempotent.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	for i := 0; i < 256; i++ {
		bucket := filepath.Join(s.dir, audioDirName, fmt.Sprintf("%02x", i))
		if err := os.MkdirAll(bucket, 0o755); err != nil {
			return fmt.Errorf("create cache bucket: %w", err)
		}
	}

	if err := s.loadIndex(); err != nil {
		// A malformed index is not worth crashing over; start empty.
		slog.Warn("audio cache: index unreadable, starting empty", "error", err)
	}
	s.EvictExpired()

	s.mu.Lock()
	entries, size := len(s.entries), s.totalSize
	s.mu.Unlock()
	slog.Info("audio cache initialized",
		"dir", s.dir,
		"entries", entries,
		"size", humanize.IBytes(uint64(size)),
		"max_size", humanize.IBytes(uint64(s.maxSize)))
	return nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *Store) audioPath(hash string) string {
	return filepath.Join(s.dir, audioDirName, hash[:2], hash+".wav")
}

// Get returns the cached audio bytes for key, or ok=false on a miss.
// Expired entries and entries whose file has vanished are purged.
func (s *Store) Get(key Key) ([]byte, bool) {
	audio, _, ok := s.GetEntry(key)
	return audio, ok
}

// GetEntry is Get plus a snapshot of the index record, for callers that need
// the stored duration or sample rate of the hit.
func (s *Store) GetEntry(key Key) ([]byte, Entry, bool) {
	hash := key.Hash()
	now := time.Now()

	s.mu.Lock()
	entry, found := s.entries[hash]
	if !found {
		s.misses++
		s.mu.Unlock()
		metrics.CacheMissesTotal.Inc()
		return nil, Entry{}, false
	}
	if entry.expired(now) {
		s.removeLocked(hash, false)
		s.misses++
		s.mu.Unlock()
		metrics.CacheMissesTotal.Inc()
		return nil, Entry{}, false
	}
	entry.touch(now)
	snapshot := *entry
	s.hits++
	s.mu.Unlock()

	audio, err := os.ReadFile(snapshot.Path)
	if err != nil {
		// The hit was already counted, but a vanished or unreadable file
		// is a miss in practice; purge the stale entry and correct the
		// counters under the same lock.
		s.mu.Lock()
		if _, still := s.entries[hash]; still {
			s.removeLocked(hash, false)
		}
		s.hits--
		s.misses++
		s.mu.Unlock()
		metrics.CacheMissesTotal.Inc()
		slog.Warn("audio cache: entry file unreadable, purged", "hash", hash, "error", err)
		return nil, Entry{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return audio, snapshot, true
}

// Has reports whether a non-expired entry exists for key, purging it if the
// TTL has lapsed. It does not touch access time or hit/miss counters.
func (s *Store) Has(key Key) bool {
	hash := key.Hash()
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.entries[hash]
	if !found {
		return false
	}
	if entry.expired(time.Now()) {
		s.removeLocked(hash, false)
		return false
	}
	return true
}

// Put stores audio under key, replacing any prior entry for the same hash.
// The file is written before the index is updated so a crash can never index
// audio that does not exist.
func (s *Store) Put(key Key, audio []byte, sampleRate int, duration float64, ttl ...time.Duration) error {
	hash := key.Hash()
	path := s.audioPath(hash)

	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	entryTTL := s.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		entryTTL = ttl[0]
	}

	now := time.Now()
	entry := &Entry{
		Hash:            hash,
		Provider:        key.Provider,
		VoiceID:         key.VoiceID,
		Path:            path,
		SizeBytes:       int64(len(audio)),
		SampleRate:      sampleRate,
		DurationSeconds: duration,
		CreatedAt:       now,
		LastAccessedAt:  now,
		TTLSeconds:      int64(entryTTL.Seconds()),
	}

	s.mu.Lock()
	if prior, found := s.entries[hash]; found {
		s.totalSize -= prior.SizeBytes
		s.providerCounts[string(prior.Provider)]--
	}
	s.entries[hash] = entry
	s.totalSize += entry.SizeBytes
	s.providerCounts[string(entry.Provider)]++
	overLimit := s.totalSize > s.maxSize
	s.putsSinceFlush++
	flush := s.putsSinceFlush >= flushEveryNPuts
	if flush {
		s.putsSinceFlush = 0
	}
	size := s.totalSize
	s.mu.Unlock()

	metrics.CacheSizeBytes.Set(float64(size))

	if overLimit {
		s.EvictLRU(0)
	}
	if flush {
		go func() {
			if err := s.saveIndex(); err != nil {
				slog.Error("audio cache: async index flush failed", "error", err)
			}
		}()
	}
	return nil
}

// Delete removes the entry and its file. Returns true if an entry existed.
func (s *Store) Delete(key Key) bool {
	hash := key.Hash()
	s.mu.Lock()
	_, found := s.entries[hash]
	if found {
		s.removeLocked(hash, false)
	}
	s.mu.Unlock()
	if found {
		if err := os.Remove(s.audioPath(hash)); err != nil && !os.IsNotExist(err) {
			slog.Warn("audio cache: delete file failed", "hash", hash, "error", err)
		}
	}
	return found
}

// EvictExpired removes every entry past its TTL and persists the index.
func (s *Store) EvictExpired() int {
	now := time.Now()

	s.mu.Lock()
	var victims []string
	for hash, entry := range s.entries {
		if entry.expired(now) {
			victims = append(victims, hash)
		}
	}
	for _, hash := range victims {
		s.removeLocked(hash, true)
	}
	s.mu.Unlock()

	for _, hash := range victims {
		if err := os.Remove(s.audioPath(hash)); err != nil && !os.IsNotExist(err) {
			slog.Warn("audio cache: evict file failed", "hash", hash, "error", err)
		}
	}
	if len(victims) > 0 {
		metrics.CacheEvictionsTotal.Add(float64(len(victims)))
		if err := s.saveIndex(); err != nil {
			slog.Error("audio cache: index save after expiry failed", "error", err)
		}
		slog.Info("audio cache: expired entries evicted", "count", len(victims))
	}
	return len(victims)
}

// EvictLRU removes least-recently-accessed entries until the total size is at
// or below targetBytes. A target of 0 means 80% of the configured max.
func (s *Store) EvictLRU(targetBytes int64) int {
	if targetBytes <= 0 {
		targetBytes = int64(float64(s.maxSize) * lruTargetFraction)
	}

	s.mu.Lock()
	if s.totalSize <= targetBytes {
		s.mu.Unlock()
		return 0
	}
	ordered := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LastAccessedAt.Before(ordered[j].LastAccessedAt)
	})

	var victims []string
	for _, entry := range ordered {
		if s.totalSize <= targetBytes {
			break
		}
		victims = append(victims, entry.Hash)
		s.removeLocked(entry.Hash, true)
	}
	size := s.totalSize
	s.mu.Unlock()

	for _, hash := range victims {
		if err := os.Remove(s.audioPath(hash)); err != nil && !os.IsNotExist(err) {
			slog.Warn("audio cache: evict file failed", "hash", hash, "error", err)
		}
	}
	metrics.CacheEvictionsTotal.Add(float64(len(victims)))
	metrics.CacheSizeBytes.Set(float64(size))
	if err := s.saveIndex(); err != nil {
		slog.Error("audio cache: index save after eviction failed", "error", err)
	}
	slog.Info("audio cache: LRU eviction", "evicted", len(victims), "size", humanize.IBytes(uint64(size)))
	return len(victims)
}

// Clear removes all entries and files. Lifetime hit/miss/eviction counters
// are preserved for metrics continuity.
func (s *Store) Clear() error {
	s.mu.Lock()
	hashes := make([]string, 0, len(s.entries))
	for hash := range s.entries {
		hashes = append(hashes, hash)
	}
	s.entries = make(map[string]*Entry)
	s.providerCounts = make(map[string]int)
	s.totalSize = 0
	s.mu.Unlock()

	for _, hash := range hashes {
		if err := os.Remove(s.audioPath(hash)); err != nil && !os.IsNotExist(err) {
			slog.Warn("audio cache: clear file failed", "hash", hash, "error", err)
		}
	}
	metrics.CacheSizeBytes.Set(0)
	return s.saveIndex()
}

// RecordPrefetch bumps the lifetime prefetch counter; hit marks a segment
// that was already cached when the prefetcher probed it.
func (s *Store) RecordPrefetch(hit bool) {
	s.mu.Lock()
	s.prefetchCount++
	if hit {
		s.prefetchHits++
	}
	s.mu.Unlock()
}

// Stats returns a snapshot copy of the cache counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.providerCounts))
	for p, n := range s.providerCounts {
		if n > 0 {
			counts[p] = n
		}
	}
	return Stats{
		Entries:        len(s.entries),
		TotalSizeBytes: s.totalSize,
		MaxSizeBytes:   s.maxSize,
		Hits:           s.hits,
		Misses:         s.misses,
		Evictions:      s.evictions,
		PrefetchCount:  s.prefetchCount,
		PrefetchHits:   s.prefetchHits,
		ProviderCounts: counts,
	}
}

// Shutdown flushes the index. Call before process exit.
func (s *Store) Shutdown() error {
	return s.saveIndex()
}

// removeLocked drops an entry from the index. Caller holds s.mu and is
// responsible for deleting the file outside the lock.
func (s *Store) removeLocked(hash string, evicted bool) {
	entry, found := s.entries[hash]
	if !found {
		return
	}
	delete(s.entries, hash)
	s.totalSize -= entry.SizeBytes
	s.providerCounts[string(entry.Provider)]--
	if evicted {
		s.evictions++
	}
}

type indexFile struct {
	Version int               `json:"version"`
	SavedAt time.Time         `json:"saved_at"`
	Entries map[string]*Entry `json:"entries"`
	Stats   indexStats        `json:"stats"`
}

type indexStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	EvictionCount int64 `json:"eviction_count"`
	PrefetchCount int64 `json:"prefetch_count"`
	PrefetchHits  int64 `json:"prefetch_hits"`
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parse index: %w", err)
	}
	if idx.Version != indexVersion {
		return fmt.Errorf("unsupported index version %d", idx.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry, len(idx.Entries))
	s.providerCounts = make(map[string]int)
	s.totalSize = 0
	for hash, entry := range idx.Entries {
		// Entries whose file is gone are silently dropped.
		if _, err := os.Stat(entry.Path); err != nil {
			continue
		}
		s.entries[hash] = entry
		s.totalSize += entry.SizeBytes
		s.providerCounts[string(entry.Provider)]++
	}
	s.hits = idx.Stats.Hits
	s.misses = idx.Stats.Misses
	s.evictions = idx.Stats.EvictionCount
	s.prefetchCount = idx.Stats.PrefetchCount
	s.prefetchHits = idx.Stats.PrefetchHits
	return nil
}

// saveIndex snapshots the index under the lock and writes it atomically via a
// sibling temp file and rename.
func (s *Store) saveIndex() error {
	s.mu.Lock()
	idx := indexFile{
		Version: indexVersion,
		SavedAt: time.Now(),
		Entries: make(map[string]*Entry, len(s.entries)),
		Stats: indexStats{
			Hits:          s.hits,
			Misses:        s.misses,
			EvictionCount: s.evictions,
			PrefetchCount: s.prefetchCount,
			PrefetchHits:  s.prefetchHits,
		},
	}
	for hash, entry := range s.entries {
		copied := *entry
		idx.Entries[hash] = &copied
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index temp file: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}
