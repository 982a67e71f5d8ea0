package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(t.TempDir(), opts...)
	require.NoError(t, s.Initialize())
	return s
}

func testKey(text string) Key {
	return NewKey(text, "nova", provider.VibeVoice, 1.0, nil)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	key := testKey("Mitochondria are organelles.")
	audio := []byte("RIFF-fake-wav-data")

	require.NoError(t, s.Put(key, audio, 24000, 1.5))

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.True(t, bytes.Equal(audio, got))

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(len(audio)), stats.TotalSizeBytes)
	assert.Equal(t, 1, stats.ProviderCounts["vibevoice"])
}

func TestCrossCallerSharing(t *testing.T) {
	s := newTestStore(t)
	// Two callers with identical voice configs derive the same key.
	keyA := NewKey("Mitochondria are organelles.", "nova", provider.VibeVoice, 1.0, nil)
	keyB := NewKey("Mitochondria are organelles.", "nova", provider.VibeVoice, 1.0, nil)

	_, ok := s.Get(keyA)
	require.False(t, ok)
	require.NoError(t, s.Put(keyA, []byte("audio"), 24000, 0.5))

	_, ok = s.Get(keyB)
	require.True(t, ok)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestPutReplacesEntry(t *testing.T) {
	s := newTestStore(t)
	key := testKey("replaced")

	require.NoError(t, s.Put(key, []byte("first-version"), 24000, 1))
	require.NoError(t, s.Put(key, []byte("second"), 24000, 1))

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(len("second")), stats.TotalSizeBytes, "size reflects only the replacement")
	assert.Equal(t, 1, stats.ProviderCounts["vibevoice"])
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	key := testKey("gone")

	require.NoError(t, s.Put(key, []byte("audio"), 24000, 1))
	assert.True(t, s.Delete(key))
	assert.False(t, s.Delete(key))

	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	s := newTestStore(t)
	key := testKey("short-lived")

	require.NoError(t, s.Put(key, []byte("audio"), 24000, 1, time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	assert.False(t, s.Has(key))
	_, ok := s.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Stats().Entries)
}

func TestMissingFileIsMiss(t *testing.T) {
	s := newTestStore(t)
	key := testKey("vanishing")

	require.NoError(t, s.Put(key, []byte("audio"), 24000, 1))
	require.NoError(t, os.Remove(s.audioPath(key.Hash())))

	_, ok := s.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Stats().Entries, "stale entry purged on failed read")
	assert.Equal(t, int64(1), s.Stats().Misses)
}

func TestLRUEviction(t *testing.T) {
	const mib = 1 << 20
	s := newTestStore(t, WithMaxSize(10*mib))

	payload := make([]byte, mib)
	var first Key
	for i := 0; i < 11; i++ {
		key := testKey(fmt.Sprintf("entry %d", i))
		if i == 0 {
			first = key
		}
		require.NoError(t, s.Put(key, payload, 24000, 1))
		time.Sleep(2 * time.Millisecond) // distinct lastAccessedAt ordering
	}

	stats := s.Stats()
	assert.LessOrEqual(t, stats.TotalSizeBytes, int64(8*mib), "evicts to 80%% of max")
	assert.False(t, s.Has(first), "oldest entry evicted first")
	assert.Greater(t, stats.Evictions, int64(0))
}

func TestNoEvictionAtExactlyMaxSize(t *testing.T) {
	s := newTestStore(t, WithMaxSize(100))

	key := testKey("exact fit")
	require.NoError(t, s.Put(key, make([]byte, 100), 24000, 1))

	assert.True(t, s.Has(key))
	assert.Equal(t, int64(0), s.Stats().Evictions)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	require.NoError(t, s.Initialize())
	key := testKey("durable")
	require.NoError(t, s.Put(key, []byte("audio"), 24000, 1))
	s.Get(key)
	s.Get(testKey("never stored"))
	require.NoError(t, s.Shutdown())

	reopened := New(dir)
	require.NoError(t, reopened.Initialize())

	got, ok := reopened.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("audio"), got)

	stats := reopened.Stats()
	assert.Equal(t, int64(2), stats.Hits, "lifetime counters survive restart")
	assert.Equal(t, int64(1), stats.Misses)
}

func TestLoadDropsEntriesWithMissingFiles(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	require.NoError(t, s.Initialize())
	keep := testKey("keep")
	drop := testKey("drop")
	require.NoError(t, s.Put(keep, []byte("keep-audio"), 24000, 1))
	require.NoError(t, s.Put(drop, []byte("drop-audio"), 24000, 1))
	require.NoError(t, s.Shutdown())

	require.NoError(t, os.Remove(s.audioPath(drop.Hash())))

	reopened := New(dir)
	require.NoError(t, reopened.Initialize())
	assert.True(t, reopened.Has(keep))
	assert.False(t, reopened.Has(drop))
	assert.Equal(t, 1, reopened.Stats().Entries)
}

func TestMalformedIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFileName), []byte("{not json"), 0o644))

	s := New(dir)
	require.NoError(t, s.Initialize())
	assert.Equal(t, 0, s.Stats().Entries)
}

func TestClearPreservesLifetimeCounters(t *testing.T) {
	s := newTestStore(t)
	key := testKey("cleared")

	require.NoError(t, s.Put(key, []byte("audio"), 24000, 1))
	s.Get(key)
	require.NoError(t, s.Clear())

	stats := s.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.TotalSizeBytes)
	assert.Empty(t, stats.ProviderCounts)
	assert.Equal(t, int64(1), stats.Hits, "hit/miss totals survive Clear")
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				key := testKey(fmt.Sprintf("goroutine %d item %d", g, i%10))
				_ = s.Put(key, []byte("concurrent-audio"), 24000, 1)
				s.Get(key)
				s.Has(key)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	stats := s.Stats()
	assert.Equal(t, stats.Hits+stats.Misses, int64(8*50), "every Get counted exactly once")
}
