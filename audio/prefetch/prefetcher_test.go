package prefetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxlearn/voxlearn/audio/cache"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/provider"
)

// fakeTTS counts generations and can fail or block on demand.
type fakeTTS struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]error
	block    chan struct{}
	canceled atomic.Int32
}

func (f *fakeTTS) Generate(ctx context.Context, req pool.Request) (*pool.Result, error) {
	if f.block != nil {
		select {
		case <-ctx.Done():
			f.canceled.Add(1)
			return nil, ctx.Err()
		case <-f.block:
		}
	}
	f.mu.Lock()
	f.calls++
	err := f.failFor[req.Text]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &pool.Result{Audio: []byte("audio:" + req.Text), SampleRate: 24000, DurationSeconds: 1}, nil
}

func (f *fakeTTS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPrefetcher(t *testing.T, tts Synthesizer) (*Prefetcher, *cache.Store) {
	t.Helper()
	store := cache.New(t.TempDir())
	require.NoError(t, store.Initialize())
	return New(store, tts, WithDelay(time.Millisecond)), store
}

var testVoice = provider.VoiceConfig{VoiceID: "nova", Provider: provider.VibeVoice, Speed: 1.0}

func TestPrefetchTopicGeneratesAndCaches(t *testing.T) {
	tts := &fakeTTS{}
	p, store := newTestPrefetcher(t, tts)

	segments := []string{"first segment", "second segment", "third segment"}
	jobID := p.PrefetchTopic("curr-1", "topic-1", segments, testVoice)
	p.Wait(jobID)

	progress, ok := p.Progress(jobID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, progress.Status)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 3, progress.Completed)
	assert.Equal(t, 3, progress.Generated)
	assert.Equal(t, 0, progress.Cached)

	for _, segment := range segments {
		key := cache.NewKey(segment, "nova", provider.VibeVoice, 1.0, nil)
		assert.True(t, store.Has(key))
	}
}

func TestPrefetchTopicSkipsCachedSegments(t *testing.T) {
	tts := &fakeTTS{}
	p, store := newTestPrefetcher(t, tts)

	key := cache.NewKey("already here", "nova", provider.VibeVoice, 1.0, nil)
	require.NoError(t, store.Put(key, []byte("cached"), 24000, 1))

	jobID := p.PrefetchTopic("curr-1", "topic-1", []string{"already here", "fresh"}, testVoice)
	p.Wait(jobID)

	progress, _ := p.Progress(jobID)
	assert.Equal(t, 1, progress.Cached)
	assert.Equal(t, 1, progress.Generated)
	assert.Equal(t, 1, tts.callCount())

	stats := store.Stats()
	assert.Equal(t, int64(2), stats.PrefetchCount)
	assert.Equal(t, int64(1), stats.PrefetchHits)
}

func TestPrefetchFailuresAreNonFatal(t *testing.T) {
	tts := &fakeTTS{failFor: map[string]error{"bad": errors.New("upstream 500")}}
	p, _ := newTestPrefetcher(t, tts)

	jobID := p.PrefetchTopic("curr-1", "topic-1", []string{"good", "bad", "also good"}, testVoice)
	p.Wait(jobID)

	progress, _ := p.Progress(jobID)
	assert.Equal(t, StatusCompletedWithErrors, progress.Status)
	assert.Equal(t, 3, progress.Completed)
	assert.Equal(t, 1, progress.Failed)
	assert.Equal(t, 2, progress.Generated)
}

func TestEmptySegmentsCompletesImmediately(t *testing.T) {
	p, _ := newTestPrefetcher(t, &fakeTTS{})

	jobID := p.PrefetchTopic("curr-1", "topic-1", nil, testVoice)
	p.Wait(jobID)

	progress, _ := p.Progress(jobID)
	assert.Equal(t, StatusCompleted, progress.Status)
	assert.Equal(t, 0, progress.Total)
}

func TestCancelIsPrompt(t *testing.T) {
	tts := &fakeTTS{block: make(chan struct{})}
	p, _ := newTestPrefetcher(t, tts)

	segments := make([]string, 20)
	for i := range segments {
		segments[i] = "segment " + string(rune('a'+i))
	}
	jobID := p.PrefetchTopic("curr-1", "topic-1", segments, testVoice)

	require.Eventually(t, func() bool {
		progress, _ := p.Progress(jobID)
		return progress.Status == StatusInProgress
	}, time.Second, time.Millisecond)

	require.True(t, p.Cancel(jobID))
	p.Wait(jobID)

	progress, _ := p.Progress(jobID)
	assert.Equal(t, StatusCancelled, progress.Status)
	assert.Less(t, progress.Completed, len(segments))
}

func TestCancelTerminalJobReturnsFalse(t *testing.T) {
	p, _ := newTestPrefetcher(t, &fakeTTS{})

	jobID := p.PrefetchTopic("curr-1", "topic-1", []string{"done"}, testVoice)
	p.Wait(jobID)

	assert.False(t, p.Cancel(jobID), "completed jobs are not cancellable")
	assert.False(t, p.Cancel("no-such-job"))

	progress, _ := p.Progress(jobID)
	assert.Equal(t, StatusCompleted, progress.Status)
}

func TestNewTopicJobSupersedesOld(t *testing.T) {
	tts := &fakeTTS{block: make(chan struct{})}
	p, _ := newTestPrefetcher(t, tts)

	first := p.PrefetchTopic("curr-1", "topic-1", []string{"one", "two"}, testVoice)
	require.Eventually(t, func() bool {
		progress, _ := p.Progress(first)
		return progress.Status == StatusInProgress
	}, time.Second, time.Millisecond)

	second := p.PrefetchTopic("curr-1", "topic-1", []string{"one", "two"}, testVoice)
	p.Wait(first)

	firstProgress, _ := p.Progress(first)
	assert.Equal(t, StatusCancelled, firstProgress.Status)

	close(tts.block)
	p.Wait(second)
	secondProgress, _ := p.Progress(second)
	assert.Equal(t, StatusCompleted, secondProgress.Status)
}

func TestPrefetchUpcoming(t *testing.T) {
	tts := &fakeTTS{}
	p, store := newTestPrefetcher(t, tts)

	segments := []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7"}
	p.PrefetchUpcoming(1, segments, 3, testVoice)

	require.Eventually(t, func() bool {
		for _, segment := range []string{"s2", "s3", "s4"} {
			if !store.Has(cache.NewKey(segment, "nova", provider.VibeVoice, 1.0, nil)) {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	// Segments outside the lookahead window stay cold.
	assert.False(t, store.Has(cache.NewKey("s5", "nova", provider.VibeVoice, 1.0, nil)))
	assert.False(t, store.Has(cache.NewKey("s0", "nova", provider.VibeVoice, 1.0, nil)))
}

func TestCleanupCompletedJobs(t *testing.T) {
	p, _ := newTestPrefetcher(t, &fakeTTS{})

	jobID := p.PrefetchTopic("curr-1", "topic-1", []string{"x"}, testVoice)
	p.Wait(jobID)

	assert.Equal(t, 0, p.CleanupCompletedJobs(time.Hour), "fresh jobs kept")
	assert.Equal(t, 1, p.CleanupCompletedJobs(time.Nanosecond))
	_, ok := p.Progress(jobID)
	assert.False(t, ok)
}
