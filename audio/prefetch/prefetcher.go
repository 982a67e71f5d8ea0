// Package prefetch warms the audio cache ahead of playback. Topic prefetch
// jobs run at PREFETCH priority with at most one active job per
// (curriculum, topic); the newest job cancels and supersedes the old one.
package prefetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlearn/voxlearn/audio/cache"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/shared/id"
)

const (
	DefaultDelayBetweenRequests = 100 * time.Millisecond
	DefaultLookahead            = 5
	DefaultJobMaxAge            = time.Hour
)

type Status string

const (
	StatusPending             Status = "pending"
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusCancelled           Status = "cancelled"
	StatusFailed              Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Progress tracks one topic prefetch job.
type Progress struct {
	JobID        string     `json:"job_id"`
	CurriculumID string     `json:"curriculum_id"`
	TopicID      string     `json:"topic_id"`
	Total        int        `json:"total"`
	Completed    int        `json:"completed"`
	Cached       int        `json:"cached"`
	Generated    int        `json:"generated"`
	Failed       int        `json:"failed"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Synthesizer is the slice of the resource pool the prefetcher needs.
type Synthesizer interface {
	Generate(ctx context.Context, req pool.Request) (*pool.Result, error)
}

type job struct {
	progress Progress
	cancel   context.CancelFunc
	done     chan struct{}
}

type Prefetcher struct {
	cache *cache.Store
	tts   Synthesizer
	delay time.Duration

	mu      sync.Mutex
	jobs    map[string]*job
	byTopic map[string]string // "curriculumID/topicID" -> active jobID
}

type Option func(*Prefetcher)

// WithDelay overrides the inter-request rate limiting delay.
func WithDelay(d time.Duration) Option {
	return func(p *Prefetcher) { p.delay = d }
}

func New(store *cache.Store, tts Synthesizer, opts ...Option) *Prefetcher {
	p := &Prefetcher{
		cache:   store,
		tts:     tts,
		delay:   DefaultDelayBetweenRequests,
		jobs:    make(map[string]*job),
		byTopic: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PrefetchTopic starts a background prefetch of the topic's segments and
// returns the job ID. Any in-flight job for the same topic is cancelled and
// replaced.
func (p *Prefetcher) PrefetchTopic(curriculumID, topicID string, segments []string, voice provider.VoiceConfig) string {
	jobID := id.NewPrefetch()
	topicKey := curriculumID + "/" + topicID
	ctx, cancel := context.WithCancel(context.Background())

	j := &job{
		progress: Progress{
			JobID:        jobID,
			CurriculumID: curriculumID,
			TopicID:      topicID,
			Total:        len(segments),
			Status:       StatusPending,
			StartedAt:    time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if priorID, exists := p.byTopic[topicKey]; exists {
		if prior, ok := p.jobs[priorID]; ok && !prior.progress.Status.Terminal() {
			prior.cancel()
			slog.Info("prefetch: superseding prior topic job", "topic", topicKey, "prior_job", priorID, "job", jobID)
		}
	}
	p.byTopic[topicKey] = jobID
	p.jobs[jobID] = j
	p.mu.Unlock()

	go p.run(ctx, j, segments, voice)
	return jobID
}

func (p *Prefetcher) run(ctx context.Context, j *job, segments []string, voice provider.VoiceConfig) {
	defer close(j.done)
	p.setStatus(j, StatusInProgress)

	for _, segment := range segments {
		if ctx.Err() != nil {
			p.finish(j, StatusCancelled)
			return
		}

		key := cache.NewKey(segment, voice.VoiceID, voice.Provider, voice.Speed, voice.Chatterbox)
		if p.cache.Has(key) {
			p.cache.RecordPrefetch(true)
			p.update(j, func(pr *Progress) { pr.Completed++; pr.Cached++ })
			continue
		}
		p.cache.RecordPrefetch(false)

		result, err := p.tts.Generate(ctx, pool.Request{
			Text:       segment,
			VoiceID:    voice.VoiceID,
			Provider:   voice.Provider,
			Speed:      voice.Speed,
			Chatterbox: voice.Chatterbox,
			Priority:   pool.Prefetch,
		})
		if err != nil {
			if ctx.Err() != nil {
				p.finish(j, StatusCancelled)
				return
			}
			// Segment failures never abort the job.
			slog.Warn("prefetch: segment generation failed", "job", j.progress.JobID, "error", err)
			p.update(j, func(pr *Progress) { pr.Completed++; pr.Failed++ })
		} else {
			if err := p.cache.Put(key, result.Audio, result.SampleRate, result.DurationSeconds); err != nil {
				slog.Warn("prefetch: cache put failed", "job", j.progress.JobID, "error", err)
				p.update(j, func(pr *Progress) { pr.Completed++; pr.Failed++ })
			} else {
				p.update(j, func(pr *Progress) { pr.Completed++; pr.Generated++ })
			}
		}

		select {
		case <-ctx.Done():
			p.finish(j, StatusCancelled)
			return
		case <-time.After(p.delay):
		}
	}

	p.mu.Lock()
	failed := j.progress.Failed
	p.mu.Unlock()
	if failed > 0 {
		p.finish(j, StatusCompletedWithErrors)
	} else {
		p.finish(j, StatusCompleted)
	}
}

// PrefetchUpcoming fires independent, detached prefetches for the next
// lookahead segments after currentIndex. Failures are logged, never surfaced;
// this is the playback-driven warm path.
func (p *Prefetcher) PrefetchUpcoming(currentIndex int, segments []string, lookahead int, voice provider.VoiceConfig) {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	end := currentIndex + 1 + lookahead
	if end > len(segments) {
		end = len(segments)
	}
	for i := currentIndex + 1; i < end; i++ {
		segment := segments[i]
		go func() {
			key := cache.NewKey(segment, voice.VoiceID, voice.Provider, voice.Speed, voice.Chatterbox)
			if p.cache.Has(key) {
				p.cache.RecordPrefetch(true)
				return
			}
			p.cache.RecordPrefetch(false)
			result, err := p.tts.Generate(context.Background(), pool.Request{
				Text:       segment,
				VoiceID:    voice.VoiceID,
				Provider:   voice.Provider,
				Speed:      voice.Speed,
				Chatterbox: voice.Chatterbox,
				Priority:   pool.Prefetch,
			})
			if err != nil {
				slog.Warn("prefetch: upcoming segment failed", "error", err)
				return
			}
			if err := p.cache.Put(key, result.Audio, result.SampleRate, result.DurationSeconds); err != nil {
				slog.Warn("prefetch: upcoming segment cache put failed", "error", err)
			}
		}()
	}
}

// Cancel requests cooperative cancellation of a job. The status check stays
// under the lock so it cannot race the worker's own progress writes.
func (p *Prefetcher) Cancel(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	if !ok || j.progress.Status.Terminal() {
		return false
	}
	j.cancel()
	return true
}

// Progress returns a snapshot of one job.
func (p *Prefetcher) Progress(jobID string) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	if !ok {
		return Progress{}, false
	}
	return j.progress, true
}

// AllJobs returns snapshots of every tracked job.
func (p *Prefetcher) AllJobs() []Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Progress, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j.progress)
	}
	return out
}

// CleanupCompletedJobs drops terminal jobs older than maxAge and returns the
// number removed.
func (p *Prefetcher) CleanupCompletedJobs(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultJobMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for jobID, j := range p.jobs {
		if !j.progress.Status.Terminal() {
			continue
		}
		if j.progress.CompletedAt != nil && j.progress.CompletedAt.Before(cutoff) {
			delete(p.jobs, jobID)
			topicKey := j.progress.CurriculumID + "/" + j.progress.TopicID
			if p.byTopic[topicKey] == jobID {
				delete(p.byTopic, topicKey)
			}
			removed++
		}
	}
	return removed
}

// Wait blocks until the job's goroutine exits. Test helper.
func (p *Prefetcher) Wait(jobID string) {
	p.mu.Lock()
	j, ok := p.jobs[jobID]
	p.mu.Unlock()
	if ok {
		<-j.done
	}
}

func (p *Prefetcher) setStatus(j *job, s Status) {
	p.mu.Lock()
	if !j.progress.Status.Terminal() {
		j.progress.Status = s
	}
	p.mu.Unlock()
}

func (p *Prefetcher) finish(j *job, s Status) {
	now := time.Now()
	p.mu.Lock()
	if !j.progress.Status.Terminal() {
		j.progress.Status = s
		j.progress.CompletedAt = &now
	}
	p.mu.Unlock()
}

func (p *Prefetcher) update(j *job, fn func(*Progress)) {
	p.mu.Lock()
	fn(&j.progress)
	p.mu.Unlock()
}
