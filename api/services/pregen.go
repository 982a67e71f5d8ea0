// Package services holds the application layer: job orchestration, profile
// management, and comparison sessions on top of the store and the audio pool.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/shared/backoff"
	"github.com/voxlearn/voxlearn/shared/id"
	"github.com/voxlearn/voxlearn/shared/metrics"
)

// Synthesizer is the slice of the resource pool the services need.
type Synthesizer interface {
	Generate(ctx context.Context, req pool.Request) (*pool.Result, error)
}

const (
	// itemBatchSize is how many pending items the engine claims per pass.
	itemBatchSize = 10
	// maxConsecutiveFailures auto-pauses a job, on the assumption that the
	// upstream is down rather than the texts being bad.
	maxConsecutiveFailures = 5
)

// pregenStore is the slice of the store the engine drives job state through.
type pregenStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateJob(ctx context.Context, j *domain.Job) error
	CreateJobItems(ctx context.Context, items []*domain.JobItem) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error
	UpdateJobProgress(ctx context.Context, j *domain.Job) error
	NextPendingItems(ctx context.Context, jobID string, limit int) ([]*domain.JobItem, error)
	MarkItemProcessing(ctx context.Context, id string) error
	MarkItemCompleted(ctx context.Context, id, outputFile string, duration float64, sizeBytes int64, sampleRate int) error
	MarkItemFailed(ctx context.Context, id, lastError string) error
	ResetProcessingItems(ctx context.Context, jobID string) (int, error)
	ResetFailedItems(ctx context.Context, jobID string) (int, error)
	DeleteJob(ctx context.Context, id string) error
	ListRunningJobs(ctx context.Context) ([]*domain.Job, error)
}

// PregenEngine runs durable batch generation jobs. One goroutine per running
// job; all state transitions go through the store so jobs survive restarts.
type PregenEngine struct {
	store   pregenStore
	tts     Synthesizer
	baseDir string
	retry   backoff.Strategy

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewPregenEngine(st pregenStore, tts Synthesizer, baseDir string) *PregenEngine {
	return &PregenEngine{
		store:   st,
		tts:     tts,
		baseDir: baseDir,
		retry:   backoff.Synthesis,
		running: make(map[string]context.CancelFunc),
	}
}

// JobText is one input text for a batch job.
type JobText struct {
	Text      string  `json:"text"`
	SourceRef *string `json:"source_ref,omitempty"`
}

type CreateJobRequest struct {
	Name       string            `json:"name"`
	SourceType string            `json:"source_type"`
	ProfileID  *string           `json:"profile_id,omitempty"`
	TTSConfig  *domain.TTSConfig `json:"tts_config,omitempty"`
	Texts      []JobText         `json:"texts"`
}

// CreateJob persists a job and its items in the pending state. Exactly one of
// ProfileID and TTSConfig must be set.
func (e *PregenEngine) CreateJob(ctx context.Context, req CreateJobRequest) (*domain.Job, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("job name is required: %w", domain.ErrInvalidInput)
	}
	if len(req.Texts) == 0 {
		return nil, fmt.Errorf("job needs at least one text: %w", domain.ErrInvalidInput)
	}
	if (req.ProfileID == nil) == (req.TTSConfig == nil) {
		return nil, fmt.Errorf("exactly one of profile_id and tts_config must be set: %w", domain.ErrInvalidInput)
	}
	if req.TTSConfig != nil && !req.TTSConfig.Provider.Valid() {
		return nil, fmt.Errorf("unknown provider %q: %w", req.TTSConfig.Provider, domain.ErrInvalidInput)
	}
	if req.ProfileID != nil {
		if _, err := e.store.GetProfile(ctx, *req.ProfileID); err != nil {
			return nil, err
		}
	}

	jobID := id.NewJob()
	job := &domain.Job{
		ID:         jobID,
		Name:       req.Name,
		Type:       domain.JobTypeBatch,
		Status:     domain.JobPending,
		SourceType: req.SourceType,
		ProfileID:  req.ProfileID,
		TTSConfig:  req.TTSConfig,
		OutputDir:  filepath.Join(e.baseDir, "jobs", jobID, "audio"),
		TotalItems: len(req.Texts),
	}

	items := make([]*domain.JobItem, 0, len(req.Texts))
	for i, txt := range req.Texts {
		if strings.TrimSpace(txt.Text) == "" {
			return nil, fmt.Errorf("text %d is empty: %w", i, domain.ErrInvalidInput)
		}
		sum := sha256.Sum256([]byte(txt.Text))
		items = append(items, &domain.JobItem{
			ID:        id.NewJobItem(),
			JobID:     jobID,
			ItemIndex: i,
			Text:      txt.Text,
			TextHash:  hex.EncodeToString(sum[:]),
			SourceRef: txt.SourceRef,
			Status:    domain.ItemPending,
		})
	}

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.store.CreateJob(ctx, job); err != nil {
			return err
		}
		return e.store.CreateJobItems(ctx, items)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("pregen: job created", "job_id", jobID, "items", len(items))
	return job, nil
}

// StartJob transitions a pending job to running and launches its worker.
func (e *PregenEngine) StartJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobPending {
		return fmt.Errorf("job %s is %s, not pending: %w", jobID, job.Status, domain.ErrInvalidState)
	}
	return e.launch(ctx, job)
}

// ResumeJob restarts a paused or failed job. Items stuck in processing from a
// previous run are returned to pending first.
func (e *PregenEngine) ResumeJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Resumable() {
		return fmt.Errorf("job %s is %s, not resumable: %w", jobID, job.Status, domain.ErrInvalidState)
	}
	if _, err := e.store.ResetProcessingItems(ctx, jobID); err != nil {
		return err
	}
	job.ConsecutiveFailures = 0
	job.LastError = nil
	if err := e.store.UpdateJobProgress(ctx, job); err != nil {
		return err
	}
	return e.launch(ctx, job)
}

func (e *PregenEngine) launch(ctx context.Context, job *domain.Job) error {
	voice, err := e.resolveVoice(ctx, job)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := e.store.UpdateJobStatus(ctx, job.ID, domain.JobRunning); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if _, exists := e.running[job.ID]; exists {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("job %s already has a worker: %w", job.ID, domain.ErrInvalidState)
	}
	e.running[job.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.running, job.ID)
			e.mu.Unlock()
			cancel()
		}()
		e.run(runCtx, job, voice)
	}()
	return nil
}

func (e *PregenEngine) resolveVoice(ctx context.Context, job *domain.Job) (provider.VoiceConfig, error) {
	if job.TTSConfig != nil {
		return job.TTSConfig.VoiceConfig(), nil
	}
	profile, err := e.store.GetProfile(ctx, *job.ProfileID)
	if err != nil {
		return provider.VoiceConfig{}, fmt.Errorf("resolve job profile: %w", err)
	}
	return profile.TTSConfig().VoiceConfig(), nil
}

func (e *PregenEngine) run(ctx context.Context, job *domain.Job, voice provider.VoiceConfig) {
	slog.Info("pregen: job started", "job_id", job.ID, "pending", job.PendingItems())

	for {
		if ctx.Err() != nil {
			e.park(job, domain.JobPaused)
			return
		}

		items, err := e.store.NextPendingItems(ctx, job.ID, itemBatchSize)
		if err != nil {
			slog.Error("pregen: claim batch", "job_id", job.ID, "error", err)
			e.park(job, domain.JobPaused)
			return
		}
		if len(items) == 0 {
			e.finish(job)
			return
		}

		for _, item := range items {
			if ctx.Err() != nil {
				e.park(job, domain.JobPaused)
				return
			}

			job.CurrentIndex = item.ItemIndex
			job.CurrentText = item.Text

			if err := e.processItem(ctx, job, item, voice); err != nil {
				if errors.Is(err, context.Canceled) {
					e.park(job, domain.JobPaused)
					return
				}
				msg := err.Error()
				job.FailedItems++
				job.ConsecutiveFailures++
				job.LastError = &msg
				metrics.PregenItemsTotal.WithLabelValues("failed").Inc()
			} else {
				job.CompletedItems++
				job.ConsecutiveFailures = 0
				metrics.PregenItemsTotal.WithLabelValues("completed").Inc()
			}

			if err := e.store.UpdateJobProgress(context.Background(), job); err != nil {
				slog.Error("pregen: persist progress", "job_id", job.ID, "error", err)
			}

			if job.ConsecutiveFailures >= maxConsecutiveFailures {
				slog.Warn("pregen: auto-pausing after consecutive failures",
					"job_id", job.ID, "failures", job.ConsecutiveFailures)
				e.park(job, domain.JobPaused)
				return
			}
		}
	}
}

// processItem synthesizes one item with retries and writes the WAV to the
// job's output directory.
func (e *PregenEngine) processItem(ctx context.Context, job *domain.Job, item *domain.JobItem, voice provider.VoiceConfig) error {
	if err := e.store.MarkItemProcessing(ctx, item.ID); err != nil {
		return err
	}

	var result *pool.Result
	err := backoff.RetryWithCallback(ctx, e.retry, func(ctx context.Context, attempt int) error {
		var genErr error
		result, genErr = e.tts.Generate(ctx, pool.Request{
			Text:       item.Text,
			VoiceID:    voice.VoiceID,
			Provider:   voice.Provider,
			Speed:      voice.Speed,
			Chatterbox: voice.Chatterbox,
			Priority:   pool.Scheduled,
		})
		return genErr
	}, func(attempt int, err error, delay time.Duration) {
		slog.Warn("pregen: item attempt failed",
			"job_id", job.ID, "item_index", item.ItemIndex,
			"attempt", attempt, "retry_in", delay, "error", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if markErr := e.store.MarkItemFailed(context.Background(), item.ID, err.Error()); markErr != nil {
			slog.Error("pregen: mark item failed", "item_id", item.ID, "error", markErr)
		}
		return err
	}

	fileName := fmt.Sprintf("%05d_%s.wav", item.ItemIndex, item.TextHash[:8])
	outPath := filepath.Join(job.OutputDir, fileName)
	if err := os.WriteFile(outPath, result.Audio, 0o644); err != nil {
		err = fmt.Errorf("write output: %w", err)
		if markErr := e.store.MarkItemFailed(context.Background(), item.ID, err.Error()); markErr != nil {
			slog.Error("pregen: mark item failed", "item_id", item.ID, "error", markErr)
		}
		return err
	}

	return e.store.MarkItemCompleted(ctx, item.ID, fileName,
		result.DurationSeconds, int64(len(result.Audio)), result.SampleRate)
}

func (e *PregenEngine) finish(job *domain.Job) {
	status := domain.JobCompleted
	if job.CompletedItems == 0 && job.FailedItems > 0 {
		status = domain.JobFailed
	}
	job.CurrentText = ""
	if err := e.store.UpdateJobProgress(context.Background(), job); err != nil {
		slog.Error("pregen: persist final progress", "job_id", job.ID, "error", err)
	}
	if err := e.store.UpdateJobStatus(context.Background(), job.ID, status); err != nil {
		slog.Error("pregen: finish job", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("pregen: job finished",
		"job_id", job.ID, "status", status,
		"completed", job.CompletedItems, "failed", job.FailedItems)
}

// park moves the job out of running without finishing it.
func (e *PregenEngine) park(job *domain.Job, status domain.JobStatus) {
	if err := e.store.UpdateJobStatus(context.Background(), job.ID, status); err != nil {
		slog.Error("pregen: park job", "job_id", job.ID, "status", status, "error", err)
	}
}

// PauseJob cancels the worker; the run loop persists the paused state.
func (e *PregenEngine) PauseJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobRunning {
		return fmt.Errorf("job %s is %s, not running: %w", jobID, job.Status, domain.ErrInvalidState)
	}
	e.mu.Lock()
	cancel, ok := e.running[jobID]
	e.mu.Unlock()
	if ok {
		cancel()
		return nil
	}
	// No live worker (e.g. after a restart); park it directly.
	return e.store.UpdateJobStatus(ctx, jobID, domain.JobPaused)
}

// CancelJob terminates the job permanently. Generated files are kept.
func (e *PregenEngine) CancelJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s: %w", jobID, job.Status, domain.ErrInvalidState)
	}
	e.mu.Lock()
	cancel, ok := e.running[jobID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return e.store.UpdateJobStatus(ctx, jobID, domain.JobCancelled)
}

// RetryFailedItems resets failed items to pending, repairs the counters, and
// resumes the job.
func (e *PregenEngine) RetryFailedItems(ctx context.Context, jobID string) (int, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Status == domain.JobRunning {
		return 0, fmt.Errorf("job %s is still running: %w", jobID, domain.ErrInvalidState)
	}

	reset, err := e.store.ResetFailedItems(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if reset == 0 {
		return 0, nil
	}

	job.FailedItems -= reset
	job.ConsecutiveFailures = 0
	job.LastError = nil
	if err := e.store.UpdateJobProgress(ctx, job); err != nil {
		return 0, err
	}
	if err := e.store.UpdateJobStatus(ctx, jobID, domain.JobPaused); err != nil {
		return 0, err
	}
	job.Status = domain.JobPaused
	return reset, e.launch(ctx, job)
}

// DeleteJob removes the job, its items, and its output directory. Running
// jobs must be cancelled first.
func (e *PregenEngine) DeleteJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobRunning {
		return fmt.Errorf("job %s is running, cancel it first: %w", jobID, domain.ErrInvalidState)
	}

	if err := e.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	// Only remove directories inside the engine's base dir; a job row with a
	// tampered output_dir must not let us delete arbitrary paths.
	jobDir := filepath.Dir(job.OutputDir)
	rel, relErr := filepath.Rel(filepath.Join(e.baseDir, "jobs"), jobDir)
	if relErr != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		slog.Warn("pregen: refusing to remove output dir outside base",
			"job_id", jobID, "output_dir", job.OutputDir)
		return nil
	}
	if rmErr := os.RemoveAll(jobDir); rmErr != nil {
		slog.Warn("pregen: remove output dir", "job_id", jobID, "error", rmErr)
	}
	return nil
}

// JobProgress is the live view of a job, including a completion estimate.
type JobProgress struct {
	Job                 *domain.Job `json:"job"`
	PercentComplete     float64     `json:"percent_complete"`
	EstimatedSecondsETA *float64    `json:"estimated_seconds_eta,omitempty"`
}

func (e *PregenEngine) Progress(ctx context.Context, jobID string) (*JobProgress, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	p := &JobProgress{Job: job}
	if job.TotalItems > 0 {
		done := job.CompletedItems + job.FailedItems
		p.PercentComplete = float64(done) / float64(job.TotalItems) * 100
	}
	// ETA from observed throughput since the job started.
	if job.Status == domain.JobRunning && job.StartedAt != nil && job.CompletedItems > 0 {
		elapsed := time.Since(*job.StartedAt).Seconds()
		perItem := elapsed / float64(job.CompletedItems)
		eta := perItem * float64(job.PendingItems())
		p.EstimatedSecondsETA = &eta
	}
	return p, nil
}

// Recover parks jobs left running by a previous process. Called once at
// startup, before the HTTP server accepts traffic.
func (e *PregenEngine) Recover(ctx context.Context) error {
	jobs, err := e.store.ListRunningJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if _, err := e.store.ResetProcessingItems(ctx, job.ID); err != nil {
			return err
		}
		if err := e.store.UpdateJobStatus(ctx, job.ID, domain.JobPaused); err != nil {
			return err
		}
		slog.Info("pregen: parked interrupted job", "job_id", job.ID)
	}
	return nil
}

// Shutdown cancels all workers and waits for them to persist their state.
func (e *PregenEngine) Shutdown() {
	e.mu.Lock()
	for _, cancel := range e.running {
		cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}
