// Package pool routes TTS generation to the upstream providers and enforces
// separate concurrency limits per priority class, so background batch work can
// never starve an interactive caller.
package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/audio/wavutil"
	"github.com/voxlearn/voxlearn/shared/httpclient"
	"github.com/voxlearn/voxlearn/shared/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Priority selects which of the two semaphores a request acquires.
// Higher values are more urgent.
type Priority int

const (
	Scheduled Priority = 1
	Prefetch  Priority = 5
	Live      Priority = 10
)

func (p Priority) String() string {
	switch {
	case p >= Live:
		return "live"
	case p >= Prefetch:
		return "prefetch"
	default:
		return "scheduled"
	}
}

// live reports whether the priority draws from the live ticket budget.
func (p Priority) live() bool {
	return p >= Live
}

const (
	DefaultLiveSlots       = 7
	DefaultBackgroundSlots = 3
	DefaultRequestTimeout  = 30 * time.Second
)

// Upstream is one provider endpoint.
type Upstream struct {
	URL        string
	SampleRate int
}

// DefaultUpstreams returns the local-deployment endpoint table.
func DefaultUpstreams() map[provider.ID]Upstream {
	return map[provider.ID]Upstream{
		provider.VibeVoice:  {URL: "http://localhost:8880/v1/audio/speech", SampleRate: provider.VibeVoice.SampleRate()},
		provider.Piper:      {URL: "http://localhost:11402/v1/audio/speech", SampleRate: provider.Piper.SampleRate()},
		provider.Chatterbox: {URL: "http://localhost:8004/v1/audio/speech", SampleRate: provider.Chatterbox.SampleRate()},
	}
}

type Config struct {
	Upstreams       map[provider.ID]Upstream
	LiveSlots       int64
	BackgroundSlots int64
	RequestTimeout  time.Duration
}

// Request is a single synthesis call.
type Request struct {
	Text       string
	VoiceID    string
	Provider   provider.ID
	Speed      float64
	Chatterbox *provider.ChatterboxOptions
	Priority   Priority
}

// Result carries the synthesized WAV plus derived metadata.
type Result struct {
	Audio           []byte
	SampleRate      int
	DurationSeconds float64
}

// ttsRequest is the OpenAI-compatible upstream body.
type ttsRequest struct {
	Model          string   `json:"model"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice"`
	ResponseFormat string   `json:"response_format"`
	Speed          float64  `json:"speed"`
	Exaggeration   *float64 `json:"exaggeration,omitempty"`
	CFGWeight      *float64 `json:"cfg_weight,omitempty"`
	Language       string   `json:"language,omitempty"`
}

type classCounters struct {
	requests int64
	inFlight int64
}

// Pool is the bounded TTS resource pool. Two independent semaphores guarantee
// that PREFETCH/SCHEDULED work cannot consume live tickets.
type Pool struct {
	cfg        Config
	client     *http.Client
	live       *semaphore.Weighted
	background *semaphore.Weighted

	mu     sync.Mutex
	counts map[string]*classCounters
	errors int64
}

func New(cfg Config) *Pool {
	if cfg.Upstreams == nil {
		cfg.Upstreams = DefaultUpstreams()
	}
	if cfg.LiveSlots <= 0 {
		cfg.LiveSlots = DefaultLiveSlots
	}
	if cfg.BackgroundSlots <= 0 {
		cfg.BackgroundSlots = DefaultBackgroundSlots
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Pool{
		cfg:        cfg,
		client:     httpclient.New(httpclient.WithTimeout(cfg.RequestTimeout)),
		live:       semaphore.NewWeighted(cfg.LiveSlots),
		background: semaphore.NewWeighted(cfg.BackgroundSlots),
		counts: map[string]*classCounters{
			"live":      {},
			"prefetch":  {},
			"scheduled": {},
		},
	}
}

// Generate acquires a ticket for the request's priority class, performs the
// upstream HTTP round-trip, and releases the ticket on exit. The semaphore is
// held for the round-trip and nothing else.
func (p *Pool) Generate(ctx context.Context, req Request) (*Result, error) {
	upstream, ok := p.cfg.Upstreams[req.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown TTS provider %q", req.Provider)
	}

	sem := p.background
	if req.Priority.live() {
		sem = p.live
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s slot: %w", req.Priority, err)
	}
	defer sem.Release(1)

	class := req.Priority.String()
	p.track(class, 1)
	defer p.track(class, -1)

	result, err := p.synthesize(ctx, upstream, req)
	if err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		metrics.TTSRequestsTotal.WithLabelValues(string(req.Provider), class, "error").Inc()
		return nil, err
	}
	metrics.TTSRequestsTotal.WithLabelValues(string(req.Provider), class, "ok").Inc()
	return result, nil
}

func (p *Pool) synthesize(ctx context.Context, upstream Upstream, req Request) (*Result, error) {
	ctx, span := otel.Tracer("voxlearn-audio").Start(ctx, "tts.synthesize",
		trace.WithAttributes(
			attribute.String("tts.provider", string(req.Provider)),
			attribute.String("tts.voice", req.VoiceID),
			attribute.String("tts.priority", req.Priority.String()),
			attribute.Int("text.length", len(req.Text)),
			attribute.Float64("tts.speed", req.Speed),
		))
	defer span.End()

	body := ttsRequest{
		Model:          "tts-1",
		Input:          req.Text,
		Voice:          req.VoiceID,
		ResponseFormat: "wav",
		Speed:          req.Speed,
	}
	if req.Provider == provider.Chatterbox && req.Chatterbox != nil {
		body.Exaggeration = req.Chatterbox.Exaggeration
		body.CFGWeight = req.Chatterbox.CFGWeight
		body.Language = req.Chatterbox.Language
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstream.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("TTS error (status %d): %s", resp.StatusCode, string(errBody))
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream non-200")
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	elapsed := time.Since(start)
	metrics.TTSRequestDuration.WithLabelValues(string(req.Provider)).Observe(elapsed.Seconds())

	duration := wavutil.EstimateDuration(len(audio), upstream.SampleRate)
	span.SetAttributes(
		attribute.Int("audio.bytes", len(audio)),
		attribute.Float64("audio.duration_seconds", duration),
	)
	slog.Debug("tts: synthesized",
		"provider", req.Provider,
		"priority", req.Priority.String(),
		"bytes", len(audio),
		"duration_s", duration,
		"elapsed_ms", elapsed.Milliseconds())

	return &Result{
		Audio:           audio,
		SampleRate:      upstream.SampleRate,
		DurationSeconds: duration,
	}, nil
}

func (p *Pool) track(class string, delta int64) {
	p.mu.Lock()
	c := p.counts[class]
	c.inFlight += delta
	if delta > 0 {
		c.requests++
	}
	p.mu.Unlock()
	metrics.TTSInFlight.WithLabelValues(class).Add(float64(delta))
}

// ClassStats describes one priority class in a Stats snapshot.
type ClassStats struct {
	Requests  int64 `json:"requests"`
	InFlight  int64 `json:"in_flight"`
	Available int64 `json:"available"`
}

type Stats struct {
	Live            ClassStats `json:"live"`
	Prefetch        ClassStats `json:"prefetch"`
	Scheduled       ClassStats `json:"scheduled"`
	Errors          int64      `json:"errors"`
	LiveSlots       int64      `json:"live_slots"`
	BackgroundSlots int64      `json:"background_slots"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	liveUsed := p.counts["live"].inFlight
	bgUsed := p.counts["prefetch"].inFlight + p.counts["scheduled"].inFlight

	class := func(name string, available int64) ClassStats {
		c := p.counts[name]
		return ClassStats{Requests: c.requests, InFlight: c.inFlight, Available: available}
	}
	return Stats{
		Live:            class("live", p.cfg.LiveSlots-liveUsed),
		Prefetch:        class("prefetch", p.cfg.BackgroundSlots-bgUsed),
		Scheduled:       class("scheduled", p.cfg.BackgroundSlots-bgUsed),
		Errors:          p.errors,
		LiveSlots:       p.cfg.LiveSlots,
		BackgroundSlots: p.cfg.BackgroundSlots,
	}
}
