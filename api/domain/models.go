package domain

import (
	"time"

	"github.com/voxlearn/voxlearn/audio/provider"
)

type JobType string

const (
	JobTypeBatch      JobType = "batch"
	JobTypeComparison JobType = "comparison"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// TTSSettings is the per-voice tuning block stored as JSON.
type TTSSettings struct {
	Speed        float64        `json:"speed"`
	Exaggeration *float64       `json:"exaggeration,omitempty"`
	CFGWeight    *float64       `json:"cfg_weight,omitempty"`
	Language     string         `json:"language,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// TTSConfig is a full inline synthesis configuration (provider + voice +
// settings), used by jobs without a profile and by comparison variants.
type TTSConfig struct {
	Provider provider.ID `json:"provider"`
	VoiceID  string      `json:"voice_id"`
	Settings TTSSettings `json:"settings"`
}

// VoiceConfig projects the config to the shape the resource pool consumes.
func (c TTSConfig) VoiceConfig() provider.VoiceConfig {
	vc := provider.VoiceConfig{
		VoiceID:  c.VoiceID,
		Provider: c.Provider,
		Speed:    c.Settings.Speed,
	}
	if c.Provider == provider.Chatterbox {
		vc.Chatterbox = &provider.ChatterboxOptions{
			Exaggeration: c.Settings.Exaggeration,
			CFGWeight:    c.Settings.CFGWeight,
			Language:     c.Settings.Language,
		}
	}
	return vc
}

// Job is one durable batch pre-generation job. Exactly one of ProfileID and
// TTSConfig is set.
type Job struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Type                JobType    `json:"type"`
	Status              JobStatus  `json:"status"`
	SourceType          string     `json:"source_type"`
	ProfileID           *string    `json:"profile_id,omitempty"`
	TTSConfig           *TTSConfig `json:"tts_config,omitempty"`
	OutputDir           string     `json:"output_dir"`
	TotalItems          int        `json:"total_items"`
	CompletedItems      int        `json:"completed_items"`
	FailedItems         int        `json:"failed_items"`
	CurrentIndex        int        `json:"current_index"`
	CurrentText         string     `json:"current_text,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           *string    `json:"last_error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	PausedAt            *time.Time `json:"paused_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// PendingItems is the count of items not yet in a terminal state.
func (j *Job) PendingItems() int {
	return j.TotalItems - j.CompletedItems - j.FailedItems
}

// Resumable reports whether the job can transition back to running.
func (j *Job) Resumable() bool {
	return j.Status == JobPaused || j.Status == JobFailed
}

type JobItemStatus string

const (
	ItemPending    JobItemStatus = "pending"
	ItemProcessing JobItemStatus = "processing"
	ItemCompleted  JobItemStatus = "completed"
	ItemFailed     JobItemStatus = "failed"
	ItemSkipped    JobItemStatus = "skipped"
)

type JobItem struct {
	ID                    string        `json:"id"`
	JobID                 string        `json:"job_id"`
	ItemIndex             int           `json:"item_index"`
	Text                  string        `json:"text"`
	TextHash              string        `json:"text_hash"` // full SHA-256 hex digest
	SourceRef             *string       `json:"source_ref,omitempty"`
	Status                JobItemStatus `json:"status"`
	AttemptCount          int           `json:"attempt_count"`
	OutputFile            *string       `json:"output_file,omitempty"`
	DurationSeconds       *float64      `json:"duration_seconds,omitempty"`
	FileSizeBytes         *int64        `json:"file_size_bytes,omitempty"`
	SampleRate            *int          `json:"sample_rate,omitempty"`
	LastError             *string       `json:"last_error,omitempty"`
	ProcessingStartedAt   *time.Time    `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time    `json:"processing_completed_at,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

// Profile is a named, reusable voice configuration.
type Profile struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Provider             provider.ID `json:"provider"`
	VoiceID              string      `json:"voice_id"`
	Settings             TTSSettings `json:"settings"`
	Description          string      `json:"description,omitempty"`
	Tags                 []string    `json:"tags,omitempty"`
	UseCase              string      `json:"use_case,omitempty"`
	IsActive             bool        `json:"is_active"`
	IsDefault            bool        `json:"is_default"`
	CreatedFromSessionID *string     `json:"created_from_session_id,omitempty"`
	SampleAudioPath      *string     `json:"sample_audio_path,omitempty"`
	SampleText           *string     `json:"sample_text,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// TTSConfig projects the profile to an inline config.
func (p *Profile) TTSConfig() TTSConfig {
	return TTSConfig{Provider: p.Provider, VoiceID: p.VoiceID, Settings: p.Settings}
}

// ModuleProfileBinding maps a learning module to a profile. Resolution picks
// the highest-priority active binding whose context matches.
type ModuleProfileBinding struct {
	ID        string    `json:"id"`
	ModuleID  string    `json:"module_id"`
	ProfileID string    `json:"profile_id"`
	Context   *string   `json:"context,omitempty"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

type ComparisonStatus string

const (
	ComparisonDraft      ComparisonStatus = "draft"
	ComparisonGenerating ComparisonStatus = "generating"
	ComparisonReady      ComparisonStatus = "ready"
	ComparisonArchived   ComparisonStatus = "archived"
)

// ComparisonSample is one text to synthesize across all configurations.
type ComparisonSample struct {
	Text      string  `json:"text"`
	SourceRef *string `json:"source_ref,omitempty"`
}

// ComparisonConfig is one candidate voice configuration.
type ComparisonConfig struct {
	Name     string      `json:"name"`
	Provider provider.ID `json:"provider"`
	VoiceID  string      `json:"voice_id"`
	Settings TTSSettings `json:"settings"`
}

func (c ComparisonConfig) TTSConfig() TTSConfig {
	return TTSConfig{Provider: c.Provider, VoiceID: c.VoiceID, Settings: c.Settings}
}

// ComparisonSessionConfig is fixed at session creation; the variant set is
// the cartesian product samples x configurations and never changes afterward.
type ComparisonSessionConfig struct {
	Samples        []ComparisonSample `json:"samples"`
	Configurations []ComparisonConfig `json:"configurations"`
}

type ComparisonSession struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Status    ComparisonStatus        `json:"status"`
	Config    ComparisonSessionConfig `json:"config"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

type VariantStatus string

const (
	VariantPending    VariantStatus = "pending"
	VariantGenerating VariantStatus = "generating"
	VariantReady      VariantStatus = "ready"
	VariantFailed     VariantStatus = "failed"
)

type ComparisonVariant struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	SampleIndex     int           `json:"sample_index"`
	ConfigIndex     int           `json:"config_index"`
	TTSConfig       TTSConfig     `json:"tts_config"`
	Status          VariantStatus `json:"status"`
	OutputFile      *string       `json:"output_file,omitempty"`
	DurationSeconds *float64      `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ComparisonRating is the single rating for a variant (upsert on variant ID).
type ComparisonRating struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variant_id"`
	Rating    int       `json:"rating"` // 1..5
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigSummary is the per-configuration aggregate for a comparison session,
// ranked by (AvgRating, RatingCount) descending.
type ConfigSummary struct {
	ConfigIndex  int     `json:"config_index"`
	ConfigName   string  `json:"config_name"`
	AvgRating    float64 `json:"avg_rating"`
	RatingCount  int     `json:"rating_count"`
	ReadyCount   int     `json:"ready_count"`
	FailedCount  int     `json:"failed_count"`
	VariantCount int     `json:"variant_count"`
}
