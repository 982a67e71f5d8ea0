// Package kb pre-generates and serves knowledge-bowl audio. Each module gets
// a fixed on-disk layout suitable for direct HTTP serving:
//
//	baseDir/<moduleID>/<questionID>/{question,answer,explanation,hint_<i>}.wav
//	baseDir/<moduleID>/manifest.json
//	baseDir/feedback/{correct,incorrect}.wav
package kb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/audio/wavutil"
)

var ErrInvalidPath = errors.New("invalid audio path component")

type FeedbackType string

const (
	FeedbackCorrect   FeedbackType = "correct"
	FeedbackIncorrect FeedbackType = "incorrect"
)

// Synthesizer is the slice of the resource pool the manager needs.
type Synthesizer interface {
	Generate(ctx context.Context, req pool.Request) (*pool.Result, error)
}

// ManifestEntry summarizes the generated audio for one question.
type ManifestEntry struct {
	QuestionID string   `json:"question_id"`
	Files      []string `json:"files"`
	SizeBytes  int64    `json:"size_bytes"`
	Duration   float64  `json:"duration_seconds"`
}

type Manifest struct {
	ModuleID      string          `json:"module_id"`
	GeneratedAt   time.Time       `json:"generated_at"`
	VoiceID       string          `json:"voice_id"`
	Provider      provider.ID     `json:"provider"`
	Questions     []ManifestEntry `json:"questions"`
	TotalSize     int64           `json:"total_size_bytes"`
	TotalDuration float64         `json:"total_duration_seconds"`
}

// ModuleResult reports one PrefetchModule run.
type ModuleResult struct {
	ModuleID  string `json:"module_id"`
	Total     int    `json:"total"`
	Generated int    `json:"generated"`
	Reused    int    `json:"reused"`
	Failed    int    `json:"failed"`
	Cancelled bool   `json:"cancelled"`
}

// CoverageStatus diffs expected segments against on-disk files.
type CoverageStatus struct {
	ModuleID string  `json:"module_id"`
	Expected int     `json:"expected"`
	Present  int     `json:"present"`
	Missing  int     `json:"missing"`
	Percent  float64 `json:"percent"`
}

type Manager struct {
	baseDir string
	tts     Synthesizer

	mu     sync.Mutex
	active map[string]context.CancelFunc // moduleID -> cancel
}

func NewManager(baseDir string, tts Synthesizer) *Manager {
	return &Manager{
		baseDir: baseDir,
		tts:     tts,
		active:  make(map[string]context.CancelFunc),
	}
}

// PrefetchModule generates every missing segment of the module at SCHEDULED
// priority (module pre-generation is batch work, unlike the PREFETCH-priority
// playback lookahead). Existing files are reused unless forceRegenerate. The
// manifest is written atomically only when the run was not cancelled.
func (m *Manager) PrefetchModule(ctx context.Context, moduleID string, content ModuleContent, voice provider.VoiceConfig, forceRegenerate bool) (*ModuleResult, error) {
	if err := validateComponent(moduleID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if prior, ok := m.active[moduleID]; ok {
		prior()
	}
	m.active[moduleID] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.active, moduleID)
		m.mu.Unlock()
	}()

	segments := ExtractSegments(content)
	result := &ModuleResult{ModuleID: moduleID, Total: len(segments)}
	manifest := Manifest{
		ModuleID:    moduleID,
		GeneratedAt: time.Now(),
		VoiceID:     voice.VoiceID,
		Provider:    voice.Provider,
	}
	entries := make(map[string]*ManifestEntry)

	for _, segment := range segments {
		if ctx.Err() != nil {
			result.Cancelled = true
			slog.Info("kb: module prefetch cancelled", "module", moduleID)
			return result, nil
		}
		if err := validateComponent(segment.QuestionID); err != nil {
			slog.Warn("kb: skipping question with unsafe id", "module", moduleID, "question", segment.QuestionID)
			result.Failed++
			continue
		}

		dir := filepath.Join(m.baseDir, moduleID, segment.QuestionID)
		path := filepath.Join(dir, segment.FileName())

		var sizeBytes int64
		var duration float64
		if info, err := os.Stat(path); err == nil && !forceRegenerate {
			// Duration from file size is only correct for 16-bit mono PCM
			// at the provider rate; that is the only format we write.
			sizeBytes = info.Size()
			duration = wavutil.EstimateDuration(int(info.Size()), voice.Provider.SampleRate())
			result.Reused++
		} else {
			gen, err := m.tts.Generate(ctx, pool.Request{
				Text:       segment.Text,
				VoiceID:    voice.VoiceID,
				Provider:   voice.Provider,
				Speed:      voice.Speed,
				Chatterbox: voice.Chatterbox,
				Priority:   pool.Scheduled,
			})
			if err != nil {
				if ctx.Err() != nil {
					result.Cancelled = true
					return result, nil
				}
				slog.Warn("kb: segment generation failed", "module", moduleID, "question", segment.QuestionID, "error", err)
				result.Failed++
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return result, fmt.Errorf("create question dir: %w", err)
			}
			if err := os.WriteFile(path, gen.Audio, 0o644); err != nil {
				return result, fmt.Errorf("write segment audio: %w", err)
			}
			sizeBytes = int64(len(gen.Audio))
			duration = gen.DurationSeconds
			result.Generated++
		}

		entry, ok := entries[segment.QuestionID]
		if !ok {
			entry = &ManifestEntry{QuestionID: segment.QuestionID}
			entries[segment.QuestionID] = entry
		}
		entry.Files = append(entry.Files, segment.FileName())
		entry.SizeBytes += sizeBytes
		entry.Duration += duration
		manifest.TotalSize += sizeBytes
		manifest.TotalDuration += duration
	}

	for _, q := range content.Questions {
		if entry, ok := entries[q.ID]; ok {
			manifest.Questions = append(manifest.Questions, *entry)
		}
	}

	if err := m.writeManifest(moduleID, manifest); err != nil {
		return result, err
	}
	slog.Info("kb: module prefetch complete",
		"module", moduleID,
		"generated", result.Generated,
		"reused", result.Reused,
		"failed", result.Failed)
	return result, nil
}

func (m *Manager) writeManifest(moduleID string, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	dir := filepath.Join(m.baseDir, moduleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create module dir: %w", err)
	}
	path := filepath.Join(dir, "manifest.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Manifest loads a module's manifest.
func (m *Manager) Manifest(moduleID string) (*Manifest, error) {
	if err := validateComponent(moduleID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(m.baseDir, moduleID, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}

// GetAudio returns the raw bytes of one segment file. Every path component is
// validated and the resolved path must stay inside baseDir.
func (m *Manager) GetAudio(moduleID, questionID string, segmentType SegmentType, hintIndex int) ([]byte, error) {
	if err := validateComponent(moduleID); err != nil {
		return nil, err
	}
	if err := validateComponent(questionID); err != nil {
		return nil, err
	}
	segment := Segment{QuestionID: questionID, Type: segmentType, HintIndex: hintIndex}
	switch segmentType {
	case SegmentQuestion, SegmentAnswer, SegmentExplanation:
	case SegmentHint:
		if hintIndex < 0 {
			return nil, ErrInvalidPath
		}
	default:
		return nil, ErrInvalidPath
	}

	path := filepath.Join(m.baseDir, moduleID, questionID, segment.FileName())
	if err := m.ensureInsideBase(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// GetFeedbackAudio returns the shared correct/incorrect clip.
func (m *Manager) GetFeedbackAudio(kind FeedbackType) ([]byte, error) {
	switch kind {
	case FeedbackCorrect, FeedbackIncorrect:
	default:
		return nil, ErrInvalidPath
	}
	path := filepath.Join(m.baseDir, "feedback", string(kind)+".wav")
	if err := m.ensureInsideBase(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// GenerateFeedbackAudio synthesizes the two shared feedback clips.
func (m *Manager) GenerateFeedbackAudio(ctx context.Context, voice provider.VoiceConfig) error {
	phrases := map[FeedbackType]string{
		FeedbackCorrect:   "That's correct!",
		FeedbackIncorrect: "Not quite, let's try the next one.",
	}
	dir := filepath.Join(m.baseDir, "feedback")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create feedback dir: %w", err)
	}
	for kind, phrase := range phrases {
		path := filepath.Join(dir, string(kind)+".wav")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		result, err := m.tts.Generate(ctx, pool.Request{
			Text:       phrase,
			VoiceID:    voice.VoiceID,
			Provider:   voice.Provider,
			Speed:      voice.Speed,
			Chatterbox: voice.Chatterbox,
			Priority:   pool.Scheduled,
		})
		if err != nil {
			return fmt.Errorf("generate %s feedback: %w", kind, err)
		}
		if err := os.WriteFile(path, result.Audio, 0o644); err != nil {
			return fmt.Errorf("write %s feedback: %w", kind, err)
		}
	}
	return nil
}

// GetCoverageStatus diffs the expected segments against on-disk files.
func (m *Manager) GetCoverageStatus(moduleID string, content ModuleContent) (*CoverageStatus, error) {
	if err := validateComponent(moduleID); err != nil {
		return nil, err
	}
	segments := ExtractSegments(content)
	status := &CoverageStatus{ModuleID: moduleID, Expected: len(segments)}
	for _, segment := range segments {
		path := filepath.Join(m.baseDir, moduleID, segment.QuestionID, segment.FileName())
		if _, err := os.Stat(path); err == nil {
			status.Present++
		}
	}
	status.Missing = status.Expected - status.Present
	if status.Expected > 0 {
		status.Percent = 100 * float64(status.Present) / float64(status.Expected)
	}
	return status, nil
}

// CancelModule stops an in-flight module prefetch.
func (m *Manager) CancelModule(moduleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.active[moduleID]
	if ok {
		cancel()
	}
	return ok
}

// validateComponent rejects anything that could escape the base directory
// when used as a single path element.
func validateComponent(s string) error {
	if s == "" ||
		strings.Contains(s, "..") ||
		strings.ContainsAny(s, `/\`) ||
		filepath.IsAbs(s) {
		return ErrInvalidPath
	}
	return nil
}

// ensureInsideBase verifies the fully resolved path is a descendant of baseDir.
func (m *Manager) ensureInsideBase(path string) error {
	rel, err := filepath.Rel(m.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		slog.Warn("kb: path escapes base directory", "path", path)
		return ErrInvalidPath
	}
	return nil
}
