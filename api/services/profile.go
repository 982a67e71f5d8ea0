package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/shared/id"
	"github.com/voxlearn/voxlearn/shared/jsonutil"
)

// defaultSampleText is synthesized when a profile is created or its voice
// settings change, so the UI can preview the voice without a live call.
const defaultSampleText = "Welcome back. Let's pick up where you left off."

// profileStore is the slice of the store the profile service uses.
type profileStore interface {
	CreateProfile(ctx context.Context, p *domain.Profile) error
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	GetProfileByName(ctx context.Context, name string) (*domain.Profile, error)
	ListProfiles(ctx context.Context, activeOnly bool) ([]*domain.Profile, error)
	UpdateProfile(ctx context.Context, p *domain.Profile) error
	SetDefaultProfile(ctx context.Context, id string) error
	GetDefaultProfile(ctx context.Context) (*domain.Profile, error)
	DeactivateProfile(ctx context.Context, id string) error
	DeleteProfile(ctx context.Context, id string) error
	CountJobsForProfile(ctx context.Context, profileID string) (int, error)
	CreateBinding(ctx context.Context, b *domain.ModuleProfileBinding) error
	ListBindingsForModule(ctx context.Context, moduleID string) ([]*domain.ModuleProfileBinding, error)
	DeleteBinding(ctx context.Context, id string) error
	ResolveProfileForModule(ctx context.Context, moduleID, bindingContext string) (*domain.Profile, error)
}

// ProfileService manages voice profiles and their module bindings.
type ProfileService struct {
	store      profileStore
	tts        Synthesizer
	samplesDir string
}

func NewProfileService(st profileStore, tts Synthesizer, samplesDir string) *ProfileService {
	return &ProfileService{store: st, tts: tts, samplesDir: samplesDir}
}

type CreateProfileRequest struct {
	Name        string             `json:"name"`
	Provider    string             `json:"provider"`
	VoiceID     string             `json:"voice_id"`
	Settings    domain.TTSSettings `json:"settings"`
	Description string             `json:"description,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	UseCase     string             `json:"use_case,omitempty"`
	SampleText  string             `json:"sample_text,omitempty"`
}

func (s *ProfileService) Create(ctx context.Context, req CreateProfileRequest) (*domain.Profile, error) {
	p, err := s.buildProfile(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	s.generateSampleAsync(p, req.SampleText)
	return p, nil
}

func (s *ProfileService) buildProfile(req CreateProfileRequest) (*domain.Profile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("profile name is required: %w", domain.ErrInvalidInput)
	}
	prov, err := parseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, fmt.Errorf("voice_id is required: %w", domain.ErrInvalidInput)
	}
	if req.Settings.Speed <= 0 {
		req.Settings.Speed = 1.0
	}
	return &domain.Profile{
		ID:          id.NewProfile(),
		Name:        name,
		Provider:    prov,
		VoiceID:     req.VoiceID,
		Settings:    req.Settings,
		Description: req.Description,
		Tags:        req.Tags,
		UseCase:     req.UseCase,
		IsActive:    true,
	}, nil
}

// generateSampleAsync synthesizes the preview clip in the background at
// scheduled priority. Profile creation never blocks on the TTS upstream.
func (s *ProfileService) generateSampleAsync(p *domain.Profile, sampleText string) {
	if s.tts == nil {
		return
	}
	text := sampleText
	if strings.TrimSpace(text) == "" {
		text = defaultSampleText
	}
	voice := p.TTSConfig().VoiceConfig()

	go func() {
		ctx := context.Background()
		result, err := s.tts.Generate(ctx, pool.Request{
			Text:       text,
			VoiceID:    voice.VoiceID,
			Provider:   voice.Provider,
			Speed:      voice.Speed,
			Chatterbox: voice.Chatterbox,
			Priority:   pool.Scheduled,
		})
		if err != nil {
			slog.Warn("profile: sample generation failed", "profile_id", p.ID, "error", err)
			return
		}
		if err := os.MkdirAll(s.samplesDir, 0o755); err != nil {
			slog.Warn("profile: create samples dir", "error", err)
			return
		}
		path := filepath.Join(s.samplesDir, p.ID+".wav")
		if err := os.WriteFile(path, result.Audio, 0o644); err != nil {
			slog.Warn("profile: write sample", "profile_id", p.ID, "error", err)
			return
		}

		fresh, err := s.store.GetProfile(ctx, p.ID)
		if err != nil {
			slog.Warn("profile: reload for sample update", "profile_id", p.ID, "error", err)
			return
		}
		fresh.SampleAudioPath = &path
		fresh.SampleText = &text
		if err := s.store.UpdateProfile(ctx, fresh); err != nil {
			slog.Warn("profile: persist sample path", "profile_id", p.ID, "error", err)
		}
	}()
}

func (s *ProfileService) Get(ctx context.Context, profileID string) (*domain.Profile, error) {
	return s.store.GetProfile(ctx, profileID)
}

func (s *ProfileService) List(ctx context.Context, activeOnly bool) ([]*domain.Profile, error) {
	return s.store.ListProfiles(ctx, activeOnly)
}

type UpdateProfileRequest struct {
	Name        *string             `json:"name,omitempty"`
	VoiceID     *string             `json:"voice_id,omitempty"`
	Settings    *domain.TTSSettings `json:"settings,omitempty"`
	Description *string             `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	UseCase     *string             `json:"use_case,omitempty"`
}

func (s *ProfileService) Update(ctx context.Context, profileID string, req UpdateProfileRequest) (*domain.Profile, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	voiceChanged := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("profile name cannot be empty: %w", domain.ErrInvalidInput)
		}
		p.Name = name
	}
	if req.VoiceID != nil {
		if strings.TrimSpace(*req.VoiceID) == "" {
			return nil, fmt.Errorf("voice_id cannot be empty: %w", domain.ErrInvalidInput)
		}
		if *req.VoiceID != p.VoiceID {
			voiceChanged = true
		}
		p.VoiceID = *req.VoiceID
	}
	if req.Settings != nil {
		if req.Settings.Speed <= 0 {
			req.Settings.Speed = 1.0
		}
		p.Settings = *req.Settings
		voiceChanged = true
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Tags != nil {
		p.Tags = req.Tags
	}
	if req.UseCase != nil {
		p.UseCase = *req.UseCase
	}

	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	if voiceChanged {
		sampleText := ""
		if p.SampleText != nil {
			sampleText = *p.SampleText
		}
		s.generateSampleAsync(p, sampleText)
	}
	return p, nil
}

func (s *ProfileService) SetDefault(ctx context.Context, profileID string) error {
	return s.store.SetDefaultProfile(ctx, profileID)
}

// Delete soft-deletes by default. With hard=true the row is removed, refused
// while jobs still reference it.
func (s *ProfileService) Delete(ctx context.Context, profileID string, hard bool) error {
	if !hard {
		return s.store.DeactivateProfile(ctx, profileID)
	}
	n, err := s.store.CountJobsForProfile(ctx, profileID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("profile %s is referenced by %d jobs: %w", profileID, n, domain.ErrConflict)
	}
	if err := s.store.DeleteProfile(ctx, profileID); err != nil {
		return err
	}
	samplePath := filepath.Join(s.samplesDir, profileID+".wav")
	if err := os.Remove(samplePath); err != nil && !os.IsNotExist(err) {
		slog.Warn("profile: remove sample", "profile_id", profileID, "error", err)
	}
	return nil
}

// Duplicate clones a profile under a new name, settings included. The sample
// clip is regenerated rather than copied since the name is part of the clip's
// identity in the UI.
func (s *ProfileService) Duplicate(ctx context.Context, profileID, newName string) (*domain.Profile, error) {
	src, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(newName)
	if name == "" {
		name = src.Name + " (copy)"
	}
	clone := &domain.Profile{
		ID:          id.NewProfile(),
		Name:        name,
		Provider:    src.Provider,
		VoiceID:     src.VoiceID,
		Settings:    src.Settings,
		Description: src.Description,
		Tags:        src.Tags,
		UseCase:     src.UseCase,
		IsActive:    true,
	}
	if err := s.store.CreateProfile(ctx, clone); err != nil {
		return nil, err
	}
	sampleText := ""
	if src.SampleText != nil {
		sampleText = *src.SampleText
	}
	s.generateSampleAsync(clone, sampleText)
	return clone, nil
}

// profileExport is the portable JSON shape; IDs and local paths stay behind.
type profileExport struct {
	Name        string             `json:"name"`
	Provider    string             `json:"provider"`
	VoiceID     string             `json:"voice_id"`
	Settings    domain.TTSSettings `json:"settings"`
	Description string             `json:"description,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	UseCase     string             `json:"use_case,omitempty"`
}

func (s *ProfileService) Export(ctx context.Context, profileID string) ([]byte, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return jsonutil.MustMarshalIndent(profileExport{
		Name:        p.Name,
		Provider:    string(p.Provider),
		VoiceID:     p.VoiceID,
		Settings:    p.Settings,
		Description: p.Description,
		Tags:        p.Tags,
		UseCase:     p.UseCase,
	}), nil
}

// Import creates a profile from an exported document. A name collision gets a
// numeric suffix instead of failing, so bulk imports are idempotent-ish.
func (s *ProfileService) Import(ctx context.Context, data []byte) (*domain.Profile, error) {
	var exp profileExport
	if err := jsonutil.ParseJSON(data, &exp); err != nil {
		return nil, fmt.Errorf("parse profile export: %w", domain.ErrInvalidInput)
	}

	name := strings.TrimSpace(exp.Name)
	for i := 2; ; i++ {
		_, err := s.store.GetProfileByName(ctx, name)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		name = fmt.Sprintf("%s (%d)", strings.TrimSpace(exp.Name), i)
	}

	return s.Create(ctx, CreateProfileRequest{
		Name:        name,
		Provider:    exp.Provider,
		VoiceID:     exp.VoiceID,
		Settings:    exp.Settings,
		Description: exp.Description,
		Tags:        exp.Tags,
		UseCase:     exp.UseCase,
	})
}

type BindProfileRequest struct {
	ModuleID  string  `json:"module_id"`
	ProfileID string  `json:"profile_id"`
	Context   *string `json:"context,omitempty"`
	Priority  int     `json:"priority"`
}

func (s *ProfileService) BindModule(ctx context.Context, req BindProfileRequest) (*domain.ModuleProfileBinding, error) {
	if strings.TrimSpace(req.ModuleID) == "" {
		return nil, fmt.Errorf("module_id is required: %w", domain.ErrInvalidInput)
	}
	if _, err := s.store.GetProfile(ctx, req.ProfileID); err != nil {
		return nil, err
	}
	b := &domain.ModuleProfileBinding{
		ID:        id.NewBinding(),
		ModuleID:  req.ModuleID,
		ProfileID: req.ProfileID,
		Context:   req.Context,
		Priority:  req.Priority,
	}
	if err := s.store.CreateBinding(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *ProfileService) ListBindings(ctx context.Context, moduleID string) ([]*domain.ModuleProfileBinding, error) {
	return s.store.ListBindingsForModule(ctx, moduleID)
}

func (s *ProfileService) UnbindModule(ctx context.Context, bindingID string) error {
	return s.store.DeleteBinding(ctx, bindingID)
}

// SampleAudio returns the stored preview clip for a profile. The clip is
// generated asynchronously on create and on voice changes, so a freshly
// created profile can 404 here for a moment.
func (s *ProfileService) SampleAudio(ctx context.Context, profileID string) ([]byte, error) {
	if _, err := s.store.GetProfile(ctx, profileID); err != nil {
		return nil, err
	}
	audio, err := os.ReadFile(filepath.Join(s.samplesDir, profileID+".wav"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("sample for profile %s not ready: %w", profileID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return audio, nil
}

// ResolveForModule returns the profile to use for a module: the best matching
// active binding, then the default profile, then ErrNotFound.
func (s *ProfileService) ResolveForModule(ctx context.Context, moduleID, bindingContext string) (*domain.Profile, error) {
	p, err := s.store.ResolveProfileForModule(ctx, moduleID, bindingContext)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.store.GetDefaultProfile(ctx)
}
