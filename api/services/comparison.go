package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/shared/id"
)

// comparisonStore is the slice of the store the comparison service uses.
type comparisonStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateComparisonSession(ctx context.Context, cs *domain.ComparisonSession) error
	GetComparisonSession(ctx context.Context, id string) (*domain.ComparisonSession, error)
	ListComparisonSessions(ctx context.Context) ([]*domain.ComparisonSession, error)
	UpdateComparisonStatus(ctx context.Context, id string, status domain.ComparisonStatus) error
	DeleteComparisonSession(ctx context.Context, id string) error
	CreateVariants(ctx context.Context, variants []*domain.ComparisonVariant) error
	ListVariants(ctx context.Context, sessionID string) ([]*domain.ComparisonVariant, error)
	GetVariant(ctx context.Context, id string) (*domain.ComparisonVariant, error)
	UpdateVariantStatus(ctx context.Context, id string, status domain.VariantStatus) error
	MarkVariantReady(ctx context.Context, id, outputFile string, duration float64) error
	UpsertRating(ctx context.Context, r *domain.ComparisonRating) error
	SessionSummary(ctx context.Context, sessionID string) ([]*domain.ConfigSummary, error)
	UpdateProfile(ctx context.Context, p *domain.Profile) error
}

// ComparisonService runs A/B voice evaluation sessions: a fixed matrix of
// sample texts times candidate configurations, rated by a human, with the
// winner promotable to a profile.
type ComparisonService struct {
	store    comparisonStore
	tts      Synthesizer
	profiles *ProfileService
	baseDir  string
}

func NewComparisonService(st comparisonStore, tts Synthesizer, profiles *ProfileService, baseDir string) *ComparisonService {
	return &ComparisonService{store: st, tts: tts, profiles: profiles, baseDir: baseDir}
}

type CreateComparisonRequest struct {
	Name   string                         `json:"name"`
	Config domain.ComparisonSessionConfig `json:"config"`
}

// Create validates and persists a draft session with its full variant matrix.
// The matrix is fixed here; later edits to samples or configs are not allowed.
func (s *ComparisonService) Create(ctx context.Context, req CreateComparisonRequest) (*domain.ComparisonSession, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("session name is required: %w", domain.ErrInvalidInput)
	}
	if len(req.Config.Samples) == 0 {
		return nil, fmt.Errorf("at least one sample is required: %w", domain.ErrInvalidInput)
	}
	if len(req.Config.Configurations) == 0 {
		return nil, fmt.Errorf("at least one configuration is required: %w", domain.ErrInvalidInput)
	}
	for i, sample := range req.Config.Samples {
		if strings.TrimSpace(sample.Text) == "" {
			return nil, fmt.Errorf("sample %d is empty: %w", i, domain.ErrInvalidInput)
		}
	}
	for i, cfg := range req.Config.Configurations {
		if !cfg.Provider.Valid() {
			return nil, fmt.Errorf("configuration %d: unknown provider %q: %w", i, cfg.Provider, domain.ErrInvalidInput)
		}
		if strings.TrimSpace(cfg.VoiceID) == "" {
			return nil, fmt.Errorf("configuration %d: voice_id is required: %w", i, domain.ErrInvalidInput)
		}
		if cfg.Settings.Speed <= 0 {
			req.Config.Configurations[i].Settings.Speed = 1.0
		}
	}

	session := &domain.ComparisonSession{
		ID:     id.NewComparison(),
		Name:   req.Name,
		Status: domain.ComparisonDraft,
		Config: req.Config,
	}

	variants := make([]*domain.ComparisonVariant, 0, len(req.Config.Samples)*len(req.Config.Configurations))
	for si := range req.Config.Samples {
		for ci, cfg := range req.Config.Configurations {
			variants = append(variants, &domain.ComparisonVariant{
				ID:          id.NewVariant(),
				SessionID:   session.ID,
				SampleIndex: si,
				ConfigIndex: ci,
				TTSConfig:   cfg.TTSConfig(),
				Status:      domain.VariantPending,
			})
		}
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateComparisonSession(ctx, session); err != nil {
			return err
		}
		return s.store.CreateVariants(ctx, variants)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ComparisonService) Get(ctx context.Context, sessionID string) (*domain.ComparisonSession, error) {
	return s.store.GetComparisonSession(ctx, sessionID)
}

func (s *ComparisonService) List(ctx context.Context) ([]*domain.ComparisonSession, error) {
	return s.store.ListComparisonSessions(ctx)
}

func (s *ComparisonService) Variants(ctx context.Context, sessionID string) ([]*domain.ComparisonVariant, error) {
	if _, err := s.store.GetComparisonSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListVariants(ctx, sessionID)
}

// Generate synthesizes the session's variants in the background at scheduled
// priority, so a batch of comparison clips never starves live playback. By
// default only non-ready variants are (re)generated; regenerate redoes the
// whole matrix.
func (s *ComparisonService) Generate(ctx context.Context, sessionID string, regenerate bool) error {
	session, err := s.store.GetComparisonSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.ComparisonGenerating {
		return fmt.Errorf("session %s is already generating: %w", sessionID, domain.ErrInvalidState)
	}
	if err := s.store.UpdateComparisonStatus(ctx, sessionID, domain.ComparisonGenerating); err != nil {
		return err
	}

	go s.generateVariants(session, regenerate)
	return nil
}

// generateVariants is the background worker behind Generate. Individual
// failures mark the variant failed and do not stop the rest. The session ends
// ready when at least one variant is, and falls back to draft when none are.
func (s *ComparisonService) generateVariants(session *domain.ComparisonSession, regenerate bool) {
	ctx := context.Background()
	dir := filepath.Join(s.baseDir, session.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("comparison: create session dir", "session_id", session.ID, "error", err)
		return
	}

	variants, err := s.store.ListVariants(ctx, session.ID)
	if err != nil {
		slog.Error("comparison: list variants", "session_id", session.ID, "error", err)
		return
	}

	ready := 0
	for _, v := range variants {
		if v.Status == domain.VariantReady && !regenerate {
			ready++
			continue
		}
		sample := session.Config.Samples[v.SampleIndex]
		voice := v.TTSConfig.VoiceConfig()

		if err := s.store.UpdateVariantStatus(ctx, v.ID, domain.VariantGenerating); err != nil {
			slog.Error("comparison: mark generating", "variant_id", v.ID, "error", err)
			continue
		}

		result, err := s.tts.Generate(ctx, pool.Request{
			Text:       sample.Text,
			VoiceID:    voice.VoiceID,
			Provider:   voice.Provider,
			Speed:      voice.Speed,
			Chatterbox: voice.Chatterbox,
			Priority:   pool.Scheduled,
		})
		if err != nil {
			slog.Warn("comparison: variant generation failed",
				"session_id", session.ID, "variant_id", v.ID, "error", err)
			if err := s.store.UpdateVariantStatus(ctx, v.ID, domain.VariantFailed); err != nil {
				slog.Error("comparison: mark failed", "variant_id", v.ID, "error", err)
			}
			continue
		}

		fileName := fmt.Sprintf("variant_%d_%d.wav", v.SampleIndex, v.ConfigIndex)
		if err := os.WriteFile(filepath.Join(dir, fileName), result.Audio, 0o644); err != nil {
			slog.Error("comparison: write variant", "variant_id", v.ID, "error", err)
			if err := s.store.UpdateVariantStatus(ctx, v.ID, domain.VariantFailed); err != nil {
				slog.Error("comparison: mark failed", "variant_id", v.ID, "error", err)
			}
			continue
		}
		if err := s.store.MarkVariantReady(ctx, v.ID, fileName, result.DurationSeconds); err != nil {
			slog.Error("comparison: mark ready", "variant_id", v.ID, "error", err)
			continue
		}
		ready++
	}

	status := domain.ComparisonReady
	if ready == 0 {
		status = domain.ComparisonDraft
	}
	if err := s.store.UpdateComparisonStatus(ctx, session.ID, status); err != nil {
		slog.Error("comparison: update session status", "session_id", session.ID, "error", err)
	}
	slog.Info("comparison: generation finished",
		"session_id", session.ID, "status", status, "ready", ready, "variants", len(variants))
}

// VariantAudio returns the synthesized clip for a ready variant.
func (s *ComparisonService) VariantAudio(ctx context.Context, variantID string) ([]byte, error) {
	v, err := s.store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if v.Status != domain.VariantReady || v.OutputFile == nil {
		return nil, fmt.Errorf("variant %s is %s: %w", variantID, v.Status, domain.ErrInvalidState)
	}
	path := filepath.Join(s.baseDir, v.SessionID, filepath.Base(*v.OutputFile))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variant audio: %w", err)
	}
	return data, nil
}

// Rate records a 1-5 rating for a variant, replacing any prior rating.
func (s *ComparisonService) Rate(ctx context.Context, variantID string, rating int, notes string) (*domain.ComparisonRating, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5: %w", domain.ErrInvalidInput)
	}
	if _, err := s.store.GetVariant(ctx, variantID); err != nil {
		return nil, err
	}
	r := &domain.ComparisonRating{
		ID:        id.NewRating(),
		VariantID: variantID,
		Rating:    rating,
		Notes:     notes,
	}
	if err := s.store.UpsertRating(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Summary ranks the configurations by average rating. Config names come from
// the session config, not the aggregate query.
func (s *ComparisonService) Summary(ctx context.Context, sessionID string) ([]*domain.ConfigSummary, error) {
	session, err := s.store.GetComparisonSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.store.SessionSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, cs := range summaries {
		if cs.ConfigIndex >= 0 && cs.ConfigIndex < len(session.Config.Configurations) {
			cs.ConfigName = session.Config.Configurations[cs.ConfigIndex].Name
		}
	}
	return summaries, nil
}

// CreateProfileFromVariant promotes the configuration behind a rated variant
// into a voice profile, recording which session it came from.
func (s *ComparisonService) CreateProfileFromVariant(ctx context.Context, variantID, profileName string) (*domain.Profile, error) {
	v, err := s.store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	session, err := s.store.GetComparisonSession(ctx, v.SessionID)
	if err != nil {
		return nil, err
	}
	if v.ConfigIndex < 0 || v.ConfigIndex >= len(session.Config.Configurations) {
		return nil, fmt.Errorf("variant %s config index %d out of range: %w",
			variantID, v.ConfigIndex, domain.ErrInvalidInput)
	}
	cfg := session.Config.Configurations[v.ConfigIndex]

	name := strings.TrimSpace(profileName)
	if name == "" {
		name = cfg.Name
	}

	p, err := s.profiles.Create(ctx, CreateProfileRequest{
		Name:     name,
		Provider: string(cfg.Provider),
		VoiceID:  cfg.VoiceID,
		Settings: cfg.Settings,
	})
	if err != nil {
		return nil, err
	}

	p.CreatedFromSessionID = &v.SessionID
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the session, its variants and ratings (by cascade), and the
// generated audio directory. Profiles promoted from the session survive with
// their session reference cleared.
func (s *ComparisonService) Delete(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteComparisonSession(ctx, sessionID); err != nil {
		return err
	}
	dir := filepath.Join(s.baseDir, sessionID)
	rel, err := filepath.Rel(s.baseDir, dir)
	if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("comparison: remove session dir", "session_id", sessionID, "error", err)
		}
	}
	return nil
}
