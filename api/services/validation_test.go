package services

import (
	"context"
	"errors"
	"testing"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func TestCreateJobValidation(t *testing.T) {
	e := NewPregenEngine(nil, nil, t.TempDir())
	cfg := &domain.TTSConfig{Provider: provider.Piper, VoiceID: "amy", Settings: domain.TTSSettings{Speed: 1}}
	profileID := "prof_1"

	cases := []struct {
		name string
		req  CreateJobRequest
	}{
		{"empty name", CreateJobRequest{TTSConfig: cfg, Texts: []JobText{{Text: "hi"}}}},
		{"no texts", CreateJobRequest{Name: "j", TTSConfig: cfg}},
		{"neither profile nor config", CreateJobRequest{Name: "j", Texts: []JobText{{Text: "hi"}}}},
		{"both profile and config", CreateJobRequest{Name: "j", ProfileID: &profileID, TTSConfig: cfg, Texts: []JobText{{Text: "hi"}}}},
		{"unknown provider", CreateJobRequest{Name: "j", TTSConfig: &domain.TTSConfig{Provider: "espeak"}, Texts: []JobText{{Text: "hi"}}}},
		{"blank text", CreateJobRequest{Name: "j", TTSConfig: cfg, Texts: []JobText{{Text: "  "}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateJob(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBuildProfileDefaultsSpeed(t *testing.T) {
	s := NewProfileService(nil, nil, t.TempDir())

	p, err := s.buildProfile(CreateProfileRequest{
		Name:     "Narrator",
		Provider: "vibevoice",
		VoiceID:  "nova",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Settings.Speed != 1.0 {
		t.Errorf("expected default speed 1.0, got %v", p.Settings.Speed)
	}
	if !p.IsActive {
		t.Error("new profiles must start active")
	}
}

func TestBuildProfileRejectsBadInput(t *testing.T) {
	s := NewProfileService(nil, nil, t.TempDir())

	cases := []CreateProfileRequest{
		{Provider: "piper", VoiceID: "amy"},
		{Name: "X", Provider: "nope", VoiceID: "amy"},
		{Name: "X", Provider: "piper"},
	}
	for _, req := range cases {
		if _, err := s.buildProfile(req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("req %+v: expected ErrInvalidInput, got %v", req, err)
		}
	}
}

func TestComparisonCreateValidation(t *testing.T) {
	s := NewComparisonService(nil, nil, nil, t.TempDir())
	goodCfg := domain.ComparisonConfig{
		Name: "warm", Provider: provider.VibeVoice, VoiceID: "nova",
		Settings: domain.TTSSettings{Speed: 1},
	}

	cases := []struct {
		name string
		req  CreateComparisonRequest
	}{
		{"empty name", CreateComparisonRequest{Config: domain.ComparisonSessionConfig{
			Samples:        []domain.ComparisonSample{{Text: "hi"}},
			Configurations: []domain.ComparisonConfig{goodCfg},
		}}},
		{"no samples", CreateComparisonRequest{Name: "s", Config: domain.ComparisonSessionConfig{
			Configurations: []domain.ComparisonConfig{goodCfg},
		}}},
		{"no configs", CreateComparisonRequest{Name: "s", Config: domain.ComparisonSessionConfig{
			Samples: []domain.ComparisonSample{{Text: "hi"}},
		}}},
		{"blank sample", CreateComparisonRequest{Name: "s", Config: domain.ComparisonSessionConfig{
			Samples:        []domain.ComparisonSample{{Text: " "}},
			Configurations: []domain.ComparisonConfig{goodCfg},
		}}},
		{"bad provider", CreateComparisonRequest{Name: "s", Config: domain.ComparisonSessionConfig{
			Samples: []domain.ComparisonSample{{Text: "hi"}},
			Configurations: []domain.ComparisonConfig{
				{Name: "x", Provider: "espeak", VoiceID: "v"},
			},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRateRejectsOutOfRange(t *testing.T) {
	s := NewComparisonService(nil, nil, nil, t.TempDir())

	for _, rating := range []int{0, -1, 6} {
		_, err := s.Rate(context.Background(), "var_1", rating, "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("rating %d: expected ErrInvalidInput, got %v", rating, err)
		}
	}
}
