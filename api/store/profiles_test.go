package store

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func TestCreateProfile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	p := &domain.Profile{
		ID:       "prof_1",
		Name:     "Narrator",
		Provider: provider.VibeVoice,
		VoiceID:  "nova",
		Settings: domain.TTSSettings{Speed: 1.0},
		IsActive: true,
	}

	mock.ExpectExec("INSERT INTO tts_profiles").
		WithArgs(p.ID, p.Name, p.Provider, p.VoiceID, pgxmock.AnyArg(), p.Description,
			p.Tags, p.UseCase, p.IsActive, p.IsDefault, p.CreatedFromSessionID,
			p.SampleAudioPath, p.SampleText, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := s.CreateProfile(setupMockContext(mock), p); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func profileRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "provider", "voice_id", "settings", "description", "tags",
		"use_case", "is_active", "is_default", "created_from_session_id",
		"sample_audio_path", "sample_text", "created_at", "updated_at",
	})
}

func TestGetProfile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM tts_profiles").
		WithArgs("prof_1").
		WillReturnRows(profileRows().AddRow(
			"prof_1", "Narrator", "vibevoice", "nova", []byte(`{"speed":1.25}`), "",
			[]string{"lesson"}, "", true, false, nil, nil, nil, now, now))

	p, err := s.GetProfile(setupMockContext(mock), "prof_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Provider != provider.VibeVoice {
		t.Errorf("expected provider vibevoice, got %s", p.Provider)
	}
	if p.Settings.Speed != 1.25 {
		t.Errorf("expected speed 1.25, got %v", p.Settings.Speed)
	}
	if len(p.Tags) != 1 || p.Tags[0] != "lesson" {
		t.Errorf("unexpected tags: %v", p.Tags)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}

	mock.ExpectQuery("SELECT (.+) FROM tts_profiles").
		WithArgs("prof_missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.GetProfile(setupMockContext(mock), "prof_missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListProfilesActiveOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM tts_profiles WHERE is_active = TRUE").
		WillReturnRows(profileRows().
			AddRow("prof_1", "A", "piper", "amy", []byte(`{"speed":1}`), "", []string{}, "",
				true, true, nil, nil, nil, now, now).
			AddRow("prof_2", "B", "chatterbox", "ryan", []byte(`{"speed":0.9,"exaggeration":0.5}`),
				"", []string{}, "", true, false, nil, nil, nil, now, now))

	profiles, err := s.ListProfiles(setupMockContext(mock), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[1].Settings.Exaggeration == nil || *profiles[1].Settings.Exaggeration != 0.5 {
		t.Errorf("expected exaggeration 0.5, got %v", profiles[1].Settings.Exaggeration)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateProfileNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	p := &domain.Profile{ID: "prof_gone", Name: "X", Provider: provider.Piper, VoiceID: "amy"}

	mock.ExpectExec("UPDATE tts_profiles").
		WithArgs(p.ID, p.Name, p.Provider, p.VoiceID, pgxmock.AnyArg(), p.Description,
			p.Tags, p.UseCase, p.IsActive, p.IsDefault, p.SampleAudioPath, p.SampleText,
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.UpdateProfile(setupMockContext(mock), p)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeactivateProfile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}

	mock.ExpectExec("UPDATE tts_profiles").
		WithArgs("prof_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := s.DeactivateProfile(setupMockContext(mock), "prof_1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
