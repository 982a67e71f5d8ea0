package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func jobRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "type", "status", "source_type", "profile_id", "tts_config",
		"output_dir", "total_items", "completed_items", "failed_items", "current_index",
		"current_text", "consecutive_failures", "last_error", "created_at", "started_at",
		"paused_at", "completed_at", "updated_at",
	})
}

func TestCreateJobWithInlineConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	j := &domain.Job{
		ID:     "job_1",
		Name:   "unit 3 batch",
		Type:   domain.JobTypeBatch,
		Status: domain.JobPending,
		TTSConfig: &domain.TTSConfig{
			Provider: provider.Piper,
			VoiceID:  "amy",
			Settings: domain.TTSSettings{Speed: 1.0},
		},
		OutputDir:  "/var/voxlearn/pregen/job_1",
		TotalItems: 42,
	}

	mock.ExpectExec("INSERT INTO tts_pregen_jobs").
		WithArgs(j.ID, j.Name, j.Type, j.Status, j.SourceType, j.ProfileID,
			pgxmock.AnyArg(), j.OutputDir, j.TotalItems, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := s.CreateJob(setupMockContext(mock), j); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJobParsesConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM tts_pregen_jobs").
		WithArgs("job_1").
		WillReturnRows(jobRows().AddRow(
			"job_1", "unit 3 batch", "batch", "running", "module", nil,
			[]byte(`{"provider":"chatterbox","voice_id":"ryan","settings":{"speed":0.9,"cfg_weight":0.7}}`),
			"/out", 42, 10, 1, 11, "current sentence", 0, nil, now, &now, nil, nil, now))

	j, err := s.GetJob(setupMockContext(mock), "job_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if j.TTSConfig == nil {
		t.Fatal("expected inline tts config")
	}
	if j.TTSConfig.Provider != provider.Chatterbox {
		t.Errorf("expected chatterbox, got %s", j.TTSConfig.Provider)
	}
	if j.TTSConfig.Settings.CFGWeight == nil || *j.TTSConfig.Settings.CFGWeight != 0.7 {
		t.Errorf("expected cfg_weight 0.7, got %v", j.TTSConfig.Settings.CFGWeight)
	}
	if j.PendingItems() != 31 {
		t.Errorf("expected 31 pending items, got %d", j.PendingItems())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJobWithProfileHasNoInlineConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	now := time.Now()
	profileID := "prof_1"

	mock.ExpectQuery("SELECT (.+) FROM tts_pregen_jobs").
		WithArgs("job_2").
		WillReturnRows(jobRows().AddRow(
			"job_2", "profile batch", "batch", "pending", "module", &profileID, nil,
			"/out", 5, 0, 0, 0, "", 0, nil, now, nil, nil, nil, now))

	j, err := s.GetJob(setupMockContext(mock), "job_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if j.TTSConfig != nil {
		t.Errorf("expected nil tts config, got %+v", j.TTSConfig)
	}
	if j.ProfileID == nil || *j.ProfileID != profileID {
		t.Errorf("expected profile %s, got %v", profileID, j.ProfileID)
	}
}

func TestUpdateJobStatusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}

	mock.ExpectExec("UPDATE tts_pregen_jobs").
		WithArgs("job_gone", domain.JobPaused).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.UpdateJobStatus(setupMockContext(mock), "job_gone", domain.JobPaused)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateJobProgress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	lastErr := "upstream timeout"
	j := &domain.Job{
		ID:                  "job_1",
		CompletedItems:      12,
		FailedItems:         2,
		CurrentIndex:        14,
		CurrentText:         "next sentence",
		ConsecutiveFailures: 1,
		LastError:           &lastErr,
	}

	mock.ExpectExec("UPDATE tts_pregen_jobs").
		WithArgs(j.ID, j.CompletedItems, j.FailedItems, j.CurrentIndex, j.CurrentText,
			j.ConsecutiveFailures, j.LastError, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := s.UpdateJobProgress(setupMockContext(mock), j); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
