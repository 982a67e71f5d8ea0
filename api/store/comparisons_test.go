package store

import (
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func TestGetComparisonSessionParsesConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	now := time.Now()
	cfg := []byte(`{
		"samples": [{"text": "Hello there."}, {"text": "Goodbye."}],
		"configurations": [
			{"name": "warm", "provider": "vibevoice", "voice_id": "nova", "settings": {"speed": 1.0}},
			{"name": "crisp", "provider": "piper", "voice_id": "amy", "settings": {"speed": 1.1}}
		]
	}`)

	mock.ExpectQuery("SELECT (.+) FROM tts_comparison_sessions").
		WithArgs("cmp_1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "status", "config", "created_at", "updated_at",
		}).AddRow("cmp_1", "voice bakeoff", "ready", cfg, now, now))

	cs, err := s.GetComparisonSession(setupMockContext(mock), "cmp_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cs.Config.Samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(cs.Config.Samples))
	}
	if len(cs.Config.Configurations) != 2 {
		t.Errorf("expected 2 configurations, got %d", len(cs.Config.Configurations))
	}
	if cs.Config.Configurations[1].Provider != provider.Piper {
		t.Errorf("expected piper, got %s", cs.Config.Configurations[1].Provider)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertRating(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	now := time.Now()
	r := &domain.ComparisonRating{ID: "rate_1", VariantID: "var_1", Rating: 4, Notes: "clear"}

	mock.ExpectQuery("INSERT INTO tts_comparison_ratings").
		WithArgs(r.ID, r.VariantID, r.Rating, r.Notes, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("rate_0", now.Add(-time.Hour), now))

	if err := s.UpsertRating(setupMockContext(mock), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// On conflict the existing row's identity wins.
	if r.ID != "rate_0" {
		t.Errorf("expected id rate_0, got %s", r.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSessionSummaryRanking(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}

	mock.ExpectQuery("SELECT (.+) FROM tts_comparison_variants").
		WithArgs("cmp_1").
		WillReturnRows(pgxmock.NewRows([]string{
			"config_index", "config_name", "avg_rating", "rating_count",
			"ready_count", "failed_count", "variant_count",
		}).
			AddRow(1, "amy", 4.5, 4, 4, 0, 4).
			AddRow(0, "nova", 3.0, 2, 3, 1, 4))

	summaries, err := s.SessionSummary(setupMockContext(mock), "cmp_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ConfigIndex != 1 || summaries[0].AvgRating != 4.5 {
		t.Errorf("expected config 1 ranked first, got %+v", summaries[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListVariantsOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}
	now := time.Now()
	cfg := []byte(`{"provider":"vibevoice","voice_id":"nova","settings":{"speed":1}}`)

	mock.ExpectQuery("SELECT (.+) FROM tts_comparison_variants").
		WithArgs("cmp_1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "session_id", "sample_index", "config_index", "tts_config", "status",
			"output_file", "duration_seconds", "created_at",
		}).
			AddRow("var_1", "cmp_1", 0, 0, cfg, "ready", nil, nil, now).
			AddRow("var_2", "cmp_1", 0, 1, cfg, "pending", nil, nil, now))

	variants, err := s.ListVariants(setupMockContext(mock), "cmp_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}
	if variants[0].Status != domain.VariantReady {
		t.Errorf("expected ready, got %s", variants[0].Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// Deleting a session must clear the provenance reference on promoted profiles
// before the row goes away.
func TestDeleteComparisonSessionClearsProfileRefs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := &Store{}

	mock.ExpectExec("UPDATE tts_profiles SET created_from_session_id = NULL").
		WithArgs("cmp_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM tts_comparison_sessions").
		WithArgs("cmp_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := s.DeleteComparisonSession(setupMockContext(mock), "cmp_1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
