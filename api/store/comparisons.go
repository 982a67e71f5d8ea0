package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/shared/jsonutil"
)

const comparisonColumns = `id, name, status, config, created_at, updated_at`

func scanComparison(row pgx.Row) (*domain.ComparisonSession, error) {
	var cs domain.ComparisonSession
	var cfg []byte
	err := row.Scan(&cs.ID, &cs.Name, &cs.Status, &cfg, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := jsonutil.ParseJSON(cfg, &cs.Config); err != nil {
		return nil, fmt.Errorf("parse session config: %w", err)
	}
	return &cs, nil
}

func (s *Store) CreateComparisonSession(ctx context.Context, cs *domain.ComparisonSession) error {
	now := time.Now()
	cs.CreatedAt = now
	cs.UpdatedAt = now
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO tts_comparison_sessions (id, name, status, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		cs.ID, cs.Name, cs.Status, jsonutil.MustJSON(cs.Config), cs.CreatedAt, cs.UpdatedAt)
	return wrapError("create comparison session", err)
}

func (s *Store) GetComparisonSession(ctx context.Context, id string) (*domain.ComparisonSession, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+comparisonColumns+` FROM tts_comparison_sessions WHERE id = $1`, id)
	cs, err := scanComparison(row)
	if err != nil {
		return nil, wrapError("get comparison session", err)
	}
	return cs, nil
}

func (s *Store) ListComparisonSessions(ctx context.Context) ([]*domain.ComparisonSession, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+comparisonColumns+` FROM tts_comparison_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapError("list comparison sessions", err)
	}
	defer rows.Close()

	var sessions []*domain.ComparisonSession
	for rows.Next() {
		cs, err := scanComparison(rows)
		if err != nil {
			return nil, wrapError("list comparison sessions", err)
		}
		sessions = append(sessions, cs)
	}
	return sessions, wrapError("list comparison sessions", rows.Err())
}

func (s *Store) UpdateComparisonStatus(ctx context.Context, id string, status domain.ComparisonStatus) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE tts_comparison_sessions SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return wrapError("update comparison status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update comparison status: %w", domain.ErrNotFound)
	}
	return nil
}

// DeleteComparisonSession removes a session and its variants and ratings by
// cascade. Profiles promoted from the session keep existing; their provenance
// reference is cleared rather than left dangling.
func (s *Store) DeleteComparisonSession(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).Exec(ctx,
			`UPDATE tts_profiles SET created_from_session_id = NULL WHERE created_from_session_id = $1`, id); err != nil {
			return wrapError("clear profile session refs", err)
		}
		tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM tts_comparison_sessions WHERE id = $1`, id)
		if err != nil {
			return wrapError("delete comparison session", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("delete comparison session: %w", domain.ErrNotFound)
		}
		return nil
	})
}

const variantColumns = `id, session_id, sample_index, config_index, tts_config, status,
	output_file, duration_seconds, created_at`

func scanVariant(row pgx.Row) (*domain.ComparisonVariant, error) {
	var v domain.ComparisonVariant
	var cfg []byte
	err := row.Scan(&v.ID, &v.SessionID, &v.SampleIndex, &v.ConfigIndex, &cfg, &v.Status,
		&v.OutputFile, &v.DurationSeconds, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := jsonutil.ParseJSON(cfg, &v.TTSConfig); err != nil {
		return nil, fmt.Errorf("parse variant config: %w", err)
	}
	return &v, nil
}

func (s *Store) CreateVariants(ctx context.Context, variants []*domain.ComparisonVariant) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, v := range variants {
			err := s.conn(ctx).QueryRow(ctx, `
				INSERT INTO tts_comparison_variants (id, session_id, sample_index,
					config_index, tts_config, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING created_at`,
				v.ID, v.SessionID, v.SampleIndex, v.ConfigIndex,
				jsonutil.MustJSON(v.TTSConfig), v.Status).Scan(&v.CreatedAt)
			if err != nil {
				return wrapError("create variant", err)
			}
		}
		return nil
	})
}

func (s *Store) GetVariant(ctx context.Context, id string) (*domain.ComparisonVariant, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+variantColumns+` FROM tts_comparison_variants WHERE id = $1`, id)
	v, err := scanVariant(row)
	if err != nil {
		return nil, wrapError("get variant", err)
	}
	return v, nil
}

func (s *Store) ListVariants(ctx context.Context, sessionID string) ([]*domain.ComparisonVariant, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+variantColumns+` FROM tts_comparison_variants
		WHERE session_id = $1 ORDER BY sample_index ASC, config_index ASC`, sessionID)
	if err != nil {
		return nil, wrapError("list variants", err)
	}
	defer rows.Close()

	var variants []*domain.ComparisonVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, wrapError("list variants", err)
		}
		variants = append(variants, v)
	}
	return variants, wrapError("list variants", rows.Err())
}

func (s *Store) UpdateVariantStatus(ctx context.Context, id string, status domain.VariantStatus) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE tts_comparison_variants SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return wrapError("update variant status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update variant status: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkVariantReady(ctx context.Context, id, outputFile string, duration float64) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_comparison_variants
		SET status = 'ready', output_file = $2, duration_seconds = $3
		WHERE id = $1`, id, outputFile, duration)
	if err != nil {
		return wrapError("mark variant ready", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark variant ready: %w", domain.ErrNotFound)
	}
	return nil
}

// UpsertRating stores the single rating for a variant, replacing any prior one.
func (s *Store) UpsertRating(ctx context.Context, r *domain.ComparisonRating) error {
	now := time.Now()
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO tts_comparison_ratings (id, variant_id, rating, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (variant_id) DO UPDATE
		SET rating = EXCLUDED.rating, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		r.ID, r.VariantID, r.Rating, r.Notes, now).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return wrapError("upsert rating", err)
}

func (s *Store) ListRatings(ctx context.Context, sessionID string) ([]*domain.ComparisonRating, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT r.id, r.variant_id, r.rating, r.notes, r.created_at, r.updated_at
		FROM tts_comparison_ratings r
		JOIN tts_comparison_variants v ON v.id = r.variant_id
		WHERE v.session_id = $1`, sessionID)
	if err != nil {
		return nil, wrapError("list ratings", err)
	}
	defer rows.Close()

	var ratings []*domain.ComparisonRating
	for rows.Next() {
		var r domain.ComparisonRating
		if err := rows.Scan(&r.ID, &r.VariantID, &r.Rating, &r.Notes, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, wrapError("list ratings", err)
		}
		ratings = append(ratings, &r)
	}
	return ratings, wrapError("list ratings", rows.Err())
}

// SessionSummary aggregates variant and rating counts per configuration,
// ranked best first by average rating then rating count.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) ([]*domain.ConfigSummary, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT v.config_index,
			COALESCE(MAX(v.tts_config->>'voice_id'), '') AS config_name,
			COALESCE(AVG(r.rating), 0) AS avg_rating,
			COUNT(r.id) AS rating_count,
			COUNT(*) FILTER (WHERE v.status = 'ready') AS ready_count,
			COUNT(*) FILTER (WHERE v.status = 'failed') AS failed_count,
			COUNT(*) AS variant_count
		FROM tts_comparison_variants v
		LEFT JOIN tts_comparison_ratings r ON r.variant_id = v.id
		WHERE v.session_id = $1
		GROUP BY v.config_index
		ORDER BY avg_rating DESC, rating_count DESC, v.config_index ASC`, sessionID)
	if err != nil {
		return nil, wrapError("session summary", err)
	}
	defer rows.Close()

	var summaries []*domain.ConfigSummary
	for rows.Next() {
		var cs domain.ConfigSummary
		err := rows.Scan(&cs.ConfigIndex, &cs.ConfigName, &cs.AvgRating, &cs.RatingCount,
			&cs.ReadyCount, &cs.FailedCount, &cs.VariantCount)
		if err != nil {
			return nil, wrapError("session summary", err)
		}
		summaries = append(summaries, &cs)
	}
	return summaries, wrapError("session summary", rows.Err())
}
