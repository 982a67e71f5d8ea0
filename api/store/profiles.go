package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/shared/jsonutil"
)

const profileColumns = `id, name, provider, voice_id, settings, description, tags, use_case,
	is_active, is_default, created_from_session_id, sample_audio_path, sample_text,
	created_at, updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	var settings []byte
	err := row.Scan(&p.ID, &p.Name, &p.Provider, &p.VoiceID, &settings, &p.Description,
		&p.Tags, &p.UseCase, &p.IsActive, &p.IsDefault, &p.CreatedFromSessionID,
		&p.SampleAudioPath, &p.SampleText, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := jsonutil.ParseJSON(settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *domain.Profile) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO tts_profiles (id, name, provider, voice_id, settings, description,
			tags, use_case, is_active, is_default, created_from_session_id,
			sample_audio_path, sample_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Name, p.Provider, p.VoiceID, jsonutil.MustJSON(p.Settings), p.Description,
		p.Tags, p.UseCase, p.IsActive, p.IsDefault, p.CreatedFromSessionID,
		p.SampleAudioPath, p.SampleText, p.CreatedAt, p.UpdatedAt)
	return wrapError("create profile", err)
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+profileColumns+` FROM tts_profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		return nil, wrapError("get profile", err)
	}
	return p, nil
}

func (s *Store) GetProfileByName(ctx context.Context, name string) (*domain.Profile, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+profileColumns+` FROM tts_profiles WHERE name = $1`, name)
	p, err := scanProfile(row)
	if err != nil {
		return nil, wrapError("get profile by name", err)
	}
	return p, nil
}

// ListProfiles returns profiles, optionally filtered to active ones, newest first.
func (s *Store) ListProfiles(ctx context.Context, activeOnly bool) ([]*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM tts_profiles`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, wrapError("list profiles", err)
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, wrapError("list profiles", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, wrapError("list profiles", rows.Err())
}

func (s *Store) UpdateProfile(ctx context.Context, p *domain.Profile) error {
	p.UpdatedAt = time.Now()
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_profiles
		SET name = $2, provider = $3, voice_id = $4, settings = $5, description = $6,
			tags = $7, use_case = $8, is_active = $9, is_default = $10,
			sample_audio_path = $11, sample_text = $12, updated_at = $13
		WHERE id = $1`,
		p.ID, p.Name, p.Provider, p.VoiceID, jsonutil.MustJSON(p.Settings), p.Description,
		p.Tags, p.UseCase, p.IsActive, p.IsDefault, p.SampleAudioPath, p.SampleText,
		p.UpdatedAt)
	if err != nil {
		return wrapError("update profile", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update profile: %w", domain.ErrNotFound)
	}
	return nil
}

// SetDefaultProfile marks one profile as default and clears the flag everywhere
// else, keeping at most one default at any time.
func (s *Store) SetDefaultProfile(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).Exec(ctx,
			`UPDATE tts_profiles SET is_default = FALSE WHERE is_default = TRUE AND id <> $1`, id); err != nil {
			return wrapError("clear default profile", err)
		}
		tag, err := s.conn(ctx).Exec(ctx,
			`UPDATE tts_profiles SET is_default = TRUE, updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return wrapError("set default profile", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("set default profile: %w", domain.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) GetDefaultProfile(ctx context.Context) (*domain.Profile, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+profileColumns+` FROM tts_profiles WHERE is_default = TRUE AND is_active = TRUE LIMIT 1`)
	p, err := scanProfile(row)
	if err != nil {
		return nil, wrapError("get default profile", err)
	}
	return p, nil
}

// DeactivateProfile soft-deletes: the profile stays referenceable by jobs but
// drops out of listings and resolution.
func (s *Store) DeactivateProfile(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE tts_profiles SET is_active = FALSE, is_default = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return wrapError("deactivate profile", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deactivate profile: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM tts_profiles WHERE id = $1`, id)
	if err != nil {
		return wrapError("delete profile", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete profile: %w", domain.ErrNotFound)
	}
	return nil
}

// CountJobsForProfile reports how many jobs reference the profile; hard delete
// is refused while this is non-zero.
func (s *Store) CountJobsForProfile(ctx context.Context, profileID string) (int, error) {
	var n int
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tts_pregen_jobs WHERE profile_id = $1`, profileID).Scan(&n)
	if err != nil {
		return 0, wrapError("count jobs for profile", err)
	}
	return n, nil
}
