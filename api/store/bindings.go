package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voxlearn/voxlearn/api/domain"
)

const bindingColumns = `id, module_id, profile_id, context, priority, created_at`

func scanBinding(row pgx.Row) (*domain.ModuleProfileBinding, error) {
	var b domain.ModuleProfileBinding
	err := row.Scan(&b.ID, &b.ModuleID, &b.ProfileID, &b.Context, &b.Priority, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBinding(ctx context.Context, b *domain.ModuleProfileBinding) error {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO tts_module_profiles (id, module_id, profile_id, context, priority)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		b.ID, b.ModuleID, b.ProfileID, b.Context, b.Priority).Scan(&b.CreatedAt)
	return wrapError("create binding", err)
}

func (s *Store) ListBindingsForModule(ctx context.Context, moduleID string) ([]*domain.ModuleProfileBinding, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+bindingColumns+` FROM tts_module_profiles
		WHERE module_id = $1 ORDER BY priority DESC, created_at ASC`, moduleID)
	if err != nil {
		return nil, wrapError("list bindings", err)
	}
	defer rows.Close()

	var bindings []*domain.ModuleProfileBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, wrapError("list bindings", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, wrapError("list bindings", rows.Err())
}

// resolvedProfileColumns is profileColumns qualified for the binding join,
// where both tables carry id and created_at.
const resolvedProfileColumns = `p.id, p.name, p.provider, p.voice_id, p.settings, p.description,
	p.tags, p.use_case, p.is_active, p.is_default, p.created_from_session_id,
	p.sample_audio_path, p.sample_text, p.created_at, p.updated_at`

// ResolveProfileForModule picks the active profile bound to the module with the
// highest priority, preferring a context-specific binding over a context-free
// one. Returns ErrNotFound when no active binding matches.
func (s *Store) ResolveProfileForModule(ctx context.Context, moduleID, bindingContext string) (*domain.Profile, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT `+resolvedProfileColumns+`
		FROM tts_profiles p
		JOIN tts_module_profiles mp ON mp.profile_id = p.id
		WHERE mp.module_id = $1
			AND p.is_active = TRUE
			AND (mp.context = $2 OR mp.context IS NULL)
		ORDER BY (mp.context IS NOT NULL) DESC, mp.priority DESC, mp.created_at ASC
		LIMIT 1`, moduleID, bindingContext)
	p, err := scanProfile(row)
	if err != nil {
		return nil, wrapError("resolve profile for module", err)
	}
	return p, nil
}

func (s *Store) DeleteBinding(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM tts_module_profiles WHERE id = $1`, id)
	if err != nil {
		return wrapError("delete binding", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete binding: %w", domain.ErrNotFound)
	}
	return nil
}
