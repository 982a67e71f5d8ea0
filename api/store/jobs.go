package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/shared/jsonutil"
)

const jobColumns = `id, name, type, status, source_type, profile_id, tts_config, output_dir,
	total_items, completed_items, failed_items, current_index, current_text,
	consecutive_failures, last_error, created_at, started_at, paused_at, completed_at, updated_at`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	var cfg []byte
	err := row.Scan(&j.ID, &j.Name, &j.Type, &j.Status, &j.SourceType, &j.ProfileID, &cfg,
		&j.OutputDir, &j.TotalItems, &j.CompletedItems, &j.FailedItems, &j.CurrentIndex,
		&j.CurrentText, &j.ConsecutiveFailures, &j.LastError, &j.CreatedAt, &j.StartedAt,
		&j.PausedAt, &j.CompletedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		j.TTSConfig = &domain.TTSConfig{}
		if err := jsonutil.ParseJSON(cfg, j.TTSConfig); err != nil {
			return nil, fmt.Errorf("parse tts config: %w", err)
		}
	}
	return &j, nil
}

func marshalTTSConfig(cfg *domain.TTSConfig) any {
	if cfg == nil {
		return nil
	}
	return jsonutil.MustJSON(cfg)
}

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO tts_pregen_jobs (id, name, type, status, source_type, profile_id,
			tts_config, output_dir, total_items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, j.Name, j.Type, j.Status, j.SourceType, j.ProfileID,
		marshalTTSConfig(j.TTSConfig), j.OutputDir, j.TotalItems, j.CreatedAt, j.UpdatedAt)
	return wrapError("create job", err)
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+jobColumns+` FROM tts_pregen_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, wrapError("get job", err)
	}
	return j, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM tts_pregen_jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list jobs", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, wrapError("list jobs", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, wrapError("list jobs", rows.Err())
}

// ListRunningJobs finds jobs left in the running state, used at startup to
// park work interrupted by a crash or restart.
func (s *Store) ListRunningJobs(ctx context.Context) ([]*domain.Job, error) {
	return s.ListJobs(ctx, domain.JobRunning)
}

// UpdateJobStatus transitions the job and stamps the matching timestamp column.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error {
	query := `UPDATE tts_pregen_jobs SET status = $2, updated_at = now()`
	switch status {
	case domain.JobRunning:
		query += `, started_at = COALESCE(started_at, now()), paused_at = NULL`
	case domain.JobPaused:
		query += `, paused_at = now()`
	case domain.JobCompleted, domain.JobFailed, domain.JobCancelled:
		query += `, completed_at = now()`
	}
	query += ` WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id, status)
	if err != nil {
		return wrapError("update job status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job status: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateJobProgress persists the per-item counters after each item settles.
func (s *Store) UpdateJobProgress(ctx context.Context, j *domain.Job) error {
	j.UpdatedAt = time.Now()
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_pregen_jobs
		SET completed_items = $2, failed_items = $3, current_index = $4, current_text = $5,
			consecutive_failures = $6, last_error = $7, updated_at = $8
		WHERE id = $1`,
		j.ID, j.CompletedItems, j.FailedItems, j.CurrentIndex, j.CurrentText,
		j.ConsecutiveFailures, j.LastError, j.UpdatedAt)
	if err != nil {
		return wrapError("update job progress", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job progress: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM tts_pregen_jobs WHERE id = $1`, id)
	if err != nil {
		return wrapError("delete job", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete job: %w", domain.ErrNotFound)
	}
	return nil
}
