package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxlearn/voxlearn/api/domain"
)

const itemColumns = `id, job_id, item_index, text, text_hash, source_ref, status,
	attempt_count, output_file, duration_seconds, file_size_bytes, sample_rate,
	last_error, processing_started_at, processing_completed_at, created_at`

func scanItem(row pgx.Row) (*domain.JobItem, error) {
	var it domain.JobItem
	err := row.Scan(&it.ID, &it.JobID, &it.ItemIndex, &it.Text, &it.TextHash, &it.SourceRef,
		&it.Status, &it.AttemptCount, &it.OutputFile, &it.DurationSeconds, &it.FileSizeBytes,
		&it.SampleRate, &it.LastError, &it.ProcessingStartedAt, &it.ProcessingCompletedAt,
		&it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// CreateJobItems inserts all items for a job in one transaction.
func (s *Store) CreateJobItems(ctx context.Context, items []*domain.JobItem) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, it := range items {
			err := s.conn(ctx).QueryRow(ctx, `
				INSERT INTO tts_pregen_job_items (id, job_id, item_index, text, text_hash,
					source_ref, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING created_at`,
				it.ID, it.JobID, it.ItemIndex, it.Text, it.TextHash, it.SourceRef,
				it.Status).Scan(&it.CreatedAt)
			if err != nil {
				return wrapError("create job item", err)
			}
		}
		return nil
	})
}

func (s *Store) GetJobItem(ctx context.Context, id string) (*domain.JobItem, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+itemColumns+` FROM tts_pregen_job_items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		return nil, wrapError("get job item", err)
	}
	return it, nil
}

func (s *Store) ListJobItems(ctx context.Context, jobID string) ([]*domain.JobItem, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+itemColumns+` FROM tts_pregen_job_items
		WHERE job_id = $1 ORDER BY item_index ASC`, jobID)
	if err != nil {
		return nil, wrapError("list job items", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// NextPendingItems returns up to limit pending items in item order, the batch
// the engine claims on each pass.
func (s *Store) NextPendingItems(ctx context.Context, jobID string, limit int) ([]*domain.JobItem, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+itemColumns+` FROM tts_pregen_job_items
		WHERE job_id = $1 AND status = 'pending'
		ORDER BY item_index ASC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, wrapError("next pending items", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]*domain.JobItem, error) {
	var items []*domain.JobItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, wrapError("scan job item", err)
		}
		items = append(items, it)
	}
	return items, wrapError("collect job items", rows.Err())
}

// MarkItemProcessing stamps the item as in flight and bumps the attempt count.
func (s *Store) MarkItemProcessing(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_pregen_job_items
		SET status = 'processing', attempt_count = attempt_count + 1,
			processing_started_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return wrapError("mark item processing", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark item processing: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkItemCompleted(ctx context.Context, id, outputFile string, duration float64, sizeBytes int64, sampleRate int) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_pregen_job_items
		SET status = 'completed', output_file = $2, duration_seconds = $3,
			file_size_bytes = $4, sample_rate = $5, last_error = NULL,
			processing_completed_at = $6
		WHERE id = $1`,
		id, outputFile, duration, sizeBytes, sampleRate, time.Now())
	if err != nil {
		return wrapError("mark item completed", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark item completed: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkItemFailed(ctx context.Context, id, lastError string) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_pregen_job_items
		SET status = 'failed', last_error = $2, processing_completed_at = now()
		WHERE id = $1`, id, lastError)
	if err != nil {
		return wrapError("mark item failed", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark item failed: %w", domain.ErrNotFound)
	}
	return nil
}

// ResetFailedItems flips failed items back to pending for a retry pass and
// returns how many were reset.
func (s *Store) ResetFailedItems(ctx context.Context, jobID string) (int, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_pregen_job_items
		SET status = 'pending', last_error = NULL,
			processing_started_at = NULL, processing_completed_at = NULL
		WHERE job_id = $1 AND status = 'failed'`, jobID)
	if err != nil {
		return 0, wrapError("reset failed items", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetProcessingItems returns orphaned in-flight items to pending, used when
// resuming a job after a restart.
func (s *Store) ResetProcessingItems(ctx context.Context, jobID string) (int, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE tts_pregen_job_items
		SET status = 'pending'
		WHERE job_id = $1 AND status = 'processing'`, jobID)
	if err != nil {
		return 0, wrapError("reset processing items", err)
	}
	return int(tag.RowsAffected()), nil
}
